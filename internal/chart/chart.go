// Package chart renders time-bucketed study summaries as PNG line charts.
package chart

import (
	"bytes"
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// Point is one bucket of a summary series, in series order.
type Point struct {
	Label string
	Value float64
}

// RenderLine draws the series as a line with point markers on a labelled
// categorical X axis and returns the PNG bytes.
func RenderLine(title, xLabel, yLabel string, points []Point) ([]byte, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xLabel
	p.Y.Label.Text = yLabel
	p.Y.Min = 0
	p.Add(plotter.NewGrid())

	xys := make(plotter.XYs, len(points))
	labels := make([]string, len(points))
	for i, pt := range points {
		xys[i] = plotter.XY{X: float64(i), Y: pt.Value}
		labels[i] = pt.Label
	}

	line, markers, err := plotter.NewLinePoints(xys)
	if err != nil {
		return nil, fmt.Errorf("build line plot: %w", err)
	}
	p.Add(line, markers)
	p.NominalX(labels...)

	wt, err := p.WriterTo(10*vg.Inch, 6*vg.Inch, "png")
	if err != nil {
		return nil, fmt.Errorf("render chart: %w", err)
	}

	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("write chart: %w", err)
	}

	return buf.Bytes(), nil
}
