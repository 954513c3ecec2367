package tracker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func TestStartStop(t *testing.T) {
	tr := New()
	startAt := time.Date(2024, time.March, 13, 10, 0, 0, 0, time.UTC)
	tr.SetClock(fixedClock(startAt))

	require.True(t, tr.Start(7))

	tr.SetClock(fixedClock(startAt.Add(45*time.Minute + 30*time.Second)))
	start, end, minutes, ok := tr.Stop(7)

	require.True(t, ok)
	assert.Equal(t, startAt, start)
	assert.Equal(t, startAt.Add(45*time.Minute+30*time.Second), end)
	assert.InDelta(t, 45.5, minutes, 1e-9)
}

func TestStartWhileRunningKeepsOriginalStart(t *testing.T) {
	tr := New()
	startAt := time.Date(2024, time.March, 13, 10, 0, 0, 0, time.UTC)
	tr.SetClock(fixedClock(startAt))

	require.True(t, tr.Start(7))

	tr.SetClock(fixedClock(startAt.Add(10 * time.Minute)))
	assert.False(t, tr.Start(7))

	tr.SetClock(fixedClock(startAt.Add(30 * time.Minute)))
	start, _, minutes, ok := tr.Stop(7)
	require.True(t, ok)
	assert.Equal(t, startAt, start)
	assert.InDelta(t, 30, minutes, 1e-9)
}

func TestStopWhileIdle(t *testing.T) {
	tr := New()

	_, _, minutes, ok := tr.Stop(7)

	assert.False(t, ok)
	assert.Zero(t, minutes)
}

func TestStopIsPerChat(t *testing.T) {
	tr := New()
	at := time.Date(2024, time.March, 13, 10, 0, 0, 0, time.UTC)
	tr.SetClock(fixedClock(at))

	require.True(t, tr.Start(1))
	require.True(t, tr.Start(2))

	_, _, _, ok := tr.Stop(1)
	require.True(t, ok)

	_, ok = tr.Elapsed(1)
	assert.False(t, ok)
	_, ok = tr.Elapsed(2)
	assert.True(t, ok)
}

func TestElapsedWholeMinutes(t *testing.T) {
	tr := New()
	at := time.Date(2024, time.March, 13, 10, 0, 0, 0, time.UTC)
	tr.SetClock(fixedClock(at))

	require.True(t, tr.Start(7))

	tr.SetClock(fixedClock(at.Add(12*time.Minute + 59*time.Second)))
	elapsed, ok := tr.Elapsed(7)
	require.True(t, ok)
	assert.Equal(t, 12, elapsed)
}
