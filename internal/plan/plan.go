// Package plan loads the time-of-day study plan for the active mode.
// Plan files are read fresh on every lookup so a mode change is picked up
// immediately, without invalidating anything.
package plan

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/Ettore000/RoccaMint/internal/models"
	"go.uber.org/zap"
)

type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Blocks returns the ordered block list for the mode. A missing or
// unreadable mode file falls back to the normal plan; if even that fails
// the plan is empty. Never fails the caller.
func (s *Store) Blocks(mode models.PlanMode) []models.PlanBlock {
	blocks, err := s.load(mode)
	if err == nil {
		return blocks
	}

	zap.S().Warn("load plan, falling back to normal", zap.Error(err), zap.String("mode", string(mode)))

	if mode != models.ModeNormal {
		blocks, err = s.load(models.ModeNormal)
		if err == nil {
			return blocks
		}
		zap.S().Warn("load normal plan", zap.Error(err))
	}

	return nil
}

func (s *Store) load(mode models.PlanMode) ([]models.PlanBlock, error) {
	path := filepath.Join(s.dir, fmt.Sprintf("plan_%s.json", mode))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan file (path: %s): %w", path, err)
	}

	blocks, err := parseBlocks(data)
	if err != nil {
		return nil, fmt.Errorf("parse plan file (path: %s): %w", path, err)
	}

	return blocks, nil
}

// parseBlocks accepts {"blocks": [...]} and a bare block list.
func parseBlocks(data []byte) ([]models.PlanBlock, error) {
	var wrapped struct {
		Blocks []models.PlanBlock `json:"blocks"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.Blocks != nil {
		return sanitize(wrapped.Blocks), nil
	}

	var bare []models.PlanBlock
	if err := json.Unmarshal(data, &bare); err != nil {
		return nil, err
	}
	return sanitize(bare), nil
}

// sanitize drops blocks with malformed times and orders the rest by
// time-of-day ascending.
func sanitize(blocks []models.PlanBlock) []models.PlanBlock {
	valid := make([]models.PlanBlock, 0, len(blocks))
	for _, b := range blocks {
		if _, err := MinuteOfDay(b.Time); err != nil {
			zap.S().Warn("skip plan block with invalid time", zap.String("time", b.Time), zap.String("label", b.Label))
			continue
		}
		valid = append(valid, b)
	}

	sort.SliceStable(valid, func(i, j int) bool {
		mi, _ := MinuteOfDay(valid[i].Time)
		mj, _ := MinuteOfDay(valid[j].Time)
		return mi < mj
	})

	return valid
}

// MinuteOfDay parses an HH:MM string into minutes since midnight.
func MinuteOfDay(hhmm string) (int, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return 0, fmt.Errorf("parse time of day (value: %s): %w", hhmm, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// BlockAt returns the first block scheduled exactly at hhmm.
func BlockAt(blocks []models.PlanBlock, hhmm string) (models.PlanBlock, bool) {
	for _, b := range blocks {
		if b.Time == hhmm {
			return b, true
		}
	}
	return models.PlanBlock{}, false
}

// NextAfter returns the first block strictly later in the day than hhmm.
func NextAfter(blocks []models.PlanBlock, hhmm string) (models.PlanBlock, bool) {
	ref, err := MinuteOfDay(hhmm)
	if err != nil {
		return models.PlanBlock{}, false
	}

	for _, b := range blocks {
		m, err := MinuteOfDay(b.Time)
		if err != nil {
			continue
		}
		if m > ref {
			return b, true
		}
	}
	return models.PlanBlock{}, false
}

// CurrentAt returns the block in progress at now (the latest one already
// started) and the upcoming one, either of which may be absent.
func CurrentAt(blocks []models.PlanBlock, now time.Time) (current, next *models.PlanBlock) {
	minute := now.Hour()*60 + now.Minute()

	for i := range blocks {
		m, err := MinuteOfDay(blocks[i].Time)
		if err != nil {
			continue
		}
		if m <= minute {
			current = &blocks[i]
		} else {
			next = &blocks[i]
			break
		}
	}
	return current, next
}
