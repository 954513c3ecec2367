// Package tracker holds the manual start/stop state machine for
// in-progress study sessions. State is per chat and in memory only.
package tracker

import (
	"sync"
	"time"
)

type Tracker struct {
	mu      sync.Mutex
	running map[int64]time.Time
	now     func() time.Time
}

func New() *Tracker {
	return &Tracker{
		running: make(map[int64]time.Time),
		now:     time.Now,
	}
}

// Start moves the chat from Idle to Running. A Start while already
// Running is ignored and keeps the original start time.
func (t *Tracker) Start(chatID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.running[chatID]; ok {
		return false
	}
	t.running[chatID] = t.now()
	return true
}

// Stop closes the running session and returns its bounds and fractional
// minutes. ok is false when the chat was Idle; that case logs nothing
// and is not an error.
func (t *Tracker) Stop(chatID int64) (start, end time.Time, minutes float64, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	start, ok = t.running[chatID]
	if !ok {
		return time.Time{}, time.Time{}, 0, false
	}
	delete(t.running, chatID)

	end = t.now()
	minutes = end.Sub(start).Minutes()
	return start, end, minutes, true
}

// Elapsed returns whole minutes since the running session started,
// for display only.
func (t *Tracker) Elapsed(chatID int64) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	start, ok := t.running[chatID]
	if !ok {
		return 0, false
	}
	return int(t.now().Sub(start).Minutes()), true
}

// SetClock replaces the time source. Test use only.
func (t *Tracker) SetClock(now func() time.Time) {
	t.now = now
}
