package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Session is one completed study interval. Immutable once appended;
// the only deletion path is the explicit undo of the most recent record.
type Session struct {
	ID        int64     `db:"id"`
	ChatID    int64     `db:"chat_id"`
	StartedAt time.Time `db:"started_at"`
	EndedAt   time.Time `db:"ended_at"`
	Minutes   float64   `db:"minutes"`
	CreatedAt time.Time `db:"created_at"`
}

// SameRecord reports whether two sessions carry the same logged values,
// ignoring storage identity. Used to target the undo deletion.
func (s Session) SameRecord(other Session) bool {
	return s.ChatID == other.ChatID &&
		s.StartedAt.Equal(other.StartedAt) &&
		s.EndedAt.Equal(other.EndedAt) &&
		s.Minutes == other.Minutes
}

func (s Session) String() string {
	return fmt.Sprintf("%s - chat_id: %d - minuti_studio: %g",
		s.StartedAt.Format("2006-01-02 15:04:05"), s.ChatID, s.Minutes)
}

type Chat struct {
	ChatID    int64     `db:"chat_id"`
	Username  string    `db:"username"`
	Active    bool      `db:"active"`
	CreatedAt time.Time `db:"created_at"`
}

type PlanMode string

const (
	ModeNormal       PlanMode = "normal"
	ModeReduced      PlanMode = "reduced"
	ModeSuperReduced PlanMode = "super_reduced"
)

// Next advances one step along normal → reduced → super_reduced,
// clamped at super_reduced.
func (m PlanMode) Next() PlanMode {
	switch m {
	case ModeNormal:
		return ModeReduced
	case ModeReduced:
		return ModeSuperReduced
	default:
		return ModeSuperReduced
	}
}

func (m PlanMode) Valid() bool {
	return m == ModeNormal || m == ModeReduced || m == ModeSuperReduced
}

// Label is the Italian name shown to the user and accepted by /piano.
func (m PlanMode) Label() string {
	switch m {
	case ModeReduced:
		return "ridotto"
	case ModeSuperReduced:
		return "superridotto"
	default:
		return "normale"
	}
}

// ParsePlanMode accepts both the stored names and the Italian command words.
func ParsePlanMode(s string) (PlanMode, error) {
	switch s {
	case "normal", "normale":
		return ModeNormal, nil
	case "reduced", "ridotto":
		return ModeReduced, nil
	case "super_reduced", "superridotto":
		return ModeSuperReduced, nil
	}
	return "", fmt.Errorf("unknown plan mode: %q", s)
}

// PlanBlock is one scheduled activity of the study plan.
type PlanBlock struct {
	Time  string `json:"time"`
	Label string `json:"label"`
}

// UnmarshalJSON accepts the object form {"time": "08:30", "label": "..."},
// the Italian keys {"ora": ..., "testo": ...} and the legacy pair form
// ["08:30", "..."], all of which occur in existing plan files.
func (b *PlanBlock) UnmarshalJSON(data []byte) error {
	var obj struct {
		Time  string `json:"time"`
		Label string `json:"label"`
		Ora   string `json:"ora"`
		Testo string `json:"testo"`
	}
	if err := json.Unmarshal(data, &obj); err == nil {
		if obj.Time == "" {
			obj.Time, obj.Label = obj.Ora, obj.Testo
		}
		if obj.Time != "" {
			b.Time = obj.Time
			b.Label = obj.Label
			return nil
		}
	}

	var pair []string
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("plan block is neither object nor pair: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("plan block pair has %d elements, want 2", len(pair))
	}
	b.Time = pair[0]
	b.Label = pair[1]
	return nil
}

// PendingConfirmation tracks an unanswered "Stai studiando?" prompt.
// In-memory only: lost on restart, which only costs the follow-up, not the log.
type PendingConfirmation struct {
	Label  string
	SentAt time.Time
}
