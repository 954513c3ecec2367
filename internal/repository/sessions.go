package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Ettore000/RoccaMint/internal/models"
)

// ErrSessionNotFound is returned by RemoveSession when no stored record
// matches the one proposed for deletion.
var ErrSessionNotFound = errors.New("session not found")

func (r *Postgres) AppendSession(ctx context.Context, session *models.Session) error {
	query := r.psql.Insert("study_sessions").
		Columns("chat_id", "started_at", "ended_at", "minutes", "created_at").
		Values(session.ChatID, session.StartedAt, session.EndedAt, session.Minutes, session.CreatedAt)

	sql, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build SQL query (chat_id: %d): %w", session.ChatID, err)
	}

	_, err = r.db.ExecContext(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("append session (chat_id: %d, minutes: %g): %w", session.ChatID, session.Minutes, err)
	}
	return nil
}

// SumMinutes totals the minutes of sessions whose start falls in [from, to).
func (r *Postgres) SumMinutes(ctx context.Context, chatID int64, from, to time.Time) (float64, error) {
	query := `
		SELECT COALESCE(SUM(minutes), 0)
		FROM study_sessions
		WHERE chat_id = $1 AND started_at >= $2 AND started_at < $3
	`

	var total float64
	err := r.db.GetContext(ctx, &total, query, chatID, from, to)
	if err != nil {
		return 0, fmt.Errorf("sum minutes (chat_id: %d, from: %s, to: %s): %w",
			chatID, from.Format(time.RFC3339), to.Format(time.RFC3339), err)
	}

	return total, nil
}

// SessionsInRange returns the sessions whose start falls in [from, to),
// in append order.
func (r *Postgres) SessionsInRange(ctx context.Context, chatID int64, from, to time.Time) ([]*models.Session, error) {
	query := `
		SELECT id, chat_id, started_at, ended_at, minutes, created_at
		FROM study_sessions
		WHERE chat_id = $1 AND started_at >= $2 AND started_at < $3
		ORDER BY id ASC
	`

	var sessions []*models.Session
	err := r.db.SelectContext(ctx, &sessions, query, chatID, from, to)
	if err != nil {
		return nil, fmt.Errorf("query sessions in range (chat_id: %d): %w", chatID, err)
	}

	return sessions, nil
}

// LastSession returns the most recently appended session for the chat,
// or nil when the chat has no sessions.
func (r *Postgres) LastSession(ctx context.Context, chatID int64) (*models.Session, error) {
	query := `
		SELECT id, chat_id, started_at, ended_at, minutes, created_at
		FROM study_sessions
		WHERE chat_id = $1
		ORDER BY id DESC
		LIMIT 1
	`

	var session models.Session
	err := r.db.GetContext(ctx, &session, query, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get last session (chat_id: %d): %w", chatID, err)
	}

	return &session, nil
}

// RemoveSession deletes the first stored record matching the session's
// logged values exactly. ErrSessionNotFound when nothing matches.
func (r *Postgres) RemoveSession(ctx context.Context, session *models.Session) error {
	query := `
		DELETE FROM study_sessions
		WHERE id = (
			SELECT id FROM study_sessions
			WHERE chat_id = $1 AND started_at = $2 AND ended_at = $3 AND minutes = $4
			ORDER BY id ASC
			LIMIT 1
		)
	`

	res, err := r.db.ExecContext(ctx, query, session.ChatID, session.StartedAt, session.EndedAt, session.Minutes)
	if err != nil {
		return fmt.Errorf("remove session (chat_id: %d, minutes: %g): %w", session.ChatID, session.Minutes, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check removed rows (chat_id: %d): %w", session.ChatID, err)
	}
	if affected == 0 {
		return ErrSessionNotFound
	}

	return nil
}
