package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Ettore000/RoccaMint/internal/models"
)

// RegisterChat inserts the chat or reactivates it when already known.
func (r *Postgres) RegisterChat(ctx context.Context, chatID int64, username string) error {
	query := `
		INSERT INTO chats (chat_id, username, active, created_at)
		VALUES ($1, $2, TRUE, $3)
		ON CONFLICT (chat_id) DO UPDATE SET active = TRUE, username = EXCLUDED.username
	`

	_, err := r.db.ExecContext(ctx, query, chatID, username, time.Now())
	if err != nil {
		return fmt.Errorf("register chat (chat_id: %d, username: %s): %w", chatID, username, err)
	}
	return nil
}

// SetChatActive toggles reminder delivery for the chat. Returns false when
// the flag already had the requested value.
func (r *Postgres) SetChatActive(ctx context.Context, chatID int64, active bool) (bool, error) {
	query := r.psql.Update("chats").
		Set("active", active).
		Where("chat_id = ? AND active <> ?", chatID, active)

	sql, args, err := query.ToSql()
	if err != nil {
		return false, fmt.Errorf("build SQL query (chat_id: %d): %w", chatID, err)
	}

	res, err := r.db.ExecContext(ctx, sql, args...)
	if err != nil {
		return false, fmt.Errorf("set chat active (chat_id: %d, active: %t): %w", chatID, active, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check updated rows (chat_id: %d): %w", chatID, err)
	}
	return affected > 0, nil
}

func (r *Postgres) GetActiveChats(ctx context.Context) ([]*models.Chat, error) {
	query := `
		SELECT chat_id, username, active, created_at
		FROM chats
		WHERE active = TRUE
		ORDER BY chat_id
	`

	var chats []*models.Chat
	err := r.db.SelectContext(ctx, &chats, query)
	if err != nil {
		return nil, fmt.Errorf("query active chats: %w", err)
	}

	return chats, nil
}
