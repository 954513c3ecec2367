package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Ettore000/RoccaMint/internal/models"
	"go.uber.org/zap"
)

// GetPlanMode reads the active plan mode. Missing or corrupt state
// defaults to normal rather than failing.
func (r *Postgres) GetPlanMode(ctx context.Context) (models.PlanMode, error) {
	query := `SELECT mode FROM plan_state WHERE id = 1`

	var raw string
	err := r.db.GetContext(ctx, &raw, query)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ModeNormal, nil
	}
	if err != nil {
		return models.ModeNormal, fmt.Errorf("get plan mode: %w", err)
	}

	mode := models.PlanMode(raw)
	if !mode.Valid() {
		zap.S().Warn("stored plan mode is invalid, using normal", zap.String("mode", raw))
		return models.ModeNormal, nil
	}

	return mode, nil
}

func (r *Postgres) SetPlanMode(ctx context.Context, mode models.PlanMode) error {
	query := `
		INSERT INTO plan_state (id, mode)
		VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET mode = EXCLUDED.mode
	`

	_, err := r.db.ExecContext(ctx, query, string(mode))
	if err != nil {
		return fmt.Errorf("set plan mode (mode: %s): %w", mode, err)
	}
	return nil
}
