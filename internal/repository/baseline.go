package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/trustplane/platform/internal/domain"
)

type baselineRepo struct{}

// NewBaselineRepository returns a pgx-backed BaselineRepository. Baselines
// are written by an external analytics collaborator; this core only reads.
func NewBaselineRepository() BaselineRepository {
	return &baselineRepo{}
}

func (r *baselineRepo) FindByUser(ctx context.Context, db DBTX, userID string) (*domain.BehaviorBaseline, error) {
	row := db.QueryRow(ctx, `
		SELECT user_id, typical_hours, typical_locations, typical_devices, updated_at
		FROM behavior_baselines WHERE user_id = $1`, userID)

	var b domain.BehaviorBaseline
	err := row.Scan(&b.UserID, &b.TypicalHours, &b.TypicalLocations, &b.TypicalDevices, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query baseline: %w", err)
	}
	return &b, nil
}
