package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/trustplane/platform/internal/domain"
)

type anomalyRepo struct{}

// NewAnomalyRepository returns a pgx-backed AnomalyRepository.
func NewAnomalyRepository() AnomalyRepository {
	return &anomalyRepo{}
}

func (r *anomalyRepo) Insert(ctx context.Context, db DBTX, a *domain.Anomaly) error {
	err := db.QueryRow(ctx, `
		INSERT INTO anomalies (user_id, session_id, anomaly_type, severity, description, detected_at, resolved)
		VALUES ($1, $2, $3, $4, $5, $6, false)
		RETURNING id`,
		a.UserID, a.SessionID, a.Type, a.Severity, a.Description, a.DetectedAt).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("insert anomaly: %w", err)
	}
	return nil
}

func (r *anomalyRepo) CountUnresolvedSince(ctx context.Context, db DBTX, userID string, since time.Time) (int, error) {
	var count int
	err := db.QueryRow(ctx, `
		SELECT COUNT(*) FROM anomalies
		WHERE user_id = $1 AND resolved = false AND detected_at > $2`,
		userID, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count anomalies: %w", err)
	}
	return count, nil
}

func (r *anomalyRepo) ListByUser(ctx context.Context, db DBTX, userID string, includeResolved bool, limit int) ([]domain.Anomaly, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := db.Query(ctx, `
		SELECT id, user_id, session_id, anomaly_type, severity, description, detected_at, resolved
		FROM anomalies
		WHERE user_id = $1 AND (resolved = false OR $2)
		ORDER BY detected_at DESC
		LIMIT $3`, userID, includeResolved, limit)
	if err != nil {
		return nil, fmt.Errorf("query anomalies: %w", err)
	}
	defer rows.Close()

	var anomalies []domain.Anomaly
	for rows.Next() {
		var a domain.Anomaly
		if err := rows.Scan(&a.ID, &a.UserID, &a.SessionID, &a.Type, &a.Severity,
			&a.Description, &a.DetectedAt, &a.Resolved); err != nil {
			return nil, fmt.Errorf("scan anomaly: %w", err)
		}
		anomalies = append(anomalies, a)
	}
	return anomalies, rows.Err()
}

func (r *anomalyRepo) Resolve(ctx context.Context, db DBTX, id int64) error {
	tag, err := db.Exec(ctx, `UPDATE anomalies SET resolved = true WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("resolve anomaly: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound("anomaly", fmt.Sprintf("%d", id))
	}
	return nil
}
