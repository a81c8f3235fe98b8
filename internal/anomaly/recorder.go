// Package anomaly records and classifies risk deviations surfaced by the
// scoring engine.
package anomaly

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/trustplane/platform/internal/domain"
	"github.com/trustplane/platform/internal/repository"
)

// Recorder persists anomalies and answers the recent-load query the risk
// engine's factor 7 needs.
type Recorder struct {
	db     repository.DBTX
	repo   repository.AnomalyRepository
	logger *slog.Logger
}

// NewRecorder creates a recorder over the zero-trust store.
func NewRecorder(db repository.DBTX, repo repository.AnomalyRepository, logger *slog.Logger) *Recorder {
	return &Recorder{db: db, repo: repo, logger: logger}
}

// Record persists one row per detected anomaly, grading severity from the
// description. The scoring engine produces descriptions; it never persists.
func (r *Recorder) Record(ctx context.Context, userID, sessionID string, descriptions []string) error {
	now := time.Now().UTC()
	for _, desc := range descriptions {
		a := &domain.Anomaly{
			UserID:      userID,
			SessionID:   sessionID,
			Type:        "behavioral",
			Severity:    domain.ClassifySeverity(desc),
			Description: desc,
			DetectedAt:  now,
		}
		if err := r.repo.Insert(ctx, r.db, a); err != nil {
			return fmt.Errorf("record anomaly: %w", err)
		}
		if a.Severity == domain.SeverityCritical {
			r.logger.Warn("critical anomaly detected",
				"user_id", userID, "session_id", sessionID, "description", desc)
		}
	}
	return nil
}

// CountRecentUnresolved returns the user's unresolved anomalies in the
// trailing window.
func (r *Recorder) CountRecentUnresolved(ctx context.Context, userID string, window time.Duration) (int, error) {
	return r.repo.CountUnresolvedSince(ctx, r.db, userID, time.Now().UTC().Add(-window))
}

// ListByUser returns a user's anomalies, newest first.
func (r *Recorder) ListByUser(ctx context.Context, userID string, includeResolved bool, limit int) ([]domain.Anomaly, error) {
	return r.repo.ListByUser(ctx, r.db, userID, includeResolved, limit)
}

// Resolve marks one anomaly resolved. Resolution is always an explicit
// action, never automatic.
func (r *Recorder) Resolve(ctx context.Context, id int64) error {
	return r.repo.Resolve(ctx, r.db, id)
}
