package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/trustplane/platform/internal/domain"
)

// DBTX abstracts pgx.Tx and pgxpool.Pool so repositories work with both.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// UserRepository provides access to operator accounts.
type UserRepository interface {
	Create(ctx context.Context, db DBTX, user *domain.User) error
	FindByUsername(ctx context.Context, db DBTX, username string) (*domain.User, error)
	FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.User, error)
}

// DeviceRepository provides access to the device registry table.
type DeviceRepository interface {
	// FindByID returns a fingerprint, or nil when the registry has never
	// seen the device.
	FindByID(ctx context.Context, db DBTX, deviceID string) (*domain.DeviceFingerprint, error)

	// Insert registers a first sighting.
	Insert(ctx context.Context, db DBTX, device *domain.DeviceFingerprint) error

	// Touch bumps last_seen, total_sessions and the current IP on a
	// subsequent sighting, returning the updated row.
	Touch(ctx context.Context, db DBTX, deviceID, ip string, seenAt time.Time) (*domain.DeviceFingerprint, error)

	// ListByUser returns every fingerprint registered for a user.
	ListByUser(ctx context.Context, db DBTX, userID string) ([]domain.DeviceFingerprint, error)

	// SetBlocked retires (or reinstates) a fingerprint. There is no delete.
	SetBlocked(ctx context.Context, db DBTX, deviceID string, blocked bool) error

	// Stats returns count and average trust of a user's fingerprints.
	Stats(ctx context.Context, db DBTX, userID string) (count int, avgTrust float64, err error)
}

// SessionRepository provides access to the session table.
type SessionRepository interface {
	Insert(ctx context.Context, db DBTX, session *domain.SessionContext) error

	// FindActive returns the session only if it is still active, or nil.
	FindActive(ctx context.Context, db DBTX, sessionID string) (*domain.SessionContext, error)

	// RecordActivity updates risk_score and last_activity in a single
	// statement so concurrent verifications never lose writes.
	RecordActivity(ctx context.Context, db DBTX, sessionID string, riskScore int, at time.Time) error

	// Terminate deactivates a session with a reason. Idempotent: repeated
	// calls report terminated=false and keep the original reason.
	Terminate(ctx context.Context, db DBTX, sessionID, reason string) (terminated bool, err error)

	// ActiveStats returns count and average risk of a user's active sessions.
	ActiveStats(ctx context.Context, db DBTX, userID string) (count int, avgRisk float64, err error)
}

// AccessRequestRepository appends immutable per-decision records.
type AccessRequestRepository interface {
	Insert(ctx context.Context, db DBTX, req *domain.AccessRequest) error
	ListBySession(ctx context.Context, db DBTX, sessionID string, limit int) ([]domain.AccessRequest, error)
}

// BaselineRepository reads behavioral baselines. This core never writes them.
type BaselineRepository interface {
	FindByUser(ctx context.Context, db DBTX, userID string) (*domain.BehaviorBaseline, error)
}

// AnomalyRepository stores risk deviations surfaced by the scoring engine.
type AnomalyRepository interface {
	Insert(ctx context.Context, db DBTX, anomaly *domain.Anomaly) error
	CountUnresolvedSince(ctx context.Context, db DBTX, userID string, since time.Time) (int, error)
	ListByUser(ctx context.Context, db DBTX, userID string, includeResolved bool, limit int) ([]domain.Anomaly, error)
	Resolve(ctx context.Context, db DBTX, id int64) error
}
