// Package registry identifies and scores the trustworthiness of
// (user, browser, network) combinations.
package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/trustplane/platform/internal/domain"
	"github.com/trustplane/platform/internal/repository"
)

// Registry is the device fingerprint service. Fingerprint ids are
// deterministic, so repeated logins from the same combination are idempotent;
// a new combination (an IP change on mobile, say) always creates a new record
// at neutral trust and never merges with history.
type Registry struct {
	db   repository.DBTX
	repo repository.DeviceRepository
}

// New creates a registry over the zero-trust store.
func New(db repository.DBTX, repo repository.DeviceRepository) *Registry {
	return &Registry{db: db, repo: repo}
}

// RegisterOrUpdate records a device sighting. Existing devices get their
// last_seen, session count and current IP bumped; unseen combinations are
// inserted at neutral trust.
func (r *Registry) RegisterOrUpdate(ctx context.Context, userID, userAgent, ip string, info domain.DeviceInfo) (*domain.DeviceFingerprint, error) {
	deviceID := domain.NewDeviceID(userAgent, ip, userID)
	now := time.Now().UTC()

	existing, err := r.repo.FindByID(ctx, r.db, deviceID)
	if err != nil {
		return nil, fmt.Errorf("lookup device: %w", err)
	}
	if existing != nil {
		return r.repo.Touch(ctx, r.db, deviceID, ip, now)
	}

	device := &domain.DeviceFingerprint{
		DeviceID:         deviceID,
		UserID:           userID,
		UserAgent:        userAgent,
		IPAddress:        ip,
		OS:               orUnknown(info.OS),
		Browser:          orUnknown(info.Browser),
		ScreenResolution: orUnknown(info.ScreenResolution),
		Timezone:         orUnknown(info.Timezone),
		Language:         orDefault(info.Language, "en"),
		FirstSeen:        now,
		LastSeen:         now,
		TrustScore:       domain.NeutralTrustScore,
		TotalSessions:    1,
	}
	if err := r.repo.Insert(ctx, r.db, device); err != nil {
		return nil, fmt.Errorf("register device: %w", err)
	}
	return device, nil
}

// Find returns the fingerprint, or nil when never seen.
func (r *Registry) Find(ctx context.Context, deviceID string) (*domain.DeviceFingerprint, error) {
	return r.repo.FindByID(ctx, r.db, deviceID)
}

// ListByUser returns every fingerprint registered for a user.
func (r *Registry) ListByUser(ctx context.Context, userID string) ([]domain.DeviceFingerprint, error) {
	return r.repo.ListByUser(ctx, r.db, userID)
}

// Block retires a fingerprint. There is no delete: removal would break the
// forensic trail.
func (r *Registry) Block(ctx context.Context, deviceID string) error {
	return r.repo.SetBlocked(ctx, r.db, deviceID, true)
}

// Stats returns count and average trust of a user's fingerprints.
func (r *Registry) Stats(ctx context.Context, userID string) (int, float64, error) {
	return r.repo.Stats(ctx, r.db, userID)
}

func orUnknown(v string) string {
	return orDefault(v, domain.UnknownLocation)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
