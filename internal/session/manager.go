// Package session implements the continuous-authorization state machine:
// sessions are created, re-verified on every request, and terminated — no
// request is trusted merely because a session exists.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/trustplane/platform/internal/audit"
	"github.com/trustplane/platform/internal/domain"
	"github.com/trustplane/platform/internal/policy"
	"github.com/trustplane/platform/internal/repository"
)

// AuditSink receives every security-relevant event. A sink failure is fatal
// for the triggering request: decisions are never returned unaudited.
type AuditSink interface {
	LogEvent(ctx context.Context, ev audit.Event) (string, error)
}

// AnomalyLog records risk deviations and answers the trailing-load query.
type AnomalyLog interface {
	Record(ctx context.Context, userID, sessionID string, descriptions []string) error
	CountRecentUnresolved(ctx context.Context, userID string, window time.Duration) (int, error)
}

// DeviceRegistry records a fingerprint sighting. Every verified request is a
// sighting: the live user agent and network hash to their own fingerprint,
// so a mid-session rotation scores as a new device instead of inheriting
// the login device's trust.
type DeviceRegistry interface {
	RegisterOrUpdate(ctx context.Context, userID, userAgent, ip string, info domain.DeviceInfo) (*domain.DeviceFingerprint, error)
}

// Cache is an advisory revocation index. It can only accelerate denials;
// the zero-trust store stays the source of truth, so a cache outage degrades
// to store reads instead of wrong answers.
type Cache interface {
	MarkActive(ctx context.Context, sessionID, userID string, ttl time.Duration) error
	MarkTerminated(ctx context.Context, sessionID string, ttl time.Duration) error
	IsTerminated(ctx context.Context, sessionID string) (bool, error)
}

// Config carries the manager's externally-tuned knobs.
type Config struct {
	Risk          policy.Config
	MaxAge        time.Duration // session expiry, checked at verify time
	AnomalyWindow time.Duration // trailing window for the anomaly-load factor
}

// Manager orchestrates repositories, the scoring engine, the anomaly log and
// the audit ledger. All dependencies are injected; there is no global state.
type Manager struct {
	db        repository.DBTX
	sessions  repository.SessionRepository
	devices   repository.DeviceRepository
	registry  DeviceRegistry
	access    repository.AccessRequestRepository
	baselines repository.BaselineRepository
	anomalies AnomalyLog
	audit     AuditSink
	cache     Cache // nil disables the fast path
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time
}

// NewManager wires a session manager. cache may be nil.
func NewManager(
	db repository.DBTX,
	sessions repository.SessionRepository,
	devices repository.DeviceRepository,
	registry DeviceRegistry,
	access repository.AccessRequestRepository,
	baselines repository.BaselineRepository,
	anomalies AnomalyLog,
	sink AuditSink,
	cache Cache,
	cfg Config,
	logger *slog.Logger,
) *Manager {
	if cfg.AnomalyWindow == 0 {
		cfg.AnomalyWindow = 24 * time.Hour
	}
	return &Manager{
		db:        db,
		sessions:  sessions,
		devices:   devices,
		registry:  registry,
		access:    access,
		baselines: baselines,
		anomalies: anomalies,
		audit:     sink,
		cache:     cache,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// Create scores a login, persists the session, records anomalies and always
// writes a login audit event. An audit failure tears the session back down
// and denies. A risk denial returns a nil session alongside the assessment;
// the persisted row is terminated immediately.
func (m *Manager) Create(ctx context.Context, userID, username, deviceID, ip string, acc domain.AccessContext) (*domain.SessionContext, *policy.Assessment, error) {
	device, err := m.devices.FindByID(ctx, m.db, deviceID)
	if err != nil {
		return nil, nil, domain.ErrInternal("load device", err)
	}
	assessment, err := m.assess(ctx, userID, device, ip, "login", "session", acc)
	if err != nil {
		return nil, nil, err
	}

	startedAt := m.now().UTC()
	sess := &domain.SessionContext{
		SessionID:    domain.NewSessionID(userID, deviceID, startedAt),
		UserID:       userID,
		Username:     username,
		DeviceID:     deviceID,
		IPAddress:    ip,
		Location:     acc.Location,
		StartedAt:    startedAt,
		LastActivity: startedAt,
		RiskScore:    assessment.RiskScore,
		TrustLevel:   string(assessment.RiskLevel),
		IsActive:     true,
		Anomalies:    assessment.Anomalies,
	}
	if err := m.sessions.Insert(ctx, m.db, sess); err != nil {
		return nil, nil, domain.ErrInternal("create session", err)
	}
	if m.cache != nil {
		if err := m.cache.MarkActive(ctx, sess.SessionID, userID, m.cfg.MaxAge); err != nil {
			m.logger.Warn("session cache unavailable", "error", err)
		}
	}

	if len(assessment.Anomalies) > 0 {
		if err := m.anomalies.Record(ctx, userID, sess.SessionID, assessment.Anomalies); err != nil {
			return nil, nil, domain.ErrInternal("record anomalies", err)
		}
	}

	ev := audit.Event{
		Type:         domain.EventLoginSuccess,
		Actor:        username,
		ActorIP:      ip,
		ResourceType: "session",
		ResourceID:   sess.SessionID,
		Action:       "login",
		Status:       domain.StatusSuccess,
		Metadata: map[string]any{
			"risk_score": assessment.RiskScore,
			"risk_level": assessment.RiskLevel,
			"device_id":  deviceID,
		},
	}
	if !assessment.AllowAccess {
		ev.Type = domain.EventAccessDenied
		ev.Status = domain.StatusDenied
	}
	if _, err := m.audit.LogEvent(ctx, ev); err != nil {
		// Fail closed: an unaudited session must not survive.
		if _, terr := m.sessions.Terminate(ctx, m.db, sess.SessionID, "audit unavailable"); terr != nil {
			m.logger.Error("session teardown after audit failure", "session_id", sess.SessionID, "error", terr)
		}
		return nil, nil, err
	}

	if !assessment.AllowAccess {
		// The session row stays as a forensic record, but never usable.
		if _, terr := m.sessions.Terminate(ctx, m.db, sess.SessionID, "login denied by risk policy"); terr != nil {
			m.logger.Error("teardown of denied session", "session_id", sess.SessionID, "error", terr)
		}
		if m.cache != nil {
			if err := m.cache.MarkTerminated(ctx, sess.SessionID, m.cfg.MaxAge); err != nil {
				m.logger.Warn("session cache unavailable", "error", err)
			}
		}
		return nil, &assessment, nil
	}

	return sess, &assessment, nil
}

// VerifyAccess re-verifies one request against an existing session. It fails
// with SessionInvalid when no active session matches, re-fingerprints the
// caller's device from the live user agent and network, re-scores for the
// specific action and resource, always appends an AccessRequest record, and
// always audits. A DENY does not itself terminate the session.
func (m *Manager) VerifyAccess(ctx context.Context, sessionID, userID, action, resource string, acc domain.AccessContext) (*policy.Assessment, error) {
	if m.cache != nil {
		if terminated, err := m.cache.IsTerminated(ctx, sessionID); err == nil && terminated {
			return nil, domain.ErrSessionInvalid(sessionID)
		}
	}

	sess, err := m.sessions.FindActive(ctx, m.db, sessionID)
	if err != nil {
		return nil, domain.ErrInternal("load session", err)
	}
	if sess == nil || sess.UserID != userID {
		return nil, domain.ErrSessionInvalid(sessionID)
	}

	now := m.now().UTC()
	if m.cfg.MaxAge > 0 && now.Sub(sess.StartedAt) > m.cfg.MaxAge {
		if err := m.expire(ctx, sess, now); err != nil {
			return nil, err
		}
		return nil, domain.ErrSessionInvalid(sessionID)
	}

	ip := acc.IPAddress
	if ip == "" {
		ip = sess.IPAddress
	}

	// Every request is a device sighting: the same combination advances its
	// last_seen and session count, a rotated browser or network hashes to a
	// fresh fingerprint at neutral trust and is scored as such.
	device, err := m.registry.RegisterOrUpdate(ctx, userID, acc.UserAgent, ip, acc.Device)
	if err != nil {
		return nil, domain.ErrInternal("record device sighting", err)
	}

	assessment, err := m.assess(ctx, userID, device, ip, action, resource, acc)
	if err != nil {
		return nil, err
	}

	decision := domain.DecisionAllow
	status := domain.StatusSuccess
	eventType := domain.EventAccessGranted
	if !assessment.AllowAccess {
		decision = domain.DecisionDeny
		status = domain.StatusBlocked
		eventType = domain.EventAccessDenied
	}

	factors, _ := json.Marshal(map[string]any{
		"trust_factors": assessment.TrustFactors,
		"anomalies":     assessment.Anomalies,
	})
	req := &domain.AccessRequest{
		SessionID: sessionID,
		UserID:    userID,
		Resource:  resource,
		Action:    action,
		Timestamp: now,
		RiskScore: assessment.RiskScore,
		Decision:  decision,
		Factors:   factors,
	}
	if err := m.access.Insert(ctx, m.db, req); err != nil {
		return nil, domain.ErrInternal("record access request", err)
	}
	if err := m.sessions.RecordActivity(ctx, m.db, sessionID, assessment.RiskScore, now); err != nil {
		return nil, domain.ErrInternal("update session", err)
	}

	if len(assessment.Anomalies) > 0 {
		if err := m.anomalies.Record(ctx, userID, sessionID, assessment.Anomalies); err != nil {
			return nil, domain.ErrInternal("record anomalies", err)
		}
	}

	if _, err := m.audit.LogEvent(ctx, audit.Event{
		Type:         eventType,
		Actor:        sess.Username,
		ActorIP:      ip,
		ResourceType: "api",
		ResourceID:   resource,
		Action:       fmt.Sprintf("%s %s", action, resource),
		Status:       status,
		Metadata: map[string]any{
			"session_id": sessionID,
			"risk_score": assessment.RiskScore,
			"risk_level": assessment.RiskLevel,
			"device_id":  device.DeviceID,
		},
	}); err != nil {
		return nil, err
	}

	return &assessment, nil
}

// Terminate deactivates a session. Idempotent; termination is effective for
// the next VerifyAccess call but cannot retroactively invalidate decisions
// already returned.
func (m *Manager) Terminate(ctx context.Context, sessionID, reason string) error {
	terminated, err := m.sessions.Terminate(ctx, m.db, sessionID, reason)
	if err != nil {
		return domain.ErrInternal("terminate session", err)
	}
	if !terminated {
		return nil
	}
	if m.cache != nil {
		if err := m.cache.MarkTerminated(ctx, sessionID, m.cfg.MaxAge); err != nil {
			m.logger.Warn("session cache unavailable", "error", err)
		}
	}

	eventType := domain.EventSessionTerminated
	if reason == domain.TerminateReasonLogout {
		eventType = domain.EventLogout
	}
	if _, err := m.audit.LogEvent(ctx, audit.Event{
		Type:         eventType,
		Actor:        "system",
		ResourceType: "session",
		ResourceID:   sessionID,
		Action:       fmt.Sprintf("terminate session: %s", reason),
		Status:       domain.StatusSuccess,
	}); err != nil {
		return err
	}
	return nil
}

// RiskProfile aggregates a user's current standing.
type RiskProfile struct {
	UserID             string           `json:"user_id"`
	DeviceCount        int              `json:"device_count"`
	AverageDeviceTrust int              `json:"average_device_trust"`
	RecentAnomalies    int              `json:"recent_anomalies"`
	ActiveSessions     int              `json:"active_sessions"`
	OverallRiskScore   int              `json:"overall_risk_score"`
	RiskLevel          policy.RiskLevel `json:"risk_level"`
}

// RiskProfile summarizes devices, unresolved anomalies over the last week,
// and active-session risk into one operator-facing view.
func (m *Manager) RiskProfile(ctx context.Context, userID string) (*RiskProfile, error) {
	deviceCount, avgTrust, err := m.devices.Stats(ctx, m.db, userID)
	if err != nil {
		return nil, domain.ErrInternal("device stats", err)
	}
	recentAnomalies, err := m.anomalies.CountRecentUnresolved(ctx, userID, 7*24*time.Hour)
	if err != nil {
		return nil, domain.ErrInternal("anomaly stats", err)
	}
	activeSessions, avgRisk, err := m.sessions.ActiveStats(ctx, m.db, userID)
	if err != nil {
		return nil, domain.ErrInternal("session stats", err)
	}

	if activeSessions == 0 {
		avgRisk = domain.NeutralTrustScore
	}
	if deviceCount == 0 {
		avgTrust = domain.NeutralTrustScore
	}
	overall := int(avgRisk) + recentAnomalies*5
	if overall > 100 {
		overall = 100
	}

	return &RiskProfile{
		UserID:             userID,
		DeviceCount:        deviceCount,
		AverageDeviceTrust: int(avgTrust),
		RecentAnomalies:    recentAnomalies,
		ActiveSessions:     activeSessions,
		OverallRiskScore:   overall,
		RiskLevel:          m.cfg.Risk.Level(overall),
	}, nil
}

// assess gathers the scoring inputs and runs the pure engine.
func (m *Manager) assess(ctx context.Context, userID string, device *domain.DeviceFingerprint, ip, action, resource string, acc domain.AccessContext) (policy.Assessment, error) {
	baseline, err := m.baselines.FindByUser(ctx, m.db, userID)
	if err != nil {
		return policy.Assessment{}, domain.ErrInternal("load baseline", err)
	}
	unresolved, err := m.anomalies.CountRecentUnresolved(ctx, userID, m.cfg.AnomalyWindow)
	if err != nil {
		return policy.Assessment{}, domain.ErrInternal("count anomalies", err)
	}

	return policy.Evaluate(policy.Input{
		Device:              device,
		Baseline:            baseline,
		UnresolvedAnomalies: unresolved,
		Action:              action,
		Resource:            resource,
		Location:            acc.Location,
		IPAddress:           ip,
		Now:                 m.now(),
	}, m.cfg.Risk), nil
}

// expire terminates an over-age session and audits the expiry.
func (m *Manager) expire(ctx context.Context, sess *domain.SessionContext, now time.Time) error {
	if _, err := m.sessions.Terminate(ctx, m.db, sess.SessionID, domain.TerminateReasonExpired); err != nil {
		return domain.ErrInternal("expire session", err)
	}
	if m.cache != nil {
		if err := m.cache.MarkTerminated(ctx, sess.SessionID, m.cfg.MaxAge); err != nil {
			m.logger.Warn("session cache unavailable", "error", err)
		}
	}
	if _, err := m.audit.LogEvent(ctx, audit.Event{
		Type:         domain.EventSessionExpired,
		Actor:        sess.Username,
		ActorIP:      sess.IPAddress,
		ResourceType: "session",
		ResourceID:   sess.SessionID,
		Action:       fmt.Sprintf("session expired after %s", now.Sub(sess.StartedAt).Truncate(time.Second)),
		Status:       domain.StatusFailure,
	}); err != nil {
		return err
	}
	return nil
}
