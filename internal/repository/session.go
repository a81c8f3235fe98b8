package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/trustplane/platform/internal/domain"
)

type sessionRepo struct{}

// NewSessionRepository returns a pgx-backed SessionRepository.
func NewSessionRepository() SessionRepository {
	return &sessionRepo{}
}

func (r *sessionRepo) Insert(ctx context.Context, db DBTX, s *domain.SessionContext) error {
	location, err := json.Marshal(s.Location)
	if err != nil {
		return fmt.Errorf("marshal location: %w", err)
	}
	anomalies, err := json.Marshal(s.Anomalies)
	if err != nil {
		return fmt.Errorf("marshal anomalies: %w", err)
	}

	_, err = db.Exec(ctx, `
		INSERT INTO sessions
		  (session_id, user_id, username, device_id, ip_address, location,
		   started_at, last_activity, risk_score, trust_level, is_active, anomalies)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		s.SessionID, s.UserID, s.Username, s.DeviceID, s.IPAddress, location,
		s.StartedAt, s.LastActivity, s.RiskScore, s.TrustLevel, s.IsActive, anomalies)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (r *sessionRepo) FindActive(ctx context.Context, db DBTX, sessionID string) (*domain.SessionContext, error) {
	row := db.QueryRow(ctx, `
		SELECT session_id, user_id, username, device_id, ip_address, location,
		       started_at, last_activity, risk_score, trust_level, is_active,
		       anomalies, COALESCE(terminated_reason, '')
		FROM sessions
		WHERE session_id = $1 AND is_active = true`, sessionID)

	var s domain.SessionContext
	var location, anomalies []byte
	err := row.Scan(
		&s.SessionID, &s.UserID, &s.Username, &s.DeviceID, &s.IPAddress, &location,
		&s.StartedAt, &s.LastActivity, &s.RiskScore, &s.TrustLevel, &s.IsActive,
		&anomalies, &s.TerminatedReason)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query session: %w", err)
	}
	if err := json.Unmarshal(location, &s.Location); err != nil {
		return nil, fmt.Errorf("unmarshal location: %w", err)
	}
	if len(anomalies) > 0 {
		if err := json.Unmarshal(anomalies, &s.Anomalies); err != nil {
			return nil, fmt.Errorf("unmarshal anomalies: %w", err)
		}
	}
	return &s, nil
}

func (r *sessionRepo) RecordActivity(ctx context.Context, db DBTX, sessionID string, riskScore int, at time.Time) error {
	_, err := db.Exec(ctx, `
		UPDATE sessions
		SET risk_score = $2, last_activity = GREATEST(last_activity, $3)
		WHERE session_id = $1`, sessionID, riskScore, at)
	if err != nil {
		return fmt.Errorf("record session activity: %w", err)
	}
	return nil
}

func (r *sessionRepo) Terminate(ctx context.Context, db DBTX, sessionID, reason string) (bool, error) {
	// Idempotent: re-terminating matches no rows and keeps the first reason.
	tag, err := db.Exec(ctx, `
		UPDATE sessions
		SET is_active = false, terminated_reason = $2
		WHERE session_id = $1 AND is_active = true`, sessionID, reason)
	if err != nil {
		return false, fmt.Errorf("terminate session: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *sessionRepo) ActiveStats(ctx context.Context, db DBTX, userID string) (int, float64, error) {
	var count int
	var avgRisk *float64
	err := db.QueryRow(ctx, `
		SELECT COUNT(*), AVG(risk_score) FROM sessions
		WHERE user_id = $1 AND is_active = true`, userID).
		Scan(&count, &avgRisk)
	if err != nil {
		return 0, 0, fmt.Errorf("session stats: %w", err)
	}
	if avgRisk == nil {
		return count, 0, nil
	}
	return count, *avgRisk, nil
}
