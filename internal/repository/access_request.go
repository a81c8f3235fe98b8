package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/trustplane/platform/internal/domain"
)

type accessRequestRepo struct{}

// NewAccessRequestRepository returns a pgx-backed AccessRequestRepository.
func NewAccessRequestRepository() AccessRequestRepository {
	return &accessRequestRepo{}
}

func (r *accessRequestRepo) Insert(ctx context.Context, db DBTX, req *domain.AccessRequest) error {
	factors := req.Factors
	if factors == nil {
		factors = json.RawMessage(`{}`)
	}
	_, err := db.Exec(ctx, `
		INSERT INTO access_requests
		  (session_id, user_id, resource, action, requested_at, risk_score, decision, factors)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		req.SessionID, req.UserID, req.Resource, req.Action, req.Timestamp,
		req.RiskScore, req.Decision, factors)
	if err != nil {
		return fmt.Errorf("insert access request: %w", err)
	}
	return nil
}

func (r *accessRequestRepo) ListBySession(ctx context.Context, db DBTX, sessionID string, limit int) ([]domain.AccessRequest, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := db.Query(ctx, `
		SELECT id, session_id, user_id, resource, action, requested_at,
		       risk_score, decision, factors
		FROM access_requests
		WHERE session_id = $1
		ORDER BY requested_at DESC, id DESC
		LIMIT $2`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query access requests: %w", err)
	}
	defer rows.Close()

	var reqs []domain.AccessRequest
	for rows.Next() {
		var req domain.AccessRequest
		if err := rows.Scan(
			&req.ID, &req.SessionID, &req.UserID, &req.Resource, &req.Action,
			&req.Timestamp, &req.RiskScore, &req.Decision, &req.Factors); err != nil {
			return nil, fmt.Errorf("scan access request: %w", err)
		}
		reqs = append(reqs, req)
	}
	return reqs, rows.Err()
}
