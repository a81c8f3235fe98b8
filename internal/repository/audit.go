package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/trustplane/platform/internal/domain"
)

// AuditStore is the pgx-backed durable store behind the audit ledger. It
// holds its own pool: the audit store can live on a separate database from
// the zero-trust store.
type AuditStore struct {
	pool *pgxpool.Pool
}

// NewAuditStore wraps an audit-database pool.
func NewAuditStore(pool *pgxpool.Pool) *AuditStore {
	return &AuditStore{pool: pool}
}

const auditColumns = `id, event_id, event_time, event_type, actor, actor_ip,
       resource_type, resource_id, action, status, details, metadata,
       previous_hash, current_hash, signature`

func (s *AuditStore) Append(ctx context.Context, e *domain.AuditEntry) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO audit_log
		  (event_id, event_time, event_type, actor, actor_ip, resource_type,
		   resource_id, action, status, details, metadata,
		   previous_hash, current_hash, signature)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id`,
		e.EventID, e.Timestamp, e.EventType, e.Actor, e.ActorIP, e.ResourceType,
		e.ResourceID, e.Action, e.Status, e.Details, e.Metadata,
		e.PreviousHash, e.CurrentHash, e.Signature).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

func (s *AuditStore) LastHash(ctx context.Context) (string, error) {
	var hash string
	err := s.pool.QueryRow(ctx, `
		SELECT current_hash FROM audit_log ORDER BY id DESC LIMIT 1`).Scan(&hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("query chain head: %w", err)
	}
	return hash, nil
}

func (s *AuditStore) ListAsc(ctx context.Context) ([]domain.AuditEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+auditColumns+` FROM audit_log ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()
	return collectEntries(rows)
}

func (s *AuditStore) Search(ctx context.Context, f domain.AuditFilter) ([]domain.AuditEntry, error) {
	query := `SELECT ` + auditColumns + ` FROM audit_log WHERE 1=1`
	var args []interface{}

	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.EventType != "" {
		query += ` AND event_type = ` + arg(f.EventType)
	}
	if f.Actor != "" {
		query += ` AND actor = ` + arg(f.Actor)
	}
	if f.ResourceType != "" {
		query += ` AND resource_type = ` + arg(f.ResourceType)
	}
	if f.Status != "" {
		query += ` AND status = ` + arg(f.Status)
	}
	// event_time is a fixed-width UTC string: lexicographic comparison is
	// chronological comparison.
	if !f.StartTime.IsZero() {
		query += ` AND event_time >= ` + arg(f.StartTime.UTC().Format(domain.AuditTimestampLayout))
	}
	if !f.EndTime.IsZero() {
		query += ` AND event_time <= ` + arg(f.EndTime.UTC().Format(domain.AuditTimestampLayout))
	}
	query += ` ORDER BY id DESC LIMIT ` + arg(f.Limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search audit entries: %w", err)
	}
	defer rows.Close()
	return collectEntries(rows)
}

func (s *AuditStore) InsertFailedLogin(ctx context.Context, fl *domain.FailedLogin) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO failed_logins (username, ip_address, reason, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		fl.Username, fl.IPAddress, fl.Reason, fl.UserAgent, fl.CreatedAt).Scan(&fl.ID)
	if err != nil {
		return fmt.Errorf("insert failed login: %w", err)
	}
	return nil
}

func (s *AuditStore) FailedLogins(ctx context.Context, username, ip string, since time.Time) ([]domain.FailedLogin, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, username, ip_address, reason, user_agent, created_at
		FROM failed_logins
		WHERE created_at > $1
		  AND ($2 = '' OR username = $2)
		  AND ($3 = '' OR ip_address = $3)
		ORDER BY created_at DESC`, since, username, ip)
	if err != nil {
		return nil, fmt.Errorf("query failed logins: %w", err)
	}
	defer rows.Close()

	var logins []domain.FailedLogin
	for rows.Next() {
		var fl domain.FailedLogin
		if err := rows.Scan(&fl.ID, &fl.Username, &fl.IPAddress, &fl.Reason, &fl.UserAgent, &fl.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan failed login: %w", err)
		}
		logins = append(logins, fl)
	}
	return logins, rows.Err()
}

func collectEntries(rows pgx.Rows) ([]domain.AuditEntry, error) {
	var entries []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		if err := rows.Scan(
			&e.ID, &e.EventID, &e.Timestamp, &e.EventType, &e.Actor, &e.ActorIP,
			&e.ResourceType, &e.ResourceID, &e.Action, &e.Status, &e.Details,
			&e.Metadata, &e.PreviousHash, &e.CurrentHash, &e.Signature); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
