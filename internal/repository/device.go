package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/trustplane/platform/internal/domain"
)

type deviceRepo struct{}

// NewDeviceRepository returns a pgx-backed DeviceRepository.
func NewDeviceRepository() DeviceRepository {
	return &deviceRepo{}
}

const deviceColumns = `device_id, user_id, user_agent, ip_address, os, browser,
       screen_resolution, timezone, language, first_seen, last_seen,
       trust_score, is_trusted, total_sessions, is_blocked`

func (r *deviceRepo) FindByID(ctx context.Context, db DBTX, deviceID string) (*domain.DeviceFingerprint, error) {
	row := db.QueryRow(ctx, `
		SELECT `+deviceColumns+`
		FROM devices WHERE device_id = $1`, deviceID)
	return scanDevice(row)
}

func (r *deviceRepo) Insert(ctx context.Context, db DBTX, d *domain.DeviceFingerprint) error {
	_, err := db.Exec(ctx, `
		INSERT INTO devices
		  (device_id, user_id, user_agent, ip_address, os, browser,
		   screen_resolution, timezone, language, first_seen, last_seen,
		   trust_score, is_trusted, total_sessions, is_blocked)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		d.DeviceID, d.UserID, d.UserAgent, d.IPAddress, d.OS, d.Browser,
		d.ScreenResolution, d.Timezone, d.Language, d.FirstSeen, d.LastSeen,
		d.TrustScore, d.IsTrusted, d.TotalSessions, d.IsBlocked)
	if err != nil {
		return fmt.Errorf("insert device: %w", err)
	}
	return nil
}

func (r *deviceRepo) Touch(ctx context.Context, db DBTX, deviceID, ip string, seenAt time.Time) (*domain.DeviceFingerprint, error) {
	row := db.QueryRow(ctx, `
		UPDATE devices
		SET last_seen = $2, ip_address = $3, total_sessions = total_sessions + 1
		WHERE device_id = $1
		RETURNING `+deviceColumns, deviceID, seenAt, ip)
	return scanDevice(row)
}

func (r *deviceRepo) ListByUser(ctx context.Context, db DBTX, userID string) ([]domain.DeviceFingerprint, error) {
	rows, err := db.Query(ctx, `
		SELECT `+deviceColumns+`
		FROM devices WHERE user_id = $1
		ORDER BY last_seen DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query devices: %w", err)
	}
	defer rows.Close()

	var devices []domain.DeviceFingerprint
	for rows.Next() {
		var d domain.DeviceFingerprint
		if err := scanDeviceInto(rows, &d); err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

func (r *deviceRepo) SetBlocked(ctx context.Context, db DBTX, deviceID string, blocked bool) error {
	tag, err := db.Exec(ctx, `UPDATE devices SET is_blocked = $2 WHERE device_id = $1`, deviceID, blocked)
	if err != nil {
		return fmt.Errorf("block device: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound("device", deviceID)
	}
	return nil
}

func (r *deviceRepo) Stats(ctx context.Context, db DBTX, userID string) (int, float64, error) {
	var count int
	var avgTrust *float64
	err := db.QueryRow(ctx, `
		SELECT COUNT(*), AVG(trust_score) FROM devices WHERE user_id = $1`, userID).
		Scan(&count, &avgTrust)
	if err != nil {
		return 0, 0, fmt.Errorf("device stats: %w", err)
	}
	if avgTrust == nil {
		return count, 0, nil
	}
	return count, *avgTrust, nil
}

func scanDevice(row pgx.Row) (*domain.DeviceFingerprint, error) {
	var d domain.DeviceFingerprint
	if err := scanDeviceInto(row, &d); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &d, nil
}

func scanDeviceInto(row pgx.Row, d *domain.DeviceFingerprint) error {
	return row.Scan(
		&d.DeviceID, &d.UserID, &d.UserAgent, &d.IPAddress, &d.OS, &d.Browser,
		&d.ScreenResolution, &d.Timezone, &d.Language, &d.FirstSeen, &d.LastSeen,
		&d.TrustScore, &d.IsTrusted, &d.TotalSessions, &d.IsBlocked)
}
