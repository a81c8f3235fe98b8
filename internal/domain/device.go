package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// DeviceFingerprint identifies one (user, browser, network) combination and
// tracks its reputation over time. Fingerprints are never deleted — removal
// would break the forensic trail — so retirement happens via IsBlocked.
type DeviceFingerprint struct {
	DeviceID         string    `json:"device_id"`
	UserID           string    `json:"user_id"`
	UserAgent        string    `json:"user_agent"`
	IPAddress        string    `json:"ip_address"`
	OS               string    `json:"os"`
	Browser          string    `json:"browser"`
	ScreenResolution string    `json:"screen_resolution"`
	Timezone         string    `json:"timezone"`
	Language         string    `json:"language"`
	FirstSeen        time.Time `json:"first_seen"`
	LastSeen         time.Time `json:"last_seen"`
	TrustScore       int       `json:"trust_score"`
	IsTrusted        bool      `json:"is_trusted"`
	TotalSessions    int       `json:"total_sessions"`
	IsBlocked        bool      `json:"is_blocked"`
}

// NeutralTrustScore is assigned to a device on first sighting. A new
// (user, browser, network) combination never inherits history.
const NeutralTrustScore = 50

// NewDeviceID derives the deterministic fingerprint id so repeated logins
// from the same combination are idempotent.
func NewDeviceID(userAgent, ip, userID string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s", userAgent, ip, userID)))
	return hex.EncodeToString(sum[:])[:16]
}
