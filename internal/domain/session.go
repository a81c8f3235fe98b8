package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Session lifecycle reasons recorded on termination.
const (
	TerminateReasonLogout  = "user logout"
	TerminateReasonExpired = "session expired"
)

// SessionContext is the state-machine row for one zero-trust session.
// Sessions move CREATED → ACTIVE → {TERMINATED, EXPIRED}; they are
// deactivated with a reason, never physically deleted.
type SessionContext struct {
	SessionID        string    `json:"session_id"`
	UserID           string    `json:"user_id"`
	Username         string    `json:"username"`
	DeviceID         string    `json:"device_id"`
	IPAddress        string    `json:"ip_address"`
	Location         Location  `json:"location"`
	StartedAt        time.Time `json:"started_at"`
	LastActivity     time.Time `json:"last_activity"`
	RiskScore        int       `json:"risk_score"`
	TrustLevel       string    `json:"trust_level"`
	IsActive         bool      `json:"is_active"`
	Anomalies        []string  `json:"anomalies,omitempty"`
	TerminatedReason string    `json:"terminated_reason,omitempty"`
}

// NewSessionID derives a session id from the user, device and start time.
func NewSessionID(userID, deviceID string, startedAt time.Time) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s%s%d", userID, deviceID, startedAt.UnixNano())))
	return hex.EncodeToString(sum[:])[:24]
}

// Access decisions recorded per request.
const (
	DecisionAllow = "ALLOW"
	DecisionDeny  = "DENY"
)

// AccessRequest is the immutable per-decision record. One row is appended
// for every verified request regardless of outcome.
type AccessRequest struct {
	ID        int64           `json:"id"`
	SessionID string          `json:"session_id"`
	UserID    string          `json:"user_id"`
	Resource  string          `json:"resource"`
	Action    string          `json:"action"`
	Timestamp time.Time       `json:"timestamp"`
	RiskScore int             `json:"risk_score"`
	Decision  string          `json:"decision"`
	Factors   json.RawMessage `json:"factors,omitempty"`
}

// BehaviorBaseline holds a user's typical access patterns. This core consumes
// baselines; it never computes them.
type BehaviorBaseline struct {
	UserID           string    `json:"user_id"`
	TypicalHours     []int     `json:"typical_hours"`
	TypicalLocations []string  `json:"typical_locations"`
	TypicalDevices   []string  `json:"typical_devices"`
	UpdatedAt        time.Time `json:"updated_at"`
}
