package domain

import "time"

// EventType enumerates the security events the audit ledger records.
type EventType string

const (
	EventLoginSuccess       EventType = "LOGIN_SUCCESS"
	EventLoginFailed        EventType = "LOGIN_FAILED"
	EventLogout             EventType = "LOGOUT"
	EventAccessGranted      EventType = "ACCESS_GRANTED"
	EventAccessDenied       EventType = "ACCESS_DENIED"
	EventSessionExpired     EventType = "SESSION_EXPIRED"
	EventSessionTerminated  EventType = "SESSION_TERMINATED"
	EventDeviceBlocked      EventType = "DEVICE_BLOCKED"
	EventAnomalyResolved    EventType = "ANOMALY_RESOLVED"
	EventIntegrityViolation EventType = "INTEGRITY_VIOLATION"
	EventSystemStart        EventType = "SYSTEM_START"
	EventConfigChange       EventType = "CONFIG_CHANGE"
)

// Audit entry statuses.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusDenied  = "denied"
	StatusBlocked = "blocked"
)

// AuditTimestampLayout is the fixed-width UTC format stored in every entry.
// Fixed width keeps lexicographic and chronological order identical, so the
// canonical serialization round-trips byte for byte.
const AuditTimestampLayout = "2006-01-02T15:04:05.000000Z"

// AuditEntry is one link of the hash chain. The invariants are:
//
//	entry[i].PreviousHash == entry[i-1].CurrentHash
//	entry[0].PreviousHash == the genesis constant
//	CurrentHash == SHA-256(canonical entry minus hash/signature fields)
type AuditEntry struct {
	ID           int64     `json:"-"`
	EventID      string    `json:"event_id"`
	Timestamp    string    `json:"timestamp"`
	EventType    EventType `json:"event_type"`
	Actor        string    `json:"actor"`
	ActorIP      string    `json:"actor_ip,omitempty"`
	ResourceType string    `json:"resource_type,omitempty"`
	ResourceID   string    `json:"resource_id,omitempty"`
	Action       string    `json:"action"`
	Status       string    `json:"status"`
	Details      string    `json:"details,omitempty"`
	Metadata     string    `json:"metadata,omitempty"`
	PreviousHash string    `json:"previous_hash"`
	CurrentHash  string    `json:"current_hash"`
	Signature    string    `json:"signature"`
}

// AuditFilter narrows a ledger search. Zero values mean "any".
type AuditFilter struct {
	EventType    EventType
	Actor        string
	ResourceType string
	Status       string
	StartTime    time.Time
	EndTime      time.Time
	Limit        int
}

// FailedLogin is a structured failed-login row, queryable by username, ip and
// time window so lockout policy can run against it.
type FailedLogin struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	IPAddress string    `json:"ip_address"`
	Reason    string    `json:"reason"`
	UserAgent string    `json:"user_agent,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
