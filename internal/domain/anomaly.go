package domain

import (
	"strings"
	"time"
)

// Severity classifies how strongly an anomaly should pull operator attention.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityCritical Severity = "CRITICAL"
)

// Anomaly is a named observation that raised risk. Each anomaly is
// independently resolvable; resolution is an explicit action.
type Anomaly struct {
	ID          int64     `json:"id"`
	UserID      string    `json:"user_id"`
	SessionID   string    `json:"session_id"`
	Type        string    `json:"type"`
	Severity    Severity  `json:"severity"`
	Description string    `json:"description"`
	DetectedAt  time.Time `json:"detected_at"`
	Resolved    bool      `json:"resolved"`
}

// ClassifySeverity grades an anomaly description. Foreign-country and
// explicitly critical observations are CRITICAL, baseline deviations
// ("unusual ...") are MEDIUM, everything else LOW.
func ClassifySeverity(description string) Severity {
	lower := strings.ToLower(description)
	switch {
	case strings.Contains(lower, "foreign country"), strings.Contains(lower, "critical"):
		return SeverityCritical
	case strings.Contains(lower, "unusual"):
		return SeverityMedium
	default:
		return SeverityLow
	}
}
