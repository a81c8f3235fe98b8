package policy

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/trustplane/platform/internal/domain"
)

// RiskLevel classifies a bounded risk score.
type RiskLevel string

const (
	LevelTrusted    RiskLevel = "TRUSTED"
	LevelLowRisk    RiskLevel = "LOW_RISK"
	LevelMediumRisk RiskLevel = "MEDIUM_RISK"
	LevelHighRisk   RiskLevel = "HIGH_RISK"
	LevelCritical   RiskLevel = "CRITICAL"
)

// Trust factors are named observations that lowered the score.
const (
	FactorDeviceKnown     = "DEVICE_KNOWN"
	FactorLocationNormal  = "LOCATION_NORMAL"
	FactorTimeNormal      = "TIME_NORMAL"
	FactorBehaviorNormal  = "BEHAVIOR_NORMAL"
	FactorInternalNetwork = "INTERNAL_NETWORK"
)

// Assessment is the decision envelope returned for every scored request.
type Assessment struct {
	RiskScore        int       `json:"risk_score"`
	RiskLevel        RiskLevel `json:"risk_level"`
	TrustFactors     []string  `json:"trust_factors"`
	Anomalies        []string  `json:"anomalies"`
	RequiresMFA      bool      `json:"requires_mfa"`
	RequiresApproval bool      `json:"requires_approval"`
	AllowAccess      bool      `json:"allow_access"`
	Recommendation   string    `json:"recommendation"`
}

// Input carries everything Evaluate reads. Callers pre-fetch the device
// snapshot, baseline and anomaly load so evaluation itself stays a pure
// function with no side effects.
type Input struct {
	Device              *domain.DeviceFingerprint // nil when the registry has never seen the device
	Baseline            *domain.BehaviorBaseline  // nil when no baseline exists yet
	UnresolvedAnomalies int                       // unresolved anomalies in the trailing 24h
	Action              string
	Resource            string
	Location            domain.Location
	IPAddress           string
	Now                 time.Time
}

// Evaluate combines device, location, time, behavior, action sensitivity,
// network reputation and recent-anomaly load into a score clamped to [0,100]
// and the resulting decision envelope. Each factor contributes an independent
// bounded delta.
func Evaluate(in Input, cfg Config) Assessment {
	score := 0
	var factors []string
	var anomalies []string

	// Factor 1: device trust
	switch {
	case in.Device == nil:
		score += cfg.UnknownDevicePenalty
		anomalies = append(anomalies, "Unknown device")
	case in.Device.IsBlocked:
		score += cfg.BlockedDevicePenalty
		anomalies = append(anomalies, "Access from critical blocked device")
	default:
		switch {
		case in.Device.TrustScore < 30:
			score += cfg.LowTrustPenalty
			anomalies = append(anomalies, "Untrusted device")
		case in.Device.TrustScore < 50:
			score += cfg.MidTrustPenalty
		case in.Device.TrustScore > 80 && in.Device.IsTrusted:
			factors = append(factors, FactorDeviceKnown)
			score -= cfg.TrustedDeviceBonus
		}
		if in.Device.TotalSessions < cfg.NewDeviceSessionMin {
			score += cfg.NewDevicePenalty
			anomalies = append(anomalies, fmt.Sprintf("New device (< %d sessions)", cfg.NewDeviceSessionMin))
		}
	}

	// Factor 2: location
	city := in.Location.City
	country := in.Location.Country
	if city == "" {
		city = domain.UnknownLocation
	}
	if country == "" {
		country = domain.UnknownLocation
	}
	switch {
	case country != cfg.HomeCountry:
		score += cfg.ForeignCountryPenalty
		anomalies = append(anomalies, fmt.Sprintf("Access from foreign country: %s", country))
	case cfg.isOfficeCity(city):
		factors = append(factors, FactorLocationNormal)
		score -= cfg.OfficeCityBonus
	default:
		score += cfg.UnknownCityPenalty
	}

	// Factor 3: time of day
	localHour := ((in.Now.UTC().Hour()+cfg.UTCOffsetHours)%24 + 24) % 24
	if localHour < cfg.NormalHourStart || localHour > cfg.NormalHourEnd {
		score += cfg.OffHoursPenalty
		anomalies = append(anomalies, fmt.Sprintf("Unusual access time: %02d:00", localHour))
	} else {
		factors = append(factors, FactorTimeNormal)
	}

	// Factor 4: behavioral deviation, only once the baseline has observations
	if in.Baseline != nil {
		if !containsHour(in.Baseline.TypicalHours, localHour) {
			score += cfg.BaselineHourPenalty
			anomalies = append(anomalies, "Unusual hour compared to user baseline")
		} else {
			factors = append(factors, FactorBehaviorNormal)
		}
		if len(in.Baseline.TypicalLocations) > 0 && !containsLocation(in.Baseline.TypicalLocations, city) {
			score += cfg.BaselineLocationPenalty
			anomalies = append(anomalies, "Unusual location compared to user baseline")
		}
	}

	// Factor 5: action sensitivity
	switch {
	case containsAction(cfg.HighRiskActions, in.Action):
		score += cfg.HighActionPenalty
	case containsAction(cfg.MediumRiskActions, in.Action):
		score += cfg.MediumActionPenalty
	}

	// Factor 6: network reputation
	if isTrustedNetwork(in.IPAddress, cfg.TrustedNetworks) {
		factors = append(factors, FactorInternalNetwork)
		score -= cfg.InternalNetworkBonus
	} else {
		score += cfg.ExternalNetworkPenalty
	}

	// Factor 7: recent anomaly load
	if in.UnresolvedAnomalies > cfg.AnomalyLoadThreshold {
		score += cfg.AnomalyLoadPenalty
		anomalies = append(anomalies, fmt.Sprintf("Multiple recent anomalies: %d", in.UnresolvedAnomalies))
	}

	// Clamp to [0,100]
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	level := cfg.Level(score)

	return Assessment{
		RiskScore:        score,
		RiskLevel:        level,
		TrustFactors:     factors,
		Anomalies:        anomalies,
		RequiresMFA:      score > cfg.MFAThreshold,
		RequiresApproval: score > cfg.ApprovalThreshold,
		AllowAccess:      score < cfg.DenyThreshold,
		Recommendation:   cfg.recommendation(score),
	}
}

// Level maps a bounded score to its risk level.
func (c Config) Level(score int) RiskLevel {
	switch {
	case score <= c.TrustedMax:
		return LevelTrusted
	case score <= c.LowRiskMax:
		return LevelLowRisk
	case score <= c.MediumRiskMax:
		return LevelMediumRisk
	case score <= c.HighRiskMax:
		return LevelHighRisk
	default:
		return LevelCritical
	}
}

func (c Config) recommendation(score int) string {
	switch {
	case score > c.ApprovalThreshold:
		return "DENY ACCESS - Critical risk detected. Require admin approval and MFA."
	case score > c.MFAThreshold:
		return "CHALLENGE - High risk detected. Require additional MFA verification."
	case score > c.LowRiskMax:
		return "MONITOR - Medium risk. Allow but log all actions closely."
	case score > c.TrustedMax:
		return "ALLOW - Low risk. Standard monitoring applies."
	default:
		return "ALLOW - Trusted context. Normal operations."
	}
}

func isTrustedNetwork(ip string, networks []string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	for _, cidr := range networks {
		prefix, err := netip.ParsePrefix(cidr)
		if err != nil {
			continue
		}
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

func containsHour(hours []int, hour int) bool {
	for _, h := range hours {
		if h == hour {
			return true
		}
	}
	return false
}

func containsLocation(locations []string, city string) bool {
	for _, l := range locations {
		if l == city {
			return true
		}
	}
	return false
}
