package policy

import (
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trustplane/platform/internal/domain"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := Config{}
	require.NoError(t, env.Parse(&cfg))
	cfg.HomeCountry = "United States"
	cfg.OfficeCities = []string{"New York", "Austin"}
	return cfg
}

// businessHour is inside the default 06:00-22:00 window.
var businessHour = time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

// nightHour is 03:00, outside the window.
var nightHour = time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC)

func trustedDevice() *domain.DeviceFingerprint {
	return &domain.DeviceFingerprint{
		DeviceID:      "abc123",
		TrustScore:    90,
		IsTrusted:     true,
		TotalSessions: 40,
	}
}

func TestEvaluate_TrustedContext(t *testing.T) {
	result := Evaluate(Input{
		Device:    trustedDevice(),
		Action:    "view",
		Resource:  "/api/incidents",
		Location:  domain.Location{City: "New York", Country: "United States"},
		IPAddress: "10.2.3.4",
		Now:       businessHour,
	}, testConfig(t))

	assert.True(t, result.AllowAccess)
	assert.LessOrEqual(t, result.RiskScore, 20)
	assert.Equal(t, LevelTrusted, result.RiskLevel)
	assert.False(t, result.RequiresMFA)
	assert.Contains(t, result.TrustFactors, FactorDeviceKnown)
	assert.Contains(t, result.TrustFactors, FactorLocationNormal)
	assert.Contains(t, result.TrustFactors, FactorTimeNormal)
	assert.Contains(t, result.TrustFactors, FactorInternalNetwork)
}

func TestEvaluate_UnknownDeviceForeignCountryNight(t *testing.T) {
	result := Evaluate(Input{
		Device:    nil,
		Action:    "delete_incident",
		Resource:  "/api/incidents/42",
		Location:  domain.Location{City: "Unknown", Country: "Elbonia"},
		IPAddress: "203.0.113.7",
		Now:       nightHour,
	}, testConfig(t))

	assert.GreaterOrEqual(t, result.RiskScore, 80)
	assert.Equal(t, LevelCritical, result.RiskLevel)
	assert.True(t, result.RequiresApproval)
	assert.True(t, result.RequiresMFA)
	assert.False(t, result.AllowAccess)
	assert.Contains(t, result.Anomalies, "Unknown device")
	assert.Contains(t, result.Anomalies, "Access from foreign country: Elbonia")
}

func TestEvaluate_ScoreAlwaysBounded(t *testing.T) {
	cfg := testConfig(t)

	// Adversarial pile-up of every penalty.
	worst := Evaluate(Input{
		Device: &domain.DeviceFingerprint{
			TrustScore:    5,
			TotalSessions: 1,
			IsBlocked:     true,
		},
		Baseline: &domain.BehaviorBaseline{
			TypicalHours:     []int{9, 10, 11},
			TypicalLocations: []string{"Austin"},
		},
		UnresolvedAnomalies: 12,
		Action:              "export_data",
		Location:            domain.Location{City: "Unknown", Country: "Unknown"},
		IPAddress:           "not-an-ip",
		Now:                 nightHour,
	}, cfg)
	assert.Equal(t, 100, worst.RiskScore)
	assert.Equal(t, LevelCritical, worst.RiskLevel)

	// Every bonus at once clamps at zero.
	best := Evaluate(Input{
		Device:    trustedDevice(),
		Action:    "view",
		Location:  domain.Location{City: "Austin", Country: "United States"},
		IPAddress: "192.168.1.10",
		Now:       businessHour,
	}, cfg)
	assert.GreaterOrEqual(t, best.RiskScore, 0)
}

func TestEvaluate_BlockedDeviceDenied(t *testing.T) {
	dev := trustedDevice()
	dev.IsBlocked = true

	result := Evaluate(Input{
		Device:    dev,
		Action:    "view",
		Location:  domain.Location{City: "Austin", Country: "United States"},
		IPAddress: "10.0.0.1",
		Now:       businessHour,
	}, testConfig(t))

	assert.False(t, result.AllowAccess)
	assert.Equal(t, LevelCritical, result.RiskLevel)
}

func TestEvaluate_BaselineDeviation(t *testing.T) {
	in := Input{
		Device: trustedDevice(),
		Baseline: &domain.BehaviorBaseline{
			TypicalHours:     []int{9, 10, 11, 12},
			TypicalLocations: []string{"Austin"},
		},
		Action:    "view",
		Location:  domain.Location{City: "Omaha", Country: "United States"},
		IPAddress: "203.0.113.7",
		Now:       businessHour, // 14:00, not in baseline hours
	}
	result := Evaluate(in, testConfig(t))

	assert.Contains(t, result.Anomalies, "Unusual hour compared to user baseline")
	assert.Contains(t, result.Anomalies, "Unusual location compared to user baseline")

	// Matching the baseline registers the trust factor instead.
	in.Now = time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	in.Location.City = "Austin"
	result = Evaluate(in, testConfig(t))
	assert.Contains(t, result.TrustFactors, FactorBehaviorNormal)
	assert.NotContains(t, result.Anomalies, "Unusual hour compared to user baseline")
}

func TestEvaluate_EmptyBaselineLocationsSkipsLocationCheck(t *testing.T) {
	result := Evaluate(Input{
		Device: trustedDevice(),
		Baseline: &domain.BehaviorBaseline{
			TypicalHours: []int{14},
		},
		Action:    "view",
		Location:  domain.Location{City: "Omaha", Country: "United States"},
		IPAddress: "10.0.0.1",
		Now:       businessHour,
	}, testConfig(t))

	assert.NotContains(t, result.Anomalies, "Unusual location compared to user baseline")
}

func TestEvaluate_ActionSensitivity(t *testing.T) {
	cfg := testConfig(t)
	base := Input{
		Device:    trustedDevice(),
		Location:  domain.Location{City: "Omaha", Country: "United States"},
		IPAddress: "203.0.113.7",
		Now:       businessHour,
	}

	base.Action = "view"
	readOnly := Evaluate(base, cfg).RiskScore

	base.Action = "update"
	medium := Evaluate(base, cfg).RiskScore

	base.Action = "delete"
	high := Evaluate(base, cfg).RiskScore

	assert.Equal(t, readOnly+cfg.MediumActionPenalty, medium)
	assert.Equal(t, readOnly+cfg.HighActionPenalty, high)
}

func TestEvaluate_AnomalyLoadPenalty(t *testing.T) {
	cfg := testConfig(t)
	in := Input{
		Device:              trustedDevice(),
		UnresolvedAnomalies: 4,
		Action:              "view",
		Location:            domain.Location{City: "Omaha", Country: "United States"},
		IPAddress:           "203.0.113.7",
		Now:                 businessHour,
	}
	loaded := Evaluate(in, cfg)
	assert.Contains(t, loaded.Anomalies, "Multiple recent anomalies: 4")

	in.UnresolvedAnomalies = 3
	calm := Evaluate(in, cfg)
	assert.Equal(t, loaded.RiskScore-cfg.AnomalyLoadPenalty, calm.RiskScore)
}

func TestEvaluate_MissingLocationDegradesNotErrors(t *testing.T) {
	result := Evaluate(Input{
		Device:    trustedDevice(),
		Action:    "view",
		Location:  domain.Location{},
		IPAddress: "10.0.0.1",
		Now:       businessHour,
	}, testConfig(t))

	// "Unknown" country is scored as foreign, never rejected.
	assert.Contains(t, result.Anomalies, "Access from foreign country: Unknown")
}

func TestEvaluate_MFAAndApprovalThresholds(t *testing.T) {
	cfg := testConfig(t)

	// 30 (unknown device) + 25 (foreign) + 10 (external) = 65: MFA but no approval.
	result := Evaluate(Input{
		Action:    "view",
		Location:  domain.Location{Country: "Elbonia"},
		IPAddress: "203.0.113.7",
		Now:       businessHour,
	}, cfg)
	assert.Equal(t, 65, result.RiskScore)
	assert.True(t, result.RequiresMFA)
	assert.False(t, result.RequiresApproval)
	assert.True(t, result.AllowAccess) // still below the deny threshold
	assert.Equal(t, LevelHighRisk, result.RiskLevel)
}
