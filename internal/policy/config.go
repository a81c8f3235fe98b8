package policy

import "strings"

// Config externalizes every factor weight and threshold used by Evaluate.
// Defaults reproduce the hand-tuned production constants; deployments tune
// them through RISK_* environment variables.
type Config struct {
	// Device trust factor
	UnknownDevicePenalty int `env:"UNKNOWN_DEVICE_PENALTY" envDefault:"30"`
	LowTrustPenalty      int `env:"LOW_TRUST_PENALTY" envDefault:"30"`
	MidTrustPenalty      int `env:"MID_TRUST_PENALTY" envDefault:"20"`
	TrustedDeviceBonus   int `env:"TRUSTED_DEVICE_BONUS" envDefault:"10"`
	NewDevicePenalty     int `env:"NEW_DEVICE_PENALTY" envDefault:"10"`
	NewDeviceSessionMin  int `env:"NEW_DEVICE_SESSION_MIN" envDefault:"3"`
	BlockedDevicePenalty int `env:"BLOCKED_DEVICE_PENALTY" envDefault:"100"`

	// Location factor
	HomeCountry           string   `env:"HOME_COUNTRY" envDefault:"United States"`
	OfficeCities          []string `env:"OFFICE_CITIES" envDefault:""`
	ForeignCountryPenalty int      `env:"FOREIGN_COUNTRY_PENALTY" envDefault:"25"`
	OfficeCityBonus       int      `env:"OFFICE_CITY_BONUS" envDefault:"5"`
	UnknownCityPenalty    int      `env:"UNKNOWN_CITY_PENALTY" envDefault:"10"`

	// Time-of-day factor. Hours are local to UTCOffsetHours.
	NormalHourStart int `env:"NORMAL_HOUR_START" envDefault:"6"`
	NormalHourEnd   int `env:"NORMAL_HOUR_END" envDefault:"22"`
	UTCOffsetHours  int `env:"UTC_OFFSET_HOURS" envDefault:"0"`
	OffHoursPenalty int `env:"OFF_HOURS_PENALTY" envDefault:"15"`

	// Behavioral baseline factor
	BaselineHourPenalty     int `env:"BASELINE_HOUR_PENALTY" envDefault:"10"`
	BaselineLocationPenalty int `env:"BASELINE_LOCATION_PENALTY" envDefault:"10"`

	// Action sensitivity factor
	HighRiskActions     []string `env:"HIGH_RISK_ACTIONS" envDefault:"delete,export_data,delete_incident,change_role,access_classified"`
	MediumRiskActions   []string `env:"MEDIUM_RISK_ACTIONS" envDefault:"create,update,upload,create_incident,update_incident,upload_file"`
	HighActionPenalty   int      `env:"HIGH_ACTION_PENALTY" envDefault:"20"`
	MediumActionPenalty int      `env:"MEDIUM_ACTION_PENALTY" envDefault:"10"`

	// Network reputation factor
	TrustedNetworks        []string `env:"TRUSTED_NETWORKS" envDefault:"10.0.0.0/8,172.16.0.0/12,192.168.0.0/16"`
	InternalNetworkBonus   int      `env:"INTERNAL_NETWORK_BONUS" envDefault:"10"`
	ExternalNetworkPenalty int      `env:"EXTERNAL_NETWORK_PENALTY" envDefault:"10"`

	// Recent anomaly load factor
	AnomalyLoadThreshold int `env:"ANOMALY_LOAD_THRESHOLD" envDefault:"3"`
	AnomalyLoadPenalty   int `env:"ANOMALY_LOAD_PENALTY" envDefault:"10"`

	// Level thresholds (upper bound, inclusive)
	TrustedMax    int `env:"TRUSTED_MAX" envDefault:"20"`
	LowRiskMax    int `env:"LOW_RISK_MAX" envDefault:"40"`
	MediumRiskMax int `env:"MEDIUM_RISK_MAX" envDefault:"60"`
	HighRiskMax   int `env:"HIGH_RISK_MAX" envDefault:"80"`

	// Policy cut-offs: allow iff score < DenyThreshold, MFA iff score >
	// MFAThreshold, approval iff score > ApprovalThreshold.
	DenyThreshold     int `env:"DENY_THRESHOLD" envDefault:"70"`
	MFAThreshold      int `env:"MFA_THRESHOLD" envDefault:"60"`
	ApprovalThreshold int `env:"APPROVAL_THRESHOLD" envDefault:"80"`
}

func (c Config) isOfficeCity(city string) bool {
	for _, office := range c.OfficeCities {
		if strings.EqualFold(office, city) {
			return true
		}
	}
	return false
}

func containsAction(actions []string, action string) bool {
	for _, a := range actions {
		if a == action {
			return true
		}
	}
	return false
}
