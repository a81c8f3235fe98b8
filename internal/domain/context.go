package domain

import "net/http"

// Location is the best-effort geolocation snapshot supplied by a collaborator.
// "Unknown" is a valid value and scores as neutral/penalized, never an error.
type Location struct {
	City    string `json:"city"`
	Country string `json:"country"`
}

const UnknownLocation = "Unknown"

// DeviceInfo carries the client-reported device headers.
type DeviceInfo struct {
	OS               string `json:"os"`
	Browser          string `json:"browser"`
	ScreenResolution string `json:"screen_resolution"`
	Timezone         string `json:"timezone"`
	Language         string `json:"language"`
}

// AccessContext enumerates exactly the recognized per-request fields. It
// replaces loosely-typed context maps so every consumer sees the same shape.
type AccessContext struct {
	Action    string     `json:"action"`
	Resource  string     `json:"resource"`
	Location  Location   `json:"location"`
	Device    DeviceInfo `json:"device"`
	UserAgent string     `json:"user_agent"`
	IPAddress string     `json:"ip_address"`
}

// ActionFromMethod maps an HTTP method to the action evaluated by the risk
// engine.
func ActionFromMethod(method string) string {
	switch method {
	case http.MethodGet:
		return "view"
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "access"
	}
}
