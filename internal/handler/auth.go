package handler

import (
	"net/http"

	"github.com/trustplane/platform/internal/domain"
	"github.com/trustplane/platform/internal/service"
)

// AuthHandler exposes registration, scored login and logout.
type AuthHandler struct {
	svc *service.AuthService
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(svc *service.AuthService) *AuthHandler {
	return &AuthHandler{svc: svc}
}

// Register handles POST /auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var input service.RegisterInput
	if err := DecodeJSON(r, &input); err != nil {
		RespondError(w, domain.ErrValidation("invalid JSON body"))
		return
	}

	user, err := h.svc.Register(r.Context(), input)
	if err != nil {
		RespondError(w, err)
		return
	}

	RespondJSON(w, http.StatusCreated, user)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login handles POST /auth/login. Credentials prove identity; the risk engine
// decides whether this login, from this device and network, gets a session.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if err := DecodeJSON(r, &body); err != nil {
		RespondError(w, domain.ErrValidation("invalid JSON body"))
		return
	}

	result, err := h.svc.Login(r.Context(), service.LoginInput{
		Username:  body.Username,
		Password:  body.Password,
		UserAgent: r.UserAgent(),
		IPAddress: ClientIP(r),
		Device:    deviceInfoFrom(r),
		Location:  locationFrom(r),
	})
	if err != nil {
		RespondError(w, err)
		return
	}

	if result.Token == "" {
		RespondJSON(w, http.StatusForbidden, map[string]any{
			"error":             "login denied",
			"message":           "login risk exceeds the allowed threshold",
			"risk_score":        result.Assessment.RiskScore,
			"risk_level":        result.Assessment.RiskLevel,
			"recommendation":    result.Assessment.Recommendation,
			"requires_mfa":      result.Assessment.RequiresMFA,
			"requires_approval": result.Assessment.RequiresApproval,
		})
		return
	}

	RespondJSON(w, http.StatusOK, result)
}

// Logout handles POST /auth/logout. Idempotent.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get("X-Session-ID")
	if sessionID == "" {
		RespondError(w, domain.ErrValidation("missing X-Session-ID header"))
		return
	}

	if err := h.svc.Logout(r.Context(), sessionID); err != nil {
		RespondError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}
