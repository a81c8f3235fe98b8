package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/trustplane/platform/internal/auth"
	"github.com/trustplane/platform/internal/domain"
	"github.com/trustplane/platform/internal/repository"
	"github.com/trustplane/platform/internal/session"
)

// SessionHandler exposes session inspection, termination and risk profiles.
type SessionHandler struct {
	db     repository.DBTX
	access repository.AccessRequestRepository
	mgr    *session.Manager
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(db repository.DBTX, access repository.AccessRequestRepository, mgr *session.Manager) *SessionHandler {
	return &SessionHandler{db: db, access: access, mgr: mgr}
}

// ListRequests handles GET /sessions/{sessionID}/requests.
func (h *SessionHandler) ListRequests(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	requests, err := h.access.ListBySession(r.Context(), h.db, sessionID, limit)
	if err != nil {
		RespondError(w, domain.ErrInternal("list access requests", err))
		return
	}

	RespondJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"requests":   requests,
	})
}

// Terminate handles DELETE /sessions/{sessionID}. Administrative kill switch;
// the next verification against this session is denied.
func (h *SessionHandler) Terminate(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	reason := r.URL.Query().Get("reason")
	if reason == "" {
		reason = "terminated by administrator"
	}

	if err := h.mgr.Terminate(r.Context(), sessionID, reason); err != nil {
		RespondError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, map[string]string{
		"session_id": sessionID,
		"status":     "terminated",
	})
}

// MyRiskProfile handles GET /me/risk-profile.
func (h *SessionHandler) MyRiskProfile(w http.ResponseWriter, r *http.Request) {
	h.respondRiskProfile(w, r, auth.SubjectFromContext(r.Context()))
}

// UserRiskProfile handles GET /users/{userID}/risk-profile.
func (h *SessionHandler) UserRiskProfile(w http.ResponseWriter, r *http.Request) {
	h.respondRiskProfile(w, r, chi.URLParam(r, "userID"))
}

func (h *SessionHandler) respondRiskProfile(w http.ResponseWriter, r *http.Request, userID string) {
	if userID == "" {
		RespondError(w, domain.ErrValidation("missing user id"))
		return
	}
	profile, err := h.mgr.RiskProfile(r.Context(), userID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, profile)
}
