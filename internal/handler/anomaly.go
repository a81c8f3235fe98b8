package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/trustplane/platform/internal/anomaly"
	"github.com/trustplane/platform/internal/audit"
	"github.com/trustplane/platform/internal/auth"
	"github.com/trustplane/platform/internal/domain"
)

// AnomalyHandler exposes anomaly listing and resolution.
type AnomalyHandler struct {
	recorder *anomaly.Recorder
	ledger   *audit.Ledger
}

// NewAnomalyHandler creates a new AnomalyHandler.
func NewAnomalyHandler(recorder *anomaly.Recorder, ledger *audit.Ledger) *AnomalyHandler {
	return &AnomalyHandler{recorder: recorder, ledger: ledger}
}

// ListByUser handles GET /users/{userID}/anomalies.
func (h *AnomalyHandler) ListByUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	includeResolved := r.URL.Query().Get("include_resolved") == "true"
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	anomalies, err := h.recorder.ListByUser(r.Context(), userID, includeResolved, limit)
	if err != nil {
		RespondError(w, domain.ErrInternal("list anomalies", err))
		return
	}

	RespondJSON(w, http.StatusOK, map[string]any{
		"user_id":   userID,
		"anomalies": anomalies,
	})
}

// Resolve handles PATCH /anomalies/{id}/resolve. Resolution is an explicit
// analyst action and is itself audited.
func (h *AnomalyHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		RespondError(w, domain.ErrValidation("anomaly id must be numeric"))
		return
	}

	if err := h.recorder.Resolve(r.Context(), id); err != nil {
		RespondError(w, domain.ErrInternal("resolve anomaly", err))
		return
	}

	claims := auth.ClaimsFromContext(r.Context())
	actor := "system"
	if claims != nil {
		actor = claims.Username
	}
	if _, err := h.ledger.LogEvent(r.Context(), audit.Event{
		Type:         domain.EventAnomalyResolved,
		Actor:        actor,
		ActorIP:      ClientIP(r),
		ResourceType: "anomaly",
		ResourceID:   strconv.FormatInt(id, 10),
		Action:       "resolve anomaly",
		Status:       domain.StatusSuccess,
	}); err != nil {
		RespondError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, map[string]any{
		"anomaly_id": id,
		"status":     "resolved",
	})
}
