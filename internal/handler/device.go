package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/trustplane/platform/internal/audit"
	"github.com/trustplane/platform/internal/auth"
	"github.com/trustplane/platform/internal/domain"
	"github.com/trustplane/platform/internal/registry"
)

// DeviceHandler exposes the device registry.
type DeviceHandler struct {
	registry *registry.Registry
	ledger   *audit.Ledger
}

// NewDeviceHandler creates a new DeviceHandler.
func NewDeviceHandler(reg *registry.Registry, ledger *audit.Ledger) *DeviceHandler {
	return &DeviceHandler{registry: reg, ledger: ledger}
}

// ListMine handles GET /devices.
func (h *DeviceHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	h.respondList(w, r, auth.SubjectFromContext(r.Context()))
}

// ListByUser handles GET /users/{userID}/devices.
func (h *DeviceHandler) ListByUser(w http.ResponseWriter, r *http.Request) {
	h.respondList(w, r, chi.URLParam(r, "userID"))
}

func (h *DeviceHandler) respondList(w http.ResponseWriter, r *http.Request, userID string) {
	if userID == "" {
		RespondError(w, domain.ErrValidation("missing user id"))
		return
	}
	devices, err := h.registry.ListByUser(r.Context(), userID)
	if err != nil {
		RespondError(w, domain.ErrInternal("list devices", err))
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{"devices": devices})
}

// Block handles POST /devices/{deviceID}/block. Blocking is permanent from
// the registry's point of view; the fingerprint row is never deleted.
func (h *DeviceHandler) Block(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")

	device, err := h.registry.Find(r.Context(), deviceID)
	if err != nil {
		RespondError(w, domain.ErrInternal("find device", err))
		return
	}
	if device == nil {
		RespondError(w, domain.ErrNotFound("device", deviceID))
		return
	}

	if err := h.registry.Block(r.Context(), deviceID); err != nil {
		RespondError(w, domain.ErrInternal("block device", err))
		return
	}

	claims := auth.ClaimsFromContext(r.Context())
	actor := "system"
	if claims != nil {
		actor = claims.Username
	}
	if _, err := h.ledger.LogEvent(r.Context(), audit.Event{
		Type:         domain.EventDeviceBlocked,
		Actor:        actor,
		ActorIP:      ClientIP(r),
		ResourceType: "device",
		ResourceID:   deviceID,
		Action:       "block device",
		Status:       domain.StatusSuccess,
		Metadata:     map[string]any{"device_user_id": device.UserID},
	}); err != nil {
		RespondError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, map[string]string{
		"device_id": deviceID,
		"status":    "blocked",
	})
}
