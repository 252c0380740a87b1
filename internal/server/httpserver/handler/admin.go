package handler

import (
	"net/http"
	"time"
)

// handleRotateSecret handles POST /admin/v1/secret/rotate.
// Every issued preview link stops working.
func (h *Handler) handleRotateSecret(w http.ResponseWriter, r *http.Request) {
	if err := h.previewSvc.RotateSecret(r.Context()); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	attrs := []any{"rotated_at", time.Now().UTC()}
	if key := APIKeyFromContext(r.Context()); key != nil {
		attrs = append(attrs, "api_key_id", key.KeyID)
	}
	h.logger.Warn("preview secret rotated", attrs...)

	h.writeJSON(w, r, http.StatusOK, RotateSecretResponse{
		Rotated:   true,
		RotatedAt: time.Now().UTC(),
	})
}
