package handler

import (
	"net/http"
	"strconv"

	"github.com/yndnr/khm-preview/internal/core/service"
)

// handlePreview handles GET /preview. Every denial looks the same to the
// caller except for format errors and server-side failures.
func (h *Handler) handlePreview(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store, private")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("X-Robots-Tag", "noindex, nofollow")

	q := r.URL.Query()
	// An unparsable post ID is treated like a wrong one.
	postID, _ := strconv.ParseInt(q.Get(QueryPostID), 10, 64)

	link, err := h.previewSvc.Authorize(r.Context(), &service.AuthorizeRequest{
		PostID:    postID,
		Token:     q.Get(QueryToken),
		ClientIP:  h.clientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, PreviewResponse{
		Granted:   true,
		PostID:    link.PostID,
		LinkID:    link.ID,
		ExpiresAt: link.ExpiresAtTime().UTC(),
	})
}
