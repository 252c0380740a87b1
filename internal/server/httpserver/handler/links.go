package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/yndnr/khm-preview/internal/core/domain"
	"github.com/yndnr/khm-preview/internal/core/service"
)

// maxHours bounds the hours field before it is converted to a duration.
const maxHours = 1 << 20

// handleCreateLink handles POST /links.
func (h *Handler) handleCreateLink(w http.ResponseWriter, r *http.Request) {
	var req CreateLinkRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	ttl, err := hoursToTTL(req.Hours)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	var createdBy string
	if key := APIKeyFromContext(r.Context()); key != nil {
		createdBy = key.KeyID
	}

	resp, err := h.previewSvc.CreateLink(r.Context(), &service.CreateLinkRequest{
		PostID:    req.PostID,
		CreatedBy: createdBy,
		TTL:       ttl,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	h.writeJSON(w, r, http.StatusCreated, CreateLinkResponse{
		ID:         resp.Link.ID,
		PostID:     resp.Link.PostID,
		Token:      resp.Token,
		ExpiresAt:  resp.Link.ExpiresAtTime().UTC(),
		PreviewURL: PreviewURL(h.baseURL(r), resp.Link.PostID, resp.Token),
	})
}

// handleGetLink handles GET /links/{id}.
func (h *Handler) handleGetLink(w http.ResponseWriter, r *http.Request) {
	link, err := h.previewSvc.GetLink(r.Context(), r.PathValue("id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, newLinkResponse(link))
}

// handleRevokeLink handles DELETE /links/{id}.
func (h *Handler) handleRevokeLink(w http.ResponseWriter, r *http.Request) {
	link, err := h.previewSvc.RevokeLink(r.Context(), r.PathValue("id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, newLinkResponse(link))
}

// handleExtendLink handles POST /links/{id}/extend.
func (h *Handler) handleExtendLink(w http.ResponseWriter, r *http.Request) {
	var req ExtendLinkRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	ttl, err := hoursToTTL(req.Hours)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	link, err := h.previewSvc.ExtendLink(r.Context(), r.PathValue("id"), ttl)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, newLinkResponse(link))
}

// handleGetPostLink handles GET /posts/{post_id}/link.
func (h *Handler) handleGetPostLink(w http.ResponseWriter, r *http.Request) {
	postID, ok := h.parsePostID(w, r)
	if !ok {
		return
	}

	link, err := h.previewSvc.GetActiveLink(r.Context(), postID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	resp := PostLinkResponse{LinkResponse: newLinkResponse(link), Hits: []HitResponse{}}
	if h.analyticsSvc != nil {
		summary, err := h.analyticsSvc.RecentHits(r.Context(), link.ID, h.recentHits)
		if err != nil {
			h.handleServiceError(w, r, err)
			return
		}
		resp.Hits = newHitResponses(summary.Hits)
		resp.TotalHits = summary.Total
	}
	h.writeJSON(w, r, http.StatusOK, resp)
}

// handleListPostLinks handles GET /posts/{post_id}/links.
func (h *Handler) handleListPostLinks(w http.ResponseWriter, r *http.Request) {
	postID, ok := h.parsePostID(w, r)
	if !ok {
		return
	}

	links, err := h.previewSvc.ListLinks(r.Context(), postID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	items := make([]LinkResponse, 0, len(links))
	for _, link := range links {
		items = append(items, newLinkResponse(link))
	}
	h.writeJSON(w, r, http.StatusOK, ListLinksResponse{Items: items, Total: len(items)})
}

// baseURL returns the configured public URL or one derived from the request.
func (h *Handler) baseURL(r *http.Request) string {
	if h.publicURL != "" {
		return h.publicURL
	}
	if r.Host == "" {
		return ""
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

func (h *Handler) parsePostID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	postID, err := strconv.ParseInt(r.PathValue("post_id"), 10, 64)
	if err != nil || postID <= 0 {
		h.writeError(w, r, http.StatusBadRequest, domain.ErrInvalidArgument.Code, "post_id must be a positive integer", nil)
		return 0, false
	}
	return postID, true
}

// hoursToTTL converts an hours field; zero selects the service default.
func hoursToTTL(hours int) (time.Duration, error) {
	if hours < 0 || hours > maxHours {
		return 0, domain.ErrLinkValidation.WithDetails("hours out of range")
	}
	return time.Duration(hours) * time.Hour, nil
}
