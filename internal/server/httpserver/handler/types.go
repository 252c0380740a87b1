package handler

import (
	"net/url"
	"strconv"
	"time"

	"github.com/yndnr/khm-preview/internal/core/domain"
)

// Query parameters of a preview URL.
const (
	QueryPostID = "khm_preview_post"
	QueryToken  = "khm_preview_token"
)

// Response is the standard API response envelope.
// All JSON responses use this format (except /metrics which uses Prometheus format).
type Response struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data,omitempty"`
	Details   any    `json:"details,omitempty"` // Additional error details
}

// NewResponse creates a success response.
func NewResponse(requestID string, data any) *Response {
	return &Response{
		Code:      "OK",
		Message:   "Success",
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(requestID, code, message string, details any) *Response {
	return &Response{
		Code:      code,
		Message:   message,
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Details:   details,
	}
}

// CreateLinkRequest is the request body for POST /links.
type CreateLinkRequest struct {
	PostID int64 `json:"post_id"`
	Hours  int   `json:"hours,omitempty"`
}

// CreateLinkResponse is the response body for POST /links.
// Token is only ever returned here.
type CreateLinkResponse struct {
	ID         string    `json:"id"`
	PostID     int64     `json:"post_id"`
	Token      string    `json:"token"`
	ExpiresAt  time.Time `json:"expires_at"`
	PreviewURL string    `json:"preview_url,omitempty"`
}

// ExtendLinkRequest is the request body for POST /links/{id}/extend.
type ExtendLinkRequest struct {
	Hours int `json:"hours,omitempty"`
}

// LinkResponse represents a preview link in API responses.
type LinkResponse struct {
	ID        string            `json:"id"`
	PostID    int64             `json:"post_id"`
	Status    domain.LinkStatus `json:"status"`
	CreatedBy string            `json:"created_by,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	ExpiresAt time.Time         `json:"expires_at"`
	RevokedAt *time.Time        `json:"revoked_at,omitempty"`
}

// PostLinkResponse is the response body for GET /posts/{post_id}/link.
type PostLinkResponse struct {
	LinkResponse
	Hits      []HitResponse `json:"hits"`
	TotalHits int           `json:"total_hits"`
}

// ListLinksResponse is the response body for GET /posts/{post_id}/links.
type ListLinksResponse struct {
	Items []LinkResponse `json:"items"`
	Total int            `json:"total"`
}

// HitResponse represents a recorded preview view.
type HitResponse struct {
	ViewedAt  time.Time `json:"viewed_at"`
	IP        string    `json:"ip,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
}

// PreviewResponse is the response body for a granted GET /preview.
type PreviewResponse struct {
	Granted   bool      `json:"granted"`
	PostID    int64     `json:"post_id"`
	LinkID    string    `json:"link_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RotateSecretResponse is the response body for POST /admin/v1/secret/rotate.
type RotateSecretResponse struct {
	Rotated   bool      `json:"rotated"`
	RotatedAt time.Time `json:"rotated_at"`
}

func newLinkResponse(l *domain.PreviewLink) LinkResponse {
	resp := LinkResponse{
		ID:        l.ID,
		PostID:    l.PostID,
		Status:    l.Status(),
		CreatedBy: l.CreatedBy,
		CreatedAt: l.CreatedAtTime().UTC(),
		ExpiresAt: l.ExpiresAtTime().UTC(),
	}
	if l.RevokedAt != 0 {
		t := time.UnixMilli(l.RevokedAt).UTC()
		resp.RevokedAt = &t
	}
	return resp
}

func newHitResponses(hits []*domain.Hit) []HitResponse {
	out := make([]HitResponse, 0, len(hits))
	for _, hit := range hits {
		out = append(out, HitResponse{
			ViewedAt:  time.UnixMilli(hit.ViewedAt).UTC(),
			IP:        hit.IP,
			UserAgent: hit.UserAgent,
		})
	}
	return out
}

// PreviewURL builds the public URL that grants access to postID.
func PreviewURL(base string, postID int64, token string) string {
	if base == "" {
		return ""
	}
	q := url.Values{}
	q.Set(QueryPostID, strconv.FormatInt(postID, 10))
	q.Set(QueryToken, token)
	return base + "/?" + q.Encode()
}
