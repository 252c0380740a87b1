package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/yndnr/khm-preview/internal/core/domain"
	"github.com/yndnr/khm-preview/internal/core/service"
	"github.com/yndnr/khm-preview/internal/telemetry/logger"
)

// ReadinessFunc reports whether the service can serve traffic.
type ReadinessFunc func(ctx context.Context) error

// Handler is the main HTTP handler that routes requests to appropriate handlers.
type Handler struct {
	previewSvc   *service.PreviewService
	analyticsSvc *service.AnalyticsService
	logger       *slog.Logger
	publicURL    string
	recentHits   int
	maxBodyBytes int64
	ready        ReadinessFunc
	clientIP     func(*http.Request) string
	mux          *http.ServeMux
}

// Option configures a Handler.
type Option func(*Handler)

// WithPublicURL sets the site URL used to build preview URLs.
func WithPublicURL(u string) Option {
	return func(h *Handler) { h.publicURL = strings.TrimRight(u, "/") }
}

// WithRecentHits sets how many hits GET /posts/{post_id}/link returns.
func WithRecentHits(n int) Option {
	return func(h *Handler) { h.recentHits = n }
}

// WithMaxBodyBytes limits request body size.
func WithMaxBodyBytes(n int64) Option {
	return func(h *Handler) { h.maxBodyBytes = n }
}

// WithReadiness sets the check behind GET /ready.
func WithReadiness(fn ReadinessFunc) Option {
	return func(h *Handler) { h.ready = fn }
}

// WithClientIP sets how the client address of a preview hit is resolved.
func WithClientIP(fn func(*http.Request) string) Option {
	return func(h *Handler) { h.clientIP = fn }
}

// New creates a new Handler with the given services.
func New(previewSvc *service.PreviewService, analyticsSvc *service.AnalyticsService, logger *slog.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		previewSvc:   previewSvc,
		analyticsSvc: analyticsSvc,
		logger:       logger,
		recentHits:   service.DefaultRecentHits,
		maxBodyBytes: 64 << 10,
		clientIP:     remoteIP,
		mux:          http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(h)
	}

	h.registerRoutes()
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// registerRoutes registers all HTTP routes.
func (h *Handler) registerRoutes() {
	// Health endpoints (no auth required)
	h.mux.HandleFunc("GET /health", h.handleHealth)
	h.mux.HandleFunc("GET /ready", h.handleReady)

	// Link endpoints
	h.mux.HandleFunc("POST /links", h.handleCreateLink)
	h.mux.HandleFunc("GET /links/{id}", h.handleGetLink)
	h.mux.HandleFunc("DELETE /links/{id}", h.handleRevokeLink)
	h.mux.HandleFunc("POST /links/{id}/extend", h.handleExtendLink)

	// Post endpoints
	h.mux.HandleFunc("GET /posts/{post_id}/link", h.handleGetPostLink)
	h.mux.HandleFunc("GET /posts/{post_id}/links", h.handleListPostLinks)

	// Public preview endpoint
	h.mux.HandleFunc("GET /preview", h.handlePreview)

	// Admin endpoints
	h.mux.HandleFunc("POST /admin/v1/secret/rotate", h.handleRotateSecret)
}

// writeJSON writes a JSON response with standard envelope format.
func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	requestID := getRequestID(r)
	response := NewResponse(requestID, data)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to encode response", "error", err)
	}
}

// writeError writes an error response with standard envelope format.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	requestID := getRequestID(r)
	response := NewErrorResponse(requestID, code, message, details)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Error-Code", code)
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}

// decodeJSON reads a JSON body into v. An empty body leaves v unchanged.
func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, r, http.StatusBadRequest, domain.ErrBadRequest.Code, "invalid request body", err.Error())
		return false
	}
	return true
}

// getRequestID extracts request ID from context or header.
func getRequestID(r *http.Request) string {
	if reqID := logger.RequestIDFromContext(r.Context()); reqID != "" {
		return reqID
	}
	return r.Header.Get("X-Request-ID")
}

// handleServiceError converts service errors to HTTP responses.
func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if domain.IsDomainError(err, "") {
		code := domain.GetErrorCode(err)
		status := StatusForCode(code)
		if status >= http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "request failed", "error", err)
		}
		h.writeError(w, r, status, code, err.Error(), nil)
		return
	}

	// Generic internal error
	h.logger.ErrorContext(r.Context(), "internal error", "error", err)
	h.writeError(w, r, http.StatusInternalServerError, domain.ErrInternalServer.Code, "internal server error", nil)
}

// StatusForCode maps a domain error code to an HTTP status code.
func StatusForCode(code string) int {
	switch {
	case code == domain.ErrTokenInvalid.Code:
		return http.StatusForbidden
	case strings.HasSuffix(code, "-4040"):
		return http.StatusNotFound
	case strings.HasSuffix(code, "-4041"), strings.HasSuffix(code, "-4042"):
		return http.StatusGone
	case strings.HasSuffix(code, "-4090"), strings.HasSuffix(code, "-4091"):
		return http.StatusConflict
	case strings.HasSuffix(code, "-4290"):
		return http.StatusTooManyRequests
	case strings.HasSuffix(code, "-4000"), strings.HasSuffix(code, "-4001"):
		return http.StatusBadRequest
	case strings.HasSuffix(code, "-4010"), strings.HasSuffix(code, "-4011"), strings.HasSuffix(code, "-4012"):
		return http.StatusUnauthorized
	case strings.HasSuffix(code, "-4030"):
		return http.StatusForbidden
	case strings.HasPrefix(code, "KP-ARG-"):
		return http.StatusBadRequest
	case strings.HasPrefix(code, "KP-SYS-503"):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// remoteIP returns the host part of RemoteAddr.
func remoteIP(r *http.Request) string {
	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = strings.Trim(ip[:idx], "[]")
	}
	return ip
}
