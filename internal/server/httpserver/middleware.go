package httpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/yndnr/khm-preview/internal/core/domain"
	"github.com/yndnr/khm-preview/internal/core/service"
	"github.com/yndnr/khm-preview/internal/server/httpserver/handler"
	"github.com/yndnr/khm-preview/internal/telemetry/logger"
	"github.com/yndnr/khm-preview/pkg/token"
)

type startTimeKey struct{}

type auditKey struct{}

// auditEntry collects values that inner middlewares learn for Audit.
type auditEntry struct {
	apiKey *domain.APIKey
}

func noteAPIKey(ctx context.Context, key *domain.APIKey) {
	if e, ok := ctx.Value(auditKey{}).(*auditEntry); ok {
		e.apiKey = key
	}
}

// Middleware wraps an http.Handler with additional functionality.
type Middleware func(http.Handler) http.Handler

// Chain chains multiple middlewares together.
func Chain(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// MiddlewareConfig holds configuration for middlewares.
type MiddlewareConfig struct {
	AuthService *service.AuthService
	Logger      *slog.Logger

	// ClientIP resolves the caller address.
	ClientIP func(*http.Request) string
}

func (c *MiddlewareConfig) clientIP(r *http.Request) string {
	if c.ClientIP != nil {
		return c.ClientIP(r)
	}
	return ClientIP(false)(r)
}

// RequestID adds a unique request ID to each request.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" || len(requestID) > 128 {
				if id, err := token.GenerateHex(8); err == nil {
					requestID = "req-" + id
				} else {
					requestID = "req-unknown"
				}
			}

			w.Header().Set("X-Request-ID", requestID)

			ctx := logger.WithRequestID(r.Context(), requestID)
			ctx = context.WithValue(ctx, startTimeKey{}, time.Now())

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Auth creates an authentication middleware.
func Auth(cfg *MiddlewareConfig) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			keyID, keySecret := extractAPIKeyCredentials(r)
			if keyID == "" || keySecret == "" {
				writeAuthError(w, r, domain.ErrAPIKeyMissing.Code, "authentication required")
				return
			}

			apiKey, err := cfg.AuthService.ValidateAPIKey(r.Context(), &service.ValidateAPIKeyRequest{
				KeyID:     keyID,
				KeySecret: keySecret,
			})
			if err != nil {
				if cfg.Logger != nil {
					cfg.Logger.WarnContext(r.Context(), "api key rejected",
						"api_key_id", keyID,
						"client_ip", cfg.clientIP(r),
						"error", err)
				}
				writeAuthError(w, r, domain.GetErrorCode(err), "invalid api key")
				return
			}

			if err := cfg.AuthService.CheckRateLimit(r.Context(), apiKey); err != nil {
				w.Header().Set("Retry-After", "1")
				writeAuthError(w, r, domain.ErrRateLimited.Code, "rate limit exceeded")
				return
			}

			noteAPIKey(r.Context(), apiKey)
			ctx := handler.WithAPIKey(r.Context(), apiKey)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePermission creates a middleware that checks for specific permission.
// It must run after Auth.
func RequirePermission(authSvc *service.AuthService, perm domain.Permission) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := handler.APIKeyFromContext(r.Context())
			if apiKey == nil {
				writeAuthError(w, r, domain.ErrAPIKeyMissing.Code, "authentication required")
				return
			}

			if err := authSvc.CheckPermission(apiKey, perm); err != nil {
				writeAuthError(w, r, domain.ErrPermissionDenied.Code, "permission denied: "+string(perm))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimit applies per client IP rate limiting. Limiters of idle clients
// are dropped and the number tracked is capped.
func RateLimit(requestsPerSecond int, clientIP func(*http.Request) string) Middleware {
	limiters := service.NewRateLimiterRegistry(service.DefaultLimiterCapacity, service.DefaultLimiterIdle)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiters.GetOrCreate(clientIP(r), requestsPerSecond).Allow() {
				w.Header().Set("Retry-After", "1")
				writeAuthError(w, r, domain.ErrRateLimited.Code, "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Audit logs request/response for audit trail.
func Audit(log *slog.Logger, clientIP func(*http.Request) string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			entry := &auditEntry{}

			next.ServeHTTP(wrapped, r.WithContext(context.WithValue(r.Context(), auditKey{}, entry)))

			startTime, ok := r.Context().Value(startTimeKey{}).(time.Time)
			if !ok {
				startTime = time.Now()
			}
			apiKey := entry.apiKey
			if apiKey == nil {
				apiKey = handler.APIKeyFromContext(r.Context())
			}

			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", wrapped.statusCode,
				"duration_ms", time.Since(startTime).Milliseconds(),
				"client_ip", clientIP(r),
			}
			if apiKey != nil {
				attrs = append(attrs, "api_key_id", apiKey.KeyID, "role", string(apiKey.Role))
			}

			switch {
			case wrapped.statusCode >= 500:
				log.ErrorContext(r.Context(), "request completed with error", attrs...)
			case wrapped.statusCode >= 400:
				log.WarnContext(r.Context(), "request completed with client error", attrs...)
			default:
				log.InfoContext(r.Context(), "request completed", attrs...)
			}
		})
	}
}

// Recover recovers from panics and returns 500 error.
func Recover(log *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.ErrorContext(r.Context(), "panic recovered",
						"error", err,
						"path", r.URL.Path,
					)
					writeAuthError(w, r, domain.ErrInternalServer.Code, "internal server error")
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// MetricsAuth creates an authentication middleware for metrics endpoint.
// It can be configured to allow unauthenticated access.
func MetricsAuth(cfg *MiddlewareConfig, authRequired bool) Middleware {
	return func(next http.Handler) http.Handler {
		if !authRequired {
			return next
		}
		return Chain(next, Auth(cfg), RequirePermission(cfg.AuthService, domain.PermMetricsRead))
	}
}

// NetworkACLConfig holds configuration for network ACL middleware.
type NetworkACLConfig struct {
	// AllowList is the list of allowed IP/CIDR entries.
	// Empty list means no restriction.
	AllowList []string

	ClientIP func(*http.Request) string

	// Logger for logging denied requests.
	Logger *slog.Logger
}

// NetworkACL creates a middleware that checks client IP against an allowlist.
func NetworkACL(cfg *NetworkACLConfig) Middleware {
	var networks []*net.IPNet
	var singleIPs []net.IP

	for _, entry := range cfg.AllowList {
		if strings.Contains(entry, "/") {
			_, ipNet, err := net.ParseCIDR(entry)
			if err != nil {
				if cfg.Logger != nil {
					cfg.Logger.Warn("invalid CIDR in allowlist", "entry", entry, "error", err)
				}
				continue
			}
			networks = append(networks, ipNet)
		} else {
			ip := net.ParseIP(entry)
			if ip == nil {
				if cfg.Logger != nil {
					cfg.Logger.Warn("invalid IP in allowlist", "entry", entry)
				}
				continue
			}
			singleIPs = append(singleIPs, ip)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(networks) == 0 && len(singleIPs) == 0 {
				next.ServeHTTP(w, r)
				return
			}

			clientIP := cfg.ClientIP(r)
			ip := net.ParseIP(clientIP)
			if ip != nil {
				for _, allowedIP := range singleIPs {
					if allowedIP.Equal(ip) {
						next.ServeHTTP(w, r)
						return
					}
				}
				for _, network := range networks {
					if network.Contains(ip) {
						next.ServeHTTP(w, r)
						return
					}
				}
			}

			if cfg.Logger != nil {
				cfg.Logger.Warn("request denied by network ACL",
					"client_ip", clientIP,
					"path", r.URL.Path,
				)
			}
			writeAuthError(w, r, domain.ErrPermissionDenied.Code, "IP not in allowlist")
		})
	}
}

// extractAPIKeyCredentials extracts API key credentials from request headers.
// It supports three formats:
// 1. Authorization: Bearer <key_id>:<key_secret>
// 2. X-API-Key: <key_id>:<key_secret>
// 3. X-API-Key-ID + X-API-Key headers
func extractAPIKeyCredentials(r *http.Request) (keyID, keySecret string) {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		parts := strings.SplitN(strings.TrimPrefix(authHeader, "Bearer "), ":", 2)
		if len(parts) == 2 {
			return parts[0], parts[1]
		}
	}

	apiKey := r.Header.Get("X-API-Key")
	if id := r.Header.Get("X-API-Key-ID"); id != "" {
		return id, apiKey
	}
	if parts := strings.SplitN(apiKey, ":", 2); len(parts) == 2 {
		return parts[0], parts[1]
	}
	return "", ""
}

// CORS adds Cross-Origin Resource Sharing headers.
func CORS(allowedOrigins []string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			allowed := false
			for _, o := range allowedOrigins {
				if o == "*" || o == origin {
					allowed = true
					break
				}
			}

			if allowed && origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key-ID, X-API-Key, X-Request-ID, Authorization")
				w.Header().Set("Access-Control-Max-Age", "86400")
				w.Header().Add("Vary", "Origin")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns a resolver for the caller address. Forwarding headers
// are only honored when trustProxy is set, and then only the hop appended
// by the proxy in front of the server: the right-most X-Forwarded-For
// entry. Entries to its left are supplied by the client.
func ClientIP(trustProxy bool) func(*http.Request) string {
	return func(r *http.Request) string {
		if trustProxy {
			if xff := r.Header.Values("X-Forwarded-For"); len(xff) > 0 {
				last := xff[len(xff)-1]
				if i := strings.LastIndexByte(last, ','); i >= 0 {
					last = last[i+1:]
				}
				if ip := net.ParseIP(strings.TrimSpace(last)); ip != nil {
					return ip.String()
				}
			} else if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
				return ip.String()
			}
		}

		// net.SplitHostPort handles IPv6 addresses like [::1]:8080
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			return r.RemoteAddr
		}
		return host
	}
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

// writeAuthError writes an error response in the standard envelope.
func writeAuthError(w http.ResponseWriter, r *http.Request, code, message string) {
	requestID := logger.RequestIDFromContext(r.Context())

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Error-Code", code)
	w.WriteHeader(handler.StatusForCode(code))
	json.NewEncoder(w).Encode(handler.NewErrorResponse(requestID, code, message, nil))
}
