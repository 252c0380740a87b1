package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/yndnr/khm-preview/internal/core/domain"
	"github.com/yndnr/khm-preview/internal/core/service"
	"github.com/yndnr/khm-preview/internal/server/httpserver/handler"
	"github.com/yndnr/khm-preview/internal/telemetry/metric"
)

// RouterConfig holds configuration for the HTTP router.
type RouterConfig struct {
	// PreviewService handles link and preview operations.
	PreviewService *service.PreviewService

	// AnalyticsService reports recent hits.
	AnalyticsService *service.AnalyticsService

	// AuthService authenticates API keys.
	AuthService *service.AuthService

	// Metrics instruments requests and serves /metrics when set.
	Metrics *metric.Registry

	// Logger for request logging.
	Logger *slog.Logger

	// Readiness backs GET /ready.
	Readiness handler.ReadinessFunc

	// PublicURL is the site URL preview links point to.
	PublicURL string

	// RecentHits is the number of hits shown with the active link of a post.
	RecentHits int

	// MaxBodyBytes limits request bodies.
	MaxBodyBytes int64

	// MetricsPath is where metrics are served (default: /metrics).
	MetricsPath string

	// MetricsAuthRequired indicates if the metrics endpoint requires authentication.
	MetricsAuthRequired bool

	// AdminAllowList is the IP/CIDR allowlist for admin API (empty = no restriction).
	AdminAllowList []string

	// CORSAllowedOrigins is the list of allowed CORS origins (empty = none).
	CORSAllowedOrigins []string

	// PublicRateLimit is the per IP rate limit on /preview (requests/second, 0 = off).
	PublicRateLimit int

	// TrustProxyHeaders takes the client IP from X-Forwarded-For.
	TrustProxyHeaders bool

	// EnableAudit enables audit logging for all requests.
	EnableAudit bool
}

// DefaultRouterConfig returns default router configuration.
func DefaultRouterConfig() *RouterConfig {
	return &RouterConfig{
		MetricsPath:         "/metrics",
		MetricsAuthRequired: true,
		RecentHits:          service.DefaultRecentHits,
		MaxBodyBytes:        64 << 10,
		PublicRateLimit:     20,
		EnableAudit:         true,
	}
}

// NewRouter creates and configures the HTTP router with all routes and middleware.
func NewRouter(cfg *RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clientIP := ClientIP(cfg.TrustProxyHeaders)

	h := handler.New(cfg.PreviewService, cfg.AnalyticsService, logger,
		handler.WithPublicURL(cfg.PublicURL),
		handler.WithRecentHits(cfg.RecentHits),
		handler.WithMaxBodyBytes(cfg.MaxBodyBytes),
		handler.WithReadiness(cfg.Readiness),
		handler.WithClientIP(clientIP),
	)

	middlewareCfg := &MiddlewareConfig{
		AuthService: cfg.AuthService,
		Logger:      logger,
		ClientIP:    clientIP,
	}

	// base is shared by every route: RequestID -> Recover [-> Audit]
	base := func(extra ...Middleware) []Middleware {
		m := []Middleware{RequestID(), Recover(logger)}
		if cfg.EnableAudit {
			m = append(m, Audit(logger, clientIP))
		}
		return append(m, extra...)
	}

	mux := http.NewServeMux()

	// Health endpoints - no authentication required
	health := Chain(h, RequestID(), Recover(logger))
	mux.Handle("GET /health", health)
	mux.Handle("GET /ready", health)

	// Metrics endpoint - configurable authentication
	if cfg.Metrics != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		mux.Handle("GET "+path, Chain(cfg.Metrics.Handler(),
			RequestID(), Recover(logger), MetricsAuth(middlewareCfg, cfg.MetricsAuthRequired)))
	}

	// Business API endpoints - require authentication and a permission
	business := func(perm domain.Permission) http.Handler {
		return Chain(h, base(
			CORS(cfg.CORSAllowedOrigins),
			Auth(middlewareCfg),
			RequirePermission(cfg.AuthService, perm),
		)...)
	}

	mux.Handle("POST /links", business(domain.PermLinkCreate))
	mux.Handle("GET /links/{id}", business(domain.PermLinkRead))
	mux.Handle("DELETE /links/{id}", business(domain.PermLinkRevoke))
	mux.Handle("POST /links/{id}/extend", business(domain.PermLinkExtend))
	mux.Handle("GET /posts/{post_id}/link", business(domain.PermLinkRead))
	mux.Handle("GET /posts/{post_id}/links", business(domain.PermLinkRead))

	// CORS preflight never reaches authentication.
	preflight := Chain(http.NotFoundHandler(), RequestID(), CORS(cfg.CORSAllowedOrigins))
	for _, path := range []string{"/links", "/links/{id}", "/links/{id}/extend", "/posts/{post_id}/link", "/posts/{post_id}/links"} {
		mux.Handle("OPTIONS "+path, preflight)
	}

	// Public preview endpoint - rate limited per client IP
	var preview []Middleware
	if cfg.PublicRateLimit > 0 {
		preview = append(preview, RateLimit(cfg.PublicRateLimit, clientIP))
	}
	mux.Handle("GET /preview", Chain(h, base(preview...)...))

	// Admin API endpoints - require admin permission + optional network ACL
	admin := base(NetworkACL(&NetworkACLConfig{
		AllowList: cfg.AdminAllowList,
		ClientIP:  clientIP,
		Logger:    logger,
	}))
	admin = append(admin, Auth(middlewareCfg), RequirePermission(cfg.AuthService, domain.PermSecretRotate))
	mux.Handle("POST /admin/v1/secret/rotate", Chain(h, admin...))

	if cfg.Metrics != nil {
		return cfg.Metrics.InstrumentHandler(mux)
	}
	return mux
}
