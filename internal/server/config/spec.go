package config

import (
	"time"

	"github.com/yndnr/khm-preview/internal/core/domain"
	"github.com/yndnr/khm-preview/internal/storage"
	"github.com/yndnr/khm-preview/internal/storage/postgres"
	"github.com/yndnr/khm-preview/internal/storage/redis"
)

// ServerConfig is the root configuration for khm-preview-server.
type ServerConfig struct {
	Server   ServerSection    `koanf:"server"`
	Storage  storage.KVConfig `koanf:"storage"`
	Secret   SecretSection    `koanf:"secret"`
	Preview  PreviewSection   `koanf:"preview"`
	Security SecuritySection  `koanf:"security"`
	Auth     AuthSection      `koanf:"auth"`
	Log      LogSection       `koanf:"log"`
	Metrics  MetricsSection   `koanf:"metrics"`
}

// ServerSection configures server endpoints.
type ServerSection struct {
	HTTP HTTPConfig `koanf:"http"`

	// ShutdownTimeout bounds the whole graceful shutdown.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// HTTPConfig configures the HTTP server.
type HTTPConfig struct {
	Addr        string `koanf:"addr"`
	TLSCertFile string `koanf:"tls_cert_file"`
	TLSKeyFile  string `koanf:"tls_key_file"`

	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
	IdleTimeout  time.Duration `koanf:"idle_timeout"`

	// MaxBodyBytes limits request bodies.
	MaxBodyBytes int64 `koanf:"max_body_bytes"`

	// CORSOrigins lists origins allowed to call the API from a browser.
	// "*" allows any origin.
	CORSOrigins []string `koanf:"cors_origins"`

	// PublicURL is the externally visible base URL used to build preview
	// links. Empty derives it from the request.
	PublicURL string `koanf:"public_url"`
}

// Secret store kinds.
const (
	SecretStoreKV       = "kv"
	SecretStorePostgres = "postgres"
	SecretStoreRedis    = "redis"
)

// SecretSection selects where the signing secret is persisted.
type SecretSection struct {
	// Store is "kv" (the storage engine), "postgres" or "redis".
	Store string `koanf:"store"`

	// OptionName is the option key holding the secret.
	OptionName string `koanf:"option_name"`

	// RefreshInterval is how often the secret is re-read so that a rotation
	// on another instance is picked up (0 = never).
	RefreshInterval time.Duration `koanf:"refresh_interval"`

	Postgres postgres.Config `koanf:"postgres"`
	Redis    redis.Config    `koanf:"redis"`
}

// PreviewSection configures preview link lifetimes.
type PreviewSection struct {
	DefaultTTL time.Duration `koanf:"default_ttl"`
	ExtendTTL  time.Duration `koanf:"extend_ttl"`
	MaxTTL     time.Duration `koanf:"max_ttl"`

	// RecentHits is the number of hits shown with the active link.
	RecentHits int `koanf:"recent_hits"`
}

// SecuritySection configures security settings.
type SecuritySection struct {
	// EncryptionKey, when set, encrypts option values at rest.
	EncryptionKey string `koanf:"encryption_key"`

	// PublicRateLimit is the per client IP request rate on /preview.
	PublicRateLimit int `koanf:"public_rate_limit"`

	// TrustProxyHeaders takes the client IP from X-Forwarded-For.
	TrustProxyHeaders bool `koanf:"trust_proxy_headers"`

	// AdminAllowList restricts /admin/v1 to these IPs or CIDRs (empty = no restriction).
	AdminAllowList []string `koanf:"admin_allow_list"`
}

// AuthSection lists the admin API keys.
type AuthSection struct {
	Keys []domain.APIKey `koanf:"keys"`

	// CacheTTL bounds how long a verified key skips Argon2.
	CacheTTL time.Duration `koanf:"cache_ttl"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// MetricsSection configures the Prometheus endpoint.
type MetricsSection struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`

	// RequireAuth protects the endpoint with an API key holding
	// metrics.read.
	RequireAuth bool `koanf:"require_auth"`
}
