package config

import (
	"time"

	"github.com/yndnr/khm-preview/internal/core/domain"
	"github.com/yndnr/khm-preview/internal/core/service"
	"github.com/yndnr/khm-preview/internal/storage"
	"github.com/yndnr/khm-preview/internal/storage/postgres"
	"github.com/yndnr/khm-preview/internal/storage/redis"
)

// Default configuration values.
const (
	DefaultHTTPAddr        = "127.0.0.1:8080"
	DefaultReadTimeout     = 10 * time.Second
	DefaultWriteTimeout    = 10 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultMaxBodyBytes    = 64 << 10
	DefaultShutdownTimeout = 15 * time.Second

	DefaultDataDir = "/var/lib/khm-preview/data"

	DefaultPublicRateLimit = 20

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultMetricsPath = "/metrics"
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Server: ServerSection{
			HTTP: HTTPConfig{
				Addr:         DefaultHTTPAddr,
				ReadTimeout:  DefaultReadTimeout,
				WriteTimeout: DefaultWriteTimeout,
				IdleTimeout:  DefaultIdleTimeout,
				MaxBodyBytes: DefaultMaxBodyBytes,
			},
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Storage: storage.DefaultKVConfig(DefaultDataDir),
		Secret: SecretSection{
			Store:           SecretStoreKV,
			OptionName:      service.SecretOptionName,
			RefreshInterval: service.DefaultSecretRefresh,
			Postgres:        postgres.DefaultConfig(""),
			Redis:           redis.DefaultConfig(""),
		},
		Preview: PreviewSection{
			DefaultTTL: domain.DefaultLinkTTL,
			ExtendTTL:  domain.DefaultExtendTTL,
			MaxTTL:     domain.MaxLinkTTL,
			RecentHits: service.DefaultRecentHits,
		},
		Security: SecuritySection{
			PublicRateLimit: DefaultPublicRateLimit,
		},
		Auth: AuthSection{
			CacheTTL: time.Minute,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Metrics: MetricsSection{
			Enabled: true,
			Path:    DefaultMetricsPath,
		},
	}
}

// PreviewServiceConfig converts the preview section for the service layer.
func (p PreviewSection) PreviewServiceConfig() *service.PreviewServiceConfig {
	return &service.PreviewServiceConfig{
		DefaultTTL: p.DefaultTTL,
		ExtendTTL:  p.ExtendTTL,
		MaxTTL:     p.MaxTTL,
	}
}

// AuthServiceConfig converts the auth section for the service layer.
func (a AuthSection) AuthServiceConfig() service.AuthServiceConfig {
	return service.AuthServiceConfig{
		Keys:     a.Keys,
		CacheTTL: a.CacheTTL,
	}
}
