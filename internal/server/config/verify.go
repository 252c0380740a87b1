package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/yndnr/khm-preview/internal/core/domain"
	"github.com/yndnr/khm-preview/internal/telemetry/logger"
	"github.com/yndnr/khm-preview/pkg/crypto/adaptive"
)

// Verify validates the configuration and reports every problem found.
func Verify(cfg *ServerConfig) error {
	var result *multierror.Error
	for _, check := range []func(*ServerConfig) error{
		verifyServer,
		verifyStorage,
		verifySecret,
		verifyPreview,
		verifySecurity,
		verifyAuth,
		verifyLog,
		verifyMetrics,
	} {
		if err := check(cfg); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func verifyServer(cfg *ServerConfig) error {
	h := cfg.Server.HTTP
	if _, _, err := net.SplitHostPort(h.Addr); err != nil {
		return fmt.Errorf("server.http.addr: %w", err)
	}
	if (h.TLSCertFile == "") != (h.TLSKeyFile == "") {
		return errors.New("server.http: tls_cert_file and tls_key_file must be set together")
	}
	for _, f := range []string{h.TLSCertFile, h.TLSKeyFile} {
		if f == "" {
			continue
		}
		if _, err := os.Stat(f); err != nil {
			return fmt.Errorf("server.http: %w", err)
		}
	}
	if h.MaxBodyBytes <= 0 {
		return errors.New("server.http.max_body_bytes must be positive")
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		return errors.New("server.shutdown_timeout must be positive")
	}
	return nil
}

func verifyStorage(cfg *ServerConfig) error {
	s := cfg.Storage
	switch s.Engine {
	case "memory":
		return nil
	case "badger":
	default:
		return fmt.Errorf("storage.engine: unknown engine %q (want badger or memory)", s.Engine)
	}
	if s.Dir == "" {
		return errors.New("storage.data_dir is required for the badger engine")
	}
	if s.Badger.GCInterval != "" {
		if _, err := time.ParseDuration(s.Badger.GCInterval); err != nil {
			return fmt.Errorf("storage.badger.gc_interval: %w", err)
		}
	}
	if s.Badger.GCThreshold <= 0 || s.Badger.GCThreshold >= 1 {
		return errors.New("storage.badger.gc_threshold must be between 0 and 1")
	}
	return nil
}

func verifySecret(cfg *ServerConfig) error {
	s := cfg.Secret
	if strings.TrimSpace(s.OptionName) == "" {
		return errors.New("secret.option_name is required")
	}
	if s.RefreshInterval < 0 {
		return errors.New("secret.refresh_interval must not be negative")
	}
	switch s.Store {
	case SecretStoreKV:
	case SecretStorePostgres:
		if s.Postgres.URL == "" {
			return errors.New("secret.postgres.url is required when secret.store is postgres")
		}
	case SecretStoreRedis:
		if s.Redis.URL == "" {
			return errors.New("secret.redis.url is required when secret.store is redis")
		}
	default:
		return fmt.Errorf("secret.store: unknown store %q (want kv, postgres or redis)", s.Store)
	}
	return nil
}

func verifyPreview(cfg *ServerConfig) error {
	p := cfg.Preview
	if p.MaxTTL < domain.MinLinkTTL || p.MaxTTL > domain.MaxLinkTTL {
		return fmt.Errorf("preview.max_ttl must be between %s and %s", domain.MinLinkTTL, domain.MaxLinkTTL)
	}
	if err := domain.ValidateTTL(p.DefaultTTL, p.MaxTTL); err != nil || p.DefaultTTL == 0 {
		return fmt.Errorf("preview.default_ttl must be between %s and preview.max_ttl", domain.MinLinkTTL)
	}
	if err := domain.ValidateTTL(p.ExtendTTL, p.MaxTTL); err != nil || p.ExtendTTL == 0 {
		return fmt.Errorf("preview.extend_ttl must be between %s and preview.max_ttl", domain.MinLinkTTL)
	}
	if p.RecentHits < 1 {
		return errors.New("preview.recent_hits must be at least 1")
	}
	return nil
}

func verifySecurity(cfg *ServerConfig) error {
	s := cfg.Security
	if s.EncryptionKey != "" && len(s.EncryptionKey) < adaptive.MinPassphraseLength {
		return fmt.Errorf("security.encryption_key must be at least %d characters", adaptive.MinPassphraseLength)
	}
	if s.PublicRateLimit < 0 {
		return errors.New("security.public_rate_limit must not be negative")
	}
	for _, entry := range s.AdminAllowList {
		if strings.Contains(entry, "/") {
			if _, _, err := net.ParseCIDR(entry); err != nil {
				return fmt.Errorf("security.admin_allow_list: invalid CIDR %q", entry)
			}
		} else if net.ParseIP(entry) == nil {
			return fmt.Errorf("security.admin_allow_list: invalid IP %q", entry)
		}
	}
	return nil
}

func verifyAuth(cfg *ServerConfig) error {
	seen := make(map[string]bool, len(cfg.Auth.Keys))
	var result *multierror.Error
	for i := range cfg.Auth.Keys {
		k := &cfg.Auth.Keys[i]
		if err := k.Validate(); err != nil {
			result = multierror.Append(result, fmt.Errorf("auth.keys[%d]: %w", i, err))
			continue
		}
		if seen[k.KeyID] {
			result = multierror.Append(result, fmt.Errorf("auth.keys[%d]: duplicate id %q", i, k.KeyID))
		}
		seen[k.KeyID] = true
	}
	return result.ErrorOrNil()
}

func verifyLog(cfg *ServerConfig) error {
	if !logger.ValidLevel(cfg.Log.Level) {
		return fmt.Errorf("log.level: unknown level %q", cfg.Log.Level)
	}
	switch strings.ToLower(cfg.Log.Format) {
	case "json", "text", "console":
		return nil
	}
	return fmt.Errorf("log.format: unknown format %q", cfg.Log.Format)
}

func verifyMetrics(cfg *ServerConfig) error {
	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return errors.New("metrics.path must start with /")
	}
	return nil
}
