package config

import (
	"net/url"
	"strings"
)

// Sanitize returns a copy of the config with sensitive fields masked so it
// can be logged.
func Sanitize(cfg *ServerConfig) *ServerConfig {
	sanitized := *cfg

	if sanitized.Security.EncryptionKey != "" {
		sanitized.Security.EncryptionKey = maskSecret(sanitized.Security.EncryptionKey)
	}
	sanitized.Secret.Postgres.URL = redactURL(cfg.Secret.Postgres.URL)
	sanitized.Secret.Redis.URL = redactURL(cfg.Secret.Redis.URL)

	if len(cfg.Auth.Keys) > 0 {
		sanitized.Auth.Keys = append(sanitized.Auth.Keys[:0:0], cfg.Auth.Keys...)
		for i := range sanitized.Auth.Keys {
			sanitized.Auth.Keys[i].SecretHash = "****"
		}
	}
	return &sanitized
}

// maskSecret masks a secret value for safe logging.
func maskSecret(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}

// redactURL hides the password in a connection URL.
func redactURL(raw string) string {
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		// key=value connection strings are not parsed
		return "****"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "****"
	}
	return u.Redacted()
}
