package confloader

import (
	"os"
	"path/filepath"
	"testing"
)

type testConfig struct {
	Server struct {
		HTTP struct {
			Address string `koanf:"address"`
			Enabled bool   `koanf:"enabled"`
		} `koanf:"http"`
	} `koanf:"server"`
	Preview struct {
		DefaultTTL string `koanf:"default_ttl"`
		MaxTTL     string `koanf:"max_ttl"`
	} `koanf:"preview"`
	Security struct {
		EncryptionKey string `koanf:"encryption_key"`
	} `koanf:"security"`
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestNewLoader(t *testing.T) {
	l := NewLoader(WithConfigFile("/etc/khm-preview/config.yaml"))
	if l.envPrefix != DefaultEnvPrefix {
		t.Errorf("envPrefix = %q, want %q", l.envPrefix, DefaultEnvPrefix)
	}
	if l.FilePath() != "/etc/khm-preview/config.yaml" {
		t.Errorf("FilePath() = %q", l.FilePath())
	}
	if l.IsLoaded() {
		t.Error("IsLoaded() = true before Load")
	}
}

func TestLoader_LoadFile(t *testing.T) {
	path := writeConfig(t, `
server:
  http:
    address: "0.0.0.0:8080"
    enabled: true
preview:
  default_ttl: "48h"
`)

	var cfg testConfig
	if err := NewLoader(WithConfigFile(path), WithEnvPrefix("KHMTEST_NONE_")).Load(&cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.HTTP.Address != "0.0.0.0:8080" || !cfg.Server.HTTP.Enabled {
		t.Errorf("server.http = %+v", cfg.Server.HTTP)
	}
	if cfg.Preview.DefaultTTL != "48h" {
		t.Errorf("preview.default_ttl = %q, want 48h", cfg.Preview.DefaultTTL)
	}
}

func TestLoader_LoadFile_Errors(t *testing.T) {
	l := NewLoader()
	if err := l.LoadFile("/nonexistent/config.yaml"); err == nil {
		t.Error("LoadFile() should fail for a missing file")
	}
	if err := l.LoadFile(""); err != nil {
		t.Errorf("LoadFile(\"\") error = %v, want nil", err)
	}
	if err := l.LoadFile(writeConfig(t, "server: [unclosed")); err == nil {
		t.Error("LoadFile() should fail for invalid YAML")
	}
}

func TestEnvKey(t *testing.T) {
	tests := []struct {
		name, want string
	}{
		{"KHMPREVIEW_SERVER__HTTP__ADDRESS", "server.http.address"},
		{"KHMPREVIEW_SECURITY__ENCRYPTION_KEY", "security.encryption_key"},
		{"KHMPREVIEW_PREVIEW__MAX_TTL", "preview.max_ttl"},
	}
	for _, tt := range tests {
		if got := EnvKey(DefaultEnvPrefix, tt.name); got != tt.want {
			t.Errorf("EnvKey(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestLoader_Priority(t *testing.T) {
	path := writeConfig(t, `
server:
  http:
    address: "file:1"
preview:
  default_ttl: "24h"
  max_ttl: "720h"
`)
	t.Setenv("KHMTEST_SERVER__HTTP__ADDRESS", "env:2")
	t.Setenv("KHMTEST_PREVIEW__DEFAULT_TTL", "12h")
	t.Setenv("KHMTEST_SECURITY__ENCRYPTION_KEY", "from-env")

	var cfg testConfig
	l := NewLoader(
		WithConfigFile(path),
		WithEnvPrefix("KHMTEST_"),
		WithOverrides(map[string]any{"server.http.address": "flag:3"}),
	)
	if err := l.Load(&cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTP.Address != "flag:3" {
		t.Errorf("address = %q, want override", cfg.Server.HTTP.Address)
	}
	if cfg.Preview.DefaultTTL != "12h" {
		t.Errorf("default_ttl = %q, want env value", cfg.Preview.DefaultTTL)
	}
	if cfg.Preview.MaxTTL != "720h" {
		t.Errorf("max_ttl = %q, want file value", cfg.Preview.MaxTTL)
	}
	if cfg.Security.EncryptionKey != "from-env" {
		t.Errorf("encryption_key = %q, want from-env", cfg.Security.EncryptionKey)
	}
	if !l.IsLoaded() {
		t.Error("IsLoaded() = false after Load")
	}
}

func TestLoader_KeepsDefaults(t *testing.T) {
	var cfg testConfig
	cfg.Preview.DefaultTTL = "48h"
	cfg.Server.HTTP.Address = "127.0.0.1:8080"

	path := writeConfig(t, "server:\n  http:\n    enabled: true\n")
	if err := NewLoader(WithConfigFile(path), WithEnvPrefix("KHMTEST_NONE_")).Load(&cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Preview.DefaultTTL != "48h" || cfg.Server.HTTP.Address != "127.0.0.1:8080" {
		t.Errorf("defaults overwritten: %+v", cfg)
	}
}

func TestLoader_Reload(t *testing.T) {
	path := writeConfig(t, "preview:\n  default_ttl: 1h\n")
	l := NewLoader(WithConfigFile(path), WithEnvPrefix("KHMTEST_NONE_"))

	var cfg testConfig
	if err := l.Load(&cfg); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(path, []byte("preview:\n  max_ttl: 2h\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	var reloaded testConfig
	if err := l.Reload(&reloaded); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if reloaded.Preview.DefaultTTL != "" {
		t.Errorf("default_ttl = %q, stale value survived reload", reloaded.Preview.DefaultTTL)
	}
	if reloaded.Preview.MaxTTL != "2h" {
		t.Errorf("max_ttl = %q, want 2h", reloaded.Preview.MaxTTL)
	}
}

func TestLoader_LoadMap(t *testing.T) {
	l := NewLoader()
	err := l.LoadMap(map[string]any{
		"server.http.address": "127.0.0.1:9000",
		"log.level":           "debug",
	})
	if err != nil {
		t.Fatalf("LoadMap() error = %v", err)
	}
	if got := l.GetString("server.http.address"); got != "127.0.0.1:9000" {
		t.Errorf("GetString() = %q", got)
	}
	if l.Get("log.level") != "debug" {
		t.Errorf("Get(log.level) = %v", l.Get("log.level"))
	}
	if len(l.Keys()) != 2 {
		t.Errorf("Keys() = %v, want 2 keys", l.Keys())
	}
}

func TestMapProvider_ReadBytes(t *testing.T) {
	if _, err := (mapProvider{}).ReadBytes(); err != ErrReadBytesNotSupported {
		t.Errorf("ReadBytes() error = %v", err)
	}
}
