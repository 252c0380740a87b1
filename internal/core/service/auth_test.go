package service

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/yndnr/khm-preview/internal/core/domain"
)

type testKey struct {
	key    domain.APIKey
	secret string
}

func newTestKey(t *testing.T, id string, role domain.Role) testKey {
	t.Helper()
	secret, err := domain.NewAPISecret()
	if err != nil {
		t.Fatalf("NewAPISecret() error = %v", err)
	}
	hash, err := domain.HashAPISecret(secret)
	if err != nil {
		t.Fatalf("HashAPISecret() error = %v", err)
	}
	return testKey{
		key:    domain.APIKey{KeyID: id, SecretHash: hash, Role: role},
		secret: secret,
	}
}

func newTestAuthService(t *testing.T, keys ...testKey) *AuthService {
	t.Helper()
	cfg := AuthServiceConfig{}
	for _, k := range keys {
		cfg.Keys = append(cfg.Keys, k.key)
	}
	svc, err := NewAuthService(cfg)
	if err != nil {
		t.Fatalf("NewAuthService() error = %v", err)
	}
	return svc
}

func TestNewAuthService_RejectsBadKeys(t *testing.T) {
	good := newTestKey(t, "editor-1", domain.RoleEditor)

	tests := []struct {
		name string
		keys []domain.APIKey
	}{
		{"duplicate id", []domain.APIKey{good.key, good.key}},
		{"missing id", []domain.APIKey{{SecretHash: good.key.SecretHash, Role: domain.RoleEditor}}},
		{"plain secret", []domain.APIKey{{KeyID: "k", SecretHash: "kpas_plain", Role: domain.RoleEditor}}},
		{"unknown role", []domain.APIKey{{KeyID: "k", SecretHash: good.key.SecretHash, Role: "root"}}},
		{"rate limit too high", []domain.APIKey{{KeyID: "k", SecretHash: good.key.SecretHash, Role: domain.RoleEditor, RateLimit: domain.MaxRateLimit + 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAuthService(AuthServiceConfig{Keys: tt.keys})
			if !errors.Is(err, domain.ErrAPIKeyValidation) {
				t.Errorf("NewAuthService() error = %v, want ErrAPIKeyValidation", err)
			}
		})
	}
}

func TestAuthService_ValidateAPIKey(t *testing.T) {
	ctx := context.Background()
	editor := newTestKey(t, "editor-1", domain.RoleEditor)
	disabled := newTestKey(t, "old-1", domain.RoleAdmin)
	disabled.key.Disabled = true

	svc := newTestAuthService(t, editor, disabled)
	if svc.KeyCount() != 2 {
		t.Errorf("KeyCount() = %d, want 2", svc.KeyCount())
	}

	key, err := svc.ValidateAPIKey(ctx, &ValidateAPIKeyRequest{KeyID: "editor-1", KeySecret: editor.secret})
	if err != nil {
		t.Fatalf("ValidateAPIKey() error = %v", err)
	}
	if key.Role != domain.RoleEditor {
		t.Errorf("Role = %s, want editor", key.Role)
	}

	tests := []struct {
		name string
		req  *ValidateAPIKeyRequest
		want error
	}{
		{"missing id", &ValidateAPIKeyRequest{KeySecret: editor.secret}, domain.ErrAPIKeyMissing},
		{"missing secret", &ValidateAPIKeyRequest{KeyID: "editor-1"}, domain.ErrAPIKeyMissing},
		{"unknown id", &ValidateAPIKeyRequest{KeyID: "nobody", KeySecret: editor.secret}, domain.ErrAPIKeyInvalid},
		{"wrong secret", &ValidateAPIKeyRequest{KeyID: "editor-1", KeySecret: "kpas_wrong"}, domain.ErrAPIKeyInvalid},
		{"other key's secret", &ValidateAPIKeyRequest{KeyID: "editor-1", KeySecret: disabled.secret}, domain.ErrAPIKeyInvalid},
		{"disabled", &ValidateAPIKeyRequest{KeyID: "old-1", KeySecret: disabled.secret}, domain.ErrAPIKeyDisabled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.ValidateAPIKey(ctx, tt.req); !errors.Is(err, tt.want) {
				t.Errorf("ValidateAPIKey() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestAuthService_ValidateAPIKey_Cached(t *testing.T) {
	ctx := context.Background()
	editor := newTestKey(t, "editor-1", domain.RoleEditor)
	svc := newTestAuthService(t, editor)

	req := &ValidateAPIKeyRequest{KeyID: "editor-1", KeySecret: editor.secret}
	if _, err := svc.ValidateAPIKey(ctx, req); err != nil {
		t.Fatalf("ValidateAPIKey() error = %v", err)
	}
	if svc.verified.Size() != 1 {
		t.Fatalf("cache size = %d, want 1", svc.verified.Size())
	}

	// A cached fingerprint must not let a different secret through.
	if _, err := svc.ValidateAPIKey(ctx, &ValidateAPIKeyRequest{KeyID: "editor-1", KeySecret: "kpas_guess"}); !errors.Is(err, domain.ErrAPIKeyInvalid) {
		t.Errorf("ValidateAPIKey(wrong) error = %v, want ErrAPIKeyInvalid", err)
	}
	if _, err := svc.ValidateAPIKey(ctx, req); err != nil {
		t.Errorf("cached ValidateAPIKey() error = %v", err)
	}
}

func TestAuthService_CheckPermission(t *testing.T) {
	svc := newTestAuthService(t)

	tests := []struct {
		role    domain.Role
		perm    domain.Permission
		allowed bool
	}{
		{domain.RoleAdmin, domain.PermSecretRotate, true},
		{domain.RoleAdmin, domain.PermLinkCreate, true},
		{domain.RoleEditor, domain.PermLinkCreate, true},
		{domain.RoleEditor, domain.PermLinkRevoke, true},
		{domain.RoleEditor, domain.PermSecretRotate, false},
		{domain.RoleMetrics, domain.PermMetricsRead, true},
		{domain.RoleMetrics, domain.PermLinkRead, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.role)+"/"+string(tt.perm), func(t *testing.T) {
			err := svc.CheckPermission(&domain.APIKey{KeyID: "k", Role: tt.role}, tt.perm)
			if tt.allowed && err != nil {
				t.Errorf("CheckPermission() error = %v, want nil", err)
			}
			if !tt.allowed && !errors.Is(err, domain.ErrPermissionDenied) {
				t.Errorf("CheckPermission() error = %v, want ErrPermissionDenied", err)
			}
		})
	}
}

func TestAuthService_CheckRateLimit(t *testing.T) {
	ctx := context.Background()
	svc := newTestAuthService(t)
	key := &domain.APIKey{KeyID: "limited", Role: domain.RoleEditor, RateLimit: domain.MinRateLimit}

	var limited bool
	for i := 0; i < domain.MinRateLimit+5; i++ {
		if err := svc.CheckRateLimit(ctx, key); err != nil {
			if !errors.Is(err, domain.ErrRateLimited) {
				t.Fatalf("CheckRateLimit() error = %v, want ErrRateLimited", err)
			}
			limited = true
			break
		}
	}
	if !limited {
		t.Error("CheckRateLimit() never limited a burst above the rate")
	}

	other := &domain.APIKey{KeyID: "other", Role: domain.RoleEditor, RateLimit: domain.MinRateLimit}
	if err := svc.CheckRateLimit(ctx, other); err != nil {
		t.Errorf("CheckRateLimit(other key) error = %v", err)
	}
	if svc.rateLimiters.Len() != 2 {
		t.Errorf("limiters = %d, want 2", svc.rateLimiters.Len())
	}
}

func TestVerifiedCache(t *testing.T) {
	fp := func(s string) [sha256.Size]byte { return sha256.Sum256([]byte(s)) }

	t.Run("eviction", func(t *testing.T) {
		c := NewVerifiedCache(2, time.Minute)
		c.Set("a", fp("a"))
		c.Set("b", fp("b"))
		c.Check("a", fp("a")) // a is now most recent
		c.Set("c", fp("c"))

		if c.Size() != 2 {
			t.Errorf("Size() = %d, want 2", c.Size())
		}
		if c.Check("b", fp("b")) {
			t.Error("least recently used entry was not evicted")
		}
		if !c.Check("a", fp("a")) || !c.Check("c", fp("c")) {
			t.Error("recent entries were evicted")
		}
	})

	t.Run("ttl", func(t *testing.T) {
		c := NewVerifiedCache(10, time.Millisecond)
		c.Set("a", fp("a"))
		time.Sleep(5 * time.Millisecond)
		if c.Check("a", fp("a")) {
			t.Error("expired entry still valid")
		}
		if c.Size() != 0 {
			t.Errorf("Size() = %d after expiry, want 0", c.Size())
		}
	})

	t.Run("fingerprint mismatch", func(t *testing.T) {
		c := NewVerifiedCache(10, time.Minute)
		c.Set("a", fp("secret"))
		if c.Check("a", fp("other")) {
			t.Error("Check() accepted a different fingerprint")
		}
	})
}

func TestRateLimiterRegistry_Concurrent(t *testing.T) {
	r := NewRateLimiterRegistry(0, 0)

	var wg sync.WaitGroup
	seen := make(chan any, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seen <- r.GetOrCreate("shared", 10)
		}()
	}
	wg.Wait()
	close(seen)

	first := <-seen
	for l := range seen {
		if l != first {
			t.Fatal("GetOrCreate() returned different limiters for the same key")
		}
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}

func TestRateLimiterRegistry_Bounded(t *testing.T) {
	r := NewRateLimiterRegistry(3, time.Minute)

	for i := 0; i < 100; i++ {
		r.GetOrCreate(fmt.Sprintf("203.0.113.%d", i), 1)
	}
	if r.Len() != 3 {
		t.Fatalf("Len() = %d, want the capacity 3", r.Len())
	}

	// The most recently used key survives and keeps its bucket.
	l := r.GetOrCreate("203.0.113.99", 1)
	if l != r.GetOrCreate("203.0.113.99", 1) {
		t.Error("recent limiter was replaced")
	}
}

func TestRateLimiterRegistry_DropsIdle(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	r := NewRateLimiterRegistry(100, time.Minute)
	r.now = func() time.Time { return now }

	stale := r.GetOrCreate("198.51.100.1", 1)
	r.GetOrCreate("198.51.100.2", 1)

	now = now.Add(30 * time.Second)
	r.GetOrCreate("198.51.100.2", 1)

	now = now.Add(45 * time.Second)
	r.GetOrCreate("198.51.100.3", 1)

	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2 after the idle limiter is dropped", r.Len())
	}
	if r.GetOrCreate("198.51.100.1", 1) == stale {
		t.Error("idle limiter was kept")
	}
}
