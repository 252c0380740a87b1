package service

import (
	"container/list"
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/yndnr/khm-preview/internal/core/domain"
)

// AuthService authenticates admin API callers against statically
// configured API keys and enforces per-key permissions and rate limits.
type AuthService struct {
	keys         map[string]*domain.APIKey
	verified     *VerifiedCache
	rateLimiters *RateLimiterRegistry
}

// AuthServiceConfig holds configuration for AuthService.
type AuthServiceConfig struct {
	Keys []domain.APIKey

	// CacheTTL bounds how long a verified secret skips Argon2 (default: 60s).
	CacheTTL time.Duration

	// CacheSize is the maximum number of cached verifications (default: 1,000).
	CacheSize int
}

// NewAuthService validates the configured keys and creates an AuthService.
func NewAuthService(cfg AuthServiceConfig) (*AuthService, error) {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 60 * time.Second
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 1000
	}

	keys := make(map[string]*domain.APIKey, len(cfg.Keys))
	for i := range cfg.Keys {
		k := cfg.Keys[i]
		if err := k.Validate(); err != nil {
			return nil, err
		}
		if _, dup := keys[k.KeyID]; dup {
			return nil, domain.ErrAPIKeyValidation.WithDetails("duplicate key id " + k.KeyID)
		}
		keys[k.KeyID] = &k
	}

	return &AuthService{
		keys:         keys,
		verified:     NewVerifiedCache(cfg.CacheSize, cfg.CacheTTL),
		rateLimiters: NewRateLimiterRegistry(0, 0),
	}, nil
}

// KeyCount returns the number of configured keys.
func (s *AuthService) KeyCount() int {
	return len(s.keys)
}

// ValidateAPIKeyRequest contains parameters for API key validation.
type ValidateAPIKeyRequest struct {
	KeyID     string
	KeySecret string
}

// ValidateAPIKey checks a key ID and secret and returns the key.
func (s *AuthService) ValidateAPIKey(_ context.Context, req *ValidateAPIKeyRequest) (*domain.APIKey, error) {
	if req.KeyID == "" || req.KeySecret == "" {
		return nil, domain.ErrAPIKeyMissing
	}

	key, ok := s.keys[req.KeyID]
	if !ok {
		return nil, domain.ErrAPIKeyInvalid
	}
	if key.Disabled {
		return nil, domain.ErrAPIKeyDisabled
	}

	fp := sha256.Sum256([]byte(req.KeySecret))
	if s.verified.Check(key.KeyID, fp) {
		return key, nil
	}

	// Argon2 - expensive operation
	if !domain.VerifyAPISecret(req.KeySecret, key.SecretHash) {
		return nil, domain.ErrAPIKeyInvalid.WithDetails("invalid secret")
	}
	s.verified.Set(key.KeyID, fp)
	return key, nil
}

// CheckPermission checks if an API key has the required permission.
func (s *AuthService) CheckPermission(apiKey *domain.APIKey, perm domain.Permission) error {
	if !domain.HasPermission(apiKey.Role, perm) {
		return domain.ErrPermissionDenied.WithDetails(
			"role " + string(apiKey.Role) + " does not have permission " + string(perm),
		)
	}
	return nil
}

// CheckRateLimit checks if an API key has exceeded its rate limit.
func (s *AuthService) CheckRateLimit(_ context.Context, apiKey *domain.APIKey) error {
	limiter := s.rateLimiters.GetOrCreate(apiKey.KeyID, apiKey.EffectiveRateLimit())

	if !limiter.Allow() {
		reservation := limiter.Reserve()
		delay := reservation.Delay()
		reservation.Cancel()

		return domain.ErrRateLimited.WithDetails(
			"rate limit exceeded, retry after " + delay.String(),
		)
	}
	return nil
}

// ============================================================================
// VerifiedCache - LRU cache of recently verified secrets
// ============================================================================

// VerifiedCache remembers the SHA-256 fingerprint of secrets that passed
// Argon2 verification, with LRU eviction and a TTL.
type VerifiedCache struct {
	mu       sync.Mutex
	items    map[string]*list.Element
	order    *list.List // LRU order, front = most recently used
	capacity int
	ttl      time.Duration
}

type verifiedEntry struct {
	keyID       string
	fingerprint [sha256.Size]byte
	expiresAt   time.Time
}

// NewVerifiedCache creates a new VerifiedCache.
func NewVerifiedCache(capacity int, ttl time.Duration) *VerifiedCache {
	if capacity <= 0 {
		capacity = 1000
	}
	return &VerifiedCache{
		items:    make(map[string]*list.Element),
		order:    list.New(),
		capacity: capacity,
		ttl:      ttl,
	}
}

// Check reports whether fp was verified for keyID and has not expired.
func (c *VerifiedCache) Check(keyID string, fp [sha256.Size]byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[keyID]
	if !ok {
		return false
	}
	entry := elem.Value.(*verifiedEntry)
	if time.Now().After(entry.expiresAt) {
		c.order.Remove(elem)
		delete(c.items, keyID)
		return false
	}
	if subtle.ConstantTimeCompare(entry.fingerprint[:], fp[:]) != 1 {
		return false
	}
	c.order.MoveToFront(elem)
	return true
}

// Set records a verified fingerprint, evicting the least recently used
// entry when full.
func (c *VerifiedCache) Set(keyID string, fp [sha256.Size]byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[keyID]; ok {
		entry := elem.Value.(*verifiedEntry)
		entry.fingerprint = fp
		entry.expiresAt = time.Now().Add(c.ttl)
		c.order.MoveToFront(elem)
		return
	}

	for c.order.Len() >= c.capacity {
		oldest := c.order.Back()
		delete(c.items, oldest.Value.(*verifiedEntry).keyID)
		c.order.Remove(oldest)
	}

	c.items[keyID] = c.order.PushFront(&verifiedEntry{
		keyID:       keyID,
		fingerprint: fp,
		expiresAt:   time.Now().Add(c.ttl),
	})
}

// Size returns the current number of cached entries.
func (c *VerifiedCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// ============================================================================
// RateLimiterRegistry - Rate Limiter Management
// ============================================================================

// Limiter registry bounds.
const (
	DefaultLimiterCapacity = 10000
	DefaultLimiterIdle     = 10 * time.Minute
)

// RateLimiterRegistry manages token bucket limiters keyed by caller. It
// holds at most capacity limiters; limiters idle longer than idle are
// dropped first, then the least recently used.
type RateLimiterRegistry struct {
	mu       sync.Mutex
	items    map[string]*list.Element
	order    *list.List // front = most recently used
	capacity int
	idle     time.Duration
	now      func() time.Time
}

type limiterEntry struct {
	key      string
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiterRegistry creates a registry. Non-positive arguments select
// DefaultLimiterCapacity and DefaultLimiterIdle.
func NewRateLimiterRegistry(capacity int, idle time.Duration) *RateLimiterRegistry {
	if capacity <= 0 {
		capacity = DefaultLimiterCapacity
	}
	if idle <= 0 {
		idle = DefaultLimiterIdle
	}
	return &RateLimiterRegistry{
		items:    make(map[string]*list.Element),
		order:    list.New(),
		capacity: capacity,
		idle:     idle,
		now:      time.Now,
	}
}

// GetOrCreate retrieves an existing rate limiter or creates a new one
// allowing rateLimit requests per second with an equal burst.
func (r *RateLimiterRegistry) GetOrCreate(key string, rateLimit int) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if elem, ok := r.items[key]; ok {
		entry := elem.Value.(*limiterEntry)
		entry.lastSeen = now
		r.order.MoveToFront(elem)
		return entry.limiter
	}

	r.evict(now)
	entry := &limiterEntry{
		key:      key,
		limiter:  rate.NewLimiter(rate.Limit(rateLimit), rateLimit),
		lastSeen: now,
	}
	r.items[key] = r.order.PushFront(entry)
	return entry.limiter
}

// evict drops idle limiters from the back, then makes room for one more.
func (r *RateLimiterRegistry) evict(now time.Time) {
	for oldest := r.order.Back(); oldest != nil; oldest = r.order.Back() {
		entry := oldest.Value.(*limiterEntry)
		if now.Sub(entry.lastSeen) < r.idle && r.order.Len() < r.capacity {
			return
		}
		delete(r.items, entry.key)
		r.order.Remove(oldest)
	}
}

// Len returns the number of tracked limiters.
func (r *RateLimiterRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}
