package domain

import (
	"crypto/rand"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
)

// Preview link constraints.
const (
	// LinkIDPrefix is the prefix for preview link IDs.
	LinkIDPrefix = "pvlk-"

	// HitIDPrefix is the prefix for hit IDs.
	HitIDPrefix = "pvht-"

	DefaultLinkTTL   = 48 * time.Hour
	DefaultExtendTTL = 24 * time.Hour
	MinLinkTTL       = time.Hour
	MaxLinkTTL       = 30 * 24 * time.Hour

	MaxCreatedByLength = 128
	MaxUserAgentLength = 512
	MaxIPAddressLength = 45
)

// LinkStatus is the derived state of a preview link.
type LinkStatus string

const (
	LinkStatusActive  LinkStatus = "active"
	LinkStatusExpired LinkStatus = "expired"
	LinkStatusRevoked LinkStatus = "revoked"
)

// PreviewLink grants time-limited access to an unpublished post.
// Only the HMAC digest of the token is stored.
type PreviewLink struct {
	// ID format: pvlk-{ulid_lowercase}, 31 characters total.
	ID string `json:"id"`

	PostID int64 `json:"post_id"`

	// TokenHash is the hex HMAC-SHA-256 digest of the issued token.
	TokenHash string `json:"token_hash"`

	// CreatedBy is the API key ID that created the link.
	CreatedBy string `json:"created_by"`

	// CreatedAt is the creation timestamp (Unix milliseconds).
	CreatedAt int64 `json:"created_at"`

	// ExpiresAt is the absolute expiration timestamp (Unix milliseconds).
	ExpiresAt int64 `json:"expires_at"`

	// RevokedAt is the revocation timestamp (Unix milliseconds), 0 = not revoked.
	RevokedAt int64 `json:"revoked_at,omitempty"`

	// Version counts changes. Stores accept an update only when the
	// stored link is exactly one version behind.
	Version uint64 `json:"version"`
}

// NewPreviewLink creates a link for postID expiring ttl from now.
func NewPreviewLink(postID int64, tokenHash, createdBy string, ttl time.Duration) (*PreviewLink, error) {
	id, err := newID(LinkIDPrefix)
	if err != nil {
		return nil, err
	}
	now := timeNow()
	return &PreviewLink{
		ID:        id,
		PostID:    postID,
		TokenHash: tokenHash,
		CreatedBy: createdBy,
		CreatedAt: now.UnixMilli(),
		ExpiresAt: now.Add(ttl).UnixMilli(),
		Version:   1,
	}, nil
}

// Status derives the link state at the current time.
func (l *PreviewLink) Status() LinkStatus {
	return l.StatusAt(timeNow())
}

// StatusAt derives the link state at t. Revocation wins over expiry.
func (l *PreviewLink) StatusAt(t time.Time) LinkStatus {
	if l.RevokedAt != 0 {
		return LinkStatusRevoked
	}
	if t.UnixMilli() >= l.ExpiresAt {
		return LinkStatusExpired
	}
	return LinkStatusActive
}

// IsActive returns true if the link is neither revoked nor expired.
func (l *PreviewLink) IsActive() bool {
	return l.Status() == LinkStatusActive
}

// Revoke marks the link revoked. It returns false if it already was.
func (l *PreviewLink) Revoke() bool {
	if l.RevokedAt != 0 {
		return false
	}
	l.RevokedAt = timeNow().UnixMilli()
	l.Version++
	return true
}

// Extend moves the expiry to ttl from now.
func (l *PreviewLink) Extend(ttl time.Duration) error {
	if l.RevokedAt != 0 {
		return ErrLinkRevoked.WithDetails("cannot extend a revoked link")
	}
	l.ExpiresAt = timeNow().Add(ttl).UnixMilli()
	l.Version++
	return nil
}

// ExpiresAtTime returns ExpiresAt as time.Time.
func (l *PreviewLink) ExpiresAtTime() time.Time {
	return time.UnixMilli(l.ExpiresAt)
}

// CreatedAtTime returns CreatedAt as time.Time.
func (l *PreviewLink) CreatedAtTime() time.Time {
	return time.UnixMilli(l.CreatedAt)
}

// Validate validates the link fields.
func (l *PreviewLink) Validate() error {
	var violations []string
	if !IsValidID(l.ID, LinkIDPrefix) {
		violations = append(violations, "invalid id")
	}
	if l.PostID <= 0 {
		violations = append(violations, "post_id must be positive")
	}
	if l.TokenHash == "" {
		violations = append(violations, "token_hash is required")
	}
	if len(l.CreatedBy) > MaxCreatedByLength {
		violations = append(violations, "created_by too long")
	}
	if l.ExpiresAt <= l.CreatedAt {
		violations = append(violations, "expires_at must be after created_at")
	}
	if len(violations) > 0 {
		return ErrLinkValidation.WithDetails(strings.Join(violations, "; "))
	}
	return nil
}

// ValidateTTL checks a requested lifetime against the allowed range.
// A zero ttl is valid and means "use the default".
func ValidateTTL(ttl, max time.Duration) error {
	if ttl == 0 {
		return nil
	}
	if ttl < MinLinkTTL {
		return ErrLinkValidation.WithDetails("ttl must be at least " + MinLinkTTL.String())
	}
	if max > 0 && ttl > max {
		return ErrLinkValidation.WithDetails("ttl must not exceed " + max.String())
	}
	return nil
}

// Hit records a single authorized view of a preview link.
type Hit struct {
	ID        string `json:"id"`
	LinkID    string `json:"link_id"`
	PostID    int64  `json:"post_id"`
	ViewedAt  int64  `json:"viewed_at"`
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// NewHit creates a hit for link, truncating client metadata to its limits.
func NewHit(link *PreviewLink, ip, userAgent string) (*Hit, error) {
	id, err := newID(HitIDPrefix)
	if err != nil {
		return nil, err
	}
	return &Hit{
		ID:        id,
		LinkID:    link.ID,
		PostID:    link.PostID,
		ViewedAt:  timeNow().UnixMilli(),
		IP:        truncate(ip, MaxIPAddressLength),
		UserAgent: truncate(userAgent, MaxUserAgentLength),
	}, nil
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// IsValidID checks that id is prefix followed by a lowercase ULID.
func IsValidID(id, prefix string) bool {
	if !strings.HasPrefix(id, prefix) || len(id) != len(prefix)+ulid.EncodedSize {
		return false
	}
	_, err := ulid.ParseStrict(strings.ToUpper(id[len(prefix):]))
	return err == nil
}

// idEntropy keeps IDs minted in the same millisecond in creation order.
var idEntropy = &ulid.LockedMonotonicReader{MonotonicReader: ulid.Monotonic(rand.Reader, 0)}

func newID(prefix string) (string, error) {
	id, err := ulid.New(ulid.Timestamp(timeNow()), idEntropy)
	if err != nil {
		return "", ErrEntropyUnavailable.WithCause(err)
	}
	return prefix + strings.ToLower(id.String()), nil
}

// timeNow is a hook for testing.
var timeNow = time.Now
