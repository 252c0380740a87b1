package domain

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// APIKeySecretPrefix is the prefix of generated API key secrets.
const APIKeySecretPrefix = "kpas_"

// Argon2 parameters for API key secret hashing.
const (
	// Argon2Memory is the memory parameter in KB (16 MB).
	Argon2Memory uint32 = 16384

	// Argon2Time is the iteration count.
	Argon2Time uint32 = 2

	// Argon2Parallelism is the parallelism factor.
	Argon2Parallelism uint8 = 2

	// Argon2KeyLen is the output hash length in bytes.
	Argon2KeyLen uint32 = 32

	// Argon2SaltLen is the salt length in bytes.
	Argon2SaltLen = 16
)

// API key constraints.
const (
	MinRateLimit     = 1
	MaxRateLimit     = 1000000
	DefaultRateLimit = 100
	SecretLength     = 32
)

// Role defines the permission level of an API key.
type Role string

const (
	// RoleMetrics has read-only access to monitoring metrics.
	RoleMetrics Role = "metrics"

	// RoleEditor manages preview links.
	RoleEditor Role = "editor"

	// RoleAdmin has full access, including secret rotation.
	RoleAdmin Role = "admin"
)

// IsValidRole checks if a string is a valid role.
func IsValidRole(r string) bool {
	switch Role(r) {
	case RoleMetrics, RoleEditor, RoleAdmin:
		return true
	}
	return false
}

// Permission represents an action that can be performed.
type Permission string

const (
	PermLinkCreate   Permission = "link.create"
	PermLinkRead     Permission = "link.read"
	PermLinkRevoke   Permission = "link.revoke"
	PermLinkExtend   Permission = "link.extend"
	PermSecretRotate Permission = "secret.rotate"
	PermMetricsRead  Permission = "metrics.read"
)

var rolePermissions = map[Role][]Permission{
	RoleMetrics: {
		PermMetricsRead,
	},
	RoleEditor: {
		PermLinkCreate,
		PermLinkRead,
		PermLinkRevoke,
		PermLinkExtend,
		PermMetricsRead,
	},
	RoleAdmin: {
		PermLinkCreate,
		PermLinkRead,
		PermLinkRevoke,
		PermLinkExtend,
		PermSecretRotate,
		PermMetricsRead,
	},
}

// HasPermission checks if a role has a specific permission.
func HasPermission(role Role, perm Permission) bool {
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}

// APIKey is a statically configured credential for the admin API.
type APIKey struct {
	// KeyID is the public identifier sent in the X-API-Key-ID header.
	KeyID string `json:"key_id" koanf:"id"`

	// SecretHash is the Argon2id hash of the secret (never exposed).
	SecretHash string `json:"-" koanf:"secret_hash"`

	Role Role `json:"role" koanf:"role"`

	// RateLimit is the QPS limit; zero selects DefaultRateLimit.
	RateLimit int `json:"rate_limit" koanf:"rate_limit"`

	Disabled bool `json:"disabled,omitempty" koanf:"disabled"`
}

// EffectiveRateLimit returns the configured rate limit or the default.
func (k *APIKey) EffectiveRateLimit() int {
	if k.RateLimit <= 0 {
		return DefaultRateLimit
	}
	return k.RateLimit
}

// Validate validates the API key fields.
func (k *APIKey) Validate() error {
	var violations []string
	if strings.TrimSpace(k.KeyID) == "" {
		violations = append(violations, "id is required")
	}
	if !strings.HasPrefix(k.SecretHash, "$argon2id$") {
		violations = append(violations, "secret_hash must be an argon2id hash")
	}
	if !IsValidRole(string(k.Role)) {
		violations = append(violations, fmt.Sprintf("unknown role %q", k.Role))
	}
	if k.RateLimit != 0 && (k.RateLimit < MinRateLimit || k.RateLimit > MaxRateLimit) {
		violations = append(violations, fmt.Sprintf("rate_limit must be between %d and %d", MinRateLimit, MaxRateLimit))
	}
	if len(violations) > 0 {
		return ErrAPIKeyValidation.WithDetails(k.KeyID + ": " + strings.Join(violations, "; "))
	}
	return nil
}

// NewAPISecret generates a random API key secret.
func NewAPISecret() (string, error) {
	b := make([]byte, SecretLength)
	if _, err := rand.Read(b); err != nil {
		return "", ErrEntropyUnavailable.WithCause(err)
	}
	return APIKeySecretPrefix + base64.RawURLEncoding.EncodeToString(b), nil
}

// HashAPISecret computes an Argon2id hash of the secret.
// Returns the hash in the format: $argon2id$v=19$m=16384,t=2,p=2$<salt>$<hash>
func HashAPISecret(secret string) (string, error) {
	salt := make([]byte, Argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", ErrEntropyUnavailable.WithCause(err)
	}

	hash := argon2.IDKey([]byte(secret), salt, Argon2Time, Argon2Memory, Argon2Parallelism, Argon2KeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, Argon2Memory, Argon2Time, Argon2Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash)), nil
}

// VerifyAPISecret checks secret against an Argon2id hash in constant time.
func VerifyAPISecret(secret, encoded string) bool {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false
	}

	var memory, iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(expected) == 0 {
		return false
	}

	computed := argon2.IDKey([]byte(secret), salt, iterations, memory, parallelism, uint32(len(expected)))
	return subtle.ConstantTimeCompare(computed, expected) == 1
}

// MaskAPIKeySecret masks an API key secret for safe logging.
func MaskAPIKeySecret(secret string) string {
	if !strings.HasPrefix(secret, APIKeySecretPrefix) || len(secret) < len(APIKeySecretPrefix)+7 {
		return "***REDACTED***"
	}
	body := secret[len(APIKeySecretPrefix):]
	return APIKeySecretPrefix + body[:3] + "..." + body[len(body)-3:]
}
