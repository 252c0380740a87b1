package token

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// DefaultLength is the default token length in bytes.
const DefaultLength = 32

var (
	// ErrEntropyUnavailable is returned when the secure random source
	// cannot supply the requested bytes.
	ErrEntropyUnavailable = errors.New("token: entropy unavailable")

	// ErrSecretUnavailable is returned when no HMAC secret can be obtained.
	ErrSecretUnavailable = errors.New("token: secret unavailable")

	// ErrInvalidLength is returned for non-positive token lengths.
	ErrInvalidLength = errors.New("token: length must be positive")
)

// Generator issues random tokens and computes their keyed digests.
//
// A Generator holds no mutable state of its own; the secret lives behind
// the SecretProvider it was constructed with.
type Generator struct {
	secrets SecretProvider
	random  io.Reader
}

// Option configures a Generator.
type Option func(*Generator)

// WithRandom replaces the random source. Intended for tests.
func WithRandom(r io.Reader) Option {
	return func(g *Generator) {
		g.random = r
	}
}

// NewGenerator creates a Generator that keys digests with secrets from p.
func NewGenerator(p SecretProvider, opts ...Option) *Generator {
	g := &Generator{
		secrets: p,
		random:  rand.Reader,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate draws length random bytes and returns them hex encoded.
//
// The returned string is always exactly 2*length lowercase hex characters.
func (g *Generator) Generate(length int) (string, error) {
	b, err := readBytes(g.random, length)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// HashToken returns the hex encoded HMAC-SHA-256 of token under the
// current secret.
func (g *Generator) HashToken(ctx context.Context, token string) (string, error) {
	secret, err := g.secret(ctx)
	if err != nil {
		return "", err
	}
	return Digest(secret, token), nil
}

// Verify reports whether token hashes to digest under the current secret.
func (g *Generator) Verify(ctx context.Context, token, digest string) (bool, error) {
	secret, err := g.secret(ctx)
	if err != nil {
		return false, err
	}
	return Equal(Digest(secret, token), digest), nil
}

func (g *Generator) secret(ctx context.Context) (string, error) {
	if g.secrets == nil {
		return "", fmt.Errorf("%w: no provider configured", ErrSecretUnavailable)
	}
	secret, err := g.secrets.Secret(ctx)
	if err != nil {
		if errors.Is(err, ErrSecretUnavailable) {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", ErrSecretUnavailable, err)
	}
	if secret == "" {
		return "", fmt.Errorf("%w: empty secret", ErrSecretUnavailable)
	}
	return secret, nil
}

// GenerateBytes generates length random bytes from crypto/rand.
func GenerateBytes(length int) ([]byte, error) {
	return readBytes(rand.Reader, length)
}

// GenerateHex generates a hex token of length random bytes from crypto/rand.
func GenerateHex(length int) (string, error) {
	b, err := GenerateBytes(length)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func readBytes(r io.Reader, length int) ([]byte, error) {
	if length < 1 {
		return nil, ErrInvalidLength
	}
	b := make([]byte, length)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEntropyUnavailable, err)
	}
	return b, nil
}
