package token

import "context"

// SecretProvider supplies the HMAC key used for token digests.
type SecretProvider interface {
	Secret(ctx context.Context) (string, error)
}

// SecretFunc adapts a plain function to SecretProvider.
type SecretFunc func(ctx context.Context) (string, error)

// Secret calls f.
func (f SecretFunc) Secret(ctx context.Context) (string, error) {
	return f(ctx)
}

// StaticSecret is a SecretProvider that always returns the same value.
type StaticSecret string

// Secret returns s.
func (s StaticSecret) Secret(context.Context) (string, error) {
	return string(s), nil
}
