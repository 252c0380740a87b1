package handler

import (
	"context"

	"github.com/yndnr/khm-preview/internal/core/domain"
)

type apiKeyContextKey struct{}

// WithAPIKey returns a context carrying the authenticated API key.
func WithAPIKey(ctx context.Context, key *domain.APIKey) context.Context {
	return context.WithValue(ctx, apiKeyContextKey{}, key)
}

// APIKeyFromContext retrieves the authenticated API key from context.
func APIKeyFromContext(ctx context.Context) *domain.APIKey {
	if key, ok := ctx.Value(apiKeyContextKey{}).(*domain.APIKey); ok {
		return key
	}
	return nil
}
