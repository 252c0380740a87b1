package domain

import (
	"strings"
)

// TokenBytesLength is the number of random bytes in an issued preview token.
const TokenBytesLength = 32

// TokenLength is the hex encoded token length.
const TokenLength = TokenBytesLength * 2

// ValidateTokenFormat reports whether token looks like an issued preview
// token: TokenLength hex characters in either case.
func ValidateTokenFormat(token string) bool {
	if len(token) != TokenLength {
		return false
	}
	for i := 0; i < len(token); i++ {
		c := token[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// NormalizeToken lowercases a token so digests match the issued form.
func NormalizeToken(token string) string {
	return strings.ToLower(strings.TrimSpace(token))
}

// MaskToken masks a token or digest for safe logging.
// Shows the first 6 and last 4 characters.
func MaskToken(token string) string {
	if len(token) < 16 {
		return "***"
	}
	return token[:6] + "..." + token[len(token)-4:]
}
