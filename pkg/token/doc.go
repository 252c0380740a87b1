// Package token provides preview token generation and keyed digests.
//
// Token Format:
//
//   - Body: lowercase hex of N random bytes (default N = 32, 64 characters)
//   - No prefix; the token is embedded as-is in preview URLs
//
// Digest Format:
//
//   - Lowercase hex of HMAC-SHA-256(secret, token), 64 characters
//
// Security:
//
//   - Uses crypto/rand for CSPRNG; entropy failures are returned, never masked
//   - Digests are keyed by a process-wide secret supplied by a SecretProvider
//   - Tokens are never stored, only digests
//   - Verification uses constant-time comparison
package token
