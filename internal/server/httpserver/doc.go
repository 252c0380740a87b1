// Package httpserver provides the HTTP/HTTPS server for the preview service.
//
// This package implements the external API using stdlib net/http:
//
//   - Link endpoints: /links, /links/{id}, /links/{id}/extend
//   - Post endpoints: /posts/{post_id}/link, /posts/{post_id}/links
//   - Public endpoint: /preview
//   - Admin endpoints: /admin/v1/secret/rotate
//   - Health endpoints: /health, /ready, /metrics
//
// Middleware: RequestID, Recover, Audit, CORS, RateLimit, Auth,
// RequirePermission and NetworkACL.
package httpserver
