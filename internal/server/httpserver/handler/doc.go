// Package handler provides HTTP request handlers for the preview service.
//
// This package contains handlers for all HTTP endpoints:
//
//   - links.go: preview link management
//   - preview.go: public token authorization
//   - admin.go: secret rotation
//   - health.go: health and readiness checks
//
// All handlers follow a consistent pattern:
//
//   - Parse and validate request
//   - Call domain service
//   - Format and return response
//   - Handle errors with appropriate HTTP status codes
package handler
