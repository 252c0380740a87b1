// Package service provides domain services for KHM Preview.
//
// Domain services contain the business logic and orchestrate operations
// on domain models. They define interfaces for storage dependencies,
// allowing for dependency injection and testability.
//
// This package contains:
//
//   - OptionSecretProvider: lazily created, persisted preview signing secret
//   - PreviewService: link creation, revocation, extension and token checks
//   - AnalyticsService: recording and reporting of preview views
//   - AuthService: API key authentication, authorization, and rate limiting
package service
