// Package domain defines the core domain models for KHM Preview.
//
// Domain models are pure value objects and entities without any
// IO dependencies or framework coupling. This package contains:
//
//   - PreviewLink: a time-limited, revocable preview grant for one post
//   - Hit: a single recorded view of a preview link
//   - Role: API key roles and permissions for the admin surface
//   - Token: preview token format checks
//   - Errors: Domain-specific error definitions
package domain
