// Package config defines the khm-preview-server configuration.
//
//   - spec.go: ServerConfig and its sections
//   - default.go: default values
//   - verify.go: validation after loading
//   - sanitize.go: a copy that is safe to log
//
// Values are loaded with internal/infra/confloader.
package config
