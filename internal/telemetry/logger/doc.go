// Package logger builds the service's *slog.Logger.
//
//   - logger.go: handler construction and a process wide level that the
//     config watcher can change at runtime
//   - context.go: request ID propagation into log records
//   - redact.go: masking of tokens, secrets and API key material
package logger
