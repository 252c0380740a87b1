// Package command defines the khm-preview-cli commands on urfave/cli/v2.
//
//   - root.go: application, global flags and their resolution
//   - token.go: offline token generation and hashing
//   - apikey.go: API key secret hashing for the server config
//   - link.go: preview link management over the HTTP API
//   - secret.go: secret rotation
//
// Remote commands resolve the server and credentials from flags, then
// KHMPREVIEW_* environment variables, then the CLI config file.
package command
