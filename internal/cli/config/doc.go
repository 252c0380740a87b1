// Package config holds the khm-preview-cli settings file,
// ~/.khm-preview/cli.yaml by default.
//
// Values from the file are defaults; environment variables and flags take
// precedence.
package config
