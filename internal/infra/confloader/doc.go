// Package confloader loads layered configuration with koanf and watches
// the configuration file for changes.
//
// Priority, highest first: map overrides (CLI flags), environment
// variables, the YAML file, and whatever defaults the target struct
// already holds.
//
// Environment variables use the KHMPREVIEW_ prefix with a double
// underscore between sections, so snake_case keys survive:
//
//	KHMPREVIEW_SECURITY__ENCRYPTION_KEY -> security.encryption_key
package confloader
