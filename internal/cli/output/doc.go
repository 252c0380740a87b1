// Package output renders khm-preview-cli results as a table, JSON or YAML.
//
// Values that know how to lay themselves out implement Tabular; any other
// struct renders as a FIELD/VALUE table, and anything else falls back to
// JSON.
package output
