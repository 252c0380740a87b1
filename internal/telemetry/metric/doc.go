// Package metric exposes Prometheus metrics for the preview service.
//
// A Registry owns a private prometheus.Registry so tests can build as
// many as they like. It records preview link and secret events through
// the service Recorder methods and instruments HTTP handlers.
package metric
