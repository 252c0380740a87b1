package metric

import (
	"net/http"
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yndnr/khm-preview/internal/infra/buildinfo"
)

// Namespace prefixes every metric name.
const Namespace = "khm_preview"

const (
	LabelResult    = "result"
	LabelOperation = "op"
	LabelHTTPCode  = "code"
	LabelMethod    = "method"
)

// Registry holds the application collectors.
type Registry struct {
	reg *prometheus.Registry

	linksCreated   prometheus.Counter
	linksRevoked   prometheus.Counter
	linksExtended  prometheus.Counter
	authorizations *prometheus.CounterVec
	secretOps      *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// NewRegistry creates a Registry with the Go runtime, process and build
// info collectors already registered.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		linksCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "links_created_total",
			Help:      "Preview links issued.",
		}),
		linksRevoked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "links_revoked_total",
			Help:      "Preview links revoked, explicitly or by a newer link for the same post.",
		}),
		linksExtended: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "links_extended_total",
			Help:      "Preview link expiry extensions.",
		}),
		authorizations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "authorizations_total",
			Help:      "Preview access checks by result.",
		}, []string{LabelResult}),
		secretOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "secret_operations_total",
			Help:      "Signing secret loads, creations and rotations by result.",
		}, []string{LabelOperation, LabelResult}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method and status code.",
		}, []string{LabelMethod, LabelHTTPCode}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Histogram of latencies for HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{LabelMethod, LabelHTTPCode}),
	}

	buildInfo := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "build_info",
		Help:      "Gauge with labels describing go version, git revision and release version.",
	}, []string{"goversion", "revision", "version"})
	info := buildinfo.Get()
	buildInfo.WithLabelValues(runtime.Version(), info.Commit, info.Version).Set(1)

	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		buildInfo,
		r.linksCreated,
		r.linksRevoked,
		r.linksExtended,
		r.authorizations,
		r.secretOps,
		r.httpRequests,
		r.httpDuration,
	)
	return r
}

// Registerer returns the registerer for components with their own
// collectors, such as the Badger engine.
func (r *Registry) Registerer() prometheus.Registerer {
	return r.reg
}

// Gatherer returns the underlying gatherer.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// InstrumentHandler counts and times requests served by next.
func (r *Registry) InstrumentHandler(next http.Handler) http.Handler {
	return promhttp.InstrumentHandlerCounter(r.httpRequests,
		promhttp.InstrumentHandlerDuration(r.httpDuration, next))
}

// SecretOperation records a signing secret operation.
func (r *Registry) SecretOperation(op, result string) {
	r.secretOps.WithLabelValues(op, result).Inc()
}

// LinkCreated records an issued link.
func (r *Registry) LinkCreated() { r.linksCreated.Inc() }

// LinkRevoked records a revoked link.
func (r *Registry) LinkRevoked() { r.linksRevoked.Inc() }

// LinkExtended records an extension.
func (r *Registry) LinkExtended() { r.linksExtended.Inc() }

// Authorization records a preview access check.
func (r *Registry) Authorization(result string) {
	r.authorizations.WithLabelValues(result).Inc()
}
