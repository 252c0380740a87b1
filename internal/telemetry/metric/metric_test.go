package metric_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/yndnr/khm-preview/internal/core/service"
	"github.com/yndnr/khm-preview/internal/telemetry/metric"
)

var _ service.Recorder = (*metric.Registry)(nil)

func TestRegistry_Recorder(t *testing.T) {
	r := metric.NewRegistry()

	r.LinkCreated()
	r.LinkCreated()
	r.LinkRevoked()
	r.LinkExtended()
	r.Authorization(service.AuthResultGranted)
	r.Authorization(service.AuthResultInvalid)
	r.Authorization(service.AuthResultInvalid)
	r.SecretOperation(service.SecretOpCreate, "ok")

	expected := `
# HELP khm_preview_authorizations_total Preview access checks by result.
# TYPE khm_preview_authorizations_total counter
khm_preview_authorizations_total{result="granted"} 1
khm_preview_authorizations_total{result="invalid"} 2
# HELP khm_preview_links_created_total Preview links issued.
# TYPE khm_preview_links_created_total counter
khm_preview_links_created_total 2
`
	err := testutil.GatherAndCompare(r.Gatherer(), strings.NewReader(expected),
		"khm_preview_authorizations_total", "khm_preview_links_created_total")
	if err != nil {
		t.Error(err)
	}

	n, err := testutil.GatherAndCount(r.Gatherer(), "khm_preview_secret_operations_total")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("secret_operations_total series = %d, want 1", n)
	}
}

func TestRegistry_InstrumentHandler(t *testing.T) {
	r := metric.NewRegistry()

	h := r.InstrumentHandler(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path == "/missing" {
			http.NotFound(w, req)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	for _, path := range []string{"/health", "/health", "/missing"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	expected := `
# HELP khm_preview_http_requests_total HTTP requests by method and status code.
# TYPE khm_preview_http_requests_total counter
khm_preview_http_requests_total{code="200",method="get"} 2
khm_preview_http_requests_total{code="404",method="get"} 1
`
	if err := testutil.GatherAndCompare(r.Gatherer(), strings.NewReader(expected), "khm_preview_http_requests_total"); err != nil {
		t.Error(err)
	}
}

func TestRegistry_Handler(t *testing.T) {
	r := metric.NewRegistry()
	r.LinkCreated()

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{"khm_preview_links_created_total 1", "khm_preview_build_info", "go_goroutines"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("/metrics output missing %q", want)
		}
	}
}

func TestRegistry_Registerer(t *testing.T) {
	r := metric.NewRegistry()
	g := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: metric.Namespace, Name: "extra"})
	if err := r.Registerer().Register(g); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := r.Registerer().Register(g); err == nil {
		t.Error("registering twice should fail")
	}
}
