package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/platinummonkey/procvfs/pkg/plugins"
)

func TestNewMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	if metrics == nil {
		t.Fatal("NewMetrics returned nil")
	}
	if metrics.DispatchTotal == nil || metrics.DispatchDuration == nil {
		t.Error("dispatch metrics not initialized")
	}
	if metrics.ModulesLoaded == nil {
		t.Error("ModulesLoaded is nil")
	}
	if metrics.HTTPRequestsTotal == nil || metrics.HTTPRequestDuration == nil {
		t.Error("HTTP metrics not initialized")
	}

	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic registering metrics twice")
		}
	}()
	NewMetrics(registry)
}

func TestMetrics_Statistics(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	var stats plugins.Statistics = metrics
	start := stats.CallStart()
	if start.IsZero() {
		t.Fatal("CallStart returned zero time")
	}
	stats.CallEnd(plugins.OpRead, start)
	stats.CallEnd(plugins.OpRead, start.Add(-time.Millisecond))
	stats.CallEnd(plugins.OpList, start)

	if got := testutil.ToFloat64(metrics.DispatchTotal.WithLabelValues("read")); got != 2 {
		t.Errorf("Expected 2 reads, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.DispatchTotal.WithLabelValues("list")); got != 1 {
		t.Errorf("Expected 1 list, got %v", got)
	}
	if got := testutil.CollectAndCount(metrics.DispatchDuration); got != 2 {
		t.Errorf("Expected 2 duration series, got %d", got)
	}
}

func TestMetrics_ObserveModules(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	metrics.ObserveModules([]plugins.ModuleInfo{
		{Name: "sysinfo", Builtin: true},
		{Name: "procinfo", Builtin: true},
		{Name: "hello", Library: "/plugins/m_hello.so"},
	})

	if got := testutil.ToFloat64(metrics.ModulesLoaded.WithLabelValues("builtin")); got != 2 {
		t.Errorf("Expected 2 built-in modules, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.ModulesLoaded.WithLabelValues("native")); got != 1 {
		t.Errorf("Expected 1 native module, got %v", got)
	}
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	router := mux.NewRouter()
	router.Use(HTTPMetricsMiddleware(metrics))
	router.HandleFunc("/fs/{path:.*}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, path := range []string{"/fs/a", "/fs/b/c"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	got := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("GET", "/fs/{path:.*}", "404"))
	if got != 2 {
		t.Errorf("Expected 2 requests on route template, got %v", got)
	}
}

func TestRegisterMetricsEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	metrics.CallEnd(plugins.OpWrite, time.Now())

	router := mux.NewRouter()
	RegisterMetricsEndpoint(router, registry)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `procvfs_dispatch_total{op="write"} 1`) {
		t.Errorf("metrics output missing dispatch counter:\n%s", rec.Body.String())
	}
}
