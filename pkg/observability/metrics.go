package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/platinummonkey/procvfs/pkg/plugins"
)

// Metrics holds all Prometheus metrics. It doubles as the dispatcher's
// statistics hook.
type Metrics struct {
	// Dispatch metrics
	DispatchTotal    *prometheus.CounterVec
	DispatchDuration *prometheus.HistogramVec

	// Registry metrics
	ModulesLoaded *prometheus.GaugeVec

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		DispatchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "procvfs_dispatch_total",
				Help: "Total number of calls dispatched to modules",
			},
			[]string{"op"},
		),
		DispatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "procvfs_dispatch_duration_seconds",
				Help:    "Duration of calls dispatched to modules in seconds",
				Buckets: []float64{.00001, .0001, .001, .005, .01, .05, .1, .5, 1},
			},
			[]string{"op"},
		),

		ModulesLoaded: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "procvfs_modules_loaded",
				Help: "Number of registered modules",
			},
			[]string{"kind"},
		),

		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "procvfs_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "procvfs_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	registry.MustRegister(
		m.DispatchTotal,
		m.DispatchDuration,
		m.ModulesLoaded,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
	)

	return m
}

// CallStart implements plugins.Statistics
func (m *Metrics) CallStart() time.Time {
	return time.Now()
}

// CallEnd implements plugins.Statistics
func (m *Metrics) CallEnd(op plugins.Operation, start time.Time) {
	m.DispatchTotal.WithLabelValues(op.String()).Inc()
	m.DispatchDuration.WithLabelValues(op.String()).Observe(time.Since(start).Seconds())
}

// ObserveModules records the registry population by kind
func (m *Metrics) ObserveModules(modules []plugins.ModuleInfo) {
	var builtin, native int
	for _, info := range modules {
		if info.Builtin {
			builtin++
		} else {
			native++
		}
	}
	m.ModulesLoaded.WithLabelValues("builtin").Set(float64(builtin))
	m.ModulesLoaded.WithLabelValues("native").Set(float64(native))
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests. Requests are labelled by
// route template so file paths do not explode label cardinality.
func HTTPMetricsMiddleware(metrics *Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := "unmatched"
			if current := mux.CurrentRoute(r); current != nil {
				if tmpl, err := current.GetPathTemplate(); err == nil {
					route = tmpl
				}
			}

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(router *mux.Router, gatherer prometheus.Gatherer) {
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
}
