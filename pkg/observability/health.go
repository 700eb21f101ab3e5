package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// ModuleCounter reports how many modules are registered
type ModuleCounter interface {
	Len() int
}

// HealthChecker provides health check functionality
type HealthChecker struct {
	modules ModuleCounter
	version string

	// runtimeHost reports whether the runtime host was expected and loaded
	runtimeHost func() (expected, loaded bool)
}

// NewHealthChecker creates a new health checker over the module registry
func NewHealthChecker(modules ModuleCounter, version string) *HealthChecker {
	return &HealthChecker{
		modules: modules,
		version: version,
	}
}

// WithRuntimeHostCheck adds the runtime host to the reported components
func (h *HealthChecker) WithRuntimeHostCheck(fn func() (expected, loaded bool)) *HealthChecker {
	h.runtimeHost = fn
	return h
}

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status     string                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Components map[string]ComponentStatus `json:"components,omitempty"`
}

// ComponentStatus represents the health of a single component
type ComponentStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Liveness returns a simple liveness probe (always returns 200 if server is running)
func (h *HealthChecker) Liveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    StatusHealthy,
		"timestamp": time.Now(),
	})
}

// Readiness returns a readiness probe
func (h *HealthChecker) Readiness(w http.ResponseWriter, r *http.Request) {
	status := h.Check(r.Context())

	w.Header().Set("Content-Type", "application/json")

	// Return 503 if unhealthy, 200 if healthy or degraded
	if status.Status == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	_ = json.NewEncoder(w).Encode(status)
}

// Check reports registry health. An empty registry is unhealthy; a runtime
// host that was expected but did not load is degraded.
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:     StatusHealthy,
		Timestamp:  time.Now(),
		Version:    h.version,
		Components: make(map[string]ComponentStatus),
	}

	registry := ComponentStatus{Status: StatusHealthy}
	if h.modules == nil || h.modules.Len() == 0 {
		registry.Status = StatusUnhealthy
		registry.Message = "no modules registered"
		status.Status = StatusUnhealthy
	}
	status.Components["registry"] = registry

	if h.runtimeHost != nil {
		expected, loaded := h.runtimeHost()
		if expected {
			host := ComponentStatus{Status: StatusHealthy}
			if !loaded {
				host.Status = StatusDegraded
				host.Message = "runtime host not loaded"
				if status.Status == StatusHealthy {
					status.Status = StatusDegraded
				}
			}
			status.Components["runtime_host"] = host
		}
	}

	return status
}

// RegisterHealthRoutes registers health check endpoints
func RegisterHealthRoutes(router *mux.Router, checker *HealthChecker) {
	router.HandleFunc("/health", checker.Readiness).Methods(http.MethodGet)
	router.HandleFunc("/health/live", checker.Liveness).Methods(http.MethodGet)
	router.HandleFunc("/health/ready", checker.Readiness).Methods(http.MethodGet)
}
