package server

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
)

const (
	healthStatusOK           = "ok"
	healthStatusNotReady     = "not ready"
	healthStatusShuttingDown = "shutting down"
)

// HealthChecker serves liveness and readiness probes. Liveness only asserts
// the process is up; readiness additionally reports whether the server is
// accepting traffic and whether Gmail credentials are in place. An
// unauthenticated server is still ready (the auth tools work without a
// token), so the auth check is informational and never flips readiness.
type HealthChecker struct {
	ready     atomic.Bool
	sc        *ServerContext
	startTime time.Time
}

// NewHealthChecker creates a checker that starts out ready.
func NewHealthChecker(sc *ServerContext) *HealthChecker {
	h := &HealthChecker{
		sc:        sc,
		startTime: time.Now(),
	}
	h.ready.Store(true)
	return h
}

// SetReady flips the readiness state, e.g. during draining.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the server is accepting traffic.
func (h *HealthChecker) IsReady() bool {
	return h.ready.Load()
}

func (h *HealthChecker) shuttingDown() bool {
	return h.sc != nil && h.sc.IsShutdown()
}

func (h *HealthChecker) authenticated(r *http.Request) bool {
	return h.sc != nil && h.sc.CheckAuth(r.Context()) == nil
}

// HealthResponse is the JSON body of the probe endpoints.
type HealthResponse struct {
	Status        string            `json:"status"`
	Authenticated bool              `json:"authenticated"`
	Uptime        string            `json:"uptime,omitempty"`
	Checks        map[string]string `json:"checks,omitempty"`
}

// LivenessHandler answers /healthz. It only proves the process is alive and
// reports the upstream auth state alongside.
func (h *HealthChecker) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeHealth(w, http.StatusOK, HealthResponse{
			Status:        healthStatusOK,
			Authenticated: h.authenticated(r),
		})
	})
}

// ReadinessHandler answers /readyz.
func (h *HealthChecker) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"ready":    healthStatusOK,
			"shutdown": healthStatusOK,
		}
		ok := true
		if !h.ready.Load() {
			checks["ready"] = healthStatusNotReady
			ok = false
		}
		if h.shuttingDown() {
			checks["shutdown"] = healthStatusShuttingDown
			ok = false
		}

		resp := HealthResponse{
			Status:        healthStatusOK,
			Authenticated: h.authenticated(r),
			Uptime:        time.Since(h.startTime).Truncate(time.Second).String(),
			Checks:        checks,
		}
		status := http.StatusOK
		if !ok {
			resp.Status = healthStatusNotReady
			status = http.StatusServiceUnavailable
		}
		writeHealth(w, status, resp)
	})
}

// RegisterHealthEndpoints mounts the probe handlers on mux.
func (h *HealthChecker) RegisterHealthEndpoints(mux *http.ServeMux) {
	mux.Handle("/healthz", h.LivenessHandler())
	mux.Handle("/readyz", h.ReadinessHandler())
}

func writeHealth(w http.ResponseWriter, status int, resp HealthResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
