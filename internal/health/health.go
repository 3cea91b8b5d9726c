// Package health provides health, readiness and liveness probe endpoints.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"
)

// DefaultCheckTimeout bounds a single readiness check.
const DefaultCheckTimeout = 5 * time.Second

// Status represents the health status.
type Status string

const (
	// StatusHealthy indicates the service is healthy.
	StatusHealthy Status = "healthy"
	// StatusUnhealthy indicates the service is unhealthy.
	StatusUnhealthy Status = "unhealthy"
	// StatusDegraded indicates a non-critical check failed.
	StatusDegraded Status = "degraded"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    Status    `json:"status"`
	Version   string    `json:"version,omitempty"`
	Uptime    string    `json:"uptime,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadinessResponse represents the readiness check response.
type ReadinessResponse struct {
	Status    Status           `json:"status"`
	Checks    map[string]Check `json:"checks,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// Check represents an individual check result.
type Check struct {
	Status   Status `json:"status"`
	Message  string `json:"message,omitempty"`
	Duration string `json:"duration"`
}

// CheckFunc performs one readiness check. A nil error is healthy.
type CheckFunc func(ctx context.Context) error

type registeredCheck struct {
	fn       CheckFunc
	critical bool
}

// Checker aggregates named readiness checks.
type Checker struct {
	version   string
	startTime time.Time
	timeout   time.Duration
	metrics   *HealthMetrics

	mu     sync.RWMutex
	checks map[string]registeredCheck
}

// Option is a functional option for the checker.
type Option func(*Checker)

// WithCheckTimeout sets the timeout of every check.
func WithCheckTimeout(d time.Duration) Option {
	return func(c *Checker) {
		c.timeout = d
	}
}

// WithMetrics sets the metrics receiving check outcomes.
func WithMetrics(m *HealthMetrics) Option {
	return func(c *Checker) {
		c.metrics = m
	}
}

// NewChecker creates a new health checker.
func NewChecker(version string, opts ...Option) *Checker {
	c := &Checker{
		version:   version,
		startTime: time.Now(),
		timeout:   DefaultCheckTimeout,
		checks:    make(map[string]registeredCheck),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = GetHealthMetrics()
	}
	return c
}

// RegisterCheck registers a check. A failing critical check makes the
// gateway unhealthy, any other failing check degraded.
func (c *Checker) RegisterCheck(name string, critical bool, fn CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = registeredCheck{fn: fn, critical: critical}
}

// UnregisterCheck removes a check.
func (c *Checker) UnregisterCheck(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.checks, name)
}

// Health returns the health status.
func (c *Checker) Health() HealthResponse {
	return HealthResponse{
		Status:    StatusHealthy,
		Version:   c.version,
		Uptime:    time.Since(c.startTime).Round(time.Second).String(),
		Timestamp: time.Now(),
	}
}

// Readiness runs every check and aggregates the result.
func (c *Checker) Readiness(ctx context.Context) ReadinessResponse {
	c.mu.RLock()
	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	checks := make(map[string]registeredCheck, len(c.checks))
	for name, rc := range c.checks {
		checks[name] = rc
	}
	c.mu.RUnlock()
	sort.Strings(names)

	response := ReadinessResponse{
		Status:    StatusHealthy,
		Checks:    make(map[string]Check, len(names)),
		Timestamp: time.Now(),
	}

	for _, name := range names {
		rc := checks[name]
		check := c.run(ctx, rc.fn)
		response.Checks[name] = check

		healthy := check.Status == StatusHealthy
		c.metrics.RecordCheck(name, healthy)
		if healthy {
			continue
		}
		if rc.critical {
			response.Status = StatusUnhealthy
		} else if response.Status != StatusUnhealthy {
			response.Status = StatusDegraded
		}
	}

	return response
}

func (c *Checker) run(ctx context.Context, fn CheckFunc) Check {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	check := Check{Status: StatusHealthy, Duration: time.Since(start).String()}
	if err != nil {
		check.Status = StatusUnhealthy
		check.Message = err.Error()
	}
	return check
}

// HealthHandler returns an HTTP handler for the health endpoint.
func (c *Checker) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		c.metrics.RecordProbe("health")
		writeJSON(w, http.StatusOK, c.Health())
	}
}

// ReadinessHandler returns an HTTP handler for the readiness endpoint.
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c.metrics.RecordProbe("readiness")
		response := c.Readiness(r.Context())

		statusCode := http.StatusOK
		if response.Status == StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		writeJSON(w, statusCode, response)
	}
}

// LivenessHandler returns an HTTP handler for the liveness endpoint.
func (c *Checker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		c.metrics.RecordProbe("liveness")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}

// Register mounts /health, /ready and /live on mux.
func (c *Checker) Register(mux *http.ServeMux) {
	mux.HandleFunc("/health", c.HealthHandler())
	mux.HandleFunc("/ready", c.ReadinessHandler())
	mux.HandleFunc("/live", c.LivenessHandler())
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}
