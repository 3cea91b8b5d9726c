package observability

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// unmatchedAPI labels requests that no deployed API claimed, keeping
// cardinality bounded.
const unmatchedAPI = "unmatched"

// Metrics holds the gateway-level Prometheus metrics.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	responseSize    *prometheus.HistogramVec
	activeRequests  prometheus.Gauge
	upstreamErrors  *prometheus.CounterVec
	deployedAPIs    prometheus.Gauge
	configReloads   *prometheus.CounterVec
	startTime       prometheus.Gauge
	registry        *prometheus.Registry
}

// NewMetrics creates a new Metrics instance backed by its own registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "flowgate"
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of proxied HTTP requests",
		},
		[]string{"api", "method", "status"},
	)

	m.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Proxied HTTP request duration in seconds",
			Buckets: []float64{
				.001, .005, .01, .025, .05,
				.1, .25, .5, 1, 2.5, 5, 10,
			},
		},
		[]string{"api", "method"},
	)

	m.responseSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "response_size_bytes",
			Help:      "Proxied HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"api"},
	)

	m.activeRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_requests",
			Help:      "Number of in-flight HTTP requests",
		},
	)

	m.upstreamErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_errors_total",
			Help:      "Total number of failed upstream calls",
		},
		[]string{"api"},
	)

	m.deployedAPIs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "deployed_apis",
			Help:      "Number of currently deployed APIs",
		},
	)

	m.configReloads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_reloads_total",
			Help:      "Total number of configuration reloads by outcome",
		},
		[]string{"result"},
	)

	m.startTime = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "start_time_seconds",
			Help:      "Start time of the gateway in unix seconds",
		},
	)

	m.registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.responseSize,
		m.activeRequests,
		m.upstreamErrors,
		m.deployedAPIs,
		m.configReloads,
		m.startTime,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m.startTime.SetToCurrentTime()

	return m
}

// RecordRequest records a completed request for api.
func (m *Metrics) RecordRequest(api, method string, status int, duration time.Duration, respSize int64) {
	if api == "" {
		api = unmatchedAPI
	}
	m.requestsTotal.WithLabelValues(api, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(api, method).Observe(duration.Seconds())
	m.responseSize.WithLabelValues(api).Observe(float64(respSize))
}

// RecordUpstreamError counts a failed upstream call.
func (m *Metrics) RecordUpstreamError(api string) {
	m.upstreamErrors.WithLabelValues(api).Inc()
}

// SetDeployedAPIs sets the number of deployed APIs.
func (m *Metrics) SetDeployedAPIs(n int) {
	m.deployedAPIs.Set(float64(n))
}

// RecordConfigReload records a configuration reload outcome.
func (m *Metrics) RecordConfigReload(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.configReloads.WithLabelValues(result).Inc()
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(
		m.registry,
		promhttp.HandlerOpts{EnableOpenMetrics: true},
	)
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// MustRegisterCollector registers an additional collector with the
// registry backing the metrics endpoint, ignoring duplicates.
func (m *Metrics) MustRegisterCollector(cs ...prometheus.Collector) {
	for _, c := range cs {
		if err := m.registry.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				panic(err)
			}
		}
	}
}

type apiHolderKey struct{}

type apiHolder struct {
	mu   sync.Mutex
	name string
}

func withAPIHolder(ctx context.Context, h *apiHolder) context.Context {
	return context.WithValue(ctx, apiHolderKey{}, h)
}

// MarkRequestAPI records the API serving the request so that
// MetricsMiddleware can label it once the handler returns.
func MarkRequestAPI(ctx context.Context, api string) {
	if h, ok := ctx.Value(apiHolderKey{}).(*apiHolder); ok {
		h.mu.Lock()
		h.name = api
		h.mu.Unlock()
	}
}

func (h *apiHolder) get() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.name
}

// MetricsMiddleware returns a middleware that records request metrics.
// The API label is read back from the request context once the
// gateway has selected the API.
func MetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			metrics.activeRequests.Inc()
			defer metrics.activeRequests.Dec()

			holder := &apiHolder{}
			rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rw, r.WithContext(withAPIHolder(r.Context(), holder)))

			metrics.RecordRequest(holder.get(), r.Method, rw.status, time.Since(start), int64(rw.size))
		})
	}
}

// statusRecorder wraps http.ResponseWriter to capture status and size.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	size        int
	wroteHeader bool
}

// WriteHeader captures the status code.
func (rw *statusRecorder) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.status = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

// Write captures the response size.
func (rw *statusRecorder) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

// Flush implements http.Flusher for streaming responses.
func (rw *statusRecorder) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (rw *statusRecorder) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
