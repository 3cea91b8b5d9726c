// Package upstream provides Prometheus metrics for the calls the
// gateway makes to upstream services and for the body content streamed
// through policy pipelines.
package upstream

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "flowgate"
	subsystem = "upstream"
)

// Content directions.
const (
	DirectionRequest  = "request"
	DirectionResponse = "response"
)

// UpstreamMetrics holds the upstream-level Prometheus metrics.
type UpstreamMetrics struct {
	RequestsTotal         *prometheus.CounterVec
	DurationSeconds       *prometheus.HistogramVec
	ErrorsTotal           *prometheus.CounterVec
	ContentBytesTotal     *prometheus.CounterVec
	ContentErrorsTotal    *prometheus.CounterVec
	ContentPipelineStages *prometheus.HistogramVec
}

var (
	upstreamMetricsInstance *UpstreamMetrics
	upstreamMetricsOnce     sync.Once
)

// NewUpstreamMetrics creates a new UpstreamMetrics instance with all
// metrics registered via promauto (default global registry).
func NewUpstreamMetrics() *UpstreamMetrics {
	return &UpstreamMetrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "requests_total",
				Help:      "Total number of upstream requests",
			},
			[]string{"api", "method", "status_code"},
		),
		DurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "duration_seconds",
				Help: "Duration of upstream " +
					"round trips until response headers",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"api", "method"},
		),
		ErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "errors_total",
				Help:      "Total number of failed upstream round trips by type",
			},
			[]string{"api", "error_type"},
		),
		ContentBytesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "content_bytes_total",
				Help: "Total number of body bytes " +
					"written through content pipelines",
			},
			[]string{"api", "direction"},
		),
		ContentErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "content_errors_total",
				Help:      "Total number of content pipeline failures",
			},
			[]string{"api", "direction"},
		),
		ContentPipelineStages: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "content_pipeline_stages",
				Help:      "Number of transform stages in content pipelines",
				Buckets:   []float64{0, 1, 2, 3, 5, 8},
			},
			[]string{"direction"},
		),
	}
}

// GetUpstreamMetrics returns the singleton upstream metrics instance.
func GetUpstreamMetrics() *UpstreamMetrics {
	upstreamMetricsOnce.Do(func() {
		upstreamMetricsInstance = NewUpstreamMetrics()
	})
	return upstreamMetricsInstance
}

// MustRegister registers all upstream metric collectors with the given
// Prometheus registry. AlreadyRegisteredError is silently ignored.
func (m *UpstreamMetrics) MustRegister(registry *prometheus.Registry) {
	for _, c := range m.collectors() {
		if err := registry.Register(c); err != nil {
			if !isAlreadyRegistered(err) {
				panic(err)
			}
		}
	}
}

// RecordRequest records a completed upstream round trip.
func (m *UpstreamMetrics) RecordRequest(api, method string, statusCode int, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(api, method, strconv.Itoa(statusCode)).Inc()
	m.DurationSeconds.WithLabelValues(api, method).Observe(duration.Seconds())
}

// RecordError records a failed upstream round trip.
func (m *UpstreamMetrics) RecordError(api, errorType string) {
	m.ErrorsTotal.WithLabelValues(api, errorType).Inc()
}

// RecordContent records bytes streamed through a content pipeline.
func (m *UpstreamMetrics) RecordContent(api, direction string, stages int, bytes int64) {
	m.ContentBytesTotal.WithLabelValues(api, direction).Add(float64(bytes))
	m.ContentPipelineStages.WithLabelValues(direction).Observe(float64(stages))
}

// RecordContentError records a content pipeline failure.
func (m *UpstreamMetrics) RecordContentError(api, direction string) {
	m.ContentErrorsTotal.WithLabelValues(api, direction).Inc()
}

func (m *UpstreamMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.RequestsTotal,
		m.DurationSeconds,
		m.ErrorsTotal,
		m.ContentBytesTotal,
		m.ContentErrorsTotal,
		m.ContentPipelineStages,
	}
}

// isAlreadyRegistered returns true if the error indicates the
// collector was already registered with the registry.
func isAlreadyRegistered(err error) bool {
	var are prometheus.AlreadyRegisteredError
	return errors.As(err, &are)
}
