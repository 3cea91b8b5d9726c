package health

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HealthMetrics holds Prometheus metrics for probes and checks.
type HealthMetrics struct {
	probesTotal *prometheus.CounterVec
	checkStatus *prometheus.GaugeVec
}

var (
	healthMetricsInstance *HealthMetrics
	healthMetricsOnce     sync.Once
)

// GetHealthMetrics returns the singleton health metrics instance.
func GetHealthMetrics() *HealthMetrics {
	healthMetricsOnce.Do(func() {
		healthMetricsInstance = &HealthMetrics{
			probesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "flowgate",
					Subsystem: "health",
					Name:      "probes_total",
					Help:      "Total number of health probes served",
				},
				[]string{"type"},
			),
			checkStatus: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Namespace: "flowgate",
					Subsystem: "health",
					Name:      "check_status",
					Help: "Last readiness check " +
						"status (1=healthy, 0=unhealthy)",
				},
				[]string{"check"},
			),
		}
	})
	return healthMetricsInstance
}

// MustRegister registers the health collectors with registry, which
// serves /metrics. AlreadyRegisteredError is ignored.
func (m *HealthMetrics) MustRegister(registry *prometheus.Registry) {
	for _, c := range []prometheus.Collector{m.probesTotal, m.checkStatus} {
		if err := registry.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				panic(err)
			}
		}
	}
}

// RecordProbe counts a served probe.
func (m *HealthMetrics) RecordProbe(probe string) {
	m.probesTotal.WithLabelValues(probe).Inc()
}

// RecordCheck sets the last status of a readiness check.
func (m *HealthMetrics) RecordCheck(name string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1
	}
	m.checkStatus.WithLabelValues(name).Set(v)
}
