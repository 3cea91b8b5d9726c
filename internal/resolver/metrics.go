package resolver

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type resolverMetrics struct {
	resolutions *prometheus.CounterVec
}

var (
	resolverMetricsInstance *resolverMetrics
	resolverMetricsOnce     sync.Once
)

func getResolverMetrics() *resolverMetrics {
	resolverMetricsOnce.Do(func() {
		resolverMetricsInstance = &resolverMetrics{
			resolutions: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "flowgate",
					Subsystem: "resolver",
					Name:      "resolutions_total",
					Help:      "Total number of flow resolutions by mode and outcome (matched, unmatched, error)",
				},
				[]string{"mode", "outcome"},
			),
		}
	})
	return resolverMetricsInstance
}
