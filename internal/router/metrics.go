package router

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// routerMetrics contains Prometheus metrics for pattern caching and
// best-match selection.
type routerMetrics struct {
	cacheHits      prometheus.Counter
	cacheMisses    prometheus.Counter
	cacheEvictions prometheus.Counter
	cacheSize      prometheus.Gauge
	selections     *prometheus.CounterVec
}

var (
	routerMetricsInstance *routerMetrics
	routerMetricsOnce     sync.Once
)

// getRouterMetrics returns the singleton router metrics instance.
func getRouterMetrics() *routerMetrics {
	routerMetricsOnce.Do(func() {
		routerMetricsInstance = &routerMetrics{
			cacheHits: promauto.NewCounter(
				prometheus.CounterOpts{
					Namespace: "flowgate",
					Subsystem: "router",
					Name:      "pattern_cache_hits_total",
					Help:      "Total number of compiled pattern cache hits",
				},
			),
			cacheMisses: promauto.NewCounter(
				prometheus.CounterOpts{
					Namespace: "flowgate",
					Subsystem: "router",
					Name:      "pattern_cache_misses_total",
					Help:      "Total number of compiled pattern cache misses",
				},
			),
			cacheEvictions: promauto.NewCounter(
				prometheus.CounterOpts{
					Namespace: "flowgate",
					Subsystem: "router",
					Name:      "pattern_cache_evictions_total",
					Help:      "Total number of compiled pattern cache evictions",
				},
			),
			cacheSize: promauto.NewGauge(
				prometheus.GaugeOpts{
					Namespace: "flowgate",
					Subsystem: "router",
					Name:      "pattern_cache_size",
					Help:      "Current number of entries in the compiled pattern cache",
				},
			),
			selections: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "flowgate",
					Subsystem: "router",
					Name:      "best_match_selections_total",
					Help:      "Total number of best-match selections by outcome (none, single, ranked)",
				},
				[]string{"outcome"},
			),
		}
	})
	return routerMetricsInstance
}
