// Package policy provides Prometheus metrics for policy chains and the
// built-in policies of the gateway.
package policy

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vyrodovalexey/flowgate/internal/chain"
	corepolicy "github.com/vyrodovalexey/flowgate/internal/policy"
)

const (
	namespace = "flowgate"
	subsystem = "policy"
)

// Execution results.
const (
	resultExecuted = "executed"
	resultError    = "error"
)

// Circuit breaker states as exported by CircuitBreakerState.
const (
	BreakerClosed   = 0
	BreakerHalfOpen = 1
	BreakerOpen     = 2
)

// PolicyMetrics holds the policy-level Prometheus metrics. It
// implements chain.Reporter.
type PolicyMetrics struct {
	ExecutionsTotal               *prometheus.CounterVec
	DurationSeconds               *prometheus.HistogramVec
	SkipsTotal                    *prometheus.CounterVec
	ChainsTotal                   *prometheus.CounterVec
	ChainDurationSeconds          *prometheus.HistogramVec
	RateLimitHitsTotal            *prometheus.CounterVec
	AuthFailuresTotal             *prometheus.CounterVec
	AuthSuccessesTotal            *prometheus.CounterVec
	CircuitBreakerState           *prometheus.GaugeVec
	CircuitBreakerTripsTotal      *prometheus.CounterVec
	CircuitBreakerRejectionsTotal *prometheus.CounterVec
}

var (
	policyMetricsInstance *PolicyMetrics
	policyMetricsOnce     sync.Once
)

// NewPolicyMetrics creates a new PolicyMetrics instance with all
// metrics registered via promauto (default global registry).
//
//nolint:funlen // many metrics require many statements
func NewPolicyMetrics() *PolicyMetrics {
	return &PolicyMetrics{
		ExecutionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "executions_total",
				Help:      "Total number of policy phase executions by result",
			},
			[]string{"policy", "phase", "result"},
		),
		DurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "duration_seconds",
				Help:      "Duration of policy phase method calls",
				Buckets:   []float64{.0001, .00025, .0005, .001, .0025, .005, .01, .025, .05, .1, .5, 1},
			},
			[]string{"policy", "phase"},
		),
		SkipsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "skips_total",
				Help:      "Total number of skipped policies by reason",
			},
			[]string{"policy", "reason"},
		),
		ChainsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "chains_total",
				Help:      "Total number of completed policy chains by outcome",
			},
			[]string{"phase", "outcome"},
		),
		ChainDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "chain_duration_seconds",
				Help: "Duration of policy chains " +
					"including asynchronous policies",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"phase"},
		),
		RateLimitHitsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "ratelimit_hits_total",
				Help:      "Total number of requests rejected by rate limits",
			},
			[]string{"store"},
		),
		AuthFailuresTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "auth_failures_total",
				Help: "Total number of " +
					"authentication failures",
			},
			[]string{"auth_type", "reason"},
		),
		AuthSuccessesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "auth_successes_total",
				Help: "Total number of " +
					"authentication successes",
			},
			[]string{"auth_type"},
		),
		CircuitBreakerState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "circuit_breaker_state",
				Help: "Circuit breaker state " +
					"(0=closed, 1=half-open, 2=open)",
			},
			[]string{"name"},
		),
		CircuitBreakerTripsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "circuit_breaker_trips_total",
				Help: "Total number of " +
					"circuit breaker trips",
			},
			[]string{"name"},
		),
		CircuitBreakerRejectionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "circuit_breaker_rejections_total",
				Help: "Total number of requests " +
					"rejected by an open circuit breaker",
			},
			[]string{"name"},
		),
	}
}

// GetPolicyMetrics returns the singleton policy metrics instance.
func GetPolicyMetrics() *PolicyMetrics {
	policyMetricsOnce.Do(func() {
		policyMetricsInstance = NewPolicyMetrics()
	})
	return policyMetricsInstance
}

// MustRegister registers all policy metric collectors with the given
// Prometheus registry. AlreadyRegisteredError is silently ignored so
// that registration survives configuration reloads.
func (m *PolicyMetrics) MustRegister(registry *prometheus.Registry) {
	for _, c := range m.collectors() {
		if err := registry.Register(c); err != nil {
			if !isAlreadyRegistered(err) {
				panic(err)
			}
		}
	}
}

// Init pre-initializes the chain outcome series with zero values so
// that they appear in /metrics output immediately after startup.
func (m *PolicyMetrics) Init() {
	outcomes := []chain.Outcome{
		chain.OutcomeSuccess,
		chain.OutcomeDeclaredFailure,
		chain.OutcomeExecutionError,
		chain.OutcomeConditionError,
		chain.OutcomeInterrupted,
	}
	for _, phase := range []corepolicy.Phase{corepolicy.PhaseRequest, corepolicy.PhaseResponse} {
		for _, o := range outcomes {
			m.ChainsTotal.WithLabelValues(phase.String(), string(o))
		}
		m.ChainDurationSeconds.WithLabelValues(phase.String())
	}
}

// PolicyExecuted implements chain.Reporter.
func (m *PolicyMetrics) PolicyExecuted(policyID string, phase corepolicy.Phase, duration time.Duration, err error) {
	result := resultExecuted
	if err != nil {
		result = resultError
	}
	m.ExecutionsTotal.WithLabelValues(policyID, phase.String(), result).Inc()
	m.DurationSeconds.WithLabelValues(policyID, phase.String()).Observe(duration.Seconds())
}

// RecordSkip implements chain.Reporter and policy.SkipRecorder.
func (m *PolicyMetrics) RecordSkip(policyID, reason string) {
	m.SkipsTotal.WithLabelValues(policyID, reason).Inc()
}

// ChainCompleted implements chain.Reporter.
func (m *PolicyMetrics) ChainCompleted(phase corepolicy.Phase, outcome chain.Outcome, duration time.Duration) {
	m.ChainsTotal.WithLabelValues(phase.String(), string(outcome)).Inc()
	m.ChainDurationSeconds.WithLabelValues(phase.String()).Observe(duration.Seconds())
}

// RecordRateLimitHit records a request rejected by a rate limit.
func (m *PolicyMetrics) RecordRateLimitHit(store string) {
	m.RateLimitHitsTotal.WithLabelValues(store).Inc()
}

// RecordAuthFailure records an authentication failure.
func (m *PolicyMetrics) RecordAuthFailure(authType, reason string) {
	m.AuthFailuresTotal.WithLabelValues(authType, reason).Inc()
}

// RecordAuthSuccess records an authentication success.
func (m *PolicyMetrics) RecordAuthSuccess(authType string) {
	m.AuthSuccessesTotal.WithLabelValues(authType).Inc()
}

// SetCircuitBreakerState records the state of a named breaker.
func (m *PolicyMetrics) SetCircuitBreakerState(name string, state int) {
	m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}

// RecordCircuitBreakerTrip records a breaker opening.
func (m *PolicyMetrics) RecordCircuitBreakerTrip(name string) {
	m.CircuitBreakerTripsTotal.WithLabelValues(name).Inc()
}

// RecordCircuitBreakerRejection records a request rejected by an open breaker.
func (m *PolicyMetrics) RecordCircuitBreakerRejection(name string) {
	m.CircuitBreakerRejectionsTotal.WithLabelValues(name).Inc()
}

func (m *PolicyMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.ExecutionsTotal,
		m.DurationSeconds,
		m.SkipsTotal,
		m.ChainsTotal,
		m.ChainDurationSeconds,
		m.RateLimitHitsTotal,
		m.AuthFailuresTotal,
		m.AuthSuccessesTotal,
		m.CircuitBreakerState,
		m.CircuitBreakerTripsTotal,
		m.CircuitBreakerRejectionsTotal,
	}
}

// isAlreadyRegistered returns true if the error indicates the
// collector was already registered with the registry.
func isAlreadyRegistered(err error) bool {
	var are prometheus.AlreadyRegisteredError
	return errors.As(err, &are)
}

var (
	_ chain.Reporter          = (*PolicyMetrics)(nil)
	_ corepolicy.SkipRecorder = (*PolicyMetrics)(nil)
)
