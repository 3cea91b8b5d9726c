package policy

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/flowgate/internal/chain"
	corepolicy "github.com/vyrodovalexey/flowgate/internal/policy"
)

// testMetrics is created once to avoid duplicate promauto
// registration panics.
var (
	testMetrics     *PolicyMetrics
	testMetricsOnce sync.Once
	testReg         *prometheus.Registry
)

func getTestMetrics() (*PolicyMetrics, *prometheus.Registry) {
	testMetricsOnce.Do(func() {
		testMetrics = GetPolicyMetrics()
		testReg = prometheus.NewRegistry()
		testMetrics.MustRegister(testReg)
	})
	return testMetrics, testReg
}

func gatherAndFind(t *testing.T, reg *prometheus.Registry, name string) {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)

	for _, mf := range mfs {
		if mf.GetName() == name {
			assert.NotEmpty(t, mf.GetMetric(), "%s should have at least one metric", name)
			return
		}
	}
	t.Errorf("%s should be present in gathered metrics", name)
}

func TestGetPolicyMetrics_Singleton(t *testing.T) {
	m1 := GetPolicyMetrics()
	m2 := GetPolicyMetrics()
	assert.Same(t, m1, m2)
}

func TestMustRegister_Idempotent(t *testing.T) {
	m, _ := getTestMetrics()
	reg := prometheus.NewRegistry()

	assert.NotPanics(t, func() {
		m.MustRegister(reg)
		m.MustRegister(reg)
	})
}

func TestInit(t *testing.T) {
	m, reg := getTestMetrics()
	m.Init()

	gatherAndFind(t, reg, "flowgate_policy_chains_total")
	assert.GreaterOrEqual(t, testutil.CollectAndCount(m.ChainsTotal), 10)
}

func TestPolicyExecuted(t *testing.T) {
	m, reg := getTestMetrics()

	before := testutil.ToFloat64(m.ExecutionsTotal.WithLabelValues("test-exec", "request", "error"))
	m.PolicyExecuted("test-exec", corepolicy.PhaseRequest, time.Millisecond, nil)
	m.PolicyExecuted("test-exec", corepolicy.PhaseRequest, time.Millisecond, errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExecutionsTotal.WithLabelValues("test-exec", "request", "executed")))
	assert.Equal(t, before+1, testutil.ToFloat64(m.ExecutionsTotal.WithLabelValues("test-exec", "request", "error")))
	gatherAndFind(t, reg, "flowgate_policy_duration_seconds")
}

func TestRecordSkip(t *testing.T) {
	m, _ := getTestMetrics()

	m.RecordSkip("test-skip", corepolicy.SkipReasonDisabled)
	m.RecordSkip("test-skip", corepolicy.SkipReasonConditionNotMet)
	m.RecordSkip("test-skip", corepolicy.SkipReasonConditionNotMet)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SkipsTotal.WithLabelValues("test-skip", "disabled")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SkipsTotal.WithLabelValues("test-skip", "condition_not_met")))
}

func TestChainCompleted(t *testing.T) {
	m, reg := getTestMetrics()

	c := m.ChainsTotal.WithLabelValues("response", string(chain.OutcomeInterrupted))
	before := testutil.ToFloat64(c)
	m.ChainCompleted(corepolicy.PhaseResponse, chain.OutcomeInterrupted, 2*time.Millisecond)

	assert.Equal(t, before+1, testutil.ToFloat64(c))
	gatherAndFind(t, reg, "flowgate_policy_chain_duration_seconds")
}

func TestPolicyRecorders(t *testing.T) {
	m, reg := getTestMetrics()

	m.RecordRateLimitHit("test-local")
	m.RecordAuthFailure("test-basic", "invalid_credentials")
	m.RecordAuthSuccess("test-basic")
	m.SetCircuitBreakerState("test-breaker", BreakerOpen)
	m.RecordCircuitBreakerTrip("test-breaker")
	m.RecordCircuitBreakerRejection("test-breaker")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateLimitHitsTotal.WithLabelValues("test-local")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuthFailuresTotal.WithLabelValues("test-basic", "invalid_credentials")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuthSuccessesTotal.WithLabelValues("test-basic")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CircuitBreakerState.WithLabelValues("test-breaker")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CircuitBreakerTripsTotal.WithLabelValues("test-breaker")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CircuitBreakerRejectionsTotal.WithLabelValues("test-breaker")))

	gatherAndFind(t, reg, "flowgate_policy_ratelimit_hits_total")
	gatherAndFind(t, reg, "flowgate_policy_circuit_breaker_state")
}
