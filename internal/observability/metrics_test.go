package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_RecordRequest(t *testing.T) {
	t.Parallel()

	m := NewMetrics("test")
	m.RecordRequest("petstore", http.MethodGet, http.StatusOK, 10*time.Millisecond, 128)
	m.RecordRequest("", http.MethodGet, http.StatusNotFound, time.Millisecond, 0)

	assert.InDelta(t, 1, testutil.ToFloat64(m.requestsTotal.WithLabelValues("petstore", "GET", "200")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.requestsTotal.WithLabelValues(unmatchedAPI, "GET", "404")), 0)
}

func TestMetrics_Counters(t *testing.T) {
	t.Parallel()

	m := NewMetrics("")
	m.RecordUpstreamError("petstore")
	m.SetDeployedAPIs(3)
	m.RecordConfigReload(true)
	m.RecordConfigReload(false)
	m.RecordConfigReload(false)

	assert.InDelta(t, 1, testutil.ToFloat64(m.upstreamErrors.WithLabelValues("petstore")), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(m.deployedAPIs), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.configReloads.WithLabelValues("failure")), 0)
}

func TestMetrics_MustRegisterCollectorIgnoresDuplicates(t *testing.T) {
	t.Parallel()

	m := NewMetrics("dup")
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "extra_total", Help: "x"})

	assert.NotPanics(t, func() {
		m.MustRegisterCollector(c)
		m.MustRegisterCollector(c)
	})
}

func TestMetricsMiddleware(t *testing.T) {
	t.Parallel()

	m := NewMetrics("mw")
	handler := MetricsMiddleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		MarkRequestAPI(r.Context(), "petstore")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("ok"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/pets", nil))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.InDelta(t, 1, testutil.ToFloat64(m.requestsTotal.WithLabelValues("petstore", "POST", "201")), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(m.activeRequests), 0)

	body := httptest.NewRecorder()
	m.Handler().ServeHTTP(body, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, body.Code)
	assert.Contains(t, body.Body.String(), "mw_requests_total")
}
