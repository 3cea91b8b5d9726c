package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestNewTracer_Disabled(t *testing.T) {
	t.Parallel()

	tracer, err := NewTracer(TracerConfig{ServiceName: "flowgate"})
	require.NoError(t, err)

	ctx, span := tracer.StartSpan(context.Background(), "op")
	assert.NotNil(t, ctx)
	span.End()
	assert.NoError(t, tracer.Shutdown(context.Background()))
}

func TestNewTracer_EnabledWithoutExporter(t *testing.T) {
	tracer, err := NewTracer(TracerConfig{ServiceName: "flowgate", Enabled: true, SamplingRate: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tracer.Shutdown(context.Background()) })

	_, span := tracer.StartSpan(context.Background(), "op")
	assert.True(t, span.SpanContext().IsValid())
	span.End()
}

func TestCreateSampler(t *testing.T) {
	t.Parallel()

	assert.Equal(t, sdktrace.AlwaysSample().Description(), createSampler(1).Description())
	assert.Equal(t, sdktrace.NeverSample().Description(), createSampler(0).Description())
	assert.Contains(t, createSampler(0.5).Description(), "TraceIDRatioBased")
}

func TestTracingMiddleware(t *testing.T) {
	t.Parallel()

	tracer, err := NewTracer(TracerConfig{ServiceName: "mw"})
	require.NoError(t, err)

	var called bool
	handler := TracingMiddleware(tracer)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusBadGateway)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.True(t, called)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestInjectTraceContext(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.NotPanics(t, func() { InjectTraceContext(context.Background(), req) })
}
