package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     LogConfig
		wantErr bool
	}{
		{name: "defaults", cfg: DefaultLogConfig()},
		{name: "console stderr", cfg: LogConfig{Level: "debug", Format: "console", Output: "stderr"}},
		{name: "empty level", cfg: LogConfig{}},
		{name: "invalid level", cfg: LogConfig{Level: "loud"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			logger, err := NewLogger(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, logger)
		})
	}
}

func TestLogger_WithContextFields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, err := NewLogger(LogConfig{Level: "info", Writer: &buf})
	require.NoError(t, err)

	ctx := ContextWithRequestID(context.Background(), "req-1")
	ctx = ContextWithTraceID(ctx, "trace-1")
	ctx = ContextWithSpanID(ctx, "span-1")
	ctx = ContextWithAPI(ctx, "petstore")

	logger.WithContext(ctx).Info("flow resolved", Int("flows", 2))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "flow resolved", entry["message"])
	assert.Equal(t, "req-1", entry["request_id"])
	assert.Equal(t, "trace-1", entry["trace_id"])
	assert.Equal(t, "span-1", entry["span_id"])
	assert.Equal(t, "petstore", entry["api"])
	assert.EqualValues(t, 2, entry["flows"])
}

func TestLogger_LevelFilter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, err := NewLogger(LogConfig{Level: "warn", Writer: &buf})
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("hidden")
	assert.Zero(t, buf.Len())

	logger.With(String("component", "chain")).Warn("shown")
	assert.Contains(t, buf.String(), `"component":"chain"`)
}

func TestLogger_WithContextWithoutFields(t *testing.T) {
	t.Parallel()

	logger := NopLogger()
	assert.Same(t, logger, logger.WithContext(context.Background()))
	assert.NoError(t, logger.Sync())
}

func TestContextAccessorsEmpty(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	assert.Empty(t, RequestIDFromContext(ctx))
	assert.Empty(t, TraceIDFromContext(ctx))
	assert.Empty(t, SpanIDFromContext(ctx))
	assert.Empty(t, APIFromContext(ctx))
}

func TestGlobalLogger(t *testing.T) {
	nop := NopLogger()
	SetGlobalLogger(nop)
	t.Cleanup(func() { SetGlobalLogger(nil) })

	assert.Same(t, nop, L())

	SetGlobalLogger(nil)
	assert.NotNil(t, GetGlobalLogger())
}
