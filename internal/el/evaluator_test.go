package el

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEvaluator(t *testing.T) *CELEvaluator {
	t.Helper()
	e, err := NewCELEvaluator()
	require.NoError(t, err)
	return e
}

func sampleActivation() Activation {
	return Activation{
		VarRequest: map[string]any{
			"method":     "GET",
			"path":       "/pets/42",
			"headers":    map[string]any{"x-tier": "gold"},
			"pathParams": map[string]any{"id": "42"},
			"remoteAddr": "10.1.2.3:5555",
		},
		VarResponse:   map[string]any{"status": int64(503)},
		VarAttributes: map[string]any{"user": "alice", "quota": int64(10)},
		VarPhase:      "request",
	}
}

func TestEvaluateBool(t *testing.T) {
	t.Parallel()

	e := newTestEvaluator(t)

	tests := []struct {
		name string
		expr string
		want bool
	}{
		{name: "method", expr: `request.method == "GET"`, want: true},
		{name: "header", expr: `request.headers["x-tier"] == "gold"`, want: true},
		{name: "path param", expr: `request.pathParams.id == "43"`, want: false},
		{name: "response status", expr: `response.status >= 500`, want: true},
		{name: "attribute", expr: `attributes.user == "alice" && attributes.quota > 5`, want: true},
		{name: "phase", expr: `phase == "response"`, want: false},
		{name: "ip in range with port", expr: `ip_in_range(request.remoteAddr, "10.0.0.0/8")`, want: true},
		{name: "ip out of range", expr: `ip_in_range("192.168.1.1", "10.0.0.0/8")`, want: false},
		{name: "invalid ip", expr: `ip_in_range("nope", "10.0.0.0/8")`, want: false},
		{name: "invalid cidr", expr: `ip_in_range("10.0.0.1", "nope")`, want: false},
		{name: "has macro", expr: `has(request.headers.authorization)`, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := e.EvaluateBool(tt.expr, sampleActivation())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluate_Errors(t *testing.T) {
	t.Parallel()

	e := newTestEvaluator(t)

	tests := []struct {
		name     string
		expr     string
		expected Kind
	}{
		{name: "syntax error", expr: `request.method ==`, expected: KindBool},
		{name: "unknown variable", expr: `session.user == "x"`, expected: KindBool},
		{name: "missing key", expr: `request.headers["absent"] == "x"`, expected: KindBool},
		{name: "non bool result", expr: `request.method`, expected: KindBool},
		{name: "non string result", expr: `1 + 1`, expected: KindString},
		{name: "non int result", expr: `"a"`, expected: KindInt},
		{name: "non double result", expr: `"a"`, expected: KindDouble},
		{name: "empty expression", expr: `   `, expected: KindAny},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := e.Evaluate(tt.expr, sampleActivation(), tt.expected)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrEvaluation)

			var evalErr *EvaluationError
			require.True(t, errors.As(err, &evalErr))
			assert.Equal(t, tt.expr, evalErr.Expression)
		})
	}
}

func TestEvaluate_Kinds(t *testing.T) {
	t.Parallel()

	e := newTestEvaluator(t)
	vars := sampleActivation()

	s, err := e.Evaluate(`request.method + ":" + request.path`, vars, KindString)
	require.NoError(t, err)
	assert.Equal(t, "GET:/pets/42", s)

	i, err := e.Evaluate(`attributes.quota * 2`, vars, KindInt)
	require.NoError(t, err)
	assert.Equal(t, int64(20), i)

	d, err := e.Evaluate(`attributes.quota`, vars, KindDouble)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, d, 0)

	m, err := e.Evaluate(`{"a": 1}`, vars, KindAny)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": int64(1)}, m)

	l, err := e.Evaluate(`[1, "x"]`, vars, KindAny)
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), "x"}, l)
}

func TestEvaluate_MissingVariablesDefaultToEmpty(t *testing.T) {
	t.Parallel()

	e := newTestEvaluator(t)

	got, err := e.EvaluateBool(`phase == "" && size(attributes) == 0`, nil)
	require.NoError(t, err)
	assert.True(t, got)
}

func TestProgramCache(t *testing.T) {
	t.Parallel()

	e := newTestEvaluator(t)
	require.NoError(t, e.Check(`request.method == "GET"`))
	require.Error(t, e.Check(`request.method ==`))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.EvaluateBool(`request.method == "GET"`, sampleActivation())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	e.mu.RLock()
	defer e.mu.RUnlock()
	assert.Len(t, e.programs, 1)
}

func TestKindString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "bool", KindBool.String())
	assert.Equal(t, "string", KindString.String())
	assert.Equal(t, "int", KindInt.String())
	assert.Equal(t, "double", KindDouble.String())
	assert.Equal(t, "any", KindAny.String())
}
