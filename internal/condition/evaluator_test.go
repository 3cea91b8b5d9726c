package condition

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/flowgate/internal/el"
	"github.com/vyrodovalexey/flowgate/internal/execution"
	"github.com/vyrodovalexey/flowgate/internal/flow"
	"github.com/vyrodovalexey/flowgate/internal/router"
)

func newContext(t *testing.T, method, path string) *execution.Context {
	t.Helper()
	ev, err := el.NewCELEvaluator()
	require.NoError(t, err)
	req := &execution.Request{Method: method, Path: path, Headers: http.Header{}}
	return execution.New(context.Background(), req, execution.WithEvaluator(ev))
}

func TestForFlow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		flow   flow.Flow
		method string
		path   string
		want   bool
		size   int
	}{
		{
			name:   "path only",
			flow:   flow.Flow{ID: "f", PathOperator: flow.PathOperator{Pattern: "/pets", Operator: flow.OperatorStartsWith}},
			method: http.MethodGet,
			path:   "/pets/1",
			want:   true,
			size:   1,
		},
		{
			name:   "path mismatch",
			flow:   flow.Flow{ID: "f", PathOperator: flow.PathOperator{Pattern: "/pets", Operator: flow.OperatorEquals}},
			method: http.MethodGet,
			path:   "/pets/1",
			want:   false,
			size:   1,
		},
		{
			name: "method mismatch",
			flow: flow.Flow{
				ID:           "f",
				PathOperator: flow.PathOperator{Pattern: "/pets", Operator: flow.OperatorStartsWith},
				Methods:      []string{http.MethodPost},
			},
			method: http.MethodGet,
			path:   "/pets",
			want:   false,
			size:   2,
		},
		{
			name: "expression holds",
			flow: flow.Flow{
				ID:           "f",
				PathOperator: flow.PathOperator{Pattern: "/pets", Operator: flow.OperatorStartsWith},
				Methods:      []string{http.MethodGet},
				Condition:    "request.path.endsWith('/7')",
			},
			method: http.MethodGet,
			path:   "/pets/7",
			want:   true,
			size:   3,
		},
		{
			name: "expression fails",
			flow: flow.Flow{
				ID:           "f",
				PathOperator: flow.PathOperator{Pattern: "/pets", Operator: flow.OperatorStartsWith},
				Condition:    "request.method == 'DELETE'",
			},
			method: http.MethodGet,
			path:   "/pets/7",
			want:   false,
			size:   2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c, err := ForFlow(&tt.flow, router.NewPatternCache(0))
			require.NoError(t, err)
			assert.Equal(t, tt.size, c.Len())

			got, err := c.Evaluate(newContext(t, tt.method, tt.path))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestForFlow_MalformedPattern(t *testing.T) {
	t.Parallel()

	_, err := ForFlow(&flow.Flow{ID: "bad", PathOperator: flow.PathOperator{Pattern: "pets"}}, router.NewPatternCache(0))
	assert.ErrorContains(t, err, "flow bad")
}

func TestComposite_ShortCircuitsInOrder(t *testing.T) {
	t.Parallel()

	var calls []string
	record := func(name string, result bool) Evaluator {
		return EvaluatorFunc(func(*execution.Context) (bool, error) {
			calls = append(calls, name)
			return result, nil
		})
	}

	c := NewComposite(record("path", true), nil, record("method", false), record("expression", true))
	ok, err := c.Evaluate(newContext(t, http.MethodGet, "/"))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, []string{"path", "method"}, calls)
}

func TestComposite_EmptyIsTrue(t *testing.T) {
	t.Parallel()

	ok, err := NewComposite().Evaluate(newContext(t, http.MethodGet, "/"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestComposite_ErrorIsNotFalse(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	c := NewComposite(
		EvaluatorFunc(func(*execution.Context) (bool, error) { return true, nil }),
		EvaluatorFunc(func(*execution.Context) (bool, error) { return false, boom }),
	)

	_, err := c.Evaluate(newContext(t, http.MethodGet, "/"))
	assert.ErrorIs(t, err, boom)
}

func TestExpressionEvaluator_MalformedExpression(t *testing.T) {
	t.Parallel()

	e := NewExpressionEvaluator("request.method ==")
	assert.Equal(t, "request.method ==", e.Expression())

	_, err := e.Evaluate(newContext(t, http.MethodGet, "/"))
	assert.ErrorIs(t, err, el.ErrEvaluation)
}

func TestExpressionEvaluator_NoEvaluator(t *testing.T) {
	t.Parallel()

	ctx := execution.New(context.Background(), &execution.Request{Method: http.MethodGet, Path: "/"})
	_, err := NewExpressionEvaluator("true").Evaluate(ctx)
	assert.ErrorIs(t, err, el.ErrEvaluation)
}
