package execution

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/flowgate/internal/el"
	"github.com/vyrodovalexey/flowgate/internal/observability"
)

func newEvaluator(t *testing.T) el.Evaluator {
	t.Helper()
	e, err := el.NewCELEvaluator()
	require.NoError(t, err)
	return e
}

func TestNewRequest(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodPost, "http://gw.local/api/pets?limit=10", nil)
	r.Header.Set("X-Tier", "gold")
	r.RemoteAddr = "10.0.0.1:1234"

	req := NewRequest(r, "/pets")

	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/pets", req.Path)
	assert.Equal(t, "gw.local", req.Host)
	assert.Equal(t, "10", req.Query.Get("limit"))
	assert.Equal(t, "gold", req.Headers.Get("X-Tier"))
	assert.NotNil(t, req.PathParams)

	req.Headers.Set("X-Tier", "silver")
	assert.Equal(t, "gold", r.Header.Get("X-Tier"), "headers are copied")

	assert.Equal(t, "/", NewRequest(r, "").Path)
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	c := New(context.Background(), nil)

	assert.NotEmpty(t, c.ID())
	assert.NotNil(t, c.Request())
	assert.Equal(t, http.StatusOK, c.Response().Status)
	assert.NotNil(t, c.Logger())
	assert.Nil(t, c.Evaluator())
	assert.Equal(t, PhaseRequest, c.Phase())
	assert.False(t, c.Interrupted())
}

func TestNew_IDFromRequestContext(t *testing.T) {
	t.Parallel()

	ctx := observability.ContextWithRequestID(context.Background(), "req-9")
	assert.Equal(t, "req-9", New(ctx, nil).ID())
	assert.Equal(t, "forced", New(ctx, nil, WithID("forced")).ID())
}

func TestAttributes(t *testing.T) {
	t.Parallel()

	c := New(context.Background(), nil)
	c.SetAttribute("user", "alice")

	v, ok := c.Attribute("user")
	require.True(t, ok)
	assert.Equal(t, "alice", v)

	snapshot := c.Attributes()
	snapshot["user"] = "bob"
	v, _ = c.Attribute("user")
	assert.Equal(t, "alice", v)

	c.RemoveAttribute("user")
	_, ok = c.Attribute("user")
	assert.False(t, ok)
}

func TestInterrupted(t *testing.T) {
	t.Parallel()

	c := New(context.Background(), nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.Interrupt()
	}()
	wg.Wait()

	assert.True(t, c.Interrupted())
}

func TestInterrupted_ContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	c := New(ctx, nil)
	assert.False(t, c.Interrupted())

	cancel()
	assert.True(t, c.Interrupted())
}

func TestEvaluateCondition(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodGet, "/pets/42", nil)
	r.Header.Set("X-Tier", "gold")
	req := NewRequest(r, "/pets/42")
	req.PathParams["id"] = "42"

	c := New(context.Background(), req, WithEvaluator(newEvaluator(t)))
	c.SetAttribute("user", "alice")
	c.Response().Status = http.StatusBadGateway
	c.SetPhase(PhaseResponse)

	tests := []struct {
		expr string
		want bool
	}{
		{expr: `request.method == "GET"`, want: true},
		{expr: `request.headers["x-tier"] == "gold"`, want: true},
		{expr: `request.pathParams.id == "42"`, want: true},
		{expr: `request.query.size() == 0`, want: true},
		{expr: `response.status == 502`, want: true},
		{expr: `attributes.user == "alice"`, want: true},
		{expr: `phase == "response"`, want: true},
		{expr: `phase == "request"`, want: false},
	}

	for _, tt := range tests {
		got, err := c.EvaluateCondition(tt.expr)
		require.NoError(t, err, tt.expr)
		assert.Equal(t, tt.want, got, tt.expr)
	}

	v, err := c.Evaluate(`request.path + "/x"`, el.KindString)
	require.NoError(t, err)
	assert.Equal(t, "/pets/42/x", v)
}

func TestEvaluateCondition_NoEvaluator(t *testing.T) {
	t.Parallel()

	c := New(context.Background(), nil)

	_, err := c.EvaluateCondition("true")
	assert.ErrorIs(t, err, el.ErrEvaluation)

	_, err = c.Evaluate("1", el.KindInt)
	assert.ErrorIs(t, err, el.ErrEvaluation)
}

func TestPhase(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "request", PhaseRequest.String())
	assert.Equal(t, "request_content", PhaseRequestContent.String())
	assert.Equal(t, "response", PhaseResponse.String())
	assert.Equal(t, "response_content", PhaseResponseContent.String())
	assert.Equal(t, "unknown", Phase(42).String())

	assert.True(t, PhaseRequestContent.IsContent())
	assert.True(t, PhaseResponseContent.IsContent())
	assert.False(t, PhaseRequest.IsContent())
}

func TestEnd(t *testing.T) {
	t.Parallel()

	c := New(context.Background(), nil)

	var order []int
	c.OnEnd(func() { order = append(order, 1) })
	c.OnEnd(func() { order = append(order, 2) })

	c.End()
	c.End()
	assert.Equal(t, []int{2, 1}, order)

	c.OnEnd(func() { order = append(order, 3) })
	assert.Equal(t, []int{2, 1, 3}, order)
}
