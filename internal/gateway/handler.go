package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/vyrodovalexey/flowgate/internal/chain"
	"github.com/vyrodovalexey/flowgate/internal/el"
	"github.com/vyrodovalexey/flowgate/internal/execution"
	upstreammetrics "github.com/vyrodovalexey/flowgate/internal/metrics/upstream"
	"github.com/vyrodovalexey/flowgate/internal/observability"
	"github.com/vyrodovalexey/flowgate/internal/policy"
	"github.com/vyrodovalexey/flowgate/internal/stream"
	"github.com/vyrodovalexey/flowgate/internal/util"
)

// Failure messages of results produced by the gateway itself.
const (
	msgNoAPI         = "No API serves the request path"
	msgFlowNotFound  = "No flow matches the request"
	msgFlowCondition = "Flow condition evaluation failed"
	msgTimeout       = "The request timed out"
	msgUpstreamError = "The upstream request failed"
	msgContentError  = "The message content could not be processed"
)

// statusClientClose is recorded for requests the client abandoned.
const statusClientClose = 499

// Handler is the gateway request stage. It serves the APIs of the
// current deployment table; the table is swapped atomically on
// redeploy and in-flight requests keep the table they started with.
type Handler struct {
	table     atomic.Pointer[Table]
	transport http.RoundTripper
	evaluator el.Evaluator
	reporter  chain.Reporter
	metrics   *observability.Metrics
	upstream  *upstreammetrics.UpstreamMetrics
	logger    observability.Logger
	timeout   time.Duration
}

// HandlerOption is a functional option for the handler.
type HandlerOption func(*Handler)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithTransport sets the transport used for upstream calls.
func WithTransport(transport http.RoundTripper) HandlerOption {
	return func(h *Handler) {
		h.transport = transport
	}
}

// WithEvaluator sets the expression evaluator of execution contexts.
func WithEvaluator(evaluator el.Evaluator) HandlerOption {
	return func(h *Handler) {
		h.evaluator = evaluator
	}
}

// WithReporter sets the reporter of policy chains.
func WithReporter(r chain.Reporter) HandlerOption {
	return func(h *Handler) {
		h.reporter = r
	}
}

// WithMetrics sets the gateway metrics.
func WithMetrics(m *observability.Metrics) HandlerOption {
	return func(h *Handler) {
		h.metrics = m
	}
}

// WithUpstreamMetrics sets the upstream metrics.
func WithUpstreamMetrics(m *upstreammetrics.UpstreamMetrics) HandlerOption {
	return func(h *Handler) {
		h.upstream = m
	}
}

// WithRequestTimeout sets the deadline of requests whose API sets none.
func WithRequestTimeout(d time.Duration) HandlerOption {
	return func(h *Handler) {
		h.timeout = d
	}
}

// NewHandler creates a handler serving table.
func NewHandler(table *Table, opts ...HandlerOption) (*Handler, error) {
	h := &Handler{
		transport: http.DefaultTransport,
		reporter:  chain.NopReporter(),
		logger:    observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(h)
	}

	if h.evaluator == nil {
		ev, err := el.NewCELEvaluator(el.WithLogger(h.logger))
		if err != nil {
			return nil, fmt.Errorf("failed to create expression evaluator: %w", err)
		}
		h.evaluator = ev
	}
	if h.upstream == nil {
		h.upstream = upstreammetrics.GetUpstreamMetrics()
	}
	if table == nil {
		table = NewTable()
	}
	h.table.Store(table)

	return h, nil
}

// Swap installs table and returns the previous one.
func (h *Handler) Swap(table *Table) *Table {
	if table == nil {
		table = NewTable()
	}
	old := h.table.Swap(table)
	if h.metrics != nil {
		h.metrics.SetDeployedAPIs(table.Len())
	}
	return old
}

// Table returns the current deployment table.
func (h *Handler) Table() *Table {
	return h.table.Load()
}

// exchange is the state of one request.
type exchange struct {
	ctx context.Context
	w   http.ResponseWriter
	r   *http.Request
	dep *Deployment
	ex  *execution.Context
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	dep, rel, ok := h.table.Load().Lookup(r.URL.Path)
	if !ok {
		h.logger.Debug("no api serves request",
			observability.String("path", r.URL.Path),
			observability.String("method", r.Method),
		)
		writeResult(w, nil, policy.Failure(http.StatusNotFound, policy.KeyNoAPI, msgNoAPI))
		return
	}

	ctx := observability.ContextWithAPI(r.Context(), dep.ID)
	observability.MarkRequestAPI(ctx, dep.ID)
	if id := r.Header.Get(HeaderRequestID); id != "" {
		ctx = observability.ContextWithRequestID(ctx, id)
	}

	timeout := h.timeout
	if dep.Timeout > 0 {
		timeout = dep.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ex := execution.New(ctx, execution.NewRequest(r, rel),
		execution.WithEvaluator(h.evaluator),
		execution.WithLogger(h.logger),
	)
	defer ex.End()

	h.serve(&exchange{ctx: ctx, w: w, r: r, dep: dep, ex: ex})
}

func (h *Handler) serve(x *exchange) {
	reqChain, respChain := h.chains(x)

	result, ok := h.await(x, reqChain)
	if !ok {
		return
	}
	if result.IsFailure() {
		h.fail(x, result)
		return
	}

	resp, ok := h.forward(x, reqChain)
	if !ok {
		return
	}
	defer func() { _ = resp.Body.Close() }()

	view := x.ex.Response()
	view.Status = resp.StatusCode
	view.Headers = resp.Header.Clone()
	removeHopHeaders(view.Headers)

	result, ok = h.await(x, respChain)
	if !ok {
		return
	}
	if result.IsFailure() {
		h.fail(x, result)
		return
	}

	h.respond(x, respChain, resp.Body)
}

// chains resolves the flows of the request and builds its request and
// response chains.
func (h *Handler) chains(x *exchange) (chain.PolicyChain, chain.PolicyChain) {
	flows, err := x.dep.resolver.Match(x.ex)
	if err != nil {
		return chain.NewDirect(policy.PhaseRequest, policy.Result{
			Status:     policy.StatusFailure,
			StatusCode: http.StatusInternalServerError,
			Key:        policy.KeyConditionError,
			Message:    msgFlowCondition,
			Err:        err,
		}), chain.NewNoOp(policy.PhaseResponse)
	}

	if len(flows) == 0 {
		if x.dep.MatchRequired {
			req := x.ex.Request()
			nf := util.NewNoMatchingFlowError(x.dep.ID, req.Method, req.Path)
			x.ex.Logger().Debug("no flow matches request", observability.Error(nf))

			result := policy.Failure(http.StatusNotFound, policy.KeyFlowNotFound, msgFlowNotFound)
			result.Err = nf
			return chain.NewDirect(policy.PhaseRequest, result), chain.NewNoOp(policy.PhaseResponse)
		}
		return chain.NewNoOp(policy.PhaseRequest), chain.NewNoOp(policy.PhaseResponse)
	}

	ids := make([]string, len(flows))
	for i, f := range flows {
		ids[i] = f.ID
	}
	x.ex.Logger().Debug("flows resolved", observability.Strings("flows", ids))

	pre, post := x.dep.policies(flows)
	opts := []chain.Option{
		chain.WithLogger(x.ex.Logger()),
		chain.WithReporter(h.reporter),
	}
	return chain.NewRequestChain(x.ex, pre, opts...), chain.NewResponseChain(x.ex, post, opts...)
}

// await runs c under the request deadline. It reports false when the
// request ended without a complete chain result; the response is then
// written.
func (h *Handler) await(x *exchange, c chain.PolicyChain) (policy.Result, bool) {
	result, err := chain.Await(x.ctx, c)
	if err == nil && result.Interrupted {
		err = context.Canceled
	}
	if err == nil {
		return result, true
	}

	x.ex.Interrupt()
	h.abort(x, err)
	return policy.Result{}, false
}

// abort ends a request whose context is done.
func (h *Handler) abort(x *exchange, err error) {
	if errors.Is(err, context.DeadlineExceeded) {
		x.ex.Logger().Warn("request timed out", observability.Error(err))
		x.ex.Response().Status = http.StatusGatewayTimeout
		writeResult(x.w, nil, policy.Failure(http.StatusGatewayTimeout, policy.KeyGatewayTimeout, msgTimeout))
		return
	}

	x.ex.Logger().Debug("request canceled", observability.Error(err))
	x.ex.Response().Status = statusClientClose
}

func (h *Handler) fail(x *exchange, result policy.Result) {
	if result.Err != nil && result.StatusCode >= http.StatusInternalServerError {
		x.ex.Logger().Warn("request failed",
			observability.String("key", result.Key),
			observability.Int("status", result.StatusCode),
			observability.Error(result.Err),
		)
	}
	x.ex.Response().Status = result.StatusCode
	writeResult(x.w, x.ex.Response().Headers, result)
}

func (h *Handler) contentFailure(x *exchange, direction string, err error) {
	h.upstream.RecordContentError(x.dep.ID, direction)
	h.fail(x, policy.Result{
		Status:     policy.StatusFailure,
		StatusCode: http.StatusInternalServerError,
		Key:        policy.KeyContentError,
		Message:    msgContentError,
		Err:        err,
	})
}

// forward streams the request through the request content pipeline to
// the upstream.
func (h *Handler) forward(x *exchange, reqChain chain.PolicyChain) (*http.Response, bool) {
	pipeline, err := reqChain.Stream()
	if err != nil {
		h.contentFailure(x, upstreammetrics.DirectionRequest, err)
		return nil, false
	}

	var body *countingReader
	var reqBody io.ReadCloser = http.NoBody
	if x.r.Body != nil && x.r.Body != http.NoBody {
		body = &countingReader{rc: stream.Reader(x.r.Body, pipeline)}
		reqBody = body
	}

	out, err := upstreamRequest(x.ctx, x.r, x.dep, x.ex.Request(), reqBody, pipeline.Len() > 0)
	if err != nil {
		h.fail(x, policy.Result{
			Status:     policy.StatusFailure,
			StatusCode: http.StatusBadGateway,
			Key:        policy.KeyUpstreamError,
			Message:    msgUpstreamError,
			Err:        err,
		})
		return nil, false
	}

	start := time.Now()
	resp, err := h.transport.RoundTrip(out)
	if body != nil {
		h.upstream.RecordContent(x.dep.ID, upstreammetrics.DirectionRequest, pipeline.Len(), body.n)
	}
	if err != nil {
		h.upstream.RecordError(x.dep.ID, upstreamErrorType(err))
		if h.metrics != nil {
			h.metrics.RecordUpstreamError(x.dep.ID)
		}

		switch {
		case body != nil && body.err != nil:
			h.contentFailure(x, upstreammetrics.DirectionRequest, body.err)
		case x.ctx.Err() != nil:
			x.ex.Interrupt()
			h.abort(x, x.ctx.Err())
		default:
			h.fail(x, policy.Result{
				Status:     policy.StatusFailure,
				StatusCode: http.StatusBadGateway,
				Key:        policy.KeyUpstreamError,
				Message:    msgUpstreamError,
				Err:        err,
			})
		}
		return nil, false
	}
	h.upstream.RecordRequest(x.dep.ID, out.Method, resp.StatusCode, time.Since(start))

	return resp, true
}

// respond streams the upstream body through the response content
// pipeline to the client.
func (h *Handler) respond(x *exchange, respChain chain.PolicyChain, body io.Reader) {
	pipeline, err := respChain.Stream()
	if err != nil {
		h.contentFailure(x, upstreammetrics.DirectionResponse, err)
		return
	}

	view := x.ex.Response()
	hdr := x.w.Header()
	for name, values := range view.Headers {
		hdr[name] = values
	}
	if pipeline.Len() > 0 {
		hdr.Del("Content-Length")
	}
	x.w.WriteHeader(view.Status)

	n, err := stream.Copy(x.w, body, pipeline)
	h.upstream.RecordContent(x.dep.ID, upstreammetrics.DirectionResponse, pipeline.Len(), n)
	if err != nil {
		h.upstream.RecordContentError(x.dep.ID, upstreammetrics.DirectionResponse)
		x.ex.Logger().Warn("failed to stream response body",
			observability.Int64("written", n),
			observability.Error(err),
		)
	}
}
