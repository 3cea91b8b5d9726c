package execution

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/vyrodovalexey/flowgate/internal/el"
	"github.com/vyrodovalexey/flowgate/internal/observability"
)

var errNoEvaluator = errors.New("no expression evaluator configured")

// Context is the per-request execution context.
type Context struct {
	ctx        context.Context
	id         string
	request    *Request
	response   *Response
	attributes map[string]any
	evaluator  el.Evaluator
	logger     observability.Logger
	phase      Phase

	interrupted atomic.Bool

	endMu    sync.Mutex
	endHooks []func()
	ended    bool
}

// Option is a functional option for the execution context.
type Option func(*Context)

// WithLogger sets the logger. Request identifiers carried by the
// context.Context are added to it.
func WithLogger(logger observability.Logger) Option {
	return func(c *Context) {
		c.logger = logger
	}
}

// WithEvaluator sets the expression evaluator.
func WithEvaluator(evaluator el.Evaluator) Option {
	return func(c *Context) {
		c.evaluator = evaluator
	}
}

// WithResponse sets the response view.
func WithResponse(resp *Response) Option {
	return func(c *Context) {
		c.response = resp
	}
}

// WithID overrides the generated execution id.
func WithID(id string) Option {
	return func(c *Context) {
		c.id = id
	}
}

// New creates an execution context for req. The request id carried by
// ctx is reused as execution id when present.
func New(ctx context.Context, req *Request, opts ...Option) *Context {
	if ctx == nil {
		ctx = context.Background()
	}

	c := &Context{
		ctx:        ctx,
		id:         observability.RequestIDFromContext(ctx),
		request:    req,
		response:   NewResponse(),
		attributes: make(map[string]any),
		logger:     observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.id == "" {
		c.id = uuid.New().String()
	}
	if c.request == nil {
		c.request = &Request{Method: "GET", Path: "/", PathParams: map[string]string{}}
	}
	c.logger = c.logger.WithContext(ctx).With(observability.String("execution_id", c.id))

	return c
}

// Context returns the underlying context.Context.
func (c *Context) Context() context.Context {
	return c.ctx
}

// ID returns the execution id.
func (c *Context) ID() string {
	return c.id
}

// Request returns the request view.
func (c *Context) Request() *Request {
	return c.request
}

// Response returns the response view.
func (c *Context) Response() *Response {
	return c.response
}

// Logger returns the request-scoped logger.
func (c *Context) Logger() observability.Logger {
	return c.logger
}

// Evaluator returns the expression evaluator, which may be nil.
func (c *Context) Evaluator() el.Evaluator {
	return c.evaluator
}

// Phase returns the phase currently being executed.
func (c *Context) Phase() Phase {
	return c.phase
}

// SetPhase records the phase currently being executed.
func (c *Context) SetPhase(p Phase) {
	c.phase = p
}

// SetAttribute stores an attribute.
func (c *Context) SetAttribute(name string, value any) {
	c.attributes[name] = value
}

// Attribute returns an attribute.
func (c *Context) Attribute(name string) (any, bool) {
	v, ok := c.attributes[name]
	return v, ok
}

// RemoveAttribute deletes an attribute.
func (c *Context) RemoveAttribute(name string) {
	delete(c.attributes, name)
}

// Attributes returns a copy of all attributes.
func (c *Context) Attributes() map[string]any {
	out := make(map[string]any, len(c.attributes))
	for k, v := range c.attributes {
		out[k] = v
	}
	return out
}

// Interrupt marks the context as interrupted. Chains stop before the
// next policy. Safe for concurrent use.
func (c *Context) Interrupt() {
	c.interrupted.Store(true)
}

// Interrupted reports whether the context was interrupted, either
// explicitly or because the underlying context.Context is done.
func (c *Context) Interrupted() bool {
	if c.interrupted.Load() {
		return true
	}
	if c.ctx.Err() != nil {
		c.interrupted.Store(true)
		return true
	}
	return false
}

// Activation builds the expression variables for the current state.
func (c *Context) Activation() el.Activation {
	return el.Activation{
		el.VarRequest:    c.request.toMap(),
		el.VarResponse:   c.response.toMap(),
		el.VarAttributes: c.Attributes(),
		el.VarPhase:      c.phase.String(),
	}
}

// EvaluateCondition evaluates a boolean expression against the context.
func (c *Context) EvaluateCondition(expr string) (bool, error) {
	if c.evaluator == nil {
		return false, &el.EvaluationError{Expression: expr, Cause: errNoEvaluator}
	}
	return c.evaluator.EvaluateBool(expr, c.Activation())
}

// Evaluate evaluates an expression expecting a value of kind.
func (c *Context) Evaluate(expr string, kind el.Kind) (any, error) {
	if c.evaluator == nil {
		return nil, &el.EvaluationError{Expression: expr, Cause: errNoEvaluator}
	}
	return c.evaluator.Evaluate(expr, c.Activation(), kind)
}

// OnEnd registers fn to run when the exchange ends. Hooks run in reverse
// registration order. A hook registered after End runs immediately.
func (c *Context) OnEnd(fn func()) {
	c.endMu.Lock()
	if c.ended {
		c.endMu.Unlock()
		fn()
		return
	}
	c.endHooks = append(c.endHooks, fn)
	c.endMu.Unlock()
}

// End runs the hooks registered with OnEnd. Only the first call has an
// effect.
func (c *Context) End() {
	c.endMu.Lock()
	if c.ended {
		c.endMu.Unlock()
		return
	}
	c.ended = true
	hooks := c.endHooks
	c.endHooks = nil
	c.endMu.Unlock()

	for i := len(hooks) - 1; i >= 0; i-- {
		hooks[i]()
	}
}
