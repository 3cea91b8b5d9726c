package chain

import (
	"errors"
	"fmt"
	"iter"
	"runtime/debug"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/flowgate/internal/execution"
	"github.com/vyrodovalexey/flowgate/internal/observability"
	"github.com/vyrodovalexey/flowgate/internal/policy"
	"github.com/vyrodovalexey/flowgate/internal/stream"
)

// ErrChainConsumed is reported when a chain is executed more than once.
var ErrChainConsumed = errors.New("policy chain already executed")

const tracerName = "github.com/vyrodovalexey/flowgate/internal/chain"

// Span attribute keys.
const (
	attrPolicyID   = "policy.id"
	attrPolicyName = "policy.name"
	attrPhase      = "policy.phase"
	attrSkipped    = "policy.skipped"
	attrSkipReason = "policy.skip_reason"
)

// Handler receives the terminal result of a chain.
type Handler func(result policy.Result)

// PolicyChain is a request-scoped traversal of a policy list.
type PolicyChain interface {
	policy.Chain

	// Execute starts the traversal. handler is invoked exactly once.
	Execute(handler Handler)

	// Policies yields the policies of the chain in order.
	Policies() iter.Seq[policy.ExecutablePolicy]

	// Stream composes the body transforms of the content phase that
	// accompanies the chain phase.
	Stream() (*stream.Pipeline, error)
}

// Option is a functional option for chains.
type Option func(*Chain)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(c *Chain) {
		c.logger = logger
	}
}

// WithReporter sets the reporter.
func WithReporter(r Reporter) Option {
	return func(c *Chain) {
		c.reporter = r
	}
}

// WithTracer sets the tracer used for per-policy spans.
func WithTracer(t trace.Tracer) Option {
	return func(c *Chain) {
		c.tracer = t
	}
}

// Chain drives an ordered list of policies through one phase.
type Chain struct {
	ctx      *execution.Context
	phase    policy.Phase
	content  policy.Phase
	policies []policy.ExecutablePolicy
	logger   observability.Logger
	reporter Reporter
	tracer   trace.Tracer

	mu      sync.Mutex
	handler Handler
	started bool
	running bool
	pending bool
	done    bool
	next    int
	current policy.ExecutablePolicy
	startAt time.Time
}

// NewRequestChain creates the chain running the pre policies of a flow.
func NewRequestChain(ctx *execution.Context, policies []policy.ExecutablePolicy, opts ...Option) *Chain {
	return newChain(ctx, policy.PhaseRequest, policy.PhaseRequestContent, policies, opts)
}

// NewResponseChain creates the chain running the post policies of a flow.
func NewResponseChain(ctx *execution.Context, policies []policy.ExecutablePolicy, opts ...Option) *Chain {
	return newChain(ctx, policy.PhaseResponse, policy.PhaseResponseContent, policies, opts)
}

func newChain(
	ctx *execution.Context,
	phase, content policy.Phase,
	policies []policy.ExecutablePolicy,
	opts []Option,
) *Chain {
	c := &Chain{
		ctx:      ctx,
		phase:    phase,
		content:  content,
		policies: policies,
		logger:   ctx.Logger(),
		reporter: NopReporter(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer(tracerName)
	}
	return c
}

// Phase returns the phase the chain runs.
func (c *Chain) Phase() policy.Phase {
	return c.phase
}

// Len returns the number of policies.
func (c *Chain) Len() int {
	return len(c.policies)
}

// Policies yields the policies of the chain in order.
func (c *Chain) Policies() iter.Seq[policy.ExecutablePolicy] {
	return slices.Values(c.policies)
}

// Execute starts the traversal.
func (c *Chain) Execute(handler Handler) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		c.logger.Warn("policy chain executed twice", observability.String("phase", c.phase.String()))
		handler(policy.ErrorResult("", c.phase, ErrChainConsumed))
		return
	}
	c.started = true
	c.handler = handler
	c.startAt = time.Now()
	c.mu.Unlock()

	c.ctx.SetPhase(c.phase)
	c.DoNext()
}

// DoNext advances the traversal to the next policy. Calls made while a
// policy is running are picked up by the driver loop once it returns.
func (c *Chain) DoNext() {
	c.mu.Lock()
	if !c.started || c.done {
		c.mu.Unlock()
		return
	}
	c.pending = true
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.mu.Unlock()

	c.drive()
}

// FailWith ends the traversal with a failure declared by the running policy.
func (c *Chain) FailWith(result policy.Result) {
	c.mu.Lock()
	current := c.current
	c.mu.Unlock()

	id := ""
	if current != nil {
		id = current.ID()
	}
	c.fail(id, result)
}

func (c *Chain) fail(policyID string, result policy.Result) {
	result.Status = policy.StatusFailure
	c.complete(policy.ErrorResult(policyID, c.phase, &policy.DeclaredFailureError{
		PolicyID: policyID,
		Phase:    c.phase,
		Result:   result,
	}), false)
}

// drive is the iterative traversal loop. Exactly one goroutine runs it
// at a time.
func (c *Chain) drive() {
	for {
		c.mu.Lock()
		if c.done || !c.pending {
			c.running = false
			c.mu.Unlock()
			return
		}
		c.pending = false

		if c.ctx.Interrupted() {
			c.running = false
			c.mu.Unlock()
			c.complete(policy.Success(), true)
			return
		}

		if c.next >= len(c.policies) {
			c.running = false
			c.mu.Unlock()
			c.complete(policy.Success(), false)
			return
		}

		p := c.policies[c.next]
		c.next++
		c.current = p
		c.mu.Unlock()

		if err := c.invoke(p); err != nil {
			c.mu.Lock()
			c.pending = false
			c.running = false
			c.mu.Unlock()
			c.complete(policy.ErrorResult(p.ID(), c.phase, err), false)
			return
		}
	}
}

// invoke runs one policy phase method, converting panics into
// execution errors.
func (c *Chain) invoke(p policy.ExecutablePolicy) (err error) {
	s := &step{chain: c, policy: p}

	_, span := c.tracer.Start(c.ctx.Context(), fmt.Sprintf("policy %s %s", c.phase, p.ID()),
		trace.WithSpanKind(trace.SpanKindInternal))
	s.span = span
	if span.IsRecording() {
		span.SetAttributes(
			attribute.String(attrPolicyID, p.ID()),
			attribute.String(attrPolicyName, p.Name()),
			attribute.String(attrPhase, c.phase.String()),
		)
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("policy panicked",
				observability.String("policy", p.ID()),
				observability.String("phase", c.phase.String()),
				observability.Any("error", r),
				observability.String("stack", string(debug.Stack())),
			)
			err = &policy.ExecutionError{
				PolicyID: p.ID(),
				Phase:    c.phase,
				Cause:    fmt.Errorf("%v", r),
				Panic:    true,
			}
		}

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "policy failed")
			c.logger.Warn("policy failed",
				observability.String("policy", p.ID()),
				observability.String("phase", c.phase.String()),
				observability.Error(err),
			)
		}
		if !s.skipped.Load() {
			c.reporter.PolicyExecuted(p.ID(), c.phase, time.Since(start), err)
		}
		span.End()
	}()

	return p.Execute(s, c.ctx)
}

func (c *Chain) complete(result policy.Result, interrupted bool) {
	c.mu.Lock()
	if c.done {
		c.mu.Unlock()
		return
	}
	c.done = true
	c.current = nil
	handler := c.handler
	startAt := c.startAt
	c.mu.Unlock()

	outcome := Classify(result, interrupted)
	c.reporter.ChainCompleted(c.phase, outcome, time.Since(startAt))

	if interrupted {
		result.Interrupted = true
		c.logger.Debug("policy chain interrupted", observability.String("phase", c.phase.String()))
	}

	handler(result)
}

// step is the chain view handed to one policy invocation. It settles at
// most once so that a policy cannot advance the chain twice.
type step struct {
	chain   *Chain
	policy  policy.ExecutablePolicy
	span    trace.Span
	settled atomic.Bool
	skipped atomic.Bool
}

func (s *step) DoNext() {
	if !s.settled.CompareAndSwap(false, true) {
		s.chain.logger.Debug("policy continued the chain more than once",
			observability.String("policy", s.policy.ID()))
		return
	}
	s.chain.DoNext()
}

func (s *step) FailWith(result policy.Result) {
	if !s.settled.CompareAndSwap(false, true) {
		s.chain.logger.Debug("policy failed the chain after settling it",
			observability.String("policy", s.policy.ID()))
		return
	}
	s.chain.fail(s.policy.ID(), result)
}

func (s *step) Phase() policy.Phase {
	return s.chain.phase
}

// RecordSkip implements policy.SkipRecorder.
func (s *step) RecordSkip(policyID, reason string) {
	s.skipped.Store(true)
	if s.span.IsRecording() {
		s.span.SetAttributes(
			attribute.Bool(attrSkipped, true),
			attribute.String(attrSkipReason, reason),
		)
	}
	s.chain.reporter.RecordSkip(policyID, reason)
}
