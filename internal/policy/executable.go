package policy

import (
	"strings"

	"github.com/vyrodovalexey/flowgate/internal/execution"
	"github.com/vyrodovalexey/flowgate/internal/stream"
)

// ExecutablePolicy is a policy instance bound to one flow reference.
// It is immutable and shared by all requests of a deployment.
type ExecutablePolicy interface {
	// ID returns the policy id.
	ID() string

	// Name returns the display name of the reference.
	Name() string

	// Supports reports whether the policy participates in phase.
	Supports(phase Phase) bool

	// Execute runs the request or response phase selected by
	// chain.Phase(). Policies that do not support the phase continue
	// the chain immediately.
	Execute(chain Chain, ctx *execution.Context) error

	// Stream returns the body transform for a content phase, or nil
	// when the body must pass through untouched.
	Stream(phase Phase, ctx *execution.Context) (stream.Transform, error)
}

type executablePolicy struct {
	id       string
	name     string
	bindings map[Phase]binding
}

func (p *executablePolicy) ID() string {
	return p.id
}

func (p *executablePolicy) Name() string {
	return p.name
}

func (p *executablePolicy) Supports(phase Phase) bool {
	_, ok := p.bindings[phase]
	return ok
}

func (p *executablePolicy) Execute(chain Chain, ctx *execution.Context) error {
	b, ok := p.bindings[chain.Phase()]
	if !ok || b.sync == nil {
		chain.DoNext()
		return nil
	}
	return b.sync(chain, ctx)
}

func (p *executablePolicy) Stream(phase Phase, ctx *execution.Context) (stream.Transform, error) {
	b, ok := p.bindings[phase]
	if !ok || b.stream == nil {
		return nil, nil
	}
	return b.stream(ctx)
}

// ConditionalPolicy runs the wrapped policy only when its condition
// evaluates to true.
type ConditionalPolicy struct {
	ExecutablePolicy
	condition string
}

// NewConditionalPolicy wraps p with condition.
func NewConditionalPolicy(p ExecutablePolicy, condition string) *ConditionalPolicy {
	return &ConditionalPolicy{ExecutablePolicy: p, condition: condition}
}

// Condition returns the execution condition.
func (c *ConditionalPolicy) Condition() string {
	return c.condition
}

// Execute evaluates the condition and either runs the wrapped policy or
// continues the chain exactly once without invoking it.
func (c *ConditionalPolicy) Execute(chain Chain, ctx *execution.Context) error {
	if !c.Supports(chain.Phase()) {
		chain.DoNext()
		return nil
	}
	if strings.TrimSpace(c.condition) == "" {
		return c.ExecutablePolicy.Execute(chain, ctx)
	}

	ok, err := ctx.EvaluateCondition(c.condition)
	if err != nil {
		return &ConditionError{
			PolicyID:  c.ID(),
			Phase:     chain.Phase(),
			Condition: c.condition,
			Cause:     err,
		}
	}

	if !ok {
		if r, isRecorder := chain.(SkipRecorder); isRecorder {
			r.RecordSkip(c.ID(), SkipReasonConditionNotMet)
		}
		chain.DoNext()
		return nil
	}

	return c.ExecutablePolicy.Execute(chain, ctx)
}

// Stream evaluates the condition and returns the wrapped transform, or
// nil when the condition does not hold.
func (c *ConditionalPolicy) Stream(phase Phase, ctx *execution.Context) (stream.Transform, error) {
	if !c.Supports(phase) {
		return nil, nil
	}
	if strings.TrimSpace(c.condition) == "" {
		return c.ExecutablePolicy.Stream(phase, ctx)
	}

	ok, err := ctx.EvaluateCondition(c.condition)
	if err != nil {
		return nil, &ConditionError{
			PolicyID:  c.ID(),
			Phase:     phase,
			Condition: c.condition,
			Cause:     err,
		}
	}
	if !ok {
		return nil, nil
	}

	return c.ExecutablePolicy.Stream(phase, ctx)
}
