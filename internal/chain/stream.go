package chain

import (
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/vyrodovalexey/flowgate/internal/observability"
	"github.com/vyrodovalexey/flowgate/internal/policy"
	"github.com/vyrodovalexey/flowgate/internal/stream"
)

// Stream composes the transforms of the policies supporting the content
// phase, in declaration order. Policies returning a nil transform are
// left out. The caller attaches its body and end handlers to the
// returned pipeline.
func (c *Chain) Stream() (*stream.Pipeline, error) {
	c.ctx.SetPhase(c.content)

	stages := make([]stream.Transform, 0, len(c.policies))
	for _, p := range c.policies {
		if !p.Supports(c.content) {
			continue
		}
		t, err := c.transform(p)
		if err != nil {
			return nil, err
		}
		if t != nil {
			stages = append(stages, t)
		}
	}

	return stream.NewPipeline(stages...), nil
}

// ContentPhase returns the content phase composed by Stream.
func (c *Chain) ContentPhase() policy.Phase {
	return c.content
}

func (c *Chain) transform(p policy.ExecutablePolicy) (t stream.Transform, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("policy panicked",
				observability.String("policy", p.ID()),
				observability.String("phase", c.content.String()),
				observability.Any("error", r),
				observability.String("stack", string(debug.Stack())),
			)
			t = nil
			err = &policy.ExecutionError{
				PolicyID: p.ID(),
				Phase:    c.content,
				Cause:    fmt.Errorf("%v", r),
				Panic:    true,
			}
		}
	}()

	t, err = p.Stream(c.content, c.ctx)
	if err != nil {
		return nil, asPolicyError(p.ID(), c.content, err)
	}
	return t, nil
}

// asPolicyError keeps errors already classified by the policy package
// and wraps anything else in an ExecutionError.
func asPolicyError(policyID string, phase policy.Phase, err error) error {
	if errors.Is(err, policy.ErrPolicyExecution) || errors.Is(err, policy.ErrPolicyDeclaredFailure) {
		return err
	}
	return &policy.ExecutionError{PolicyID: policyID, Phase: phase, Cause: err}
}
