package chain

import (
	"iter"
	"sync"

	"github.com/vyrodovalexey/flowgate/internal/policy"
	"github.com/vyrodovalexey/flowgate/internal/stream"
)

// Direct is a chain whose outcome is already decided. It runs no
// policies and hands its fixed result to the handler on the first
// traversal attempt.
type Direct struct {
	phase  policy.Phase
	result policy.Result

	mu      sync.Mutex
	handler Handler
	fired   bool
}

// NewDirect returns a chain that always completes with result.
func NewDirect(phase policy.Phase, result policy.Result) *Direct {
	return &Direct{phase: phase, result: result}
}

// Result returns the fixed result.
func (d *Direct) Result() policy.Result {
	return d.result
}

// Phase returns the phase the chain stands for.
func (d *Direct) Phase() policy.Phase {
	return d.phase
}

// Execute invokes handler with the fixed result, synchronously.
func (d *Direct) Execute(handler Handler) {
	d.mu.Lock()
	d.handler = handler
	d.mu.Unlock()
	d.fire()
}

// DoNext completes the chain if it has not completed yet.
func (d *Direct) DoNext() {
	d.fire()
}

// FailWith is ignored: the outcome is fixed.
func (d *Direct) FailWith(policy.Result) {
	d.fire()
}

func (d *Direct) fire() {
	d.mu.Lock()
	if d.fired || d.handler == nil {
		d.mu.Unlock()
		return
	}
	d.fired = true
	handler := d.handler
	d.mu.Unlock()

	handler(d.result)
}

// Policies yields nothing.
func (d *Direct) Policies() iter.Seq[policy.ExecutablePolicy] {
	return func(func(policy.ExecutablePolicy) bool) {}
}

// Stream returns a pass-through pipeline.
func (d *Direct) Stream() (*stream.Pipeline, error) {
	return stream.NewPipeline(), nil
}

// NoOp is an empty chain completing with success.
type NoOp struct {
	*Direct
}

// NewNoOp returns an empty chain.
func NewNoOp(phase policy.Phase) *NoOp {
	return &NoOp{Direct: NewDirect(phase, policy.Success())}
}

var (
	_ PolicyChain = (*Chain)(nil)
	_ PolicyChain = (*Direct)(nil)
	_ PolicyChain = (*NoOp)(nil)
)
