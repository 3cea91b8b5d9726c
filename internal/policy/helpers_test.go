package policy

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/flowgate/internal/el"
	"github.com/vyrodovalexey/flowgate/internal/execution"
	"github.com/vyrodovalexey/flowgate/internal/flow"
	"github.com/vyrodovalexey/flowgate/internal/stream"
)

// recordingChain is a Chain that records how a policy drove it.
type recordingChain struct {
	phase Phase
	nexts int
	fails []Result
	skips []string
}

func (c *recordingChain) DoNext()           { c.nexts++ }
func (c *recordingChain) FailWith(r Result) { c.fails = append(c.fails, r) }
func (c *recordingChain) Phase() Phase      { return c.phase }
func (c *recordingChain) RecordSkip(id, reason string) {
	c.skips = append(c.skips, id+":"+reason)
}

// headerPolicy sets a request attribute, fails on demand and upper-cases
// response bodies.
type headerPolicy struct {
	cfg   *headerConfig
	calls *int
}

type headerConfig struct {
	Value string `yaml:"value"`
	Fail  bool   `yaml:"fail"`
}

func (c *headerConfig) Validate() error {
	if c.Value == "invalid" {
		return errors.New("value must not be invalid")
	}
	return nil
}

func (p *headerPolicy) OnRequest(chain Chain, ctx *execution.Context) error {
	*p.calls++
	if p.cfg.Fail {
		return errors.New("boom")
	}
	ctx.SetAttribute("value", p.cfg.Value)
	chain.DoNext()
	return nil
}

func (p *headerPolicy) OnResponseContent(*execution.Context) (stream.Transform, error) {
	*p.calls++
	return stream.MapFunc(func(b []byte) ([]byte, error) {
		return bytes.ToUpper(b), nil
	}), nil
}

func headerPlugin(calls *int) Plugin {
	return NewPlugin("header", "test policy", func(cfg *headerConfig) (*headerPolicy, error) {
		return &headerPolicy{cfg: cfg, calls: calls}, nil
	})
}

func newContext(t *testing.T) *execution.Context {
	t.Helper()
	ev, err := el.NewCELEvaluator()
	require.NoError(t, err)
	return execution.New(context.Background(), nil, execution.WithEvaluator(ev))
}

func refFor(policyID, configuration string) flow.PolicyRef {
	return flow.PolicyRef{
		Policy:        policyID,
		Enabled:       true,
		Configuration: []byte(configuration),
	}
}
