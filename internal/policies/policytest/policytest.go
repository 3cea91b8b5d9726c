// Package policytest runs single policies through real chains in tests.
package policytest

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/vyrodovalexey/flowgate/internal/chain"
	"github.com/vyrodovalexey/flowgate/internal/el"
	"github.com/vyrodovalexey/flowgate/internal/execution"
	"github.com/vyrodovalexey/flowgate/internal/flow"
	"github.com/vyrodovalexey/flowgate/internal/policy"
)

const (
	runTimeout = 5 * time.Second
	chunkSize  = 3
)

// Build registers plugin in a fresh registry and creates an instance
// configured by the YAML document configuration.
func Build(plugin policy.Plugin, configuration string) (policy.ExecutablePolicy, error) {
	registry := policy.NewRegistry()
	if _, err := registry.Register(plugin); err != nil {
		return nil, err
	}
	ref := flow.PolicyRef{
		Policy:        plugin.ID(),
		Enabled:       true,
		Configuration: []byte(configuration),
	}
	return policy.NewFactory(registry).Create(ref)
}

// MustBuild is Build failing the test on error.
func MustBuild(t testing.TB, plugin policy.Plugin, configuration string) policy.ExecutablePolicy {
	t.Helper()
	p, err := Build(plugin, configuration)
	require.NoError(t, err)
	return p
}

// DecodeInto decodes a YAML configuration into cfg and validates it the
// way the policy factory does.
func DecodeInto(configuration string, cfg any) error {
	if err := yaml.Unmarshal([]byte(configuration), cfg); err != nil {
		return err
	}
	if v, ok := cfg.(policy.Validator); ok {
		return v.Validate()
	}
	return nil
}

// NewContext creates an execution context with a CEL evaluator.
func NewContext(t testing.TB, req *execution.Request) *execution.Context {
	t.Helper()
	evaluator, err := el.NewCELEvaluator()
	require.NoError(t, err)
	if req != nil {
		if req.Headers == nil {
			req.Headers = make(map[string][]string)
		}
		if req.PathParams == nil {
			req.PathParams = map[string]string{}
		}
	}
	return execution.New(context.Background(), req, execution.WithEvaluator(evaluator))
}

// Request returns a request view for method and path.
func Request(method, path string) *execution.Request {
	return &execution.Request{
		Method:     method,
		Path:       path,
		Headers:    make(map[string][]string),
		PathParams: map[string]string{},
	}
}

// RunRequest runs the request phase of the policies.
func RunRequest(t testing.TB, ctx *execution.Context, policies ...policy.ExecutablePolicy) policy.Result {
	t.Helper()
	return await(t, chain.NewRequestChain(ctx, policies))
}

// RunResponse runs the response phase of the policies.
func RunResponse(t testing.TB, ctx *execution.Context, policies ...policy.ExecutablePolicy) policy.Result {
	t.Helper()
	return await(t, chain.NewResponseChain(ctx, policies))
}

// Stream sends body through the content pipeline of c in small chunks
// and returns the output.
func Stream(t testing.TB, c chain.PolicyChain, body string) (string, error) {
	t.Helper()
	pipeline, err := c.Stream()
	if err != nil {
		return "", err
	}
	var out bytes.Buffer
	pipeline.BodyHandler(func(chunk []byte) error {
		_, werr := out.Write(chunk)
		return werr
	})
	for rest := body; rest != ""; {
		n := min(chunkSize, len(rest))
		if err := pipeline.Write([]byte(rest[:n])); err != nil {
			return out.String(), err
		}
		rest = rest[n:]
	}
	err = pipeline.End()
	return out.String(), err
}

func await(t testing.TB, c chain.PolicyChain) policy.Result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()
	r, err := chain.Await(ctx, c)
	require.NoError(t, err)
	return r
}
