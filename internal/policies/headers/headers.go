// Package headers implements the transform-headers policy, which sets
// and removes headers on the request and response phases.
package headers

import (
	"fmt"
	"net/http"

	"github.com/vyrodovalexey/flowgate/internal/execution"
	"github.com/vyrodovalexey/flowgate/internal/policy"
	"github.com/vyrodovalexey/flowgate/internal/util"
)

// ID is the policy id.
const ID = "transform-headers"

// Operations applies to one side of the exchange. Removals run before
// additions.
type Operations struct {
	Set    map[string]string `yaml:"set"`
	Add    map[string]string `yaml:"add"`
	Remove []string          `yaml:"remove"`
}

// Config configures the policy.
type Config struct {
	Request  Operations `yaml:"request"`
	Response Operations `yaml:"response"`
}

// Validate implements policy.Validator.
func (c *Config) Validate() error {
	for _, ops := range []Operations{c.Request, c.Response} {
		for name := range ops.Set {
			if err := util.ValidateHeaderName(name); err != nil {
				return fmt.Errorf("set: %w", err)
			}
		}
		for name := range ops.Add {
			if err := util.ValidateHeaderName(name); err != nil {
				return fmt.Errorf("add: %w", err)
			}
		}
	}
	return nil
}

// Policy rewrites headers.
type Policy struct {
	cfg *Config
}

// Plugin returns the policy plugin.
func Plugin() policy.Plugin {
	return policy.NewPlugin(ID, "Sets and removes request and response headers",
		func(cfg *Config) (*Policy, error) {
			return &Policy{cfg: cfg}, nil
		})
}

// OnRequest rewrites the request headers sent upstream.
func (p *Policy) OnRequest(chain policy.Chain, ctx *execution.Context) error {
	p.cfg.Request.apply(ctx.Request().Headers)
	chain.DoNext()
	return nil
}

// OnResponse rewrites the response headers sent to the client.
func (p *Policy) OnResponse(chain policy.Chain, ctx *execution.Context) error {
	p.cfg.Response.apply(ctx.Response().Headers)
	chain.DoNext()
	return nil
}

func (o *Operations) apply(h http.Header) {
	for _, name := range o.Remove {
		h.Del(name)
	}
	for name, value := range o.Set {
		h.Set(name, value)
	}
	for name, value := range o.Add {
		h.Add(name, value)
	}
}
