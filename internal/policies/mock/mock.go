// Package mock implements the mock-respond policy, which answers the
// request itself instead of calling the upstream.
package mock

import (
	"net/http"

	"github.com/vyrodovalexey/flowgate/internal/execution"
	"github.com/vyrodovalexey/flowgate/internal/policy"
	"github.com/vyrodovalexey/flowgate/internal/util"
)

// ID is the policy id.
const ID = "mock-respond"

// DefaultKey is the failure key of mocked responses.
const DefaultKey = "MOCK_RESPONSE"

// Config configures the policy.
type Config struct {
	Status      int               `yaml:"status"`
	Key         string            `yaml:"key"`
	Body        string            `yaml:"body"`
	ContentType string            `yaml:"contentType"`
	Headers     map[string]string `yaml:"headers"`
}

// Validate implements policy.Validator.
func (c *Config) Validate() error {
	if c.Status == 0 {
		c.Status = http.StatusOK
	}
	if err := util.ValidateHTTPStatusCode(c.Status); err != nil {
		return err
	}
	if c.Key == "" {
		c.Key = DefaultKey
	}
	return nil
}

// Policy ends the request phase with the configured response.
type Policy struct {
	cfg *Config
}

// Plugin returns the policy plugin.
func Plugin() policy.Plugin {
	return policy.NewPlugin(ID, "Responds with a static body without calling the upstream",
		func(cfg *Config) (*Policy, error) {
			return &Policy{cfg: cfg}, nil
		})
}

// OnRequest interrupts the chain with the configured response. The
// response headers are staged on the context and sent with the body.
func (p *Policy) OnRequest(chain policy.Chain, ctx *execution.Context) error {
	for name, value := range p.cfg.Headers {
		ctx.Response().Headers.Set(name, value)
	}

	r := policy.Failure(p.cfg.Status, p.cfg.Key, p.cfg.Body)
	r.ContentType = p.cfg.ContentType
	if r.ContentType == "" {
		r.ContentType = "text/plain; charset=utf-8"
	}
	chain.FailWith(r)
	return nil
}
