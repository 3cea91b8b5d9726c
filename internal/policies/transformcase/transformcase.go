// Package transformcase implements the transform-case policy, a
// streaming content policy changing the letter case of bodies.
package transformcase

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/vyrodovalexey/flowgate/internal/execution"
	"github.com/vyrodovalexey/flowgate/internal/policy"
	"github.com/vyrodovalexey/flowgate/internal/stream"
)

// ID is the policy id.
const ID = "transform-case"

// Case modes.
const (
	ModeUpper = "upper"
	ModeLower = "lower"
	ModeTitle = "title"
)

// Config configures the policy. Request and response bodies are
// transformed independently.
type Config struct {
	Mode     string `yaml:"mode"`
	Language string `yaml:"language"`
	Request  bool   `yaml:"request"`
	Response bool   `yaml:"response"`

	tag language.Tag
}

// Validate implements policy.Validator.
func (c *Config) Validate() error {
	c.Mode = strings.ToLower(strings.TrimSpace(c.Mode))
	switch c.Mode {
	case "":
		c.Mode = ModeUpper
	case ModeUpper, ModeLower, ModeTitle:
	default:
		return fmt.Errorf("unknown mode %q", c.Mode)
	}

	c.tag = language.Und
	if c.Language != "" {
		tag, err := language.Parse(c.Language)
		if err != nil {
			return fmt.Errorf("invalid language: %w", err)
		}
		c.tag = tag
	}

	if !c.Request && !c.Response {
		c.Response = true
	}
	return nil
}

// Policy transforms bodies.
type Policy struct {
	cfg *Config
}

// Plugin returns the policy plugin.
func Plugin() policy.Plugin {
	return policy.NewPlugin(ID, "Changes the letter case of request and response bodies",
		func(cfg *Config) (*Policy, error) {
			return &Policy{cfg: cfg}, nil
		})
}

// OnRequestContent transforms the request body when enabled.
func (p *Policy) OnRequestContent(*execution.Context) (stream.Transform, error) {
	if !p.cfg.Request {
		return nil, nil
	}
	return p.transform(), nil
}

// OnResponseContent transforms the response body when enabled.
func (p *Policy) OnResponseContent(*execution.Context) (stream.Transform, error) {
	if !p.cfg.Response {
		return nil, nil
	}
	return p.transform(), nil
}

// transform returns a new caser per stream since casers carry state.
func (p *Policy) transform() stream.Transform {
	var c cases.Caser
	switch p.cfg.Mode {
	case ModeLower:
		c = cases.Lower(p.cfg.tag)
	case ModeTitle:
		c = cases.Title(p.cfg.tag)
	default:
		c = cases.Upper(p.cfg.tag)
	}
	return stream.FromTextTransformer(c)
}
