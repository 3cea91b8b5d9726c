// Package attributes implements the assign-attributes policy, which
// evaluates expressions and stores their results as context attributes.
package attributes

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vyrodovalexey/flowgate/internal/el"
	"github.com/vyrodovalexey/flowgate/internal/execution"
	"github.com/vyrodovalexey/flowgate/internal/policy"
)

// ID is the policy id.
const ID = "assign-attributes"

// Assignment stores the value of Expression under Name.
type Assignment struct {
	Name       string `yaml:"name"`
	Expression string `yaml:"expression"`

	// Type is the expected result type: any, bool, string, int or double.
	Type string `yaml:"type"`

	kind el.Kind
}

// Config configures the policy. Request assignments run on the request
// phase and response assignments on the response phase.
type Config struct {
	Request  []Assignment `yaml:"request"`
	Response []Assignment `yaml:"response"`
}

// Validate implements policy.Validator.
func (c *Config) Validate() error {
	if len(c.Request) == 0 && len(c.Response) == 0 {
		return errors.New("at least one assignment is required")
	}
	for _, list := range [][]Assignment{c.Request, c.Response} {
		for i := range list {
			if err := list[i].validate(); err != nil {
				return fmt.Errorf("assignment %d: %w", i, err)
			}
		}
	}
	return nil
}

func (a *Assignment) validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return errors.New("name is required")
	}
	if strings.TrimSpace(a.Expression) == "" {
		return errors.New("expression is required")
	}
	kind, err := parseKind(a.Type)
	if err != nil {
		return err
	}
	a.kind = kind
	return nil
}

func parseKind(s string) (el.Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "any":
		return el.KindAny, nil
	case "bool":
		return el.KindBool, nil
	case "string":
		return el.KindString, nil
	case "int":
		return el.KindInt, nil
	case "double":
		return el.KindDouble, nil
	default:
		return el.KindAny, fmt.Errorf("unknown type %q", s)
	}
}

// Policy assigns attributes.
type Policy struct {
	cfg *Config
}

// Plugin returns the policy plugin.
func Plugin() policy.Plugin {
	return policy.NewPlugin(ID, "Stores expression results as context attributes",
		func(cfg *Config) (*Policy, error) {
			return &Policy{cfg: cfg}, nil
		})
}

// OnRequest applies the request assignments in order, so later
// expressions see earlier results.
func (p *Policy) OnRequest(chain policy.Chain, ctx *execution.Context) error {
	if err := assign(ctx, p.cfg.Request); err != nil {
		return err
	}
	chain.DoNext()
	return nil
}

// OnResponse applies the response assignments.
func (p *Policy) OnResponse(chain policy.Chain, ctx *execution.Context) error {
	if err := assign(ctx, p.cfg.Response); err != nil {
		return err
	}
	chain.DoNext()
	return nil
}

func assign(ctx *execution.Context, list []Assignment) error {
	for i := range list {
		v, err := ctx.Evaluate(list[i].Expression, list[i].kind)
		if err != nil {
			return fmt.Errorf("attribute %s: %w", list[i].Name, err)
		}
		ctx.SetAttribute(list[i].Name, v)
	}
	return nil
}
