package flow

import (
	"fmt"
	"strings"
)

// Operator selects how a path pattern is compared with a request path.
type Operator string

// Path operators.
const (
	// OperatorEquals requires the request path to have exactly as many
	// segments as the pattern.
	OperatorEquals Operator = "EQUALS"

	// OperatorStartsWith requires the pattern to be a segment-wise
	// prefix of the request path.
	OperatorStartsWith Operator = "STARTS_WITH"
)

// ParseOperator parses an operator name case-insensitively. An empty
// name defaults to OperatorStartsWith.
func ParseOperator(s string) (Operator, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", string(OperatorStartsWith):
		return OperatorStartsWith, nil
	case string(OperatorEquals):
		return OperatorEquals, nil
	default:
		return "", fmt.Errorf("unknown path operator %q", s)
	}
}

// Mode selects how the resolved flows of an API are applied.
type Mode string

// Flow modes.
const (
	// ModeDefault applies every resolved flow in declaration order.
	ModeDefault Mode = "DEFAULT"

	// ModeBestMatch applies only the most specific resolved flow.
	ModeBestMatch Mode = "BEST_MATCH"
)

// ParseMode parses a flow mode name case-insensitively. An empty name
// defaults to ModeDefault.
func ParseMode(s string) (Mode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", string(ModeDefault):
		return ModeDefault, nil
	case string(ModeBestMatch), "BESTMATCH":
		return ModeBestMatch, nil
	default:
		return "", fmt.Errorf("unknown flow mode %q", s)
	}
}

// PathOperator pairs a path pattern with its comparison mode.
type PathOperator struct {
	Pattern  string   `json:"pattern"`
	Operator Operator `json:"operator"`
}

// String returns a compact representation such as "STARTS_WITH /pets/:id".
func (p PathOperator) String() string {
	return string(p.Operator) + " " + p.Pattern
}

// PolicyRef references a registered policy from a flow.
type PolicyRef struct {
	// Policy is the id of the registered policy plugin.
	Policy string `json:"policy"`

	// Name is an optional display name.
	Name string `json:"name,omitempty"`

	// Enabled controls whether the reference is deployed at all.
	Enabled bool `json:"enabled"`

	// Condition is an optional expression guarding every phase
	// invocation of the policy.
	Condition string `json:"condition,omitempty"`

	// Configuration is the policy configuration as an opaque YAML
	// document. It is decoded by the policy factory into the
	// configuration type declared by the plugin.
	Configuration []byte `json:"-"`
}

// DisplayName returns the reference name, or the policy id when unnamed.
func (r PolicyRef) DisplayName() string {
	if r.Name != "" {
		return r.Name
	}
	return r.Policy
}

// Flow is a routing rule: a path operator, optional method and
// expression conditions, and ordered policy lists.
type Flow struct {
	ID           string       `json:"id"`
	Name         string       `json:"name,omitempty"`
	Enabled      bool         `json:"enabled"`
	PathOperator PathOperator `json:"pathOperator"`

	// Methods restricts the flow to the listed HTTP methods. Empty
	// means every method.
	Methods []string `json:"methods,omitempty"`

	// Condition is an optional expression that must evaluate to true
	// for the flow to apply.
	Condition string `json:"condition,omitempty"`

	Pre  []PolicyRef `json:"pre,omitempty"`
	Post []PolicyRef `json:"post,omitempty"`
}

// DisplayName returns the flow name, or its id when unnamed.
func (f *Flow) DisplayName() string {
	if f.Name != "" {
		return f.Name
	}
	return f.ID
}

// HasCondition reports whether the flow carries a non-blank expression.
func (f *Flow) HasCondition() bool {
	return strings.TrimSpace(f.Condition) != ""
}
