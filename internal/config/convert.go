package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vyrodovalexey/flowgate/internal/flow"
)

// FlowID returns the id of the i-th flow of the API: its name, or a
// positional id when unnamed.
func (a *APIConfig) FlowID(i int) string {
	if i < len(a.Flows) && a.Flows[i].Name != "" {
		return a.Flows[i].Name
	}
	return fmt.Sprintf("%s-flow-%d", a.ID, i)
}

// DisplayName returns the API name, or its id when unnamed.
func (a *APIConfig) DisplayName() string {
	if a.Name != "" {
		return a.Name
	}
	return a.ID
}

// ToFlows converts the flow definitions of the API.
func (a *APIConfig) ToFlows() ([]*flow.Flow, error) {
	flows := make([]*flow.Flow, 0, len(a.Flows))
	for i := range a.Flows {
		f, err := a.Flows[i].toFlow(a.FlowID(i))
		if err != nil {
			return nil, fmt.Errorf("api %s flow %d: %w", a.ID, i, err)
		}
		flows = append(flows, f)
	}
	return flows, nil
}

func (fc *FlowConfig) toFlow(id string) (*flow.Flow, error) {
	op, err := flow.ParseOperator(fc.Operator)
	if err != nil {
		return nil, err
	}

	pre, err := toRefs(fc.Pre)
	if err != nil {
		return nil, fmt.Errorf("pre: %w", err)
	}
	post, err := toRefs(fc.Post)
	if err != nil {
		return nil, fmt.Errorf("post: %w", err)
	}

	methods := make([]string, 0, len(fc.Methods))
	for _, m := range fc.Methods {
		methods = append(methods, strings.ToUpper(strings.TrimSpace(m)))
	}

	return &flow.Flow{
		ID:           id,
		Name:         fc.Name,
		Enabled:      enabled(fc.Enabled),
		PathOperator: flow.PathOperator{Pattern: fc.Path, Operator: op},
		Methods:      methods,
		Condition:    strings.TrimSpace(fc.Condition),
		Pre:          pre,
		Post:         post,
	}, nil
}

func toRefs(in []PolicyRefConfig) ([]flow.PolicyRef, error) {
	out := make([]flow.PolicyRef, 0, len(in))
	for i := range in {
		raw, err := marshalNode(&in[i].Configuration)
		if err != nil {
			return nil, fmt.Errorf("policy %s configuration: %w", in[i].Policy, err)
		}
		out = append(out, flow.PolicyRef{
			Policy:        in[i].Policy,
			Name:          in[i].Name,
			Enabled:       enabled(in[i].Enabled),
			Condition:     strings.TrimSpace(in[i].Condition),
			Configuration: raw,
		})
	}
	return out, nil
}

// marshalNode re-encodes a configuration node as a standalone YAML
// document. An absent node yields nil.
func marshalNode(n *yaml.Node) ([]byte, error) {
	if n.Kind == 0 {
		return nil, nil
	}
	return yaml.Marshal(n)
}

func enabled(b *bool) bool {
	return b == nil || *b
}
