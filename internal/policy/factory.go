package policy

import (
	"fmt"
	"reflect"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vyrodovalexey/flowgate/internal/flow"
	"github.com/vyrodovalexey/flowgate/internal/observability"
)

// Factory builds executable policies from flow references.
type Factory struct {
	registry *Registry
	logger   observability.Logger
	skips    SkipRecorder
}

// FactoryOption is a functional option for the factory.
type FactoryOption func(*Factory)

// WithFactoryLogger sets the logger.
func WithFactoryLogger(logger observability.Logger) FactoryOption {
	return func(f *Factory) {
		f.logger = logger
	}
}

// WithSkipRecorder sets the recorder notified of disabled references.
func WithSkipRecorder(r SkipRecorder) FactoryOption {
	return func(f *Factory) {
		f.skips = r
	}
}

// NewFactory creates a factory resolving policies through registry.
func NewFactory(registry *Registry, opts ...FactoryOption) *Factory {
	f := &Factory{
		registry: registry,
		logger:   observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Create builds the executable policy of ref. References with a
// non-blank condition are wrapped in a ConditionalPolicy.
func (f *Factory) Create(ref flow.PolicyRef) (ExecutablePolicy, error) {
	m, ok := f.registry.Get(ref.Policy)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPolicy, ref.Policy)
	}

	cfg, err := decodeConfiguration(m, ref.Configuration)
	if err != nil {
		return nil, fmt.Errorf("policy %s: %w", ref.Policy, err)
	}

	instance, err := m.build(cfg)
	if err != nil {
		return nil, fmt.Errorf("policy %s: failed to create instance: %w", ref.Policy, err)
	}

	bindings, err := m.bind(instance)
	if err != nil {
		return nil, err
	}

	var p ExecutablePolicy = &executablePolicy{
		id:       m.ID,
		name:     ref.DisplayName(),
		bindings: bindings,
	}

	if strings.TrimSpace(ref.Condition) != "" {
		p = NewConditionalPolicy(p, ref.Condition)
	}

	return p, nil
}

// CreateAll builds the enabled references in order. Disabled references
// are dropped and reported as skipped.
func (f *Factory) CreateAll(refs []flow.PolicyRef) ([]ExecutablePolicy, error) {
	out := make([]ExecutablePolicy, 0, len(refs))
	for _, ref := range refs {
		if !ref.Enabled {
			f.logger.Debug("policy reference disabled",
				observability.String("policy", ref.Policy),
				observability.String("name", ref.DisplayName()),
			)
			if f.skips != nil {
				f.skips.RecordSkip(ref.Policy, SkipReasonDisabled)
			}
			continue
		}

		p, err := f.Create(ref)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// decodeConfiguration decodes raw YAML into the configuration type of m
// and validates it.
func decodeConfiguration(m *Manifest, raw []byte) (any, error) {
	cfg := m.NewConfiguration()
	if cfg == nil {
		return nil, nil
	}

	if len(strings.TrimSpace(string(raw))) > 0 {
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("invalid configuration for %s: %w",
				reflect.TypeOf(cfg).Elem().Name(), err)
		}
	}

	if v, ok := cfg.(Validator); ok {
		if err := v.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
	}

	return cfg, nil
}
