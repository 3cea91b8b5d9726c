package policy

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/vyrodovalexey/flowgate/internal/execution"
	"github.com/vyrodovalexey/flowgate/internal/stream"
)

// Strategy selects how phase methods are dispatched.
type Strategy string

// Dispatch strategies.
const (
	StrategyInterface  Strategy = "interface"
	StrategyCached     Strategy = "cached"
	StrategyReflective Strategy = "reflective"
)

// DefaultStrategy is used when no strategy is configured.
const DefaultStrategy = StrategyInterface

// ParseStrategy parses a strategy name. An empty name selects DefaultStrategy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return DefaultStrategy, nil
	case StrategyInterface:
		return StrategyInterface, nil
	case StrategyCached:
		return StrategyCached, nil
	case StrategyReflective:
		return StrategyReflective, nil
	default:
		return "", fmt.Errorf("unknown dispatch strategy %q", s)
	}
}

// Plugin describes a policy implementation before registration.
type Plugin struct {
	id          string
	description string
	policyType  reflect.Type
	configType  reflect.Type
	build       func(cfg any) (any, error)
}

// NewPlugin describes a policy of type P configured by a value of type C.
// build receives a decoded, validated configuration.
func NewPlugin[C any, P any](id, description string, build func(cfg *C) (P, error)) Plugin {
	return Plugin{
		id:          id,
		description: description,
		policyType:  reflect.TypeFor[P](),
		configType:  reflect.TypeFor[C](),
		build: func(cfg any) (any, error) {
			return build(cfg.(*C))
		},
	}
}

// NewStaticPlugin describes a policy of type P without configuration.
func NewStaticPlugin[P any](id, description string, build func() (P, error)) Plugin {
	return Plugin{
		id:          id,
		description: description,
		policyType:  reflect.TypeFor[P](),
		build: func(any) (any, error) {
			return build()
		},
	}
}

// ID returns the plugin id.
func (p Plugin) ID() string {
	return p.id
}

type phaseMethod struct {
	name      string
	iface     reflect.Type
	isContent bool
}

var phaseMethods = map[Phase]phaseMethod{
	PhaseRequest:         {name: "OnRequest", iface: reflect.TypeFor[RequestHandler]()},
	PhaseRequestContent:  {name: "OnRequestContent", iface: reflect.TypeFor[RequestContentHandler](), isContent: true},
	PhaseResponse:        {name: "OnResponse", iface: reflect.TypeFor[ResponseHandler]()},
	PhaseResponseContent: {name: "OnResponseContent", iface: reflect.TypeFor[ResponseContentHandler](), isContent: true},
}

// binding is a phase method bound to one policy instance.
type binding struct {
	sync   PhaseFunc
	stream StreamFunc
}

// binder binds a phase method of a policy instance.
type binder func(instance any) (binding, error)

// Manifest describes a registered policy: its supported phases and how
// each is dispatched. Manifests are immutable and shared by every flow
// referencing the policy.
type Manifest struct {
	ID                string
	Description       string
	PolicyType        reflect.Type
	ConfigurationType reflect.Type
	Strategy          Strategy

	binders map[Phase]binder
	build   func(cfg any) (any, error)
}

// BuildManifest resolves the phases supported by p and prepares their
// dispatch according to strategy.
func BuildManifest(p Plugin, strategy Strategy) (*Manifest, error) {
	if strings.TrimSpace(p.id) == "" {
		return nil, errors.New("policy plugin id is required")
	}
	if p.build == nil || p.policyType == nil {
		return nil, fmt.Errorf("policy plugin %s has no constructor", p.id)
	}

	m := &Manifest{
		ID:                p.id,
		Description:       p.description,
		PolicyType:        p.policyType,
		ConfigurationType: p.configType,
		Strategy:          strategy,
		binders:           make(map[Phase]binder, len(phaseMethods)),
		build:             p.build,
	}

	for phase, pm := range phaseMethods {
		if !p.policyType.Implements(pm.iface) {
			continue
		}
		b, err := newBinder(strategy, phase, pm)
		if err != nil {
			return nil, err
		}
		m.binders[phase] = b
	}

	if len(m.binders) == 0 {
		return nil, fmt.Errorf("policy plugin %s implements no phase", p.id)
	}

	return m, nil
}

// Supports reports whether the policy declares phase.
func (m *Manifest) Supports(phase Phase) bool {
	_, ok := m.binders[phase]
	return ok
}

// Phases returns the supported phases in lifecycle order.
func (m *Manifest) Phases() []Phase {
	out := make([]Phase, 0, len(m.binders))
	for _, p := range AllPhases {
		if m.Supports(p) {
			out = append(out, p)
		}
	}
	return out
}

// NewConfiguration returns a pointer to a zero configuration value, or
// nil when the policy takes no configuration.
func (m *Manifest) NewConfiguration() any {
	if m.ConfigurationType == nil {
		return nil
	}
	return reflect.New(m.ConfigurationType).Interface()
}

// bind binds every supported phase of instance.
func (m *Manifest) bind(instance any) (map[Phase]binding, error) {
	if instance == nil {
		return nil, fmt.Errorf("policy %s constructor returned nil", m.ID)
	}
	out := make(map[Phase]binding, len(m.binders))
	for phase, b := range m.binders {
		bound, err := b(instance)
		if err != nil {
			return nil, fmt.Errorf("policy %s: %w", m.ID, err)
		}
		out[phase] = bound
	}
	return out, nil
}

func newBinder(strategy Strategy, phase Phase, pm phaseMethod) (binder, error) {
	switch strategy {
	case StrategyInterface, "":
		return interfaceBinder(phase), nil
	case StrategyCached:
		return cachedBinder(pm), nil
	case StrategyReflective:
		return reflectiveBinder(pm), nil
	default:
		return nil, fmt.Errorf("unknown dispatch strategy %q", strategy)
	}
}

func interfaceBinder(phase Phase) binder {
	return func(instance any) (binding, error) {
		var ok bool
		var b binding
		switch phase {
		case PhaseRequest:
			var h RequestHandler
			if h, ok = instance.(RequestHandler); ok {
				b.sync = h.OnRequest
			}
		case PhaseResponse:
			var h ResponseHandler
			if h, ok = instance.(ResponseHandler); ok {
				b.sync = h.OnResponse
			}
		case PhaseRequestContent:
			var h RequestContentHandler
			if h, ok = instance.(RequestContentHandler); ok {
				b.stream = h.OnRequestContent
			}
		case PhaseResponseContent:
			var h ResponseContentHandler
			if h, ok = instance.(ResponseContentHandler); ok {
				b.stream = h.OnResponseContent
			}
		}
		if !ok {
			return binding{}, fmt.Errorf("%T does not handle %s", instance, phase)
		}
		return b, nil
	}
}

// cachedBinder resolves the method index once per concrete type and
// binds the method value built from it. Calls skip the name lookup but
// still go through the reflect method value.
func cachedBinder(pm phaseMethod) binder {
	var indexes sync.Map

	return func(instance any) (binding, error) {
		v := reflect.ValueOf(instance)

		idx, ok := indexes.Load(v.Type())
		if !ok {
			m, found := v.Type().MethodByName(pm.name)
			if !found {
				return binding{}, fmt.Errorf("%T has no method %s", instance, pm.name)
			}
			idx, _ = indexes.LoadOrStore(v.Type(), m.Index)
		}

		fn := v.Method(idx.(int)).Interface()
		if pm.isContent {
			f, ok := fn.(func(*execution.Context) (stream.Transform, error))
			if !ok {
				return binding{}, fmt.Errorf("%T.%s has an unexpected signature", instance, pm.name)
			}
			return binding{stream: f}, nil
		}

		f, ok := fn.(func(Chain, *execution.Context) error)
		if !ok {
			return binding{}, fmt.Errorf("%T.%s has an unexpected signature", instance, pm.name)
		}
		return binding{sync: f}, nil
	}
}

// reflectiveBinder looks the method up and calls it through reflection
// on every invocation.
func reflectiveBinder(pm phaseMethod) binder {
	return func(instance any) (binding, error) {
		v := reflect.ValueOf(instance)
		if _, found := v.Type().MethodByName(pm.name); !found {
			return binding{}, fmt.Errorf("%T has no method %s", instance, pm.name)
		}

		if pm.isContent {
			return binding{stream: func(ctx *execution.Context) (stream.Transform, error) {
				out := v.MethodByName(pm.name).Call([]reflect.Value{reflect.ValueOf(ctx)})
				var t stream.Transform
				if !out[0].IsNil() {
					t = out[0].Interface().(stream.Transform)
				}
				err, _ := out[1].Interface().(error)
				return t, err
			}}, nil
		}

		return binding{sync: func(chain Chain, ctx *execution.Context) error {
			out := v.MethodByName(pm.name).Call([]reflect.Value{
				reflect.ValueOf(&chain).Elem(),
				reflect.ValueOf(ctx),
			})
			err, _ := out[0].Interface().(error)
			return err
		}}, nil
	}
}
