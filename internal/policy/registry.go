package policy

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/vyrodovalexey/flowgate/internal/observability"
)

// Registry holds the manifests of registered policies. Lookups are
// lock-free; registrations copy the table and swap it atomically.
type Registry struct {
	manifests atomic.Pointer[map[string]*Manifest]
	writeMu   sync.Mutex
	strategy  Strategy
	logger    observability.Logger
}

// RegistryOption is a functional option for the registry.
type RegistryOption func(*Registry)

// WithStrategy sets the dispatch strategy of manifests built by the registry.
func WithStrategy(strategy Strategy) RegistryOption {
	return func(r *Registry) {
		r.strategy = strategy
	}
}

// WithRegistryLogger sets the logger.
func WithRegistryLogger(logger observability.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		strategy: DefaultStrategy,
		logger:   observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}

	empty := make(map[string]*Manifest)
	r.manifests.Store(&empty)

	return r
}

// Strategy returns the dispatch strategy used for new manifests.
func (r *Registry) Strategy() Strategy {
	return r.strategy
}

// Register builds the manifest of p and adds it to the registry.
func (r *Registry) Register(p Plugin) (*Manifest, error) {
	m, err := BuildManifest(p, r.strategy)
	if err != nil {
		return nil, err
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	current := *r.manifests.Load()
	if _, exists := current[m.ID]; exists {
		return nil, fmt.Errorf("policy %s already registered", m.ID)
	}

	next := make(map[string]*Manifest, len(current)+1)
	for k, v := range current {
		next[k] = v
	}
	next[m.ID] = m
	r.manifests.Store(&next)

	r.logger.Debug("policy registered",
		observability.String("policy", m.ID),
		observability.String("strategy", string(m.Strategy)),
		observability.Int("phases", len(m.binders)),
	)

	return m, nil
}

// MustRegister registers every plugin and panics on error. It is meant
// for built-in plugins registered at startup.
func (r *Registry) MustRegister(plugins ...Plugin) {
	for _, p := range plugins {
		if _, err := r.Register(p); err != nil {
			panic(err)
		}
	}
}

// Unregister removes a policy. It reports whether the policy existed.
func (r *Registry) Unregister(id string) bool {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	current := *r.manifests.Load()
	if _, exists := current[id]; !exists {
		return false
	}

	next := make(map[string]*Manifest, len(current))
	for k, v := range current {
		if k != id {
			next[k] = v
		}
	}
	r.manifests.Store(&next)

	return true
}

// Get returns the manifest of a policy.
func (r *Registry) Get(id string) (*Manifest, bool) {
	m, ok := (*r.manifests.Load())[id]
	return m, ok
}

// Manifests returns every manifest sorted by id.
func (r *Registry) Manifests() []*Manifest {
	current := *r.manifests.Load()
	out := make([]*Manifest, 0, len(current))
	for _, m := range current {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
