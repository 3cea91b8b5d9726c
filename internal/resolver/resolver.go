package resolver

import (
	"github.com/vyrodovalexey/flowgate/internal/condition"
	"github.com/vyrodovalexey/flowgate/internal/execution"
	"github.com/vyrodovalexey/flowgate/internal/flow"
	"github.com/vyrodovalexey/flowgate/internal/observability"
	"github.com/vyrodovalexey/flowgate/internal/router"
)

// Resolution outcomes.
const (
	outcomeMatched   = "matched"
	outcomeUnmatched = "unmatched"
	outcomeError     = "error"
)

type entry struct {
	flow      *flow.Flow
	evaluator condition.Evaluator
}

// Resolver resolves the flows of one API. It is immutable once built
// and safe for concurrent use.
type Resolver struct {
	entries  []entry
	mode     flow.Mode
	cache    *router.PatternCache
	selector *router.BestMatchSelector
	logger   observability.Logger
	metrics  *resolverMetrics
}

// Option is a functional option for the resolver.
type Option func(*Resolver)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// WithMode sets the flow mode. The default is flow.ModeDefault.
func WithMode(mode flow.Mode) Option {
	return func(r *Resolver) {
		r.mode = mode
	}
}

// WithPatternCache sets the cache compiling flow patterns.
func WithPatternCache(cache *router.PatternCache) Option {
	return func(r *Resolver) {
		r.cache = cache
	}
}

// New builds a resolver over flows. Disabled flows are left out.
func New(flows []*flow.Flow, opts ...Option) (*Resolver, error) {
	r := &Resolver{
		mode:    flow.ModeDefault,
		logger:  observability.NopLogger(),
		metrics: getResolverMetrics(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.cache == nil {
		r.cache = router.NewPatternCache(0)
	}
	r.selector = router.NewBestMatchSelector(r.cache)

	r.entries = make([]entry, 0, len(flows))
	for _, f := range flows {
		if !f.Enabled {
			r.logger.Debug("flow disabled", observability.String("flow", f.ID))
			continue
		}
		ev, err := condition.ForFlow(f, r.cache)
		if err != nil {
			return nil, err
		}
		r.entries = append(r.entries, entry{flow: f, evaluator: ev})
	}

	return r, nil
}

// Mode returns the flow mode.
func (r *Resolver) Mode() flow.Mode {
	return r.mode
}

// Flows returns the enabled flows in declaration order.
func (r *Resolver) Flows() []*flow.Flow {
	out := make([]*flow.Flow, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.flow
	}
	return out
}

// Resolve returns every flow whose condition holds for ctx, in
// declaration order. Evaluation errors abort the resolution.
func (r *Resolver) Resolve(ctx *execution.Context) ([]*flow.Flow, error) {
	var out []*flow.Flow
	for _, e := range r.entries {
		ok, err := e.evaluator.Evaluate(ctx)
		if err != nil {
			return nil, &Error{FlowID: e.flow.ID, Cause: err}
		}
		if ok {
			out = append(out, e.flow)
		}
	}
	return out, nil
}

// Match resolves the flows applying to ctx according to the mode and
// records their path parameters in the request. An empty result means
// no flow applies.
func (r *Resolver) Match(ctx *execution.Context) ([]*flow.Flow, error) {
	resolved, err := r.Resolve(ctx)
	if err != nil {
		r.metrics.resolutions.WithLabelValues(string(r.mode), outcomeError).Inc()
		r.logger.Warn("flow resolution failed",
			observability.String("path", ctx.Request().Path),
			observability.Error(err),
		)
		return nil, err
	}

	path := ctx.Request().Path
	if r.mode == flow.ModeBestMatch && len(resolved) > 0 {
		best, ok := r.selector.Select(resolved, path)
		if ok {
			resolved = []*flow.Flow{best}
		} else {
			resolved = nil
		}
	}

	if len(resolved) == 0 {
		r.metrics.resolutions.WithLabelValues(string(r.mode), outcomeUnmatched).Inc()
		return nil, nil
	}
	r.metrics.resolutions.WithLabelValues(string(r.mode), outcomeMatched).Inc()

	r.storeParams(ctx.Request(), resolved)

	return resolved, nil
}

// storeParams records the path parameters of flows. Earlier flows win
// on name clashes.
func (r *Resolver) storeParams(req *execution.Request, flows []*flow.Flow) {
	if req.PathParams == nil {
		req.PathParams = make(map[string]string)
	}
	for _, f := range flows {
		for name, value := range r.selector.Params(f, req.Path) {
			if _, exists := req.PathParams[name]; !exists {
				req.PathParams[name] = value
			}
		}
	}
}
