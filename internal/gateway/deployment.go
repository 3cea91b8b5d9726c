package gateway

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/vyrodovalexey/flowgate/internal/config"
	"github.com/vyrodovalexey/flowgate/internal/flow"
	"github.com/vyrodovalexey/flowgate/internal/observability"
	"github.com/vyrodovalexey/flowgate/internal/policy"
	"github.com/vyrodovalexey/flowgate/internal/resolver"
	"github.com/vyrodovalexey/flowgate/internal/router"
)

// DeployedFlow is a flow with its policy lists built.
type DeployedFlow struct {
	Flow *flow.Flow
	Pre  []policy.ExecutablePolicy
	Post []policy.ExecutablePolicy
}

// Deployment is one API ready to serve requests. It is immutable and
// shared by every request routed to the API.
type Deployment struct {
	ID            string
	Name          string
	ContextPath   string
	Upstream      *url.URL
	MatchRequired bool
	Timeout       time.Duration

	resolver *resolver.Resolver
	flows    map[string]*DeployedFlow
}

// Mode returns the flow mode of the API.
func (d *Deployment) Mode() flow.Mode {
	return d.resolver.Mode()
}

// Resolver returns the flow resolver of the API.
func (d *Deployment) Resolver() *resolver.Resolver {
	return d.resolver
}

// Flows returns the deployed flows in declaration order.
func (d *Deployment) Flows() []*DeployedFlow {
	flows := d.resolver.Flows()
	out := make([]*DeployedFlow, 0, len(flows))
	for _, f := range flows {
		out = append(out, d.flows[f.ID])
	}
	return out
}

// policies concatenates the pre and post policies of flows in order.
func (d *Deployment) policies(flows []*flow.Flow) (pre, post []policy.ExecutablePolicy) {
	if len(flows) == 1 {
		df := d.flows[flows[0].ID]
		return df.Pre, df.Post
	}
	for _, f := range flows {
		df := d.flows[f.ID]
		pre = append(pre, df.Pre...)
		post = append(post, df.Post...)
	}
	return pre, post
}

// relativePath returns the request path relative to the context path
// and whether the API serves path.
func (d *Deployment) relativePath(path string) (string, bool) {
	if d.ContextPath == "/" {
		return path, true
	}
	if path == d.ContextPath {
		return "/", true
	}
	if strings.HasPrefix(path, d.ContextPath+"/") {
		return path[len(d.ContextPath):], true
	}
	return "", false
}

// Table is the set of deployments served at one time, ordered by
// descending context path length.
type Table struct {
	deployments []*Deployment
}

// NewTable builds a table over deployments.
func NewTable(deployments ...*Deployment) *Table {
	sorted := make([]*Deployment, len(deployments))
	copy(sorted, deployments)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].ContextPath) > len(sorted[j].ContextPath)
	})
	return &Table{deployments: sorted}
}

// Lookup returns the deployment with the longest context path serving
// path, along with the path relative to it.
func (t *Table) Lookup(path string) (*Deployment, string, bool) {
	if t == nil {
		return nil, "", false
	}
	for _, d := range t.deployments {
		if rel, ok := d.relativePath(path); ok {
			return d, rel, true
		}
	}
	return nil, "", false
}

// Deployments returns the deployments sorted by id.
func (t *Table) Deployments() []*Deployment {
	if t == nil {
		return nil
	}
	out := make([]*Deployment, len(t.deployments))
	copy(out, t.deployments)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of deployments.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.deployments)
}

// Deployer builds deployments from API configurations.
type Deployer struct {
	factory     *policy.Factory
	cache       *router.PatternCache
	defaultMode flow.Mode
	logger      observability.Logger
}

// DeployerOption is a functional option for the deployer.
type DeployerOption func(*Deployer)

// WithDeployerLogger sets the logger.
func WithDeployerLogger(logger observability.Logger) DeployerOption {
	return func(d *Deployer) {
		d.logger = logger
	}
}

// WithPatternCache sets the pattern cache shared by every resolver.
func WithPatternCache(cache *router.PatternCache) DeployerOption {
	return func(d *Deployer) {
		d.cache = cache
	}
}

// WithDefaultMode sets the flow mode of APIs that do not set one.
func WithDefaultMode(mode flow.Mode) DeployerOption {
	return func(d *Deployer) {
		d.defaultMode = mode
	}
}

// NewDeployer creates a deployer building policies through factory.
func NewDeployer(factory *policy.Factory, opts ...DeployerOption) (*Deployer, error) {
	if factory == nil {
		return nil, ErrNilFactory
	}

	d := &Deployer{
		factory:     factory,
		defaultMode: flow.ModeDefault,
		logger:      observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.cache == nil {
		d.cache = router.NewPatternCache(0)
	}

	return d, nil
}

// DeployAll deploys every API of cfg. Nothing is returned unless all
// APIs deploy.
func (d *Deployer) DeployAll(cfg *config.GatewayConfig) (*Table, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}

	deployments := make([]*Deployment, 0, len(cfg.APIs))
	for i := range cfg.APIs {
		dep, err := d.Deploy(&cfg.APIs[i])
		if err != nil {
			return nil, err
		}
		deployments = append(deployments, dep)
	}

	return NewTable(deployments...), nil
}

// Deploy builds the deployment of one API.
func (d *Deployer) Deploy(api *config.APIConfig) (*Deployment, error) {
	upstream, err := url.Parse(api.Upstream)
	if err != nil || upstream.Scheme == "" || upstream.Host == "" {
		return nil, &DeployError{API: api.ID, Cause: fmt.Errorf("%w: %q", ErrInvalidUpstream, api.Upstream)}
	}

	mode := d.defaultMode
	if api.FlowMode != "" {
		mode, err = flow.ParseMode(api.FlowMode)
		if err != nil {
			return nil, &DeployError{API: api.ID, Cause: err}
		}
	}

	flows, err := api.ToFlows()
	if err != nil {
		return nil, &DeployError{API: api.ID, Cause: err}
	}
	if err := flow.ValidateAll(flows); err != nil {
		return nil, &DeployError{API: api.ID, Cause: err}
	}

	res, err := resolver.New(flows,
		resolver.WithMode(mode),
		resolver.WithPatternCache(d.cache),
		resolver.WithLogger(d.logger.With(observability.String("api", api.ID))),
	)
	if err != nil {
		return nil, &DeployError{API: api.ID, Cause: err}
	}

	dep := &Deployment{
		ID:            api.ID,
		Name:          api.DisplayName(),
		ContextPath:   normalizeContextPath(api.ContextPath),
		Upstream:      upstream,
		MatchRequired: api.MatchRequired,
		Timeout:       api.Timeout.Duration(),
		resolver:      res,
		flows:         make(map[string]*DeployedFlow, len(flows)),
	}

	for _, f := range res.Flows() {
		pre, err := d.factory.CreateAll(f.Pre)
		if err != nil {
			return nil, &DeployError{API: api.ID, Flow: f.ID, Cause: err}
		}
		post, err := d.factory.CreateAll(f.Post)
		if err != nil {
			return nil, &DeployError{API: api.ID, Flow: f.ID, Cause: err}
		}
		dep.flows[f.ID] = &DeployedFlow{Flow: f, Pre: pre, Post: post}
	}

	d.logger.Info("api deployed",
		observability.String("api", dep.ID),
		observability.String("context_path", dep.ContextPath),
		observability.String("mode", string(mode)),
		observability.Int("flows", len(dep.flows)),
	)

	return dep, nil
}

func normalizeContextPath(p string) string {
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
	}
	if p == "" {
		return "/"
	}
	return p
}
