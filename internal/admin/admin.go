// Package admin provides the read-only admin API of the gateway: health,
// deployed APIs with their flows, and registered policies.
package admin

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/flowgate/internal/flow"
	"github.com/vyrodovalexey/flowgate/internal/gateway"
	"github.com/vyrodovalexey/flowgate/internal/observability"
	"github.com/vyrodovalexey/flowgate/internal/policy"
)

// TableSource provides the deployment table currently served.
type TableSource interface {
	Table() *gateway.Table
}

// API serves the admin endpoints.
type API struct {
	source    TableSource
	registry  *policy.Registry
	logger    observability.Logger
	startTime time.Time
	engine    *gin.Engine
}

// Option is a functional option for the admin API.
type Option func(*API)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(a *API) {
		a.logger = logger
	}
}

// WithStartTime sets the time reported as gateway start.
func WithStartTime(t time.Time) Option {
	return func(a *API) {
		a.startTime = t
	}
}

// New creates the admin API over source and registry.
func New(source TableSource, registry *policy.Registry, opts ...Option) *API {
	a := &API{
		source:    source,
		registry:  registry,
		logger:    observability.NopLogger(),
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(a)
	}

	a.engine = gin.New()
	a.engine.Use(recovery(a.logger), logging(a.logger))
	a.engine.GET("/health", a.health)
	a.engine.GET("/apis", a.listAPIs)
	a.engine.GET("/apis/:id", a.getAPI)
	a.engine.GET("/policies", a.listPolicies)
	a.engine.GET("/policies/:id", a.getPolicy)

	return a
}

// Handler returns the HTTP handler of the admin API.
func (a *API) Handler() http.Handler {
	return a.engine
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	APIs     int    `json:"apis"`
	Policies int    `json:"policies"`
	Uptime   string `json:"uptime"`
}

// PolicyRefView describes a deployed policy reference.
type PolicyRefView struct {
	Policy   string   `json:"policy"`
	Name     string   `json:"name"`
	Phases   []string `json:"phases"`
	Guarded  bool     `json:"guarded"`
	Disabled bool     `json:"disabled,omitempty"`
}

// FlowView describes a deployed flow.
type FlowView struct {
	ID        string          `json:"id"`
	Name      string          `json:"name,omitempty"`
	Path      string          `json:"path"`
	Operator  string          `json:"operator"`
	Methods   []string        `json:"methods,omitempty"`
	Condition string          `json:"condition,omitempty"`
	Pre       []PolicyRefView `json:"pre"`
	Post      []PolicyRefView `json:"post"`
}

// APIView describes a deployed API.
type APIView struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	ContextPath   string     `json:"contextPath"`
	Upstream      string     `json:"upstream"`
	Mode          string     `json:"mode"`
	MatchRequired bool       `json:"matchRequired"`
	Timeout       string     `json:"timeout,omitempty"`
	Flows         []FlowView `json:"flows"`
}

// PolicyView describes a registered policy.
type PolicyView struct {
	ID            string   `json:"id"`
	Description   string   `json:"description"`
	Strategy      string   `json:"strategy"`
	Phases        []string `json:"phases"`
	Configuration string   `json:"configuration,omitempty"`
}

func (a *API) health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:   "ok",
		APIs:     a.source.Table().Len(),
		Policies: len(a.registry.Manifests()),
		Uptime:   time.Since(a.startTime).Truncate(time.Second).String(),
	})
}

func (a *API) listAPIs(c *gin.Context) {
	deployments := a.source.Table().Deployments()
	out := make([]APIView, 0, len(deployments))
	for _, d := range deployments {
		out = append(out, a.apiView(d))
	}
	c.JSON(http.StatusOK, out)
}

func (a *API) getAPI(c *gin.Context) {
	id := c.Param("id")
	for _, d := range a.source.Table().Deployments() {
		if d.ID == id {
			c.JSON(http.StatusOK, a.apiView(d))
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "api not found", "id": id})
}

func (a *API) listPolicies(c *gin.Context) {
	manifests := a.registry.Manifests()
	out := make([]PolicyView, 0, len(manifests))
	for _, m := range manifests {
		out = append(out, policyView(m))
	}
	c.JSON(http.StatusOK, out)
}

func (a *API) getPolicy(c *gin.Context) {
	id := c.Param("id")
	m, ok := a.registry.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "policy not found", "id": id})
		return
	}
	c.JSON(http.StatusOK, policyView(m))
}

func (a *API) apiView(d *gateway.Deployment) APIView {
	v := APIView{
		ID:            d.ID,
		Name:          d.Name,
		ContextPath:   d.ContextPath,
		Upstream:      d.Upstream.String(),
		Mode:          string(d.Mode()),
		MatchRequired: d.MatchRequired,
	}
	if d.Timeout > 0 {
		v.Timeout = d.Timeout.String()
	}

	for _, df := range d.Flows() {
		v.Flows = append(v.Flows, FlowView{
			ID:        df.Flow.ID,
			Name:      df.Flow.Name,
			Path:      df.Flow.PathOperator.Pattern,
			Operator:  string(df.Flow.PathOperator.Operator),
			Methods:   df.Flow.Methods,
			Condition: df.Flow.Condition,
			Pre:       a.refViews(df.Flow.Pre),
			Post:      a.refViews(df.Flow.Post),
		})
	}
	if v.Flows == nil {
		v.Flows = []FlowView{}
	}
	return v
}

func (a *API) refViews(refs []flow.PolicyRef) []PolicyRefView {
	out := make([]PolicyRefView, 0, len(refs))
	for _, ref := range refs {
		view := PolicyRefView{
			Policy:   ref.Policy,
			Name:     ref.DisplayName(),
			Guarded:  ref.Condition != "",
			Disabled: !ref.Enabled,
			Phases:   []string{},
		}
		if m, ok := a.registry.Get(ref.Policy); ok {
			view.Phases = phaseNames(m.Phases())
		}
		out = append(out, view)
	}
	return out
}

func policyView(m *policy.Manifest) PolicyView {
	v := PolicyView{
		ID:          m.ID,
		Description: m.Description,
		Strategy:    string(m.Strategy),
		Phases:      phaseNames(m.Phases()),
	}
	if m.ConfigurationType != nil {
		v.Configuration = m.ConfigurationType.String()
	}
	return v
}

func phaseNames(phases []policy.Phase) []string {
	out := make([]string, len(phases))
	for i, p := range phases {
		out[i] = p.String()
	}
	return out
}
