package config

import (
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults.
const (
	DefaultServerAddress   = ":8080"
	DefaultAdminAddress    = ":8081"
	DefaultMetricsAddress  = ":9090"
	DefaultMetricsPath     = "/metrics"
	DefaultServiceName     = "flowgate"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultRequestTimeout  = 30 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultRedisPrefix     = "flowgate:"
)

// GatewayConfig is the root configuration document.
type GatewayConfig struct {
	Server  ServerConfig  `yaml:"server" json:"server"`
	Admin   AdminConfig   `yaml:"admin" json:"admin"`
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
	Tracing TracingConfig `yaml:"tracing" json:"tracing"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
	Engine  EngineConfig  `yaml:"engine" json:"engine"`
	Redis   RedisConfig   `yaml:"redis" json:"redis"`
	APIs    []APIConfig   `yaml:"apis" json:"apis"`
}

// ServerConfig configures the gateway listener.
type ServerConfig struct {
	Address         string   `yaml:"address" json:"address"`
	ReadTimeout     Duration `yaml:"readTimeout" json:"readTimeout"`
	WriteTimeout    Duration `yaml:"writeTimeout" json:"writeTimeout"`
	IdleTimeout     Duration `yaml:"idleTimeout" json:"idleTimeout"`
	RequestTimeout  Duration `yaml:"requestTimeout" json:"requestTimeout"`
	ShutdownTimeout Duration `yaml:"shutdownTimeout" json:"shutdownTimeout"`
}

// AdminConfig configures the admin API.
type AdminConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Address string `yaml:"address" json:"address"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Address string `yaml:"address" json:"address"`
	Path    string `yaml:"path" json:"path"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	ServiceName  string  `yaml:"serviceName" json:"serviceName"`
	OTLPEndpoint string  `yaml:"otlpEndpoint" json:"otlpEndpoint"`
	SamplingRate float64 `yaml:"samplingRate" json:"samplingRate"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	Output string `yaml:"output" json:"output"`
}

// EngineConfig configures the flow engine.
type EngineConfig struct {
	// Strategy is the policy dispatch strategy: interface, cached or reflective.
	Strategy string `yaml:"strategy" json:"strategy"`

	// FlowMode is the default flow mode of APIs: DEFAULT or BEST_MATCH.
	FlowMode string `yaml:"flowMode" json:"flowMode"`

	// PatternCacheSize bounds the compiled path pattern cache.
	PatternCacheSize int `yaml:"patternCacheSize" json:"patternCacheSize"`
}

// RedisConfig configures the redis client used by distributed policies.
type RedisConfig struct {
	Address  string `yaml:"address" json:"address"`
	Password string `yaml:"password" json:"-"`
	DB       int    `yaml:"db" json:"db"`
	Prefix   string `yaml:"prefix" json:"prefix"`
}

// Enabled reports whether a redis address is configured.
func (r RedisConfig) Enabled() bool {
	return r.Address != ""
}

// APIConfig defines one API served by the gateway.
type APIConfig struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	ContextPath string `yaml:"contextPath" json:"contextPath"`

	// Upstream is the base URL requests are forwarded to.
	Upstream string `yaml:"upstream" json:"upstream"`

	// FlowMode overrides the engine flow mode.
	FlowMode string `yaml:"flowMode" json:"flowMode"`

	// MatchRequired rejects requests no flow applies to.
	MatchRequired bool `yaml:"matchRequired" json:"matchRequired"`

	// Timeout overrides the server request timeout.
	Timeout Duration `yaml:"timeout" json:"timeout"`

	Flows []FlowConfig `yaml:"flows" json:"flows"`
}

// FlowConfig defines one flow of an API.
type FlowConfig struct {
	Name      string            `yaml:"name" json:"name"`
	Enabled   *bool             `yaml:"enabled" json:"enabled"`
	Path      string            `yaml:"path" json:"path"`
	Operator  string            `yaml:"operator" json:"operator"`
	Methods   []string          `yaml:"methods" json:"methods"`
	Condition string            `yaml:"condition" json:"condition"`
	Pre       []PolicyRefConfig `yaml:"pre" json:"pre"`
	Post      []PolicyRefConfig `yaml:"post" json:"post"`
}

// PolicyRefConfig references a policy from a flow.
type PolicyRefConfig struct {
	Policy    string `yaml:"policy" json:"policy"`
	Name      string `yaml:"name" json:"name"`
	Enabled   *bool  `yaml:"enabled" json:"enabled"`
	Condition string `yaml:"condition" json:"condition"`

	// Configuration is decoded by the policy itself.
	Configuration yaml.Node `yaml:"configuration" json:"-"`
}

// DefaultConfig returns a configuration with every default applied and
// no APIs.
func DefaultConfig() *GatewayConfig {
	cfg := &GatewayConfig{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills in unset fields.
func (c *GatewayConfig) ApplyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = DefaultServerAddress
	}
	setDuration(&c.Server.ReadTimeout, DefaultReadTimeout)
	setDuration(&c.Server.WriteTimeout, DefaultWriteTimeout)
	setDuration(&c.Server.IdleTimeout, DefaultIdleTimeout)
	setDuration(&c.Server.RequestTimeout, DefaultRequestTimeout)
	setDuration(&c.Server.ShutdownTimeout, DefaultShutdownTimeout)

	if c.Admin.Address == "" {
		c.Admin.Address = DefaultAdminAddress
	}
	if c.Metrics.Address == "" {
		c.Metrics.Address = DefaultMetricsAddress
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = DefaultServiceName
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = DefaultRedisPrefix
	}
}

func setDuration(d *Duration, def time.Duration) {
	if *d == 0 {
		*d = Duration(def)
	}
}
