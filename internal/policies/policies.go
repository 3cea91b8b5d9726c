// Package policies registers the built-in policy plugins of the gateway.
package policies

import (
	"github.com/redis/go-redis/v9"

	policymetrics "github.com/vyrodovalexey/flowgate/internal/metrics/policy"
	"github.com/vyrodovalexey/flowgate/internal/observability"
	"github.com/vyrodovalexey/flowgate/internal/policies/attributes"
	"github.com/vyrodovalexey/flowgate/internal/policies/basicauth"
	"github.com/vyrodovalexey/flowgate/internal/policies/circuitbreaker"
	"github.com/vyrodovalexey/flowgate/internal/policies/headers"
	"github.com/vyrodovalexey/flowgate/internal/policies/jwt"
	"github.com/vyrodovalexey/flowgate/internal/policies/mock"
	"github.com/vyrodovalexey/flowgate/internal/policies/ratelimit"
	"github.com/vyrodovalexey/flowgate/internal/policies/transformcase"
	"github.com/vyrodovalexey/flowgate/internal/policy"
)

// Option configures the built-in plugins.
type Option func(*options)

type options struct {
	redis       redis.Scripter
	redisPrefix string
	metrics     *policymetrics.PolicyMetrics
	logger      observability.Logger
}

// WithRedis enables the distributed rate limit store.
func WithRedis(client redis.Scripter, prefix string) Option {
	return func(o *options) {
		o.redis = client
		o.redisPrefix = prefix
	}
}

// WithMetrics sets the metrics receiving policy outcomes.
func WithMetrics(m *policymetrics.PolicyMetrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Plugins returns the built-in plugins.
func Plugins(opts ...Option) []policy.Plugin {
	o := &options{
		metrics: policymetrics.GetPolicyMetrics(),
		logger:  observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(o)
	}

	rateLimitOpts := []ratelimit.Option{
		ratelimit.WithRecorder(o.metrics),
		ratelimit.WithLogger(o.logger),
	}
	if o.redis != nil {
		rateLimitOpts = append(rateLimitOpts, ratelimit.WithRedis(o.redis, o.redisPrefix))
	}

	return []policy.Plugin{
		headers.Plugin(),
		mock.Plugin(),
		transformcase.Plugin(),
		attributes.Plugin(),
		ratelimit.Plugin(rateLimitOpts...),
		circuitbreaker.Plugin(
			circuitbreaker.WithRecorder(o.metrics),
			circuitbreaker.WithLogger(o.logger),
		),
		basicauth.Plugin(basicauth.WithRecorder(o.metrics)),
		jwt.Plugin(jwt.WithRecorder(o.metrics)),
	}
}

// Register registers the built-in plugins with registry.
func Register(registry *policy.Registry, opts ...Option) error {
	for _, p := range Plugins(opts...) {
		if _, err := registry.Register(p); err != nil {
			return err
		}
	}
	return nil
}
