// Package ratelimit implements the rate-limit policy. Limits are kept
// in process with a token bucket per key, or shared between gateway
// instances with a redis fixed window.
package ratelimit

import (
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vyrodovalexey/flowgate/internal/config"
	"github.com/vyrodovalexey/flowgate/internal/el"
	"github.com/vyrodovalexey/flowgate/internal/execution"
	policymetrics "github.com/vyrodovalexey/flowgate/internal/metrics/policy"
	"github.com/vyrodovalexey/flowgate/internal/observability"
	"github.com/vyrodovalexey/flowgate/internal/policy"
)

// ID is the policy id.
const ID = "rate-limit"

// KeyTooManyRequests is the failure key of rejected requests.
const KeyTooManyRequests = "RATE_LIMIT_TOO_MANY_REQUESTS"

// Rate limit response headers.
const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderRetryAfter = "Retry-After"
)

// ErrRedisNotConfigured is returned when a redis store is requested but
// the plugin has no redis client.
var ErrRedisNotConfigured = errors.New("redis store requested but no redis client is configured")

// Recorder receives rate limit hits.
type Recorder interface {
	RecordRateLimitHit(store string)
}

// Config configures the policy.
type Config struct {
	// Requests is the number of requests allowed per Window.
	Requests int `yaml:"requests"`

	Window config.Duration `yaml:"window"`

	// Burst bounds the local token bucket. Defaults to Requests.
	Burst int `yaml:"burst"`

	// Key is an expression producing the client key. Defaults to the
	// client address.
	Key string `yaml:"key"`

	// Store is local or redis.
	Store string `yaml:"store"`

	// Headers adds X-RateLimit-* headers to responses.
	Headers bool `yaml:"headers"`
}

// Validate implements policy.Validator.
func (c *Config) Validate() error {
	if c.Requests <= 0 {
		return errors.New("requests must be positive")
	}
	if c.Window == 0 {
		c.Window = config.Duration(time.Second)
	}
	if c.Window < 0 {
		return errors.New("window must not be negative")
	}
	if c.Burst <= 0 {
		c.Burst = c.Requests
	}
	c.Store = strings.ToLower(strings.TrimSpace(c.Store))
	switch c.Store {
	case "":
		c.Store = StoreLocal
	case StoreLocal, StoreRedis:
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}
	return nil
}

// Option configures the plugin.
type Option func(*options)

type options struct {
	redis    redis.Scripter
	prefix   string
	recorder Recorder
	logger   observability.Logger
}

// WithRedis enables the redis store. Keys are prefixed with prefix.
func WithRedis(client redis.Scripter, prefix string) Option {
	return func(o *options) {
		o.redis = client
		o.prefix = prefix
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(o *options) {
		o.recorder = r
	}
}

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Policy limits the request rate per key.
type Policy struct {
	cfg      *Config
	limiter  Limiter
	fallback Limiter
	recorder Recorder
	logger   observability.Logger
}

// Plugin returns the policy plugin.
func Plugin(opts ...Option) policy.Plugin {
	o := &options{
		recorder: policymetrics.GetPolicyMetrics(),
		logger:   observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(o)
	}

	return policy.NewPlugin(ID, "Limits the request rate per client key",
		func(cfg *Config) (*Policy, error) {
			return newPolicy(cfg, o)
		})
}

func newPolicy(cfg *Config, o *options) (*Policy, error) {
	local := newLocalLimiter(cfg.Requests, cfg.Window.Duration(), cfg.Burst)
	p := &Policy{
		cfg:      cfg,
		limiter:  local,
		recorder: o.recorder,
		logger:   o.logger,
	}

	if cfg.Store == StoreRedis {
		if o.redis == nil {
			return nil, ErrRedisNotConfigured
		}
		p.limiter = newRedisLimiter(o.redis, o.prefix+"ratelimit:", cfg.Requests, cfg.Window.Duration())
		p.fallback = local
	}

	return p, nil
}

// OnRequest admits or rejects the request.
func (p *Policy) OnRequest(chain policy.Chain, ctx *execution.Context) error {
	key, err := p.key(ctx)
	if err != nil {
		return err
	}

	d, err := p.limiter.Allow(ctx.Context(), key)
	if err != nil {
		if p.fallback == nil {
			return err
		}
		p.logger.Warn("rate limit store unavailable, using local limiter",
			observability.Error(err),
		)
		if d, err = p.fallback.Allow(ctx.Context(), key); err != nil {
			return err
		}
	}

	if p.cfg.Headers {
		h := ctx.Response().Headers
		h.Set(HeaderLimit, strconv.Itoa(d.Limit))
		h.Set(HeaderRemaining, strconv.Itoa(d.Remaining))
	}

	if !d.Allowed {
		p.recorder.RecordRateLimitHit(p.cfg.Store)
		ctx.Logger().Debug("rate limit exceeded", observability.String("key", key))

		ctx.Response().Headers.Set(HeaderRetryAfter, retryAfterSeconds(d.RetryAfter))
		chain.FailWith(policy.Failure(http.StatusTooManyRequests, KeyTooManyRequests, "Rate limit exceeded"))
		return nil
	}

	chain.DoNext()
	return nil
}

func (p *Policy) key(ctx *execution.Context) (string, error) {
	if p.cfg.Key == "" {
		return clientAddress(ctx.Request().RemoteAddr), nil
	}
	v, err := ctx.Evaluate(p.cfg.Key, el.KindAny)
	if err != nil {
		return "", fmt.Errorf("rate limit key: %w", err)
	}
	return fmt.Sprint(v), nil
}

func clientAddress(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}

func retryAfterSeconds(d time.Duration) string {
	return strconv.Itoa(max(int(math.Ceil(d.Seconds())), 1))
}
