// Package circuitbreaker implements the circuit-breaker policy. The
// breaker is consulted on the request phase and told the upstream
// outcome on the response phase.
package circuitbreaker

import (
	"context"
	"errors"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/flowgate/internal/config"
	"github.com/vyrodovalexey/flowgate/internal/execution"
	policymetrics "github.com/vyrodovalexey/flowgate/internal/metrics/policy"
	"github.com/vyrodovalexey/flowgate/internal/observability"
	"github.com/vyrodovalexey/flowgate/internal/policy"
)

// ID is the policy id.
const ID = "circuit-breaker"

// KeyOpen is the failure key of requests rejected by an open breaker.
const KeyOpen = "CIRCUIT_BREAKER_OPEN"

// Defaults.
const (
	DefaultConsecutiveFailures = 5
	DefaultTimeout             = 30 * time.Second
	DefaultMaxRequests         = 1
	DefaultFailureStatus       = http.StatusInternalServerError
)

var tracer = otel.Tracer("flowgate/circuitbreaker")

// Recorder receives breaker state changes and rejections.
type Recorder interface {
	SetCircuitBreakerState(name string, state int)
	RecordCircuitBreakerTrip(name string)
	RecordCircuitBreakerRejection(name string)
}

// Config configures the policy.
type Config struct {
	Name string `yaml:"name"`

	// ConsecutiveFailures opens the breaker.
	ConsecutiveFailures int `yaml:"consecutiveFailures"`

	// Timeout is how long the breaker stays open before letting probes through.
	Timeout config.Duration `yaml:"timeout"`

	// MaxRequests is the number of probes allowed while half-open.
	MaxRequests int `yaml:"maxRequests"`

	// Interval clears the failure counts while closed. Zero never clears.
	Interval config.Duration `yaml:"interval"`

	// FailureStatus is the lowest upstream status counted as a failure.
	FailureStatus int `yaml:"failureStatus"`
}

// Validate implements policy.Validator.
func (c *Config) Validate() error {
	if c.Name == "" {
		c.Name = ID
	}
	if c.ConsecutiveFailures == 0 {
		c.ConsecutiveFailures = DefaultConsecutiveFailures
	}
	if c.Timeout == 0 {
		c.Timeout = config.Duration(DefaultTimeout)
	}
	if c.MaxRequests == 0 {
		c.MaxRequests = DefaultMaxRequests
	}
	if c.FailureStatus == 0 {
		c.FailureStatus = DefaultFailureStatus
	}
	switch {
	case c.ConsecutiveFailures < 0:
		return errors.New("consecutiveFailures must be positive")
	case c.MaxRequests < 0:
		return errors.New("maxRequests must be positive")
	case c.Timeout < 0 || c.Interval < 0:
		return errors.New("durations must not be negative")
	case c.FailureStatus < 100 || c.FailureStatus > 599:
		return errors.New("failureStatus must be a valid HTTP status code")
	}
	return nil
}

// Option configures the plugin.
type Option func(*options)

type options struct {
	recorder Recorder
	logger   observability.Logger
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

// Policy guards the upstream with a two-step breaker.
type Policy struct {
	cfg      *Config
	breaker  *gobreaker.TwoStepCircuitBreaker
	recorder Recorder
	logger   observability.Logger

	// pending holds the outcome callback of every admitted exchange
	// until its response is seen.
	pending sync.Map
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

	return policy.NewPlugin(ID, "Rejects requests while the upstream keeps failing",
		func(cfg *Config) (*Policy, error) {
			return newPolicy(cfg, o), nil
		})
}

func newPolicy(cfg *Config, o *options) *Policy {
	p := &Policy{
		cfg:      cfg,
		recorder: o.recorder,
		logger:   o.logger,
	}

	threshold := safeIntToUint32(cfg.ConsecutiveFailures)
	p.breaker = gobreaker.NewTwoStepCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: safeIntToUint32(cfg.MaxRequests),
		Interval:    cfg.Interval.Duration(),
		Timeout:     cfg.Timeout.Duration(),
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: p.onStateChange,
	})
	p.recorder.SetCircuitBreakerState(cfg.Name, policymetrics.BreakerClosed)

	return p
}

func (p *Policy) onStateChange(name string, from, to gobreaker.State) {
	p.logger.Info("circuit breaker state change",
		observability.String("name", name),
		observability.String("from", from.String()),
		observability.String("to", to.String()),
	)

	p.recorder.SetCircuitBreakerState(name, int(to))
	if to == gobreaker.StateOpen {
		p.recorder.RecordCircuitBreakerTrip(name)
	}

	_, span := tracer.Start(context.Background(), "circuitbreaker.state_change",
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	span.AddEvent("state_change", trace.WithAttributes(
		attribute.String("circuitbreaker.name", name),
		attribute.String("circuitbreaker.from", from.String()),
		attribute.String("circuitbreaker.to", to.String()),
	))
	span.End()
}

// State returns the current breaker state.
func (p *Policy) State() gobreaker.State {
	return p.breaker.State()
}

// OnRequest rejects the request while the breaker is open. An admitted
// exchange is settled by OnResponse, or when the exchange ends without
// a response phase.
func (p *Policy) OnRequest(chain policy.Chain, ctx *execution.Context) error {
	done, err := p.breaker.Allow()
	if err != nil {
		p.recorder.RecordCircuitBreakerRejection(p.cfg.Name)
		ctx.Logger().Debug("circuit breaker rejected request",
			observability.String("name", p.cfg.Name),
			observability.Error(err),
		)
		chain.FailWith(policy.Failure(http.StatusServiceUnavailable, KeyOpen, "Service temporarily unavailable"))
		return nil
	}

	var once sync.Once
	settle := func() {
		once.Do(func() {
			p.pending.Delete(ctx)
			done(ctx.Response().Status < p.cfg.FailureStatus)
		})
	}
	p.pending.Store(ctx, settle)
	ctx.OnEnd(settle)

	chain.DoNext()
	return nil
}

// OnResponse reports the upstream outcome to the breaker.
func (p *Policy) OnResponse(chain policy.Chain, ctx *execution.Context) error {
	if settle, ok := p.pending.Load(ctx); ok {
		settle.(func())()
	}
	chain.DoNext()
	return nil
}

// safeIntToUint32 safely converts int to uint32.
func safeIntToUint32(n int) uint32 {
	if n < 0 {
		return 0
	}
	if n > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(n) //nolint:gosec // bounds checked above
}
