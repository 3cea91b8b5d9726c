// Package jwt implements the jwt policy, which validates bearer tokens
// and exports their claims as context attributes.
package jwt

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/vyrodovalexey/flowgate/internal/config"
	"github.com/vyrodovalexey/flowgate/internal/execution"
	policymetrics "github.com/vyrodovalexey/flowgate/internal/metrics/policy"
	"github.com/vyrodovalexey/flowgate/internal/observability"
	"github.com/vyrodovalexey/flowgate/internal/policy"
)

// ID is the policy id.
const ID = "jwt"

// KeyUnauthorized is the failure key of rejected requests.
const KeyUnauthorized = "JWT_UNAUTHORIZED"

// Attributes set on success.
const (
	DefaultClaimsAttribute  = "jwt.claims"
	DefaultSubjectAttribute = "auth.user"
)

const authType = "jwt"

// Failure reasons.
const (
	ReasonMissing       = "missing_token"
	ReasonInvalid       = "invalid_token"
	ReasonExpired       = "expired_token"
	ReasonInvalidClaims = "invalid_claims"
)

// Recorder receives authentication outcomes.
type Recorder interface {
	RecordAuthFailure(authType, reason string)
	RecordAuthSuccess(authType string)
}

// Config configures the policy. HMAC algorithms use Secret, the others
// use the PEM encoded PublicKey.
type Config struct {
	Algorithm string `yaml:"algorithm"`
	Secret    string `yaml:"secret"`
	PublicKey string `yaml:"publicKey"`

	Issuer         string          `yaml:"issuer"`
	Audience       string          `yaml:"audience"`
	RequiredClaims []string        `yaml:"requiredClaims"`
	ClockSkew      config.Duration `yaml:"clockSkew"`

	// Header carries the token, with an optional "Bearer " prefix.
	Header string `yaml:"header"`

	ClaimsAttribute  string `yaml:"claimsAttribute"`
	SubjectAttribute string `yaml:"subjectAttribute"`

	// RemoveHeader strips the token header before the request is forwarded.
	RemoveHeader bool `yaml:"removeHeader"`

	alg jwa.SignatureAlgorithm
	key any
}

// Validate implements policy.Validator.
func (c *Config) Validate() error {
	if c.Algorithm == "" {
		c.Algorithm = jwa.HS256.String()
	}
	if err := c.alg.Accept(strings.ToUpper(c.Algorithm)); err != nil {
		return fmt.Errorf("invalid algorithm: %w", err)
	}

	switch c.alg {
	case jwa.HS256, jwa.HS384, jwa.HS512:
		if c.Secret == "" {
			return errors.New("secret is required for HMAC algorithms")
		}
		c.key = []byte(c.Secret)
	case jwa.NoSignature:
		return errors.New("unsigned tokens are not accepted")
	default:
		if c.PublicKey == "" {
			return fmt.Errorf("publicKey is required for %s", c.alg)
		}
		key, err := jwk.ParseKey([]byte(c.PublicKey), jwk.WithPEM(true))
		if err != nil {
			return fmt.Errorf("invalid publicKey: %w", err)
		}
		c.key = key
	}

	if c.ClockSkew < 0 {
		return errors.New("clockSkew must not be negative")
	}
	if c.Header == "" {
		c.Header = "Authorization"
	}
	if c.ClaimsAttribute == "" {
		c.ClaimsAttribute = DefaultClaimsAttribute
	}
	if c.SubjectAttribute == "" {
		c.SubjectAttribute = DefaultSubjectAttribute
	}
	return nil
}

func (c *Config) parseOptions() []jwt.ParseOption {
	opts := []jwt.ParseOption{
		jwt.WithKey(c.alg, c.key),
		jwt.WithValidate(true),
		jwt.WithAcceptableSkew(c.ClockSkew.Duration()),
	}
	if c.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.Issuer))
	}
	if c.Audience != "" {
		opts = append(opts, jwt.WithAudience(c.Audience))
	}
	for _, claim := range c.RequiredClaims {
		opts = append(opts, jwt.WithRequiredClaim(claim))
	}
	return opts
}

// Option configures the plugin.
type Option func(*Policy)

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(p *Policy) {
		p.recorder = r
	}
}

// WithClock overrides the clock used to check time based claims.
func WithClock(now func() time.Time) Option {
	return func(p *Policy) {
		p.now = now
	}
}

// Policy validates bearer tokens.
type Policy struct {
	cfg      *Config
	opts     []jwt.ParseOption
	recorder Recorder
	now      func() time.Time
}

// Plugin returns the policy plugin.
func Plugin(opts ...Option) policy.Plugin {
	return policy.NewPlugin(ID, "Validates JWT bearer tokens and exports their claims",
		func(cfg *Config) (*Policy, error) {
			p := &Policy{
				cfg:      cfg,
				recorder: policymetrics.GetPolicyMetrics(),
			}
			for _, opt := range opts {
				opt(p)
			}
			p.opts = cfg.parseOptions()
			if p.now != nil {
				p.opts = append(p.opts, jwt.WithClock(jwt.ClockFunc(p.now)))
			}
			return p, nil
		})
}

// OnRequest validates the token of the request.
func (p *Policy) OnRequest(chain policy.Chain, ctx *execution.Context) error {
	headers := ctx.Request().Headers

	raw := bearer(headers.Get(p.cfg.Header))
	if raw == "" {
		p.reject(chain, ctx, ReasonMissing, nil)
		return nil
	}

	token, err := jwt.ParseString(raw, p.opts...)
	if err != nil {
		p.reject(chain, ctx, reason(err), err)
		return nil
	}

	claims, err := token.AsMap(ctx.Context())
	if err != nil {
		return fmt.Errorf("failed to read claims: %w", err)
	}

	p.recorder.RecordAuthSuccess(authType)
	ctx.SetAttribute(p.cfg.ClaimsAttribute, claims)
	if sub := token.Subject(); sub != "" {
		ctx.SetAttribute(p.cfg.SubjectAttribute, sub)
	}
	if p.cfg.RemoveHeader {
		headers.Del(p.cfg.Header)
	}

	chain.DoNext()
	return nil
}

func (p *Policy) reject(chain policy.Chain, ctx *execution.Context, reason string, err error) {
	p.recorder.RecordAuthFailure(authType, reason)
	fields := []observability.Field{observability.String("reason", reason)}
	if err != nil {
		fields = append(fields, observability.Error(err))
	}
	ctx.Logger().Debug("jwt validation failed", fields...)

	ctx.Response().Headers.Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	chain.FailWith(policy.Failure(http.StatusUnauthorized, KeyUnauthorized, "Unauthorized"))
}

func bearer(header string) string {
	header = strings.TrimSpace(header)
	if scheme, token, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return header
}

func reason(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired()):
		return ReasonExpired
	case jwt.IsValidationError(err):
		return ReasonInvalidClaims
	default:
		return ReasonInvalid
	}
}
