// Package basicauth implements the basic-auth policy, which checks HTTP
// Basic credentials against bcrypt hashes.
package basicauth

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/vyrodovalexey/flowgate/internal/execution"
	policymetrics "github.com/vyrodovalexey/flowgate/internal/metrics/policy"
	"github.com/vyrodovalexey/flowgate/internal/policy"
)

// ID is the policy id.
const ID = "basic-auth"

// KeyUnauthorized is the failure key of rejected requests.
const KeyUnauthorized = "BASIC_AUTH_UNAUTHORIZED"

// DefaultAttribute is the attribute receiving the authenticated user.
const DefaultAttribute = "auth.user"

const authType = "basic"

// Failure reasons.
const (
	ReasonMissing     = "missing_credentials"
	ReasonMalformed   = "malformed_credentials"
	ReasonUnknownUser = "unknown_user"
	ReasonBadPassword = "invalid_password"
)

// dummyHash is compared against when the user is unknown so that both
// paths cost one bcrypt comparison.
var dummyHash = []byte("$2a$10$7EqJtq98hPqEX7fNZaFWoOhi5BWX4Z3ZWsZhJ9CjQwVYfc6kQXbZi")

// Recorder receives authentication outcomes.
type Recorder interface {
	RecordAuthFailure(authType, reason string)
	RecordAuthSuccess(authType string)
}

// Config configures the policy.
type Config struct {
	// Users maps user names to bcrypt password hashes.
	Users map[string]string `yaml:"users"`

	Realm string `yaml:"realm"`

	// Attribute receives the authenticated user name.
	Attribute string `yaml:"attribute"`

	// RemoveHeader strips the Authorization header before the request
	// is forwarded.
	RemoveHeader bool `yaml:"removeHeader"`
}

// Validate implements policy.Validator.
func (c *Config) Validate() error {
	if len(c.Users) == 0 {
		return errors.New("at least one user is required")
	}
	for user, hash := range c.Users {
		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return fmt.Errorf("user %s: invalid bcrypt hash: %w", user, err)
		}
	}
	if c.Realm == "" {
		c.Realm = "flowgate"
	}
	if c.Attribute == "" {
		c.Attribute = DefaultAttribute
	}
	return nil
}

// Option configures the plugin.
type Option func(*Policy)

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(p *Policy) {
		p.recorder = r
	}
}

// Policy authenticates requests.
type Policy struct {
	cfg      *Config
	recorder Recorder
}

// Plugin returns the policy plugin.
func Plugin(opts ...Option) policy.Plugin {
	return policy.NewPlugin(ID, "Authenticates requests with HTTP Basic credentials",
		func(cfg *Config) (*Policy, error) {
			p := &Policy{cfg: cfg, recorder: policymetrics.GetPolicyMetrics()}
			for _, opt := range opts {
				opt(p)
			}
			return p, nil
		})
}

// OnRequest checks the credentials of the request.
func (p *Policy) OnRequest(chain policy.Chain, ctx *execution.Context) error {
	headers := ctx.Request().Headers
	user, reason := p.authenticate(headers.Get("Authorization"))
	if reason != "" {
		p.recorder.RecordAuthFailure(authType, reason)
		ctx.Logger().Debug("basic authentication failed")
		ctx.Response().Headers.Set("WWW-Authenticate", fmt.Sprintf("Basic realm=%q", p.cfg.Realm))
		chain.FailWith(policy.Failure(http.StatusUnauthorized, KeyUnauthorized, "Unauthorized"))
		return nil
	}

	p.recorder.RecordAuthSuccess(authType)
	ctx.SetAttribute(p.cfg.Attribute, user)
	if p.cfg.RemoveHeader {
		headers.Del("Authorization")
	}
	chain.DoNext()
	return nil
}

// authenticate returns the user name, or the reason of the failure.
func (p *Policy) authenticate(header string) (user, reason string) {
	if header == "" {
		return "", ReasonMissing
	}

	scheme, encoded, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Basic") {
		return "", ReasonMalformed
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return "", ReasonMalformed
	}
	user, password, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return "", ReasonMalformed
	}

	hash, known := p.cfg.Users[user]
	if !known {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return "", ReasonUnknownUser
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return "", ReasonBadPassword
	}
	return user, ""
}
