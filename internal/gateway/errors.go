// Package gateway provides the request stage of the gateway: API
// deployments, the HTTP handler driving flows and policy chains, and
// the server lifecycle.
package gateway

import (
	"errors"
	"fmt"
)

// Sentinel errors for gateway operations.
var (
	// ErrNilConfig indicates that no configuration was provided.
	ErrNilConfig = errors.New("configuration is nil")

	// ErrNilFactory indicates that no policy factory was provided.
	ErrNilFactory = errors.New("policy factory is nil")

	// ErrInvalidUpstream indicates that the upstream URL of an API is invalid.
	ErrInvalidUpstream = errors.New("invalid upstream URL")

	// ErrNotRunning indicates that the server is not running.
	ErrNotRunning = errors.New("server is not running")

	// ErrNotStopped indicates that the server is not in stopped state.
	ErrNotStopped = errors.New("server is not in stopped state")
)

// DeployError reports a failure to deploy one API.
type DeployError struct {
	API   string
	Flow  string
	Cause error
}

// Error implements the error interface.
func (e *DeployError) Error() string {
	if e.Flow != "" {
		return fmt.Sprintf("failed to deploy api %s flow %s: %v", e.API, e.Flow, e.Cause)
	}
	return fmt.Sprintf("failed to deploy api %s: %v", e.API, e.Cause)
}

// Unwrap returns the underlying error.
func (e *DeployError) Unwrap() error {
	return e.Cause
}
