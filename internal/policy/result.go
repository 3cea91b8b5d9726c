package policy

import (
	"errors"
	"fmt"
	"net/http"
)

// Status is the terminal status of a chain traversal.
type Status int

// Result statuses.
const (
	StatusSuccess Status = iota
	StatusFailure
)

// String returns the status name.
func (s Status) String() string {
	if s == StatusSuccess {
		return "SUCCESS"
	}
	return "FAILURE"
}

// Result is the terminal value of a chain traversal.
type Result struct {
	Status      Status
	StatusCode  int
	Message     string
	Key         string
	ContentType string

	// Err describes why a failure happened. It is nil for successes and
	// for failures declared without an underlying error.
	Err error

	// Interrupted is set when the traversal stopped before its last
	// policy because the execution context was interrupted.
	Interrupted bool
}

// Success returns a successful result.
func Success() Result {
	return Result{Status: StatusSuccess}
}

// Failure returns a declared failure result.
func Failure(statusCode int, key, message string) Result {
	return Result{
		Status:     StatusFailure,
		StatusCode: statusCode,
		Key:        key,
		Message:    message,
	}
}

// IsSuccess reports whether the result is a success.
func (r Result) IsSuccess() bool {
	return r.Status == StatusSuccess
}

// IsFailure reports whether the result is a failure.
func (r Result) IsFailure() bool {
	return r.Status == StatusFailure
}

// String returns a compact representation for logs.
func (r Result) String() string {
	if r.IsSuccess() {
		if r.Interrupted {
			return "SUCCESS(interrupted)"
		}
		return "SUCCESS"
	}
	return fmt.Sprintf("FAILURE(%d %s: %s)", r.StatusCode, r.Key, r.Message)
}

// Keys of failures produced by the engine itself.
const (
	KeyPolicyError      = "POLICY_ERROR"
	KeyConditionError   = "POLICY_CONDITION_ERROR"
	KeyFlowNotFound     = "GATEWAY_FLOW_NOT_FOUND"
	KeyGatewayTimeout   = "GATEWAY_TIMEOUT"
	KeyUpstreamError    = "GATEWAY_UPSTREAM_ERROR"
	KeyContentError     = "POLICY_CONTENT_ERROR"
	KeyNoAPI            = "GATEWAY_API_NOT_FOUND"
	defaultErrorMessage = "An error occurred while executing policy"
)

// ErrorResult converts an error returned or raised by a policy into a
// failure result, keeping condition errors distinguishable.
func ErrorResult(policyID string, phase Phase, err error) Result {
	var (
		condErr *ConditionError
		execErr *ExecutionError
		declErr *DeclaredFailureError
	)

	switch {
	case errors.As(err, &declErr):
		r := declErr.Result
		r.Err = declErr
		return r
	case errors.As(err, &condErr):
		return Result{
			Status:     StatusFailure,
			StatusCode: http.StatusInternalServerError,
			Key:        KeyConditionError,
			Message:    defaultErrorMessage,
			Err:        condErr,
		}
	case errors.As(err, &execErr):
		return Result{
			Status:     StatusFailure,
			StatusCode: http.StatusInternalServerError,
			Key:        KeyPolicyError,
			Message:    defaultErrorMessage,
			Err:        execErr,
		}
	}

	return Result{
		Status:     StatusFailure,
		StatusCode: http.StatusInternalServerError,
		Key:        KeyPolicyError,
		Message:    defaultErrorMessage,
		Err:        &ExecutionError{PolicyID: policyID, Phase: phase, Cause: err},
	}
}
