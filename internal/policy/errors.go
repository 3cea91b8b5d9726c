package policy

import (
	"errors"
	"fmt"
)

// Sentinel errors for the error kinds surfaced by chains.
var (
	// ErrPolicyExecution matches uncaught policy errors and panics, and
	// condition evaluation errors which surface as execution errors.
	ErrPolicyExecution = errors.New("policy execution failed")

	// ErrConditionEvaluation matches execution condition failures.
	ErrConditionEvaluation = errors.New("policy condition evaluation failed")

	// ErrPolicyDeclaredFailure matches failures declared through FailWith.
	ErrPolicyDeclaredFailure = errors.New("policy declared failure")

	// ErrUnknownPolicy is returned when a reference names an unregistered policy.
	ErrUnknownPolicy = errors.New("unknown policy")

	// ErrPhaseNotSupported is returned when a policy is invoked for a
	// phase its manifest does not declare.
	ErrPhaseNotSupported = errors.New("phase not supported by policy")
)

// ExecutionError is an uncaught error or recovered panic from a policy phase.
type ExecutionError struct {
	PolicyID string
	Phase    Phase
	Cause    error
	Panic    bool
}

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	if e.Panic {
		return fmt.Sprintf("policy %s panicked during %s: %v", e.PolicyID, e.Phase, e.Cause)
	}
	return fmt.Sprintf("policy %s failed during %s: %v", e.PolicyID, e.Phase, e.Cause)
}

// Unwrap returns the underlying error.
func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *ExecutionError) Is(target error) bool {
	return target == ErrPolicyExecution
}

// ConditionError is a failed evaluation of a policy execution condition.
type ConditionError struct {
	PolicyID  string
	Phase     Phase
	Condition string
	Cause     error
}

// Error implements the error interface.
func (e *ConditionError) Error() string {
	return fmt.Sprintf("condition %q of policy %s failed during %s: %v",
		e.Condition, e.PolicyID, e.Phase, e.Cause)
}

// Unwrap returns the underlying error.
func (e *ConditionError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *ConditionError) Is(target error) bool {
	return target == ErrConditionEvaluation || target == ErrPolicyExecution
}

// DeclaredFailureError records a failure a policy declared with FailWith.
type DeclaredFailureError struct {
	PolicyID string
	Phase    Phase
	Result   Result
}

// Error implements the error interface.
func (e *DeclaredFailureError) Error() string {
	return fmt.Sprintf("policy %s declared failure during %s: %d %s",
		e.PolicyID, e.Phase, e.Result.StatusCode, e.Result.Key)
}

// Is checks if the error matches the target.
func (e *DeclaredFailureError) Is(target error) bool {
	return target == ErrPolicyDeclaredFailure
}
