package chain

import (
	"errors"
	"time"

	"github.com/vyrodovalexey/flowgate/internal/policy"
)

// Outcome classifies how a chain traversal ended.
type Outcome string

// Chain outcomes.
const (
	OutcomeSuccess         Outcome = "success"
	OutcomeDeclaredFailure Outcome = "declared_failure"
	OutcomeExecutionError  Outcome = "execution_error"
	OutcomeConditionError  Outcome = "condition_error"
	OutcomeInterrupted     Outcome = "interrupted"
)

// Classify returns the outcome of a terminal result.
func Classify(r policy.Result, interrupted bool) Outcome {
	switch {
	case interrupted:
		return OutcomeInterrupted
	case r.IsSuccess():
		return OutcomeSuccess
	case errors.Is(r.Err, policy.ErrConditionEvaluation):
		return OutcomeConditionError
	case errors.Is(r.Err, policy.ErrPolicyExecution):
		return OutcomeExecutionError
	default:
		return OutcomeDeclaredFailure
	}
}

// Reporter receives the policy identities and terminal results of
// chains. It is shared by all requests and must be safe for concurrent use.
type Reporter interface {
	// PolicyExecuted is called when a policy phase method returned.
	PolicyExecuted(policyID string, phase policy.Phase, duration time.Duration, err error)

	// RecordSkip is called for policies that did not run.
	RecordSkip(policyID, reason string)

	// ChainCompleted is called once per traversal.
	ChainCompleted(phase policy.Phase, outcome Outcome, duration time.Duration)
}

type nopReporter struct{}

func (nopReporter) PolicyExecuted(string, policy.Phase, time.Duration, error) {}
func (nopReporter) RecordSkip(string, string)                                 {}
func (nopReporter) ChainCompleted(policy.Phase, Outcome, time.Duration)       {}

// NopReporter returns a reporter that discards everything.
func NopReporter() Reporter {
	return nopReporter{}
}
