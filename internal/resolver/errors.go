package resolver

import "fmt"

// Error is a failed evaluation of a flow condition.
type Error struct {
	FlowID string
	Cause  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("condition of flow %s failed: %v", e.FlowID, e.Cause)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}
