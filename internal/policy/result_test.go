package policy

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResult(t *testing.T) {
	t.Parallel()

	ok := Success()
	assert.True(t, ok.IsSuccess())
	assert.False(t, ok.IsFailure())
	assert.Equal(t, "SUCCESS", ok.String())

	f := Failure(http.StatusUnauthorized, "AUTH", "missing token")
	assert.True(t, f.IsFailure())
	assert.Equal(t, "FAILURE(401 AUTH: missing token)", f.String())
	assert.Equal(t, "FAILURE", f.Status.String())
}

func TestErrorResult(t *testing.T) {
	t.Parallel()

	plain := errors.New("boom")
	declared := &DeclaredFailureError{
		PolicyID: "auth",
		Phase:    PhaseRequest,
		Result:   Failure(http.StatusForbidden, "DENIED", "no"),
	}

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantKey    string
		wantIs     []error
	}{
		{
			name:       "plain error",
			err:        plain,
			wantStatus: http.StatusInternalServerError,
			wantKey:    KeyPolicyError,
			wantIs:     []error{ErrPolicyExecution, plain},
		},
		{
			name:       "execution error",
			err:        &ExecutionError{PolicyID: "p", Phase: PhaseResponse, Cause: plain, Panic: true},
			wantStatus: http.StatusInternalServerError,
			wantKey:    KeyPolicyError,
			wantIs:     []error{ErrPolicyExecution},
		},
		{
			name:       "condition error",
			err:        fmt.Errorf("wrapped: %w", &ConditionError{PolicyID: "p", Condition: "x", Cause: plain}),
			wantStatus: http.StatusInternalServerError,
			wantKey:    KeyConditionError,
			wantIs:     []error{ErrConditionEvaluation, ErrPolicyExecution},
		},
		{
			name:       "declared failure",
			err:        declared,
			wantStatus: http.StatusForbidden,
			wantKey:    "DENIED",
			wantIs:     []error{ErrPolicyDeclaredFailure},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := ErrorResult("p", PhaseRequest, tt.err)
			assert.True(t, r.IsFailure())
			assert.Equal(t, tt.wantStatus, r.StatusCode)
			assert.Equal(t, tt.wantKey, r.Key)
			for _, target := range tt.wantIs {
				assert.ErrorIs(t, r.Err, target)
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	t.Parallel()

	cause := errors.New("bad")
	assert.Equal(t, "policy p failed during request: bad",
		(&ExecutionError{PolicyID: "p", Phase: PhaseRequest, Cause: cause}).Error())
	assert.Equal(t, "policy p panicked during response: bad",
		(&ExecutionError{PolicyID: "p", Phase: PhaseResponse, Cause: cause, Panic: true}).Error())
	assert.Contains(t, (&ConditionError{PolicyID: "p", Phase: PhaseRequest, Condition: "x", Cause: cause}).Error(),
		`condition "x" of policy p`)
	assert.False(t, errors.Is(&DeclaredFailureError{}, ErrPolicyExecution))
}
