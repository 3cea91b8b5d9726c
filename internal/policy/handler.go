package policy

import (
	"github.com/vyrodovalexey/flowgate/internal/execution"
	"github.com/vyrodovalexey/flowgate/internal/stream"
)

// Chain is the view of a policy chain given to a policy phase. A policy
// continues the traversal with DoNext or aborts it with FailWith; it
// must call exactly one of them, either before returning or later from
// another goroutine.
type Chain interface {
	DoNext()
	FailWith(result Result)
	Phase() Phase
}

// SkipRecorder is implemented by chains that account for skipped policies.
type SkipRecorder interface {
	RecordSkip(policyID, reason string)
}

// Skip reasons.
const (
	SkipReasonDisabled        = "disabled"
	SkipReasonConditionNotMet = "condition_not_met"
)

// RequestHandler is implemented by policies acting on the request phase.
type RequestHandler interface {
	OnRequest(chain Chain, ctx *execution.Context) error
}

// ResponseHandler is implemented by policies acting on the response phase.
type ResponseHandler interface {
	OnResponse(chain Chain, ctx *execution.Context) error
}

// RequestContentHandler is implemented by policies transforming the
// request body. A nil transform leaves the body untouched.
type RequestContentHandler interface {
	OnRequestContent(ctx *execution.Context) (stream.Transform, error)
}

// ResponseContentHandler is implemented by policies transforming the
// response body. A nil transform leaves the body untouched.
type ResponseContentHandler interface {
	OnResponseContent(ctx *execution.Context) (stream.Transform, error)
}

// Validator is implemented by configuration types that check themselves
// after decoding.
type Validator interface {
	Validate() error
}

// PhaseFunc is the bound form of a request or response phase method.
type PhaseFunc func(chain Chain, ctx *execution.Context) error

// StreamFunc is the bound form of a content phase method.
type StreamFunc func(ctx *execution.Context) (stream.Transform, error)
