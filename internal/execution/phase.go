package execution

// Phase identifies a policy lifecycle phase.
type Phase int

// Lifecycle phases in the order they occur for a proxied request.
const (
	PhaseRequest Phase = iota
	PhaseRequestContent
	PhaseResponse
	PhaseResponseContent
)

// String returns the phase name as exposed to expressions.
func (p Phase) String() string {
	switch p {
	case PhaseRequest:
		return "request"
	case PhaseRequestContent:
		return "request_content"
	case PhaseResponse:
		return "response"
	case PhaseResponseContent:
		return "response_content"
	default:
		return "unknown"
	}
}

// IsContent reports whether the phase operates on a body stream.
func (p Phase) IsContent() bool {
	return p == PhaseRequestContent || p == PhaseResponseContent
}
