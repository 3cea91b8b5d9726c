package policy

import "github.com/vyrodovalexey/flowgate/internal/execution"

// Phase identifies a policy lifecycle phase.
type Phase = execution.Phase

// Lifecycle phases.
const (
	PhaseRequest         = execution.PhaseRequest
	PhaseRequestContent  = execution.PhaseRequestContent
	PhaseResponse        = execution.PhaseResponse
	PhaseResponseContent = execution.PhaseResponseContent
)

// AllPhases lists the phases in lifecycle order.
var AllPhases = []Phase{
	PhaseRequest,
	PhaseRequestContent,
	PhaseResponse,
	PhaseResponseContent,
}
