package flow

import (
	"fmt"
	"strings"

	"github.com/vyrodovalexey/flowgate/internal/util"
)

// Validate checks a single flow definition. Pattern syntax beyond the
// leading slash is checked when the pattern is compiled.
func Validate(f *Flow) error {
	verr := util.NewValidationError(fmt.Sprintf("invalid flow %q", f.ID))

	if strings.TrimSpace(f.ID) == "" {
		verr.AddField("id", "is required")
	}

	if !strings.HasPrefix(f.PathOperator.Pattern, "/") {
		verr.AddField("path", "must start with '/'")
	}

	switch f.PathOperator.Operator {
	case OperatorEquals, OperatorStartsWith:
	default:
		verr.AddField("operator", fmt.Sprintf("unknown operator %q", f.PathOperator.Operator))
	}

	for i, m := range f.Methods {
		if err := util.ValidateHTTPMethod(m); err != nil {
			verr.AddField(fmt.Sprintf("methods[%d]", i), err.Error())
		}
	}

	validateRefs(verr, "pre", f.Pre)
	validateRefs(verr, "post", f.Post)

	return verr.OrNil()
}

func validateRefs(verr *util.ValidationError, field string, refs []PolicyRef) {
	for i, ref := range refs {
		if strings.TrimSpace(ref.Policy) == "" {
			verr.AddField(fmt.Sprintf("%s[%d].policy", field, i), "is required")
		}
	}
}

// ValidateAll validates every flow and rejects duplicate ids.
func ValidateAll(flows []*Flow) error {
	seen := make(map[string]struct{}, len(flows))
	for _, f := range flows {
		if err := Validate(f); err != nil {
			return err
		}
		if _, dup := seen[f.ID]; dup {
			return util.NewConfigError("flows", fmt.Sprintf("duplicate flow id %q", f.ID))
		}
		seen[f.ID] = struct{}{}
	}
	return nil
}
