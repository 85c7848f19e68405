package runtime

import (
	"fmt"

	"github.com/GriffinCanCode/probehost/internal/runtime/output"
)

// Kind is the failure taxonomy of a run.
type Kind string

const (
	KindLoadError       Kind = "load_error"
	KindThrownError     Kind = "thrown_error"
	KindTimeout         Kind = "timeout"
	KindNonObjectReturn Kind = Kind(output.NonObjectReturn)
	KindMissingLines    Kind = Kind(output.MissingLines)
	KindUnknownLineType Kind = Kind(output.UnknownLineType)
)

// Validation reports whether the kind comes from output validation.
func (k Kind) Validation() bool {
	return k == KindNonObjectReturn || k == KindMissingLines || k == KindUnknownLineType
}

// Diagnostic is the stable, user-facing string for a failure kind. Raw
// messages from untrusted scripts stay in the logs.
func (k Kind) Diagnostic() string {
	switch k {
	case KindLoadError:
		return "plugin failed to load"
	case KindThrownError, KindTimeout:
		return "probe() failed"
	case KindNonObjectReturn, KindMissingLines, KindUnknownLineType:
		return "invalid probe output"
	default:
		return "probe() failed"
	}
}

// RunError is a failed run. For UnknownLineType, Detail is the offending
// element's declared type.
type RunError struct {
	Kind   Kind
	Detail string

	// Validation is set for validation kinds.
	Validation *output.ValidationError
}

func (e *RunError) Error() string {
	if e.Detail == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func fromValidation(verr *output.ValidationError) *RunError {
	return &RunError{Kind: Kind(verr.Reason), Detail: verr.Detail, Validation: verr}
}
