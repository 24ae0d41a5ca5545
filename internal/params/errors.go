package params

import "fmt"

// ValidationKind classifies a ValidationError.
type ValidationKind string

const (
	UnknownParameter   ValidationKind = "unknown_parameter"
	ShapeMismatch      ValidationKind = "shape_mismatch"
	ValueCountMismatch ValidationKind = "value_count_mismatch"
)

// ValidationError reports a malformed parameter name, a value-count
// mismatch, or a shape mismatch after index-base correction. Validation
// failures are non-fatal to a batch: they fail the offending row or column
// only.
type ValidationError struct {
	Kind ValidationKind
	Name string
	Msg  string
}

func (e *ValidationError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("params: %s: %s", e.Kind, e.Msg)
	}
	return fmt.Sprintf("params: %s: %q: %s", e.Kind, e.Name, e.Msg)
}

func unknownParam(name, msg string) *ValidationError {
	return &ValidationError{Kind: UnknownParameter, Name: name, Msg: msg}
}

func shapeErr(name, msg string) *ValidationError {
	return &ValidationError{Kind: ShapeMismatch, Name: name, Msg: msg}
}
