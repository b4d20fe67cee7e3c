package motion

import "fmt"

// ParameterError reports a structurally required parameter that is missing
// or unusable, so no default can stand in for it.
type ParameterError struct {
	Model  string
	Param  string
	Reason string
}

func (e *ParameterError) Error() string {
	return fmt.Sprintf("%s: parameter %q: %s", e.Model, e.Param, e.Reason)
}

func paramError(model, param, reason string) error {
	return &ParameterError{Model: model, Param: param, Reason: reason}
}
