package registry

import (
	"fmt"
	"slices"

	"github.com/matt-g-everett/spatx/motion"
	"github.com/matt-g-everett/spatx/position"
)

// Validation is the outcome of checking a model before registration.
type Validation struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

func (v *Validation) errorf(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

func (v *Validation) warnf(format string, args ...any) {
	v.Warnings = append(v.Warnings, fmt.Sprintf(format, args...))
}

var validKinds = []motion.FieldKind{
	motion.KindNumber, motion.KindInteger, motion.KindBool, motion.KindString,
	motion.KindEnum, motion.KindPosition, motion.KindPositions, motion.KindKeyframes,
}

// Validate checks the shape of m: metadata, parameter schema, control points
// and a trial evaluation with the declared defaults.
func Validate(m motion.Model) Validation {
	var v Validation
	if m == nil {
		v.errorf("model is nil")
		return v
	}
	desc := m.Describe()
	md := desc.Metadata
	switch {
	case md.Type == "":
		v.errorf("metadata.type is required")
	case md.Type != m.Type():
		v.errorf("metadata.type %q does not match model type %q", md.Type, m.Type())
	}
	if md.Name == "" {
		v.errorf("metadata.name is required")
	}
	if md.Version == "" {
		v.warnf("metadata.version is empty")
	}
	if md.Category == "" {
		v.warnf("metadata.category is empty")
	}

	seen := map[string]bool{}
	requiredWithoutDefault := false
	for _, f := range desc.Fields {
		if f.Key == "" {
			v.errorf("parameter with empty key")
			continue
		}
		if seen[f.Key] {
			v.errorf("parameter %q declared twice", f.Key)
		}
		seen[f.Key] = true
		if !slices.Contains(validKinds, f.Kind) {
			v.errorf("parameter %q has unknown type %q", f.Key, f.Kind)
		}
		if f.Min != nil && f.Max != nil && *f.Min > *f.Max {
			v.errorf("parameter %q: min %v greater than max %v", f.Key, *f.Min, *f.Max)
		}
		if d, ok := f.Default.(float64); ok {
			if f.Min != nil && d < *f.Min || f.Max != nil && d > *f.Max {
				v.errorf("parameter %q: default %v outside [min, max]", f.Key, d)
			}
		}
		if f.Kind == motion.KindEnum {
			if len(f.Options) == 0 {
				v.errorf("parameter %q: enum without options", f.Key)
			} else if d, ok := f.Default.(string); ok && !slices.Contains(f.Options, d) {
				v.errorf("parameter %q: default %q is not an option", f.Key, d)
			}
		}
		if f.Required && f.Default == nil {
			requiredWithoutDefault = true
		}
	}

	for _, key := range desc.ControlPoints {
		f, ok := desc.Field(key)
		if !ok {
			v.errorf("control point %q is not a declared parameter", key)
			continue
		}
		if f.Kind != motion.KindPosition && f.Kind != motion.KindPositions && f.Kind != motion.KindKeyframes {
			v.errorf("control point %q has non-spatial type %q", key, f.Kind)
		}
	}

	if len(v.Errors) == 0 && !requiredWithoutDefault {
		trial(m, desc, &v)
	}
	v.Valid = len(v.Errors) == 0
	return v
}

// trial evaluates the model at a few times with its defaults. Evaluation
// runs in preview mode against a throwaway state store.
func trial(m motion.Model, desc motion.Descriptor, v *Validation) {
	p := desc.Defaults()
	ctx := &motion.Context{Mode: motion.ModePreview, PlaybackID: "validate", States: motion.NewStateStore()}
	for _, t := range []float64{0, 2.5, 5} {
		pos, err := safeCalculate(m, p, t, 5, ctx)
		if err != nil {
			v.errorf("evaluation at t=%v failed: %v", t, err)
			return
		}
		if !pos.IsFinite() {
			v.errorf("evaluation at t=%v produced %v", t, pos)
			return
		}
		if position.Validate(pos) != nil {
			v.warnf("evaluation at t=%v leaves the coordinate range: %v", t, pos)
		}
	}
}

func safeCalculate(m motion.Model, p motion.Params, t, d float64, ctx *motion.Context) (pos position.Position, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return m.Calculate(p, t, d, ctx)
}
