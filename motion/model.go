// Package motion is the library of parametric motion models. A model maps
// (parameters, time, duration, context) to a position; most are pure
// closed-form functions, a few are physics integrators that carry state
// between calls through a StateStore owned by the caller.
package motion

import (
	"github.com/matt-g-everett/spatx/position"
)

// A Model computes the position of one animated source at a point in time.
type Model interface {
	Type() string
	Describe() Descriptor
	Calculate(p Params, t, duration float64, ctx *Context) (position.Position, error)
}

// A Defaulter proposes starting parameters for a track at the given
// position, e.g. centring a circle on it.
type Defaulter interface {
	DefaultParameters(track position.Position) Params
}

// A Rotator reports the in-plane rotation a model has accumulated at time t,
// as an angle in radians around axis. The distributor uses it to turn
// per-track offsets along with rotational animations.
type Rotator interface {
	Rotation(p Params, t, duration float64) (angle float64, axis position.Position)
}

// Stateful marks models whose output depends on previous calls.
type Stateful interface {
	Stateful() bool
}

// FieldKind is the declared type of a parameter field.
type FieldKind string

const (
	KindNumber    FieldKind = "number"
	KindInteger   FieldKind = "integer"
	KindBool      FieldKind = "boolean"
	KindString    FieldKind = "string"
	KindEnum      FieldKind = "enum"
	KindPosition  FieldKind = "position"
	KindPositions FieldKind = "positions"
	KindKeyframes FieldKind = "keyframes"
)

// Field describes one editable parameter. The editor renders fields
// generically from this list.
type Field struct {
	Key      string      `json:"key"`
	Kind     FieldKind   `json:"type"`
	Label    string      `json:"label"`
	Min      *float64    `json:"min,omitempty"`
	Max      *float64    `json:"max,omitempty"`
	Default  interface{} `json:"default,omitempty"`
	Options  []string    `json:"options,omitempty"`
	Required bool        `json:"required,omitempty"`
}

// Metadata identifies a model.
type Metadata struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Type        string   `json:"type"`
	Category    string   `json:"category"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// Descriptor is everything the registry and editor need to know about a
// model besides its Calculate function.
type Descriptor struct {
	Metadata Metadata `json:"metadata"`
	Fields   []Field  `json:"parameters"`
	// ControlPoints lists the parameter keys that are draggable 3D points.
	ControlPoints []string `json:"controlPoints,omitempty"`
	// PathBased models follow explicit control points and have no
	// meaningful centre.
	PathBased bool `json:"pathBased,omitempty"`
}

// Field returns the field with key, if declared.
func (d Descriptor) Field(key string) (Field, bool) {
	for _, f := range d.Fields {
		if f.Key == key {
			return f, true
		}
	}
	return Field{}, false
}

// Defaults builds a Params map from the declared field defaults.
func (d Descriptor) Defaults() Params {
	out := Params{}
	for _, f := range d.Fields {
		if f.Default != nil {
			out[f.Key] = f.Default
		}
	}
	return out
}

func bound(v float64) *float64 { return &v }

func number(key, label string, def float64, min, max *float64) Field {
	return Field{Key: key, Kind: KindNumber, Label: label, Default: def, Min: min, Max: max}
}

func integer(key, label string, def int, min, max *float64) Field {
	return Field{Key: key, Kind: KindInteger, Label: label, Default: def, Min: min, Max: max}
}

func point(key, label string, def position.Position) Field {
	return Field{Key: key, Kind: KindPosition, Label: label, Default: def}
}

func enum(key, label, def string, options ...string) Field {
	return Field{Key: key, Kind: KindEnum, Label: label, Default: def, Options: options}
}

func flag(key, label string, def bool) Field {
	return Field{Key: key, Kind: KindBool, Label: label, Default: def}
}

var (
	planeField     = enum("plane", "Plane", string(position.PlaneXY), "xy", "xz", "yz")
	directionField = enum("direction", "Direction", "counterclockwise", "counterclockwise", "clockwise")
	easingField    = enum("easing", "Easing", "linear", "linear", "ease-in", "ease-out", "ease-in-out",
		"in-cubic", "out-cubic", "in-out-cubic", "in-sine", "out-sine", "in-out-sine")
)
