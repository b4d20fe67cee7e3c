package motion

import "github.com/matt-g-everett/spatx/position"

// Builtins returns a fresh instance of every built-in model.
func Builtins() []Model {
	return []Model{
		Linear{},
		Circular{},
		Elliptical{},
		Spiral{},
		Random{},
		Bezier{},
		CatmullRom{},
		Zigzag{},
		Rose{},
		Epicycloid{},
		Orbit{},
		Doppler{},
		CircularScan{},
		Zoom{},
		Lissajous{},
		Wave{},
		Helix{},
		Custom{},
		Pendulum{},
		Spring{},
		Bounce{},
		AttractRepel{},
	}
}

// IsStateful reports whether m carries state between calls.
func IsStateful(m Model) bool {
	s, ok := m.(Stateful)
	return ok && s.Stateful()
}

// DefaultsFor returns the starting parameters of m for a track at the given
// position: the declared field defaults, overlaid with the model's own
// proposal when it has one.
func DefaultsFor(m Model, track position.Position) Params {
	p := m.Describe().Defaults()
	if d, ok := m.(Defaulter); ok {
		p = p.Merge(d.DefaultParameters(track))
	}
	return p
}
