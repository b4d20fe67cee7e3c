package motion

import (
	"iter"

	"github.com/matt-g-everett/spatx/position"
)

// ControlPoint is one draggable point an editor can show for a model. Index
// is the element index for list-valued keys and 0 otherwise.
type ControlPoint struct {
	Key      string            `json:"key"`
	Index    int               `json:"index"`
	Position position.Position `json:"position"`
}

// ControlPoints extracts the draggable points of m from p.
func ControlPoints(m Model, p Params) []ControlPoint {
	desc := m.Describe()
	var out []ControlPoint
	for _, key := range desc.ControlPoints {
		f, _ := desc.Field(key)
		switch f.Kind {
		case KindPositions:
			pts, ok := p.Positions(key)
			if !ok {
				pts, _ = Params{key: f.Default}.Positions(key)
			}
			for i, pos := range pts {
				out = append(out, ControlPoint{Key: key, Index: i, Position: pos})
			}
		case KindKeyframes:
			kfs, _ := p.Keyframes(key)
			for i, kf := range kfs {
				out = append(out, ControlPoint{Key: key, Index: i, Position: kf.Position})
			}
		default:
			def, _ := f.Default.(position.Position)
			out = append(out, ControlPoint{Key: key, Position: p.Position(key, def)})
		}
	}
	return out
}

// UpdateFromControlPoints writes edited control points back into a copy of
// p. Points whose key is not a control point of m are ignored.
func UpdateFromControlPoints(m Model, points []ControlPoint, p Params) Params {
	desc := m.Describe()
	out := p.Clone()
	for _, cp := range points {
		f, ok := desc.Field(cp.Key)
		if !ok || !isControlPoint(desc, cp.Key) {
			continue
		}
		switch f.Kind {
		case KindPositions:
			pts, ok := out.Positions(cp.Key)
			if !ok {
				pts, _ = Params{cp.Key: f.Default}.Positions(cp.Key)
			}
			if cp.Index >= 0 && cp.Index < len(pts) {
				pts[cp.Index] = cp.Position
				out[cp.Key] = pts
			}
		case KindKeyframes:
			kfs, _ := out.Keyframes(cp.Key)
			if cp.Index >= 0 && cp.Index < len(kfs) {
				kfs[cp.Index].Position = cp.Position
				out[cp.Key] = kfs
			}
		default:
			out[cp.Key] = cp.Position
		}
	}
	return out
}

func isControlPoint(d Descriptor, key string) bool {
	for _, k := range d.ControlPoints {
		if k == key {
			return true
		}
	}
	return false
}

// GeneratePath samples m at segments+1 evenly spaced times over duration.
// The sequence is lazy and restartable: every iteration evaluates in preview
// mode against its own state store, so stateful models never touch playback
// state. Sampling stops at the first evaluation error.
func GeneratePath(m Model, p Params, duration float64, segments int) iter.Seq[position.Position] {
	if segments < 1 {
		segments = 1
	}
	return func(yield func(position.Position) bool) {
		ctx := &Context{Mode: ModePreview, PlaybackID: "path", States: NewStateStore()}
		for i := 0; i <= segments; i++ {
			t := duration * float64(i) / float64(segments)
			pos, err := m.Calculate(p, t, duration, ctx)
			if err != nil {
				return
			}
			if !yield(pos) {
				return
			}
		}
	}
}
