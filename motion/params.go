package motion

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/matt-g-everett/spatx/position"
)

// Params carries the type-specific parameters of an animation. Values come
// from JSON, YAML or code, so the accessors accept every numeric and map
// shape those decoders produce and fall back to the supplied default when a
// value is missing or malformed.
type Params map[string]interface{}

// Clone returns a shallow copy.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Merge returns a copy of p with every key of over applied on top.
func (p Params) Merge(over Params) Params {
	out := p.Clone()
	for k, v := range over {
		out[k] = v
	}
	return out
}

// Has reports whether key is present.
func (p Params) Has(key string) bool {
	_, ok := p[key]
	return ok
}

// Float reads a number.
func (p Params) Float(key string, def float64) float64 {
	if v, ok := toFloat(p[key]); ok {
		return v
	}
	return def
}

// Int reads an integer, truncating fractional values.
func (p Params) Int(key string, def int) int {
	if v, ok := toFloat(p[key]); ok {
		return int(v)
	}
	return def
}

// Bool reads a boolean. The strings "true"/"false" are accepted.
func (p Params) Bool(key string, def bool) bool {
	switch v := p[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// String reads a string.
func (p Params) String(key string, def string) string {
	if v, ok := p[key].(string); ok && v != "" {
		return v
	}
	return def
}

// Plane reads a plane selector.
func (p Params) Plane(key string, def position.Plane) position.Plane {
	s, ok := p[key].(string)
	if !ok {
		if pl, ok := p[key].(position.Plane); ok {
			return pl
		}
		return def
	}
	pl, err := position.ParsePlane(s)
	if err != nil {
		return def
	}
	return pl
}

// Position reads a nested position.
func (p Params) Position(key string, def position.Position) position.Position {
	if v, ok := toPosition(p[key]); ok {
		return v
	}
	return def
}

// Positions reads an array of positions. The bool is false when the key is
// missing or any element is unusable.
func (p Params) Positions(key string) ([]position.Position, bool) {
	switch v := p[key].(type) {
	case []position.Position:
		out := make([]position.Position, len(v))
		copy(out, v)
		return out, true
	case []interface{}:
		out := make([]position.Position, 0, len(v))
		for _, item := range v {
			pos, ok := toPosition(item)
			if !ok {
				return nil, false
			}
			out = append(out, pos)
		}
		return out, true
	case []map[string]interface{}:
		out := make([]position.Position, 0, len(v))
		for _, item := range v {
			pos, ok := toPosition(item)
			if !ok {
				return nil, false
			}
			out = append(out, pos)
		}
		return out, true
	}
	return nil, false
}

// Keyframe is one timed point of a keyframe-driven animation.
type Keyframe struct {
	Time     float64           `json:"time" yaml:"time"`
	Position position.Position `json:"position" yaml:"position"`
	Easing   string            `json:"easing,omitempty" yaml:"easing,omitempty"`
}

// Keyframes reads a keyframe list sorted ascending by time. Entries may
// carry their position nested under "position" or flat as x/y/z.
func (p Params) Keyframes(key string) ([]Keyframe, bool) {
	var out []Keyframe
	switch v := p[key].(type) {
	case []Keyframe:
		out = make([]Keyframe, len(v))
		copy(out, v)
	case []interface{}:
		out = make([]Keyframe, 0, len(v))
		for _, item := range v {
			kf, ok := toKeyframe(item)
			if !ok {
				return nil, false
			}
			out = append(out, kf)
		}
	default:
		return nil, false
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out, true
}

func toKeyframe(v interface{}) (Keyframe, bool) {
	switch kf := v.(type) {
	case Keyframe:
		return kf, true
	case *Keyframe:
		if kf == nil {
			return Keyframe{}, false
		}
		return *kf, true
	}
	m, ok := toStringMap(v)
	if !ok {
		return Keyframe{}, false
	}
	t, ok := toFloat(m["time"])
	if !ok {
		return Keyframe{}, false
	}
	pos, ok := toPosition(m["position"])
	if !ok {
		pos, ok = toPosition(m)
		if !ok {
			return Keyframe{}, false
		}
	}
	easing, _ := m["easing"].(string)
	return Keyframe{Time: t, Position: pos, Easing: easing}, true
}

func toPosition(v interface{}) (position.Position, bool) {
	switch p := v.(type) {
	case position.Position:
		return p, true
	case *position.Position:
		if p == nil {
			return position.Zero, false
		}
		return *p, true
	case []interface{}:
		if len(p) != 3 {
			return position.Zero, false
		}
		var c [3]float64
		for i := range c {
			f, ok := toFloat(p[i])
			if !ok {
				return position.Zero, false
			}
			c[i] = f
		}
		return position.New(c[0], c[1], c[2]), true
	case []float64:
		if len(p) != 3 {
			return position.Zero, false
		}
		return position.New(p[0], p[1], p[2]), true
	}
	m, ok := toStringMap(v)
	if !ok {
		return position.Zero, false
	}
	x, okX := toFloat(m["x"])
	y, okY := toFloat(m["y"])
	z, okZ := toFloat(m["z"])
	if !okX && !okY && !okZ {
		return position.Zero, false
	}
	return position.New(x, y, z), true
}

// toStringMap normalises JSON (map[string]interface{}) and yaml.v2
// (map[interface{}]interface{}) objects.
func toStringMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case Params:
		return m, true
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	}
	return nil, false
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}
