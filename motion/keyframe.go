package motion

import (
	"strings"

	"github.com/fogleman/ease"

	"github.com/matt-g-everett/spatx/position"
	"github.com/matt-g-everett/spatx/util"
)

// Interpolation modes between keyframes.
const (
	InterpLinear = "linear"
	InterpBezier = "bezier"
	InterpStep   = "step"
)

// Custom plays back user keyframes.
//
// On the first iteration, before the first keyframe, the position is led in
// linearly from initialPosition (or the track's position). Later iterations
// skip the lead-in and map the whole duration onto the keyframe span. With
// returnToStart the last keyframe blends back to the first over a window as
// long as the first keyframe's time.
type Custom struct{}

func (Custom) Type() string { return "custom" }

func (Custom) Describe() Descriptor {
	return Descriptor{
		Metadata: Metadata{
			Name: "Custom keyframes", Version: "1.0.0", Type: "custom", Category: "path",
			Description: "User keyframes with linear, bezier or step interpolation",
			Tags:        []string{"keyframe", "custom", "path"},
		},
		Fields: []Field{
			{Key: "keyframes", Kind: KindKeyframes, Label: "Keyframes", Required: true},
			{Key: "initialPosition", Kind: KindPosition, Label: "Initial position"},
			enum("interpolation", "Interpolation", InterpLinear, InterpLinear, InterpBezier, InterpStep),
			flag("returnToStart", "Return to first keyframe", false),
		},
		ControlPoints: []string{"keyframes"},
		PathBased:     true,
	}
}

func (Custom) Calculate(p Params, t, duration float64, ctx *Context) (position.Position, error) {
	kfs, ok := p.Keyframes("keyframes")
	if !ok || len(kfs) == 0 {
		return position.Zero, paramError("custom", "keyframes", "at least one keyframe is required")
	}
	first, last := kfs[0], kfs[len(kfs)-1]

	iteration := 0
	initial := first.Position
	if ctx != nil {
		iteration = ctx.Iteration
		initial = ctx.TrackPosition
	}
	initial = p.Position("initialPosition", initial)

	window := 0.0
	if p.Bool("returnToStart", false) {
		window = first.Time
	}

	kt := t
	if iteration > 0 {
		end := last.Time + window
		kt = first.Time + util.Progress(t, duration)*(end-first.Time)
	} else if t < first.Time {
		if first.Time <= 0 {
			return first.Position, nil
		}
		return initial.Lerp(first.Position, util.Clamp(t/first.Time, 0, 1)), nil
	}

	if kt >= last.Time {
		if window > 0 && len(kfs) > 1 {
			s := util.Clamp((kt-last.Time)/window, 0, 1)
			return last.Position.Lerp(first.Position, s), nil
		}
		return last.Position, nil
	}
	if kt <= first.Time {
		return first.Position, nil
	}

	i := segment(kfs, kt)
	a, b := kfs[i], kfs[i+1]
	span := b.Time - a.Time
	if span <= 0 {
		return b.Position, nil
	}
	local := (kt - a.Time) / span
	switch strings.ToLower(p.String("interpolation", InterpLinear)) {
	case InterpStep:
		return a.Position, nil
	case InterpBezier:
		local = ease.InOutCubic(local)
	}
	if b.Easing != "" {
		local = util.Ease(b.Easing, local)
	}
	return a.Position.Lerp(b.Position, local), nil
}

// segment returns i such that kfs[i].Time <= kt < kfs[i+1].Time. kt must lie
// strictly inside the keyframe span.
func segment(kfs []Keyframe, kt float64) int {
	lo, hi := 0, len(kfs)-1
	for hi-lo > 1 {
		mid := (lo + hi) / 2
		if kfs[mid].Time <= kt {
			lo = mid
		} else {
			hi = mid
		}
	}
	return lo
}
