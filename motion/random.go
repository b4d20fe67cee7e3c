package motion

import (
	"math"
	"math/rand/v2"

	"github.com/matt-g-everett/spatx/position"
)

// Random wanders inside a box around the centre. Targets are drawn from a
// generator seeded by (seed, step), so the same parameters and time always
// give the same position.
type Random struct{}

func (Random) Type() string { return "random" }

func (Random) Describe() Descriptor {
	return Descriptor{
		Metadata: Metadata{
			Name: "Random", Version: "1.0.0", Type: "random", Category: "basic",
			Description: "Seeded random wander inside a bounding box",
			Tags:        []string{"random", "noise", "jitter"},
		},
		Fields: []Field{
			point("center", "Centre", position.Zero),
			point("bounds", "Half-extent per axis", position.New(5, 5, 2)),
			number("updateFrequency", "New targets per second", 2, bound(0.01), bound(100)),
			number("smoothing", "Smoothing (0-1)", 1, bound(0), bound(1)),
			integer("seed", "Seed", 12345, nil, nil),
		},
		ControlPoints: []string{"center"},
	}
}

func (Random) DefaultParameters(track position.Position) Params {
	return Params{"center": track, "bounds": position.New(5, 5, 2)}
}

func (Random) Calculate(p Params, t, duration float64, ctx *Context) (position.Position, error) {
	center := p.Position("center", position.Zero)
	bounds := p.Position("bounds", position.New(5, 5, 2))
	freq := p.Float("updateFrequency", 2)
	if freq <= 0 {
		freq = 2
	}
	smoothing := math.Max(0, math.Min(1, p.Float("smoothing", 1)))
	seed := uint64(p.Int("seed", 12345))

	x := math.Max(t, 0) * freq
	step := math.Floor(x)
	from := randomTarget(seed, uint64(step), bounds)
	to := randomTarget(seed, uint64(step)+1, bounds)

	// smoothing 0 holds each target for the whole step; 1 glides for the
	// whole step.
	local := x - step
	var s float64
	switch {
	case smoothing == 0:
		s = 0
	case local >= smoothing:
		s = 1
	default:
		u := local / smoothing
		s = u * u * (3 - 2*u)
	}
	return center.Add(from.Lerp(to, s)), nil
}

func randomTarget(seed, step uint64, bounds position.Position) position.Position {
	r := rand.New(rand.NewPCG(seed, step))
	return position.Position{
		X: (r.Float64()*2 - 1) * bounds.X,
		Y: (r.Float64()*2 - 1) * bounds.Y,
		Z: (r.Float64()*2 - 1) * bounds.Z,
	}
}
