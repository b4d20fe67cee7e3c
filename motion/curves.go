package motion

import (
	"math"
	"strings"

	"github.com/matt-g-everett/spatx/position"
	"github.com/matt-g-everett/spatx/util"
)

// Rose traces a rose curve r = radius*cos(k*theta). The distance from the
// centre at any time is |radius*cos(k*theta)|.
type Rose struct{}

func (Rose) Type() string { return "rose-curve" }

func (Rose) Describe() Descriptor {
	return Descriptor{
		Metadata: Metadata{
			Name: "Rose curve", Version: "1.0.0", Type: "rose-curve", Category: "curve",
			Description: "Petal pattern around a centre",
			Tags:        []string{"rose", "petal", "curve"},
		},
		Fields: withRotation(
			point("center", "Centre", position.Zero),
			number("radius", "Radius", 6, bound(0), nil),
			number("petals", "Petal factor k", 3, bound(0.1), bound(20)),
		),
		ControlPoints: []string{"center"},
	}
}

func (Rose) DefaultParameters(track position.Position) Params {
	return Params{"center": track, "radius": 6.0, "petals": 3.0}
}

func (Rose) Calculate(p Params, t, duration float64, ctx *Context) (position.Position, error) {
	center := p.Position("center", position.Zero)
	k := p.Float("petals", 3)
	a := phase(p, t, duration)
	r := p.Float("radius", 6) * math.Cos(k*a)
	return p.Plane("plane", position.PlaneXY).Place(center, r*math.Cos(a), r*math.Sin(a), 0), nil
}

func (Rose) Rotation(p Params, t, duration float64) (float64, position.Position) {
	return rotationFrom(p, t, duration)
}

// Epicycloid traces the path of a point on a circle rolling around a fixed
// circle. With variant "hypocycloid" the circle rolls inside instead.
type Epicycloid struct{}

func (Epicycloid) Type() string { return "epicycloid" }

func (Epicycloid) Describe() Descriptor {
	return Descriptor{
		Metadata: Metadata{
			Name: "Epicycloid", Version: "1.0.0", Type: "epicycloid", Category: "curve",
			Description: "Rolling-circle curve",
			Tags:        []string{"cycloid", "curve", "spirograph"},
		},
		Fields: withRotation(
			point("center", "Centre", position.Zero),
			number("fixedRadius", "Fixed circle radius", 5, bound(0.01), nil),
			number("rollingRadius", "Rolling circle radius", 1, bound(0.01), nil),
			enum("variant", "Variant", "epicycloid", "epicycloid", "hypocycloid"),
		),
		ControlPoints: []string{"center"},
	}
}

func (Epicycloid) Calculate(p Params, t, duration float64, ctx *Context) (position.Position, error) {
	center := p.Position("center", position.Zero)
	big := p.Float("fixedRadius", 5)
	small := p.Float("rollingRadius", 1)
	if small <= 0 {
		small = 1
	}
	a := phase(p, t, duration)
	var u, v float64
	if strings.EqualFold(p.String("variant", "epicycloid"), "hypocycloid") {
		d := big - small
		u = d*math.Cos(a) + small*math.Cos(d/small*a)
		v = d*math.Sin(a) - small*math.Sin(d/small*a)
	} else {
		s := big + small
		u = s*math.Cos(a) - small*math.Cos(s/small*a)
		v = s*math.Sin(a) - small*math.Sin(s/small*a)
	}
	return p.Plane("plane", position.PlaneXY).Place(center, u, v, 0), nil
}

// Lissajous combines independent sinusoids on each axis.
type Lissajous struct{}

func (Lissajous) Type() string { return "lissajous" }

func (Lissajous) Describe() Descriptor {
	return Descriptor{
		Metadata: Metadata{
			Name: "Lissajous", Version: "1.0.0", Type: "lissajous", Category: "curve",
			Description: "Independent sine motion per axis",
			Tags:        []string{"lissajous", "oscillation", "curve"},
		},
		Fields: []Field{
			point("center", "Centre", position.Zero),
			point("amplitude", "Amplitude per axis", position.New(5, 5, 0)),
			number("frequencyX", "X frequency", 3, bound(0), nil),
			number("frequencyY", "Y frequency", 2, bound(0), nil),
			number("frequencyZ", "Z frequency", 1, bound(0), nil),
			number("phaseX", "X phase (deg)", 90, bound(-360), bound(360)),
			number("phaseY", "Y phase (deg)", 0, bound(-360), bound(360)),
			number("phaseZ", "Z phase (deg)", 0, bound(-360), bound(360)),
		},
		ControlPoints: []string{"center"},
	}
}

func (Lissajous) DefaultParameters(track position.Position) Params {
	return Params{"center": track, "amplitude": position.New(5, 5, 0)}
}

func (Lissajous) Calculate(p Params, t, duration float64, ctx *Context) (position.Position, error) {
	center := p.Position("center", position.Zero)
	amp := p.Position("amplitude", position.New(5, 5, 0))
	base := 2 * math.Pi * util.Progress(t, duration)
	axis := func(freq, phaseDeg float64) float64 {
		return math.Sin(util.WrapAngle(base*freq + util.Radians(phaseDeg)))
	}
	return center.Add(position.Position{
		X: amp.X * axis(p.Float("frequencyX", 3), p.Float("phaseX", 90)),
		Y: amp.Y * axis(p.Float("frequencyY", 2), p.Float("phaseY", 0)),
		Z: amp.Z * axis(p.Float("frequencyZ", 1), p.Float("phaseZ", 0)),
	}), nil
}

// Wave travels from startPosition to endPosition while oscillating
// sideways along waveAxis.
type Wave struct{}

func (Wave) Type() string { return "wave" }

func (Wave) Describe() Descriptor {
	return Descriptor{
		Metadata: Metadata{
			Name: "Wave", Version: "1.0.0", Type: "wave", Category: "curve",
			Description: "Sine wave along a line",
			Tags:        []string{"wave", "sine", "oscillation"},
		},
		Fields: []Field{
			point("startPosition", "Start", position.New(-10, 0, 0)),
			point("endPosition", "End", position.New(10, 0, 0)),
			number("amplitude", "Amplitude", 2, bound(0), nil),
			number("frequency", "Waves over the path", 3, bound(0), nil),
			number("phase", "Phase (deg)", 0, bound(-360), bound(360)),
			enum("waveAxis", "Oscillation axis", "y", "x", "y", "z"),
		},
		ControlPoints: []string{"startPosition", "endPosition"},
	}
}

func (Wave) Calculate(p Params, t, duration float64, ctx *Context) (position.Position, error) {
	start := p.Position("startPosition", position.New(-10, 0, 0))
	end := p.Position("endPosition", position.New(10, 0, 0))
	progress := util.Progress(t, duration)
	a := util.WrapAngle(2*math.Pi*p.Float("frequency", 3)*progress + util.Radians(p.Float("phase", 0)))
	offset := p.Float("amplitude", 2) * math.Sin(a)
	base := start.Lerp(end, progress)
	switch strings.ToLower(p.String("waveAxis", "y")) {
	case "x":
		base.X += offset
	case "z":
		base.Z += offset
	default:
		base.Y += offset
	}
	return base, nil
}

// Zigzag moves between startPosition and endPosition through a number of
// sharp alternating corners. Its path is defined by its end points, so it
// has no meaningful centre.
type Zigzag struct{}

func (Zigzag) Type() string { return "zigzag" }

func (Zigzag) Describe() Descriptor {
	return Descriptor{
		Metadata: Metadata{
			Name: "Zigzag", Version: "1.0.0", Type: "zigzag", Category: "path",
			Description: "Alternating sharp turns along a line",
			Tags:        []string{"zigzag", "path"},
		},
		Fields: []Field{
			point("startPosition", "Start", position.New(-10, 0, 0)),
			point("endPosition", "End", position.New(10, 0, 0)),
			integer("zigzagCount", "Corners", 5, bound(1), bound(100)),
			number("amplitude", "Amplitude", 3, bound(0), nil),
			planeField,
		},
		ControlPoints: []string{"startPosition", "endPosition"},
		PathBased:     true,
	}
}

func (Zigzag) Calculate(p Params, t, duration float64, ctx *Context) (position.Position, error) {
	start := p.Position("startPosition", position.New(-10, 0, 0))
	end := p.Position("endPosition", position.New(10, 0, 0))
	n := p.Int("zigzagCount", 5)
	if n < 1 {
		n = 1
	}
	amp := p.Float("amplitude", 3)
	progress := util.Progress(t, duration)

	// Perpendicular to the travel direction within the selected plane.
	pl := p.Plane("plane", position.PlaneXY)
	perp := pl.Normal().Cross(end.Sub(start)).Normalize()
	if perp.Length() == 0 {
		perp = pl.Place(position.Zero, 0, 1, 0)
	}
	side := zigzagWave(progress * float64(n))
	return start.Lerp(end, progress).Add(perp.Scale(amp * side)), nil
}

// zigzagWave is a unit triangle wave with period 1 that starts and ends
// every period at zero: 0 → 1 → 0 → -1 → 0.
func zigzagWave(x float64) float64 {
	f := x - math.Floor(x)
	switch {
	case f < 0.25:
		return 4 * f
	case f < 0.75:
		return 2 - 4*f
	default:
		return 4*f - 4
	}
}
