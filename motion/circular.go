package motion

import (
	"math"

	"github.com/matt-g-everett/spatx/position"
	"github.com/matt-g-everett/spatx/util"
)

var rotationFields = []Field{
	number("rotations", "Revolutions per duration", 1, nil, nil),
	number("period", "Seconds per revolution (overrides rotations)", 0, bound(0), nil),
	number("startAngle", "Start angle (deg)", 0, bound(-360), bound(360)),
	directionField,
	planeField,
}

func withRotation(fields ...Field) []Field {
	out := make([]Field, 0, len(fields)+len(rotationFields))
	out = append(out, fields...)
	return append(out, rotationFields...)
}

// Circular orbits the centre at a fixed radius in the selected plane.
type Circular struct{}

func (Circular) Type() string { return "circular" }

func (Circular) Describe() Descriptor {
	return Descriptor{
		Metadata: Metadata{
			Name: "Circular", Version: "1.0.0", Type: "circular", Category: "basic",
			Description: "Constant-radius rotation around a centre",
			Tags:        []string{"rotation", "orbit", "basic"},
		},
		Fields: withRotation(
			point("center", "Centre", position.Zero),
			number("radius", "Radius", 5, bound(0), nil),
		),
		ControlPoints: []string{"center"},
	}
}

func (Circular) DefaultParameters(track position.Position) Params {
	return Params{"center": track, "radius": 5.0, "plane": "xy"}
}

func (Circular) Calculate(p Params, t, duration float64, ctx *Context) (position.Position, error) {
	center := p.Position("center", position.Zero)
	r := math.Abs(p.Float("radius", 5))
	a := phase(p, t, duration)
	pl := p.Plane("plane", position.PlaneXY)
	return pl.Place(center, r*math.Cos(a), r*math.Sin(a), 0), nil
}

func (Circular) Rotation(p Params, t, duration float64) (float64, position.Position) {
	return rotationFrom(p, t, duration)
}

// Elliptical traces an ellipse with independent radii, optionally rotated
// within its plane.
type Elliptical struct{}

func (Elliptical) Type() string { return "elliptical" }

func (Elliptical) Describe() Descriptor {
	return Descriptor{
		Metadata: Metadata{
			Name: "Elliptical", Version: "1.0.0", Type: "elliptical", Category: "basic",
			Description: "Ellipse around a centre",
			Tags:        []string{"rotation", "ellipse"},
		},
		Fields: withRotation(
			point("center", "Centre", position.Zero),
			number("radiusX", "First-axis radius", 8, bound(0), nil),
			number("radiusY", "Second-axis radius", 4, bound(0), nil),
			number("tilt", "In-plane tilt (deg)", 0, bound(-180), bound(180)),
		),
		ControlPoints: []string{"center"},
	}
}

func (Elliptical) DefaultParameters(track position.Position) Params {
	return Params{"center": track, "radiusX": 8.0, "radiusY": 4.0}
}

func (Elliptical) Calculate(p Params, t, duration float64, ctx *Context) (position.Position, error) {
	center := p.Position("center", position.Zero)
	a := phase(p, t, duration)
	u := p.Float("radiusX", 8) * math.Cos(a)
	v := p.Float("radiusY", 4) * math.Sin(a)
	tilt := util.Radians(p.Float("tilt", 0))
	if tilt != 0 {
		u, v = u*math.Cos(tilt)-v*math.Sin(tilt), u*math.Sin(tilt)+v*math.Cos(tilt)
	}
	return p.Plane("plane", position.PlaneXY).Place(center, u, v, 0), nil
}

func (Elliptical) Rotation(p Params, t, duration float64) (float64, position.Position) {
	return rotationFrom(p, t, duration)
}

// Spiral rotates while the radius moves from startRadius to endRadius.
type Spiral struct{}

func (Spiral) Type() string { return "spiral" }

func (Spiral) Describe() Descriptor {
	fields := withRotation(
		point("center", "Centre", position.Zero),
		number("startRadius", "Start radius", 1, bound(0), nil),
		number("endRadius", "End radius", 10, bound(0), nil),
		easingField,
	)
	for i := range fields {
		if fields[i].Key == "rotations" {
			fields[i].Default = 3.0
		}
	}
	return Descriptor{
		Metadata: Metadata{
			Name: "Spiral", Version: "1.0.0", Type: "spiral", Category: "basic",
			Description: "Rotation with a growing or shrinking radius",
			Tags:        []string{"rotation", "spiral"},
		},
		Fields:        fields,
		ControlPoints: []string{"center"},
	}
}

func (Spiral) DefaultParameters(track position.Position) Params {
	return Params{"center": track, "startRadius": 1.0, "endRadius": 10.0, "rotations": 3.0}
}

func (Spiral) Calculate(p Params, t, duration float64, ctx *Context) (position.Position, error) {
	q := p
	if !p.Has("rotations") {
		q = p.Merge(Params{"rotations": 3.0})
	}
	center := q.Position("center", position.Zero)
	progress := util.Ease(q.String("easing", "linear"), util.Progress(t, duration))
	r0, r1 := q.Float("startRadius", 1), q.Float("endRadius", 10)
	r := r0 + (r1-r0)*progress
	a := phase(q, t, duration)
	return q.Plane("plane", position.PlaneXY).Place(center, r*math.Cos(a), r*math.Sin(a), 0), nil
}

func (Spiral) Rotation(p Params, t, duration float64) (float64, position.Position) {
	if !p.Has("rotations") {
		p = p.Merge(Params{"rotations": 3.0})
	}
	return rotationFrom(p, t, duration)
}

// Orbit is a circular orbit whose plane is inclined around the plane's
// first axis. The distance to the centre is always the radius.
type Orbit struct{}

func (Orbit) Type() string { return "orbit" }

func (Orbit) Describe() Descriptor {
	return Descriptor{
		Metadata: Metadata{
			Name: "Orbit", Version: "1.0.0", Type: "orbit", Category: "basic",
			Description: "Inclined circular orbit",
			Tags:        []string{"rotation", "orbit", "3d"},
		},
		Fields: withRotation(
			point("center", "Centre", position.Zero),
			number("radius", "Radius", 6, bound(0), nil),
			number("inclination", "Inclination (deg)", 30, bound(-90), bound(90)),
		),
		ControlPoints: []string{"center"},
	}
}

func (Orbit) DefaultParameters(track position.Position) Params {
	return Params{"center": track, "radius": 6.0, "inclination": 30.0}
}

func (Orbit) Calculate(p Params, t, duration float64, ctx *Context) (position.Position, error) {
	center := p.Position("center", position.Zero)
	r := math.Abs(p.Float("radius", 6))
	a := phase(p, t, duration)
	inc := util.Radians(p.Float("inclination", 30))
	u := r * math.Cos(a)
	v := r * math.Sin(a) * math.Cos(inc)
	w := r * math.Sin(a) * math.Sin(inc)
	return p.Plane("plane", position.PlaneXY).Place(center, u, v, w), nil
}

func (Orbit) Rotation(p Params, t, duration float64) (float64, position.Position) {
	angle, _ := rotationFrom(p, t, duration)
	pl := p.Plane("plane", position.PlaneXY)
	inc := util.Radians(p.Float("inclination", 30))
	first := pl.Place(position.Zero, 1, 0, 0)
	return angle, pl.Normal().RotateAround(first, inc)
}

// CircularScan sweeps an arc between two azimuths at a fixed radius and
// height, like a slow pan around the listener.
type CircularScan struct{}

func (CircularScan) Type() string { return "circular-scan" }

func (CircularScan) Describe() Descriptor {
	return Descriptor{
		Metadata: Metadata{
			Name: "Circular scan", Version: "1.0.0", Type: "circular-scan", Category: "basic",
			Description: "Arc sweep between two angles",
			Tags:        []string{"rotation", "sweep", "pan"},
		},
		Fields: []Field{
			point("center", "Centre", position.Zero),
			number("radius", "Radius", 8, bound(0), nil),
			number("height", "Height", 0, nil, nil),
			number("sweepStart", "Sweep start (deg)", 0, bound(-360), bound(360)),
			number("sweepEnd", "Sweep end (deg)", 360, bound(-720), bound(720)),
			easingField,
			planeField,
		},
		ControlPoints: []string{"center"},
	}
}

func (CircularScan) DefaultParameters(track position.Position) Params {
	return Params{"center": position.Position{X: track.X, Y: track.Y}, "height": track.Z, "radius": 8.0}
}

func (CircularScan) Calculate(p Params, t, duration float64, ctx *Context) (position.Position, error) {
	center := p.Position("center", position.Zero)
	r := math.Abs(p.Float("radius", 8))
	progress := util.Ease(p.String("easing", "linear"), util.Progress(t, duration))
	a := util.Radians(sweepAngle(p, progress))
	return p.Plane("plane", position.PlaneXY).Place(center, r*math.Cos(a), r*math.Sin(a), p.Float("height", 0)), nil
}

func (CircularScan) Rotation(p Params, t, duration float64) (float64, position.Position) {
	progress := util.Ease(p.String("easing", "linear"), util.Progress(t, duration))
	swept := util.Radians(sweepAngle(p, progress) - p.Float("sweepStart", 0))
	return swept, p.Plane("plane", position.PlaneXY).Normal()
}

func sweepAngle(p Params, progress float64) float64 {
	start := p.Float("sweepStart", 0)
	end := p.Float("sweepEnd", 360)
	return start + (end-start)*progress
}

// Helix rotates around the plane normal while climbing from startHeight to
// endHeight.
type Helix struct{}

func (Helix) Type() string { return "helix" }

func (Helix) Describe() Descriptor {
	fields := withRotation(
		point("center", "Centre", position.Zero),
		number("radius", "Radius", 4, bound(0), nil),
		number("startHeight", "Start height", 0, nil, nil),
		number("endHeight", "End height", 6, nil, nil),
	)
	for i := range fields {
		if fields[i].Key == "rotations" {
			fields[i].Default = 3.0
		}
	}
	return Descriptor{
		Metadata: Metadata{
			Name: "Helix", Version: "1.0.0", Type: "helix", Category: "basic",
			Description: "Rising or falling spiral",
			Tags:        []string{"rotation", "3d", "helix"},
		},
		Fields:        fields,
		ControlPoints: []string{"center"},
	}
}

func (Helix) DefaultParameters(track position.Position) Params {
	return Params{"center": track, "radius": 4.0, "startHeight": 0.0, "endHeight": 6.0, "rotations": 3.0}
}

func (Helix) Calculate(p Params, t, duration float64, ctx *Context) (position.Position, error) {
	if !p.Has("rotations") {
		p = p.Merge(Params{"rotations": 3.0})
	}
	center := p.Position("center", position.Zero)
	r := math.Abs(p.Float("radius", 4))
	a := phase(p, t, duration)
	h0, h1 := p.Float("startHeight", 0), p.Float("endHeight", 6)
	h := h0 + (h1-h0)*util.Progress(t, duration)
	return p.Plane("plane", position.PlaneXY).Place(center, r*math.Cos(a), r*math.Sin(a), h), nil
}

func (Helix) Rotation(p Params, t, duration float64) (float64, position.Position) {
	if !p.Has("rotations") {
		p = p.Merge(Params{"rotations": 3.0})
	}
	return rotationFrom(p, t, duration)
}
