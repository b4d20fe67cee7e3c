package motion

import (
	"github.com/matt-g-everett/spatx/position"
	"github.com/matt-g-everett/spatx/util"
)

// Linear moves from startPosition to endPosition over the duration.
type Linear struct{}

func (Linear) Type() string { return "linear" }

func (Linear) Describe() Descriptor {
	return Descriptor{
		Metadata: Metadata{
			Name: "Linear", Version: "1.0.0", Type: "linear", Category: "basic",
			Description: "Straight line between two points",
			Tags:        []string{"line", "basic"},
		},
		Fields: []Field{
			point("startPosition", "Start", position.Zero),
			point("endPosition", "End", position.New(10, 0, 0)),
			easingField,
		},
		ControlPoints: []string{"startPosition", "endPosition"},
	}
}

func (Linear) DefaultParameters(track position.Position) Params {
	return Params{"startPosition": track, "endPosition": track.Add(position.New(5, 0, 0)), "easing": "linear"}
}

func (Linear) Calculate(p Params, t, duration float64, ctx *Context) (position.Position, error) {
	start := p.Position("startPosition", position.Zero)
	end := p.Position("endPosition", position.New(10, 0, 0))
	progress := util.Ease(p.String("easing", "linear"), util.Progress(t, duration))
	return start.Lerp(end, progress), nil
}

// Zoom moves radially from startDistance to endDistance along a fixed
// azimuth/elevation around the centre.
type Zoom struct{}

func (Zoom) Type() string { return "zoom" }

func (Zoom) Describe() Descriptor {
	return Descriptor{
		Metadata: Metadata{
			Name: "Zoom", Version: "1.0.0", Type: "zoom", Category: "basic",
			Description: "Radial approach or retreat from a centre point",
			Tags:        []string{"radial", "distance"},
		},
		Fields: []Field{
			point("center", "Centre", position.Zero),
			number("startDistance", "Start distance", 10, bound(0), nil),
			number("endDistance", "End distance", 1, bound(0), nil),
			number("azimuth", "Azimuth (deg)", 0, bound(-360), bound(360)),
			number("elevation", "Elevation (deg)", 0, bound(-90), bound(90)),
			easingField,
		},
		ControlPoints: []string{"center"},
	}
}

func (Zoom) Calculate(p Params, t, duration float64, ctx *Context) (position.Position, error) {
	center := p.Position("center", position.Zero)
	progress := util.Ease(p.String("easing", "linear"), util.Progress(t, duration))
	start := p.Float("startDistance", 10)
	end := p.Float("endDistance", 1)
	offset := position.FromAED(position.AED{
		Azimuth:   p.Float("azimuth", 0),
		Elevation: p.Float("elevation", 0),
		Distance:  start + (end-start)*progress,
	})
	return center.Add(offset), nil
}

// Doppler is a constant-speed fly-by: the source passes the listener along
// a straight line, optionally with the closest approach shifted in time.
type Doppler struct{}

func (Doppler) Type() string { return "doppler" }

func (Doppler) Describe() Descriptor {
	return Descriptor{
		Metadata: Metadata{
			Name: "Doppler fly-by", Version: "1.0.0", Type: "doppler", Category: "basic",
			Description: "Straight pass-by at constant speed",
			Tags:        []string{"flyby", "line"},
		},
		Fields: []Field{
			point("startPosition", "Start", position.New(-20, 5, 0)),
			point("endPosition", "End", position.New(20, 5, 0)),
			number("closestApproach", "Closest approach (0-1)", 0.5, bound(0.01), bound(0.99)),
		},
		ControlPoints: []string{"startPosition", "endPosition"},
	}
}

func (Doppler) Calculate(p Params, t, duration float64, ctx *Context) (position.Position, error) {
	start := p.Position("startPosition", position.New(-20, 5, 0))
	end := p.Position("endPosition", position.New(20, 5, 0))
	mid := util.Clamp(p.Float("closestApproach", 0.5), 0.01, 0.99)
	progress := util.Progress(t, duration)
	// Piecewise-linear remap so the midpoint of the line is reached at the
	// configured fraction of the duration.
	var s float64
	if progress <= mid {
		s = 0.5 * progress / mid
	} else {
		s = 0.5 + 0.5*(progress-mid)/(1-mid)
	}
	return start.Lerp(end, s), nil
}
