package motion

import (
	"math"

	"github.com/matt-g-everett/spatx/position"
	"github.com/matt-g-everett/spatx/util"
)

// Bezier follows a cubic Bezier curve through four control points.
type Bezier struct{}

func (Bezier) Type() string { return "bezier" }

func (Bezier) Describe() Descriptor {
	return Descriptor{
		Metadata: Metadata{
			Name: "Bezier", Version: "1.0.0", Type: "bezier", Category: "path",
			Description: "Cubic Bezier curve",
			Tags:        []string{"bezier", "curve", "path"},
		},
		Fields: []Field{
			point("startPosition", "Start", position.New(-10, 0, 0)),
			point("controlPoint1", "Control 1", position.New(-5, 10, 0)),
			point("controlPoint2", "Control 2", position.New(5, -10, 0)),
			point("endPosition", "End", position.New(10, 0, 0)),
			easingField,
		},
		ControlPoints: []string{"startPosition", "controlPoint1", "controlPoint2", "endPosition"},
		PathBased:     true,
	}
}

func (Bezier) DefaultParameters(track position.Position) Params {
	return Params{
		"startPosition": track,
		"controlPoint1": track.Add(position.New(3, 5, 0)),
		"controlPoint2": track.Add(position.New(7, -5, 0)),
		"endPosition":   track.Add(position.New(10, 0, 0)),
	}
}

func (Bezier) Calculate(p Params, t, duration float64, ctx *Context) (position.Position, error) {
	p0 := p.Position("startPosition", position.New(-10, 0, 0))
	p1 := p.Position("controlPoint1", position.New(-5, 10, 0))
	p2 := p.Position("controlPoint2", position.New(5, -10, 0))
	p3 := p.Position("endPosition", position.New(10, 0, 0))
	s := util.Ease(p.String("easing", "linear"), util.Progress(t, duration))
	return cubicBezier(p0, p1, p2, p3, s), nil
}

func cubicBezier(p0, p1, p2, p3 position.Position, s float64) position.Position {
	m := 1 - s
	return p0.Scale(m * m * m).
		Add(p1.Scale(3 * m * m * s)).
		Add(p2.Scale(3 * m * s * s)).
		Add(p3.Scale(s * s * s))
}

// CatmullRom follows a cardinal spline through every point in "points".
// Tension 0 is the classic Catmull-Rom spline; 1 gives straight segments.
type CatmullRom struct{}

func (CatmullRom) Type() string { return "catmull-rom" }

func (CatmullRom) Describe() Descriptor {
	return Descriptor{
		Metadata: Metadata{
			Name: "Catmull-Rom spline", Version: "1.0.0", Type: "catmull-rom", Category: "path",
			Description: "Smooth spline through a list of points",
			Tags:        []string{"spline", "path", "curve"},
		},
		Fields: []Field{
			{Key: "points", Kind: KindPositions, Label: "Points", Required: true, Default: []position.Position{
				position.New(-10, 0, 0), position.New(-3, 6, 0), position.New(3, -6, 0), position.New(10, 0, 0),
			}},
			number("tension", "Tension", 0, bound(0), bound(1)),
			flag("closed", "Closed loop", false),
			easingField,
		},
		ControlPoints: []string{"points"},
		PathBased:     true,
	}
}

func (CatmullRom) DefaultParameters(track position.Position) Params {
	return Params{"points": []position.Position{
		track,
		track.Add(position.New(4, 4, 0)),
		track.Add(position.New(8, -4, 0)),
		track.Add(position.New(12, 0, 0)),
	}}
}

func (CatmullRom) Calculate(p Params, t, duration float64, ctx *Context) (position.Position, error) {
	pts, ok := p.Positions("points")
	if !ok || len(pts) < 2 {
		return position.Zero, paramError("catmull-rom", "points", "at least two points are required")
	}
	closed := p.Bool("closed", false)
	tension := util.Clamp(p.Float("tension", 0), 0, 1)
	s := util.Ease(p.String("easing", "linear"), util.Progress(t, duration))

	segments := len(pts) - 1
	if closed {
		segments = len(pts)
	}
	x := s * float64(segments)
	i := int(math.Floor(x))
	if i >= segments {
		i = segments - 1
	}
	local := x - float64(i)

	at := func(k int) position.Position {
		if closed {
			return pts[((k%len(pts))+len(pts))%len(pts)]
		}
		if k < 0 {
			// Reflect the first point so the curve starts with a sensible tangent.
			return pts[0].Scale(2).Sub(pts[1])
		}
		if k >= len(pts) {
			n := len(pts)
			return pts[n-1].Scale(2).Sub(pts[n-2])
		}
		return pts[k]
	}
	return cardinal(at(i-1), at(i), at(i+1), at(i+2), tension, local), nil
}

// cardinal evaluates the Hermite form of a cardinal spline segment between
// p1 and p2.
func cardinal(p0, p1, p2, p3 position.Position, tension, s float64) position.Position {
	c := (1 - tension) / 2
	m1 := p2.Sub(p0).Scale(c)
	m2 := p3.Sub(p1).Scale(c)
	s2 := s * s
	s3 := s2 * s
	h00 := 2*s3 - 3*s2 + 1
	h10 := s3 - 2*s2 + s
	h01 := -2*s3 + 3*s2
	h11 := s3 - s2
	return p1.Scale(h00).Add(m1.Scale(h10)).Add(p2.Scale(h01)).Add(m2.Scale(h11))
}
