package motion

import (
	"math"
	"strings"

	"github.com/matt-g-everett/spatx/position"
	"github.com/matt-g-everett/spatx/util"
)

// Rotation direction convention: counterclockwise (the default) is the
// mathematically positive direction, turning the plane's first axis toward
// its second axis as seen from the positive normal. For the xy plane that is
// +x toward +y. Clockwise negates the angle.
func direction(p Params) float64 {
	if strings.EqualFold(p.String("direction", "counterclockwise"), "clockwise") {
		return -1
	}
	return 1
}

// cycles returns how many revolutions have elapsed at t. An explicit period
// (seconds per revolution) wins; otherwise "rotations" revolutions are
// spread over the animation duration.
func cycles(p Params, t, duration float64) float64 {
	if period := p.Float("period", 0); period > 0 {
		return t / period
	}
	return p.Float("rotations", 1) * util.Progress(t, duration)
}

// phase returns the wrapped angle in radians for rotational models.
func phase(p Params, t, duration float64) float64 {
	start := util.Radians(p.Float("startAngle", 0))
	return util.WrapAngle(start + direction(p)*2*math.Pi*cycles(p, t, duration))
}

// rotationFrom implements Rotator for plane-based rotational models: the
// angle travelled since t=0 around the plane normal.
func rotationFrom(p Params, t, duration float64) (float64, position.Position) {
	angle := direction(p) * 2 * math.Pi * cycles(p, t, duration)
	return angle, p.Plane("plane", position.PlaneXY).Normal()
}
