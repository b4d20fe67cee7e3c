package position

import (
	"fmt"
	"strings"
)

// Plane selects the two axes that carry a model's in-plane motion. The
// remaining axis is the plane's normal.
type Plane string

const (
	PlaneXY Plane = "xy"
	PlaneXZ Plane = "xz"
	PlaneYZ Plane = "yz"
)

// ParsePlane accepts xy/xz/yz in any case. Unknown values are an error.
func ParsePlane(s string) (Plane, error) {
	switch Plane(strings.ToLower(strings.TrimSpace(s))) {
	case PlaneXY:
		return PlaneXY, nil
	case PlaneXZ:
		return PlaneXZ, nil
	case PlaneYZ:
		return PlaneYZ, nil
	}
	return "", fmt.Errorf("invalid plane %q", s)
}

// Place maps in-plane coordinates (u along the first axis, v along the
// second, w along the normal) onto a 3D offset from center.
func (pl Plane) Place(center Position, u, v, w float64) Position {
	switch pl {
	case PlaneXZ:
		return Position{X: center.X + u, Y: center.Y + w, Z: center.Z + v}
	case PlaneYZ:
		return Position{X: center.X + w, Y: center.Y + u, Z: center.Z + v}
	default:
		return Position{X: center.X + u, Y: center.Y + v, Z: center.Z + w}
	}
}

// Project splits p-center into in-plane (u, v) and normal (w) components.
func (pl Plane) Project(center, p Position) (u, v, w float64) {
	d := p.Sub(center)
	switch pl {
	case PlaneXZ:
		return d.X, d.Z, d.Y
	case PlaneYZ:
		return d.Y, d.Z, d.X
	default:
		return d.X, d.Y, d.Z
	}
}

// Normal returns the unit normal of the plane, oriented so that a positive
// rotation around it turns the first axis toward the second.
func (pl Plane) Normal() Position {
	switch pl {
	case PlaneXZ:
		// x -> z is a negative rotation about +y.
		return Position{Y: -1}
	case PlaneYZ:
		return Position{X: 1}
	default:
		return Position{Z: 1}
	}
}
