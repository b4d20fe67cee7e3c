package position

import (
	"fmt"
	"math"
)

// Limit is the largest absolute coordinate the renderer accepts.
const Limit = 1000.0

// AED is a polar position: azimuth and elevation in degrees, distance in
// metres. Azimuth 0 points along +Y and grows clockwise toward +X when seen
// from above, matching the renderer's convention.
type AED struct {
	Azimuth   float64 `json:"azimuth"`
	Elevation float64 `json:"elevation"`
	Distance  float64 `json:"distance"`
}

// ToAED converts a Cartesian position to azimuth/elevation/distance.
func ToAED(p Position) AED {
	dist := p.Length()
	if dist == 0 {
		return AED{}
	}
	az := math.Atan2(p.X, p.Y) * 180 / math.Pi
	if az < 0 {
		az += 360
	}
	el := math.Asin(clamp(p.Z/dist, -1, 1)) * 180 / math.Pi
	return AED{Azimuth: az, Elevation: el, Distance: dist}
}

// FromAED converts azimuth/elevation/distance back to Cartesian.
func FromAED(a AED) Position {
	az := a.Azimuth * math.Pi / 180
	el := a.Elevation * math.Pi / 180
	horiz := a.Distance * math.Cos(el)
	return Position{
		X: horiz * math.Sin(az),
		Y: horiz * math.Cos(az),
		Z: a.Distance * math.Sin(el),
	}
}

// ToVisual maps the Z-up playback frame into a Y-up visual frame (x, z, -y).
// The preview collaborator draws in that frame.
func ToVisual(p Position) Position {
	return Position{X: p.X, Y: p.Z, Z: -p.Y}
}

// FromVisual is the inverse of ToVisual.
func FromVisual(v Position) Position {
	return Position{X: v.X, Y: -v.Z, Z: v.Y}
}

// Validate checks that every coordinate is finite and within ±Limit.
func Validate(p Position) error {
	if !p.IsFinite() {
		return fmt.Errorf("position %s is not finite", p)
	}
	for _, c := range []struct {
		name string
		v    float64
	}{{"x", p.X}, {"y", p.Y}, {"z", p.Z}} {
		if c.v < -Limit || c.v > Limit {
			return fmt.Errorf("%s coordinate %g out of range [-%g, %g]", c.name, c.v, Limit, Limit)
		}
	}
	return nil
}

// Clamp limits every coordinate to ±Limit.
func Clamp(p Position) Position {
	return Position{
		X: clamp(p.X, -Limit, Limit),
		Y: clamp(p.Y, -Limit, Limit),
		Z: clamp(p.Z, -Limit, Limit),
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
