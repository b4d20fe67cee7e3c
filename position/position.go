// Package position holds the Position value type shared by every part of the
// animator, plus the vector helpers the motion models and the distributor
// build on.
//
// Coordinates are right-handed and Z-up, in metres.
package position

import (
	"fmt"
	"math"
)

// Position is a point in the playback frame.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

// Zero is the origin.
var Zero = Position{}

// New creates a Position from its components.
func New(x, y, z float64) Position {
	return Position{X: x, Y: y, Z: z}
}

// Add returns p + o.
func (p Position) Add(o Position) Position {
	return Position{X: p.X + o.X, Y: p.Y + o.Y, Z: p.Z + o.Z}
}

// Sub returns p - o.
func (p Position) Sub(o Position) Position {
	return Position{X: p.X - o.X, Y: p.Y - o.Y, Z: p.Z - o.Z}
}

// Scale returns p * s.
func (p Position) Scale(s float64) Position {
	return Position{X: p.X * s, Y: p.Y * s, Z: p.Z * s}
}

// Dot returns the dot product of p and o.
func (p Position) Dot(o Position) float64 {
	return p.X*o.X + p.Y*o.Y + p.Z*o.Z
}

// Cross returns the cross product p × o.
func (p Position) Cross(o Position) Position {
	return Position{
		X: p.Y*o.Z - p.Z*o.Y,
		Y: p.Z*o.X - p.X*o.Z,
		Z: p.X*o.Y - p.Y*o.X,
	}
}

// Length returns the euclidean norm.
func (p Position) Length() float64 {
	return math.Sqrt(p.Dot(p))
}

// Distance returns the euclidean distance between p and o.
func (p Position) Distance(o Position) float64 {
	return p.Sub(o).Length()
}

// Normalize returns the unit vector along p, or Zero when p has no length.
func (p Position) Normalize() Position {
	l := p.Length()
	if l == 0 {
		return Zero
	}
	return p.Scale(1 / l)
}

// Lerp linearly interpolates between p (t=0) and o (t=1). t is not clamped.
func (p Position) Lerp(o Position, t float64) Position {
	return Position{
		X: p.X + (o.X-p.X)*t,
		Y: p.Y + (o.Y-p.Y)*t,
		Z: p.Z + (o.Z-p.Z)*t,
	}
}

// IsFinite reports whether all components are finite numbers.
func (p Position) IsFinite() bool {
	return isFinite(p.X) && isFinite(p.Y) && isFinite(p.Z)
}

// ApproxEqual compares component-wise within eps.
func (p Position) ApproxEqual(o Position, eps float64) bool {
	return math.Abs(p.X-o.X) <= eps && math.Abs(p.Y-o.Y) <= eps && math.Abs(p.Z-o.Z) <= eps
}

func (p Position) String() string {
	return fmt.Sprintf("(%.3f, %.3f, %.3f)", p.X, p.Y, p.Z)
}

// RotateAround rotates p by angle radians around the unit axis through the
// origin (Rodrigues' formula). Positive angles are counterclockwise when
// looking down the axis toward the origin.
func (p Position) RotateAround(axis Position, angle float64) Position {
	k := axis.Normalize()
	if k == Zero || angle == 0 {
		return p
	}
	cos, sin := math.Cos(angle), math.Sin(angle)
	return p.Scale(cos).
		Add(k.Cross(p).Scale(sin)).
		Add(k.Scale(k.Dot(p) * (1 - cos)))
}

// Centroid returns the unweighted mean of points. It returns Zero for an
// empty slice.
func Centroid(points []Position) Position {
	if len(points) == 0 {
		return Zero
	}
	var sum Position
	for _, p := range points {
		sum = sum.Add(p)
	}
	return sum.Scale(1 / float64(len(points)))
}

// WeightedCentroid returns the weighted mean of points. Missing or
// non-positive weights count as 1, so a nil weights slice gives Centroid.
func WeightedCentroid(points []Position, weights []float64) Position {
	if len(points) == 0 {
		return Zero
	}
	var sum Position
	total := 0.0
	for i, p := range points {
		w := 1.0
		if i < len(weights) && weights[i] > 0 {
			w = weights[i]
		}
		sum = sum.Add(p.Scale(w))
		total += w
	}
	return sum.Scale(1 / total)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
