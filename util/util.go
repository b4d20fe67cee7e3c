package util

import (
	"math"
	"strings"

	"github.com/fogleman/ease"
)

// EaseFunc maps normalised progress in [0,1] to eased progress.
type EaseFunc func(t float64) float64

var easings = map[string]EaseFunc{
	"linear":       ease.Linear,
	"ease-in":      ease.InQuad,
	"ease-out":     ease.OutQuad,
	"ease-in-out":  ease.InOutQuad,
	"in-quad":      ease.InQuad,
	"out-quad":     ease.OutQuad,
	"in-out-quad":  ease.InOutQuad,
	"in-cubic":     ease.InCubic,
	"out-cubic":    ease.OutCubic,
	"in-out-cubic": ease.InOutCubic,
	"in-sine":      ease.InSine,
	"out-sine":     ease.OutSine,
	"in-out-sine":  ease.InOutSine,
	"in-expo":      ease.InExpo,
	"out-expo":     ease.OutExpo,
	"in-out-expo":  ease.InOutExpo,
	"out-bounce":   ease.OutBounce,
}

// Easing resolves a curve by name. Unknown or empty names give linear, and
// the bool reports whether the name was recognised.
func Easing(name string) (EaseFunc, bool) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return ease.Linear, true
	}
	if f, ok := easings[n]; ok {
		return f, true
	}
	return ease.Linear, false
}

// Ease applies the named curve to t after clamping t to [0,1].
func Ease(name string, t float64) float64 {
	f, _ := Easing(name)
	return f(Clamp(t, 0, 1))
}

// EasingNames lists the recognised curve names.
func EasingNames() []string {
	names := make([]string, 0, len(easings))
	for n := range easings {
		names = append(names, n)
	}
	return names
}

// Clamp restricts v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Radians converts degrees to radians.
func Radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// Degrees converts radians to degrees.
func Degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}

// WrapAngle wraps a radian angle into [0, 2π).
func WrapAngle(a float64) float64 {
	a = math.Mod(a, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	return a
}

// Progress returns t/duration clamped to [0,1]. A zero or negative duration
// means the animation is already complete, so progress is 1.
func Progress(t, duration float64) float64 {
	if duration <= 0 {
		return 1
	}
	return Clamp(t/duration, 0, 1)
}
