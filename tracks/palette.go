package tracks

import (
	"github.com/lucasb-eyer/go-colorful"
)

// Palette is a look-up table of hues by position in [0,1], interpolated in
// HCL space.
type Palette []struct {
	Hue float64
	Pos float64
}

// DefaultPalette runs once around the hue circle.
var DefaultPalette = Palette{
	{0.0, 0.0},
	{6.0, 0.04},   // Pink
	{87.0, 0.14},  // Red
	{88.0, 0.28},  // Orange
	{98.0, 0.42},  // Yellow
	{180.0, 0.56}, // Green
	{190.0, 0.70}, // Turquoise
	{320.0, 0.84}, // Blue
	{328.0, 0.91}, // Violet
	{360.0, 1.0},  // Pink wrap
}

// Color returns the colour at t with the given chroma and luminance.
func (g Palette) Color(t, c, l float64) colorful.Color {
	for i := 0; i < len(g)-1; i++ {
		c1 := g[i]
		c2 := g[i+1]
		if c1.Pos <= t && t <= c2.Pos {
			h := (((t - c1.Pos) / (c2.Pos - c1.Pos)) * (c2.Hue - c1.Hue)) + c1.Hue
			return colorful.Hcl(h, c, l).Clamped()
		}
	}
	return colorful.Hcl(g[len(g)-1].Hue, c, l).Clamped()
}

// Spread returns n distinct colours evenly spaced along the palette.
func (g Palette) Spread(n int) []colorful.Color {
	out := make([]colorful.Color, n)
	for i := range out {
		out[i] = g.Color(float64(i)/float64(max(n, 1)), 0.6, 0.65)
	}
	return out
}
