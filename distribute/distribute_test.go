package distribute

import (
	"errors"
	"math"
	"testing"

	"github.com/matt-g-everett/spatx/motion"
	"github.com/matt-g-everett/spatx/position"
)

const eps = 1e-6

func tracks(pts ...position.Position) []Track {
	out := make([]Track, len(pts))
	for i, p := range pts {
		out[i] = Track{ID: string(rune('a' + i)), Position: p}
	}
	return out
}

// circle evaluates a circular model as the moving reference point.
func circle(center position.Position) (Eval, Rotation) {
	p := motion.Params{"center": center, "radius": 3.0}
	eval := func(t float64, k int) (position.Position, error) {
		return motion.Circular{}.Calculate(p, t, 8, nil)
	}
	rot := func(t float64) (float64, position.Position) {
		return motion.Circular{}.Rotation(p, t, 8)
	}
	return eval, rot
}

func TestParseMode(t *testing.T) {
	tests := map[string]Mode{
		"shared": Identical, "OFFSET": Relative, "isobarycenter": Isobarycenter,
		"centered": Centered, "": Identical, "phase-offset": PhaseOffset,
	}
	for in, want := range tests {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Errorf("ParseMode(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseMode("spiral"); !errors.Is(err, ErrUnknownMode) {
		t.Fatalf("want ErrUnknownMode, got %v", err)
	}
}

func TestIdentical(t *testing.T) {
	plan, err := NewPlan(Identical, tracks(position.New(1, 0, 0), position.New(5, 5, 5)), Options{})
	if err != nil {
		t.Fatal(err)
	}
	eval, _ := circle(position.Zero)
	got, err := plan.Distribute(2, eval, nil)
	if err != nil {
		t.Fatal(err)
	}
	base, _ := eval(2, -1)
	for _, a := range got {
		if a.Position != base {
			t.Fatalf("track %s = %v, want %v", a.TrackID, a.Position, base)
		}
	}
}

func TestIsobarycenterMeanFollowsReference(t *testing.T) {
	set := tracks(position.New(1, 2, 0), position.New(-4, 0, 1), position.New(3, -3, 2), position.New(0, 7, -1))
	for _, rotate := range []bool{false, true} {
		plan, err := NewPlan(Isobarycenter, set, Options{Rotate: rotate})
		if err != nil {
			t.Fatal(err)
		}
		if !plan.Reference().ApproxEqual(position.Centroid([]position.Position{
			set[0].Position, set[1].Position, set[2].Position, set[3].Position}), eps) {
			t.Fatalf("reference = %v", plan.Reference())
		}
		eval, rot := circle(plan.Reference())
		for i := 0; i < 40; i++ {
			tm := float64(i) * 0.23
			got, err := plan.Distribute(tm, eval, rot)
			if err != nil {
				t.Fatal(err)
			}
			pts := make([]position.Position, len(got))
			for k, a := range got {
				pts[k] = a.Position
			}
			base, _ := eval(tm, -1)
			if mean := position.Centroid(pts); !mean.ApproxEqual(base, eps) {
				t.Fatalf("rotate=%v t=%v: mean %v, reference %v", rotate, tm, mean, base)
			}
		}
	}
}

func TestRelativeKeepsOffsets(t *testing.T) {
	center := position.New(10, 0, 0)
	set := tracks(position.New(11, 0, 0), position.New(10, 2, 0))
	plan, err := NewPlan(Relative, set, Options{Center: &center})
	if err != nil {
		t.Fatal(err)
	}
	got := plan.Apply(position.New(0, 0, 5), nil)
	if !got[0].Position.ApproxEqual(position.New(1, 0, 5), eps) || !got[1].Position.ApproxEqual(position.New(0, 2, 5), eps) {
		t.Fatalf("offsets not kept: %v", got)
	}
}

func TestRelativeRotatesOffsets(t *testing.T) {
	set := tracks(position.New(1, 0, 0), position.New(-1, 0, 0))
	plan, _ := NewPlan(Relative, set, Options{Rotate: true})
	eval, rot := circle(position.Zero)
	// A quarter of the circle turns the offsets by 90 degrees.
	got, err := plan.Distribute(2, eval, rot)
	if err != nil {
		t.Fatal(err)
	}
	base, _ := eval(2, -1)
	if !got[0].Position.Sub(base).ApproxEqual(position.New(0, 1, 0), eps) {
		t.Fatalf("offset not rotated: %v", got[0].Position.Sub(base))
	}
}

func TestCenteredFormsSquare(t *testing.T) {
	set := tracks(position.New(1, 1, 0), position.New(-1, 1, 0), position.New(-1, -1, 0), position.New(1, -1, 0))
	plan, err := NewPlan(Centered, set, Options{Radius: 5})
	if err != nil {
		t.Fatal(err)
	}
	eval, rot := circle(position.New(2, 2, 2))
	for i := 0; i < 20; i++ {
		tm := float64(i) * 0.4
		got, err := plan.Distribute(tm, eval, rot)
		if err != nil {
			t.Fatal(err)
		}
		base, _ := eval(tm, -1)
		p := []position.Position{got[0].Position, got[1].Position, got[2].Position, got[3].Position}
		side := p[0].Distance(p[1])
		for k := 0; k < 4; k++ {
			if d := p[k].Distance(p[(k+1)%4]); math.Abs(d-side) > eps {
				t.Fatalf("side %d = %v, want %v", k, d, side)
			}
			if d := p[k].Distance(base); math.Abs(d-5) > eps {
				t.Fatalf("track %d is %v from the centre, want 5", k, d)
			}
		}
		d1, d2 := p[0].Distance(p[2]), p[1].Distance(p[3])
		if math.Abs(d1-d2) > eps || math.Abs(d1-side*math.Sqrt2) > eps {
			t.Fatalf("diagonals %v %v, side %v", d1, d2, side)
		}
		if !position.Centroid(p).ApproxEqual(base, eps) {
			t.Fatalf("square not centred on %v", base)
		}
	}
}

func TestReductions(t *testing.T) {
	single := tracks(position.New(4, 4, 4))
	for _, m := range []Mode{Relative, Isobarycenter, Centered} {
		plan, err := NewPlan(m, single, Options{Radius: 3})
		if err != nil {
			t.Fatal(err)
		}
		if plan.Mode() != Identical {
			t.Fatalf("%s with one track = %s, want identical", m, plan.Mode())
		}
	}
	plan, _ := NewPlan(Centered, tracks(position.Zero, position.New(1, 0, 0)), Options{Radius: 0})
	if plan.Mode() != Identical {
		t.Fatalf("centered with radius 0 = %s, want identical", plan.Mode())
	}
	if _, err := NewPlan(Identical, nil, Options{}); !errors.Is(err, ErrNoTracks) {
		t.Fatalf("want ErrNoTracks, got %v", err)
	}
	if _, err := NewPlan(CustomCenter, single, Options{}); err == nil {
		t.Fatalf("custom-center without centre accepted")
	}
}

func TestPhaseOffset(t *testing.T) {
	set := tracks(position.Zero, position.Zero, position.Zero)
	plan, _ := NewPlan(PhaseOffset, set, Options{PhaseOffset: 0.5})
	var seen []float64
	eval := func(t float64, k int) (position.Position, error) {
		seen = append(seen, t)
		return position.New(t, float64(k), 0), nil
	}
	got, err := plan.Distribute(0.75, eval, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{0.75, 0.25, 0}
	for k := range want {
		if math.Abs(seen[k]-want[k]) > eps || got[k].Position.X != seen[k] {
			t.Fatalf("track %d evaluated at %v, want %v", k, seen[k], want[k])
		}
	}
	if _, err := plan.Distribute(1, func(float64, int) (position.Position, error) {
		return position.Zero, errors.New("boom")
	}, nil); err == nil {
		t.Fatalf("evaluation error not returned")
	}
}

func TestClockLag(t *testing.T) {
	tests := []struct {
		name string
		c    Clock
		lag  float64
		want float64
	}{
		{"no lag", Clock{Time: 2.2, Duration: 4}, 0, 2.2},
		{"holds start on first play", Clock{Time: 0.5, Duration: 4}, 1, 0},
		{"first play", Clock{Time: 3, Duration: 4}, 1, 2},
		{"across loop boundary", Clock{Time: 0.1, Duration: 4, Iteration: 1}, 1, 3.1},
		{"several plays behind", Clock{Time: 0.5, Duration: 4, Iteration: 3}, 9, 3.5},
		{"ping-pong before turn", Clock{Time: 3.5, Duration: 4, Iteration: 1, PingPong: true}, 1, 3.5},
		{"ping-pong coming back", Clock{Time: 0.5, Duration: 4, Iteration: 2, PingPong: true}, 1, 0.5},
		{"reverse holds end", Clock{Time: 3.5, Duration: 4, Reverse: true}, 1, 4},
		{"reverse", Clock{Time: 1, Duration: 4, Reverse: true}, 1, 2},
		{"no duration", Clock{Time: 0.5}, 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.c.Lag(tt.lag); math.Abs(got-tt.want) > eps {
				t.Fatalf("Lag(%v) = %v, want %v", tt.lag, got, tt.want)
			}
		})
	}
}

func TestPhaseOffsetAcrossLoop(t *testing.T) {
	plan, _ := NewPlan(PhaseOffset, tracks(position.Zero, position.Zero), Options{PhaseOffset: 1})
	eval, _ := circle(position.Zero)
	var prev position.Position
	for i := 0; i <= 20; i++ {
		u := 7 + float64(i)*0.05
		c := Clock{Time: math.Mod(u, 8), Duration: 8, Iteration: int(u / 8)}
		got, err := plan.DistributeAt(c, eval, nil)
		if err != nil {
			t.Fatal(err)
		}
		// A radius 3 circle in 8 s covers about 0.12 per 0.05 s step.
		if i > 0 && got[1].Position.Sub(prev).Length() > 0.2 {
			t.Fatalf("lagging track jumped from %v to %v at %v", prev, got[1].Position, u)
		}
		prev = got[1].Position
	}
}

func TestCheckCompatibility(t *testing.T) {
	for _, m := range []motion.Model{motion.Bezier{}, motion.CatmullRom{}, motion.Zigzag{}, motion.Custom{}} {
		if err := CheckCompatibility(Centered, m.Describe()); !errors.Is(err, ErrIncompatible) {
			t.Errorf("%s: want ErrIncompatible, got %v", m.Type(), err)
		}
		if err := CheckCompatibility(Isobarycenter, m.Describe()); err != nil {
			t.Errorf("%s isobarycenter: %v", m.Type(), err)
		}
	}
	if err := CheckCompatibility(Centered, motion.Circular{}.Describe()); err != nil {
		t.Fatalf("circular centered: %v", err)
	}
}

func TestMap(t *testing.T) {
	m := Map([]Assignment{{TrackID: "a", Position: position.New(1, 2, 3)}})
	if m["a"] != position.New(1, 2, 3) {
		t.Fatalf("Map = %v", m)
	}
}
