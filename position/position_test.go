package position

import (
	"math"
	"testing"
)

const eps = 1e-9

func TestCentroid(t *testing.T) {
	pts := []Position{{X: 1}, {X: -1}, {Y: 3}, {Y: -3, Z: 4}}
	got := Centroid(pts)
	if !got.ApproxEqual(Position{Z: 1}, eps) {
		t.Fatalf("Centroid = %v, want (0,0,1)", got)
	}
	if Centroid(nil) != Zero {
		t.Fatalf("Centroid(nil) should be Zero")
	}
}

func TestWeightedCentroid(t *testing.T) {
	pts := []Position{{X: 0}, {X: 10}}
	got := WeightedCentroid(pts, []float64{1, 3})
	if !got.ApproxEqual(Position{X: 7.5}, eps) {
		t.Fatalf("WeightedCentroid = %v, want x=7.5", got)
	}
	if got := WeightedCentroid(pts, nil); !got.ApproxEqual(Centroid(pts), eps) {
		t.Fatalf("nil weights should match Centroid, got %v", got)
	}
}

func TestRotateAround(t *testing.T) {
	got := Position{X: 1}.RotateAround(Position{Z: 1}, math.Pi/2)
	if !got.ApproxEqual(Position{Y: 1}, eps) {
		t.Fatalf("rotate x about z by 90deg = %v, want (0,1,0)", got)
	}
}

func TestPlanePlaceProjectRoundTrip(t *testing.T) {
	center := Position{X: 1, Y: 2, Z: 3}
	for _, pl := range []Plane{PlaneXY, PlaneXZ, PlaneYZ} {
		p := pl.Place(center, 4, 5, 6)
		u, v, w := pl.Project(center, p)
		if u != 4 || v != 5 || w != 6 {
			t.Fatalf("%s: project(place(4,5,6)) = %v,%v,%v", pl, u, v, w)
		}
	}
}

func TestPlaneNormalMatchesRotationSense(t *testing.T) {
	for _, pl := range []Plane{PlaneXY, PlaneXZ, PlaneYZ} {
		first := pl.Place(Zero, 1, 0, 0)
		second := pl.Place(Zero, 0, 1, 0)
		got := first.RotateAround(pl.Normal(), math.Pi/2)
		if !got.ApproxEqual(second, eps) {
			t.Fatalf("%s: rotating first axis gave %v, want %v", pl, got, second)
		}
	}
}

func TestParsePlane(t *testing.T) {
	if p, err := ParsePlane(" XZ "); err != nil || p != PlaneXZ {
		t.Fatalf("ParsePlane(XZ) = %v, %v", p, err)
	}
	if _, err := ParsePlane("ab"); err == nil {
		t.Fatalf("expected error for invalid plane")
	}
}

func TestAEDRoundTrip(t *testing.T) {
	cases := []Position{{X: 1, Y: 2, Z: 3}, {Y: 5}, {X: -4, Y: -4, Z: -1}}
	for _, p := range cases {
		back := FromAED(ToAED(p))
		if !back.ApproxEqual(p, 1e-9) {
			t.Fatalf("AED round trip %v -> %v", p, back)
		}
	}
	a := ToAED(Position{X: 1})
	if math.Abs(a.Azimuth-90) > eps || math.Abs(a.Distance-1) > eps {
		t.Fatalf("ToAED(+x) = %+v, want azimuth 90", a)
	}
}

func TestVisualRoundTrip(t *testing.T) {
	p := Position{X: 1, Y: 2, Z: 3}
	if v := ToVisual(p); v != (Position{X: 1, Y: 3, Z: -2}) {
		t.Fatalf("ToVisual = %v", v)
	}
	if back := FromVisual(ToVisual(p)); back != p {
		t.Fatalf("visual round trip = %v", back)
	}
}

func TestValidate(t *testing.T) {
	if err := Validate(Position{X: 999}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := Validate(Position{Z: -1001}); err == nil {
		t.Fatalf("expected range error")
	}
	if err := Validate(Position{Y: math.NaN()}); err == nil {
		t.Fatalf("expected finite error")
	}
}
