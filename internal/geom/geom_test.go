package geom

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestRectArea(t *testing.T) {
	r := Rect{X1: 10, Y1: 20, X2: 30, Y2: 60}
	if !almostEqual(r.Area(), 800) {
		t.Errorf("expected area 800, got %v", r.Area())
	}
	if r.Width() != 20 || r.Height() != 40 {
		t.Errorf("unexpected dimensions: %v x %v", r.Width(), r.Height())
	}
}

func TestRectAreaDegenerate(t *testing.T) {
	cases := []Rect{
		{X1: 10, Y1: 10, X2: 10, Y2: 20}, // zero width
		{X1: 10, Y1: 10, X2: 20, Y2: 10}, // zero height
		{X1: 20, Y1: 20, X2: 10, Y2: 10}, // inverted
	}
	for _, r := range cases {
		if r.Area() != 0 {
			t.Errorf("expected zero area for %+v, got %v", r, r.Area())
		}
		if r.Valid() {
			t.Errorf("expected %+v to be invalid", r)
		}
	}
}

func TestRectCenter(t *testing.T) {
	r := Rect{X1: 0, Y1: 0, X2: 10, Y2: 20}
	c := r.Center()
	if c.X != 5 || c.Y != 10 {
		t.Errorf("unexpected center %+v", c)
	}
}

func TestPolygonArea(t *testing.T) {
	square := Polygon{{0, 0}, {10, 0}, {10, 10}, {0, 10}}
	if !almostEqual(square.Area(), 100) {
		t.Errorf("expected area 100, got %v", square.Area())
	}

	// Winding order must not matter.
	reversed := Polygon{{0, 10}, {10, 10}, {10, 0}, {0, 0}}
	if !almostEqual(reversed.Area(), 100) {
		t.Errorf("expected area 100 for reversed winding, got %v", reversed.Area())
	}

	triangle := Polygon{{0, 0}, {10, 0}, {0, 10}}
	if !almostEqual(triangle.Area(), 50) {
		t.Errorf("expected area 50, got %v", triangle.Area())
	}

	if (Polygon{{0, 0}, {1, 1}}).Area() != 0 {
		t.Error("expected zero area for degenerate polygon")
	}
}

func TestPolygonContains(t *testing.T) {
	poly := Polygon{{0, 0}, {100, 0}, {100, 100}, {0, 100}}
	if !poly.Contains(Point{50, 50}) {
		t.Error("expected interior point to be contained")
	}
	if poly.Contains(Point{150, 50}) {
		t.Error("expected exterior point to be excluded")
	}
}

func TestPolygonIsConvex(t *testing.T) {
	convex := Polygon{{0, 0}, {10, 0}, {10, 10}, {0, 10}}
	if !convex.IsConvex() {
		t.Error("expected square to be convex")
	}

	concave := Polygon{{0, 0}, {10, 0}, {5, 5}, {10, 10}, {0, 10}}
	if concave.IsConvex() {
		t.Error("expected notched polygon to be concave")
	}
}

func TestClipToRect(t *testing.T) {
	poly := Polygon{{0, 0}, {10, 0}, {10, 10}, {0, 10}}

	// Rect fully inside the polygon: clip is the rect itself.
	inner := Rect{X1: 2, Y1: 2, X2: 8, Y2: 8}
	clipped := poly.ClipToRect(inner)
	if !almostEqual(clipped.Area(), 36) {
		t.Errorf("expected clipped area 36, got %v", clipped.Area())
	}

	// Rect overlapping half of the polygon.
	half := Rect{X1: 5, Y1: 0, X2: 15, Y2: 10}
	clipped = poly.ClipToRect(half)
	if !almostEqual(clipped.Area(), 50) {
		t.Errorf("expected clipped area 50, got %v", clipped.Area())
	}

	// Disjoint rect: empty clip.
	far := Rect{X1: 20, Y1: 20, X2: 30, Y2: 30}
	if got := poly.ClipToRect(far); len(got) >= 3 && got.Area() > 0 {
		t.Errorf("expected empty clip, got area %v", got.Area())
	}
}

func TestIntersectionOverRect(t *testing.T) {
	poly := Polygon{{0, 0}, {100, 0}, {100, 100}, {0, 100}}

	// Rect half inside the polygon.
	r := Rect{X1: 50, Y1: 0, X2: 150, Y2: 100}
	if got := poly.IntersectionOverRect(r); !almostEqual(got, 0.5) {
		t.Errorf("expected IoP 0.5, got %v", got)
	}

	// Rect fully inside.
	r = Rect{X1: 10, Y1: 10, X2: 20, Y2: 20}
	if got := poly.IntersectionOverRect(r); !almostEqual(got, 1) {
		t.Errorf("expected IoP 1, got %v", got)
	}

	// Rect fully outside.
	r = Rect{X1: 200, Y1: 200, X2: 300, Y2: 300}
	if got := poly.IntersectionOverRect(r); got != 0 {
		t.Errorf("expected IoP 0, got %v", got)
	}

	// Triangular table region: rect covering the bounding box has IoP
	// equal to triangle area over rect area.
	tri := Polygon{{0, 0}, {10, 0}, {0, 10}}
	r = Rect{X1: 0, Y1: 0, X2: 10, Y2: 10}
	if got := tri.IntersectionOverRect(r); !almostEqual(got, 0.5) {
		t.Errorf("expected IoP 0.5 for triangle, got %v", got)
	}

	// Degenerate rect never divides by zero.
	if got := poly.IntersectionOverRect(Rect{}); got != 0 {
		t.Errorf("expected IoP 0 for degenerate rect, got %v", got)
	}
}

func TestPolygonBoundsAndDiagonal(t *testing.T) {
	poly := Polygon{{10, 20}, {40, 25}, {30, 60}}
	b := poly.Bounds()
	want := Rect{X1: 10, Y1: 20, X2: 40, Y2: 60}
	if b != want {
		t.Errorf("expected bounds %+v, got %+v", want, b)
	}
	if !almostEqual(poly.Diagonal(), math.Hypot(30, 40)) {
		t.Errorf("unexpected diagonal %v", poly.Diagonal())
	}
}
