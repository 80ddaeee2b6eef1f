// Package geom provides the 2D image-plane primitives used by the occupancy
// pipeline: axis-aligned rectangles for detections, simple polygons for table
// regions, and the intersection math that assigns one to the other.
//
// Coordinates are pixels with the origin at the top-left of the frame.
package geom

import "math"

// Point is a position in image coordinates.
type Point struct {
	X, Y float64
}

// Rect is an axis-aligned rectangle (x1,y1 top-left, x2,y2 bottom-right).
type Rect struct {
	X1, Y1, X2, Y2 float64
}

// Width returns the horizontal extent of the rectangle.
func (r Rect) Width() float64 { return r.X2 - r.X1 }

// Height returns the vertical extent of the rectangle.
func (r Rect) Height() float64 { return r.Y2 - r.Y1 }

// Area returns the rectangle area, or 0 for degenerate rectangles.
func (r Rect) Area() float64 {
	if r.X2 <= r.X1 || r.Y2 <= r.Y1 {
		return 0
	}
	return r.Width() * r.Height()
}

// Center returns the rectangle centroid.
func (r Rect) Center() Point {
	return Point{X: (r.X1 + r.X2) / 2, Y: (r.Y1 + r.Y2) / 2}
}

// AspectRatio returns height/width. Degenerate widths yield +Inf rather
// than a division panic so callers can filter on the ratio directly.
func (r Rect) AspectRatio() float64 {
	w := r.Width()
	if w <= 0 {
		return math.Inf(1)
	}
	return r.Height() / w
}

// Valid reports whether the rectangle has positive area.
func (r Rect) Valid() bool { return r.Area() > 0 }

// Dist returns the Euclidean distance between two points.
func Dist(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// Polygon is an ordered ring of vertices interpreted as a simple closed
// region. Winding order does not matter; Area is always non-negative.
type Polygon []Point

// Area returns the polygon area via the shoelace formula.
func (p Polygon) Area() float64 {
	if len(p) < 3 {
		return 0
	}
	var sum float64
	for i := range p {
		j := (i + 1) % len(p)
		sum += p[i].X*p[j].Y - p[j].X*p[i].Y
	}
	return math.Abs(sum) / 2
}

// Contains reports whether pt lies inside the polygon (ray casting; points
// exactly on an edge may fall on either side).
func (p Polygon) Contains(pt Point) bool {
	if len(p) < 3 {
		return false
	}
	inside := false
	for i, j := 0, len(p)-1; i < len(p); j, i = i, i+1 {
		if (p[i].Y > pt.Y) != (p[j].Y > pt.Y) {
			x := p[j].X + (pt.Y-p[i].Y)/(p[j].Y-p[i].Y)*(p[j].X-p[i].X)
			if pt.X < x {
				inside = !inside
			}
		}
	}
	return inside
}

// Bounds returns the axis-aligned bounding rectangle of the polygon.
func (p Polygon) Bounds() Rect {
	if len(p) == 0 {
		return Rect{}
	}
	b := Rect{X1: p[0].X, Y1: p[0].Y, X2: p[0].X, Y2: p[0].Y}
	for _, v := range p[1:] {
		b.X1 = math.Min(b.X1, v.X)
		b.Y1 = math.Min(b.Y1, v.Y)
		b.X2 = math.Max(b.X2, v.X)
		b.Y2 = math.Max(b.Y2, v.Y)
	}
	return b
}

// Diagonal returns the diagonal length of the polygon's bounding rectangle.
func (p Polygon) Diagonal() float64 {
	b := p.Bounds()
	return math.Hypot(b.Width(), b.Height())
}

// IsConvex reports whether the polygon is convex. Collinear runs are
// tolerated. The clipping routines assume convex rings; callers should
// validate at configuration time.
func (p Polygon) IsConvex() bool {
	n := len(p)
	if n < 3 {
		return false
	}
	sign := 0.0
	for i := 0; i < n; i++ {
		a, b, c := p[i], p[(i+1)%n], p[(i+2)%n]
		cross := (b.X-a.X)*(c.Y-b.Y) - (b.Y-a.Y)*(c.X-b.X)
		if cross == 0 {
			continue
		}
		if sign == 0 {
			sign = cross
		} else if sign*cross < 0 {
			return false
		}
	}
	return true
}

// ClipToRect clips the polygon against an axis-aligned rectangle using
// Sutherland-Hodgman. The rectangle's four half-planes are applied in turn.
// The result is exact for convex subject polygons.
func (p Polygon) ClipToRect(r Rect) Polygon {
	out := p
	// Left, right, top, bottom half-planes.
	out = clipHalfPlane(out, func(v Point) float64 { return v.X - r.X1 })
	out = clipHalfPlane(out, func(v Point) float64 { return r.X2 - v.X })
	out = clipHalfPlane(out, func(v Point) float64 { return v.Y - r.Y1 })
	out = clipHalfPlane(out, func(v Point) float64 { return r.Y2 - v.Y })
	return out
}

// clipHalfPlane keeps the portion of the polygon where inside(v) >= 0.
func clipHalfPlane(p Polygon, inside func(Point) float64) Polygon {
	if len(p) == 0 {
		return nil
	}
	out := make(Polygon, 0, len(p)+2)
	for i := range p {
		cur := p[i]
		prev := p[(i+len(p)-1)%len(p)]
		curIn := inside(cur) >= 0
		prevIn := inside(prev) >= 0

		if curIn != prevIn {
			// Edge crosses the boundary; emit the intersection point.
			dPrev := inside(prev)
			dCur := inside(cur)
			t := dPrev / (dPrev - dCur)
			out = append(out, Point{
				X: prev.X + t*(cur.X-prev.X),
				Y: prev.Y + t*(cur.Y-prev.Y),
			})
		}
		if curIn {
			out = append(out, cur)
		}
	}
	return out
}

// IntersectionOverRect returns the fraction of the rectangle's area covered
// by the polygon (IoP in the occupancy pipeline). Zero-area rectangles
// return 0.
func (p Polygon) IntersectionOverRect(r Rect) float64 {
	ra := r.Area()
	if ra <= 0 || len(p) < 3 {
		return 0
	}
	clipped := p.ClipToRect(r)
	if len(clipped) < 3 {
		return 0
	}
	frac := clipped.Area() / ra
	if frac > 1 {
		frac = 1
	}
	return frac
}
