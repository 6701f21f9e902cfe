package shape

import "math"

// Rect is an axis-aligned rectangle. W and H may be negative until the
// rectangle is normalized.
type Rect struct {
	X, Y, W, H float64
}

// Normalize returns r with non-negative extents covering the same area.
func (r Rect) Normalize() Rect {
	if r.W < 0 {
		r.X += r.W
		r.W = -r.W
	}
	if r.H < 0 {
		r.Y += r.H
		r.H = -r.H
	}
	return r
}

// Overlaps reports whether the interiors of r and o overlap. Both are
// normalized first.
func (r Rect) Overlaps(o Rect) bool {
	r = r.Normalize()
	o = o.Normalize()
	return r.X < o.X+o.W && r.X+r.W > o.X &&
		r.Y < o.Y+o.H && r.Y+r.H > o.Y
}

// Contains reports whether p lies inside r or on its border.
func (r Rect) Contains(p Point) bool {
	r = r.Normalize()
	return p.X >= r.X && p.X <= r.X+r.W && p.Y >= r.Y && p.Y <= r.Y+r.H
}

// edges returns the four sides of r in clockwise order from the top.
func (r Rect) edges() [4][2]Point {
	r = r.Normalize()
	tl := Point{X: r.X, Y: r.Y}
	tr := Point{X: r.X + r.W, Y: r.Y}
	br := Point{X: r.X + r.W, Y: r.Y + r.H}
	bl := Point{X: r.X, Y: r.Y + r.H}
	return [4][2]Point{{tl, tr}, {tr, br}, {br, bl}, {bl, tl}}
}

// Intersects reports whether s touches the query rectangle q. This is the
// eraser test.
//
//   - rectangle, square: box overlap
//   - circle: distance from the center to the closest point of q
//   - triangle: the (x ± base/2, y)..(x, y-height) box, an over-approximation
//   - freehand: any path segment crossing any edge of q
//   - text: never
func (s Shape) Intersects(q Rect) bool {
	switch s.Kind {
	case Rectangle, Square, Triangle:
		return s.Bounds().Overlaps(q)
	case Circle:
		return circleIntersects(s.X, s.Y, s.Radius, q)
	case Freehand:
		return pathIntersects(s.Points, q)
	default:
		return false
	}
}

func circleIntersects(cx, cy, radius float64, q Rect) bool {
	q = q.Normalize()
	nearestX := math.Max(q.X, math.Min(cx, q.X+q.W))
	nearestY := math.Max(q.Y, math.Min(cy, q.Y+q.H))
	dx := cx - nearestX
	dy := cy - nearestY
	return dx*dx+dy*dy <= radius*radius
}

// pathIntersects tests each consecutive pair of points against the edges
// of q. A path with a single point has no segments, so a segment test
// alone would never hit it; such a path (a remote draw point) is hit when
// the point lies inside q instead.
func pathIntersects(points []Point, q Rect) bool {
	switch len(points) {
	case 0:
		return false
	case 1:
		return q.Contains(points[0])
	}
	for i := 1; i < len(points); i++ {
		if lineIntersectsRect(points[i-1], points[i], q) {
			return true
		}
	}
	return false
}

func lineIntersectsRect(a, b Point, q Rect) bool {
	for _, e := range q.edges() {
		if linesIntersect(a, b, e[0], e[1]) {
			return true
		}
	}
	return false
}

// linesIntersect solves a + λ(b-a) = c + γ(d-c) and accepts
// 0 ≤ λ, γ ≤ 1. Parallel segments (zero determinant) never intersect.
func linesIntersect(a, b, c, d Point) bool {
	rx, ry := b.X-a.X, b.Y-a.Y
	sx, sy := d.X-c.X, d.Y-c.Y
	det := rx*sy - ry*sx
	if det == 0 {
		return false
	}
	qx, qy := c.X-a.X, c.Y-a.Y
	lambda := (qx*sy - qy*sx) / det
	gamma := (qx*ry - qy*rx) / det
	return lambda >= 0 && lambda <= 1 && gamma >= 0 && gamma <= 1
}
