// Package shape defines the drawable primitives shared by every canvas:
// freehand strokes, rectangles, squares, circles, triangles and text.
//
// A Shape is a tagged union. Kind is the only discriminator; the variant
// fields that do not belong to the kind are left zero. Shapes are values
// and are never mutated once they have been appended to a history,
// constructors copy any slice they are given.
package shape

import (
	"fmt"
	"math"
)

// Kind identifies a shape variant. The string value is the wire name.
type Kind string

// Shape kinds.
const (
	Freehand  Kind = "freehand"
	Rectangle Kind = "rectangle"
	Square    Kind = "square"
	Circle    Kind = "circle"
	Triangle  Kind = "triangle"
	Text      Kind = "text"
)

// Kinds lists every known kind in a stable order.
var Kinds = []Kind{Freehand, Rectangle, Square, Circle, Triangle, Text}

// Valid reports whether k names a known variant.
func (k Kind) Valid() bool {
	switch k {
	case Freehand, Rectangle, Square, Circle, Triangle, Text:
		return true
	}
	return false
}

// Point is a canvas coordinate in pixels, origin top-left, y down.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Shape is one drawable primitive.
type Shape struct {
	Kind Kind

	// Anchor. Top-left corner for rectangles and squares, the center for
	// circles, the apex for triangles, the first point for freehand and
	// the baseline origin for text.
	X, Y float64

	Stroke Color
	Fill   Color

	// Freehand
	Points      []Point
	StrokeWidth float64

	// Rectangle (Width, Height, signed) and Triangle (Base, Height).
	Width  float64
	Height float64
	Base   float64

	// Square
	Size float64

	// Circle
	Radius float64

	// Text
	Text string
}

// NewFreehand returns a freehand stroke through points. The anchor is the
// first point. It panics if points is empty.
func NewFreehand(points []Point, strokeWidth float64, stroke Color) Shape {
	if len(points) == 0 {
		panic("shape: freehand stroke needs at least one point")
	}
	pts := make([]Point, len(points))
	copy(pts, points)
	return Shape{
		Kind:        Freehand,
		X:           pts[0].X,
		Y:           pts[0].Y,
		Stroke:      stroke,
		Fill:        Transparent,
		Points:      pts,
		StrokeWidth: strokeWidth,
	}
}

// NewRectangle returns a rectangle anchored at (x, y). Width and height
// keep the sign of the drag that produced them.
func NewRectangle(x, y, width, height float64, stroke, fill Color) Shape {
	return Shape{Kind: Rectangle, X: x, Y: y, Width: width, Height: height, Stroke: stroke, Fill: fill}
}

// NewSquare returns a square anchored at (x, y).
func NewSquare(x, y, size float64, stroke, fill Color) Shape {
	return Shape{Kind: Square, X: x, Y: y, Size: math.Abs(size), Stroke: stroke, Fill: fill}
}

// NewCircle returns a circle centered at (x, y).
func NewCircle(x, y, radius float64, stroke, fill Color) Shape {
	return Shape{Kind: Circle, X: x, Y: y, Radius: math.Abs(radius), Stroke: stroke, Fill: fill}
}

// NewTriangle returns an isosceles triangle with its apex at (x, y).
func NewTriangle(x, y, base, height float64, stroke, fill Color) Shape {
	return Shape{Kind: Triangle, X: x, Y: y, Base: math.Abs(base), Height: math.Abs(height), Stroke: stroke, Fill: fill}
}

// NewText returns a text label at (x, y).
func NewText(x, y float64, content string, color Color) Shape {
	return Shape{Kind: Text, X: x, Y: y, Text: content, Stroke: color, Fill: Transparent}
}

// FromDrag builds the shape a drag from start to end produces with one of
// the geometric tools. Freehand and text are not drag shapes.
func FromDrag(kind Kind, start, end Point, stroke, fill Color) (Shape, error) {
	dx := end.X - start.X
	dy := end.Y - start.Y
	switch kind {
	case Rectangle:
		return NewRectangle(start.X, start.Y, dx, dy, stroke, fill), nil
	case Square:
		return NewSquare(start.X, start.Y, math.Min(math.Abs(dx), math.Abs(dy)), stroke, fill), nil
	case Circle:
		return NewCircle(start.X, start.Y, math.Hypot(dx, dy), stroke, fill), nil
	case Triangle:
		return NewTriangle(start.X, start.Y, math.Abs(dx), math.Abs(dy), stroke, fill), nil
	default:
		return Shape{}, fmt.Errorf("shape: %q is not a drag shape", kind)
	}
}

// Vertices returns the triangle's corners: apex, right base corner, left
// base corner. The base sits height pixels above the apex, matching the
// way the drag tool renders it.
func (s Shape) Vertices() [3]Point {
	return [3]Point{
		{X: s.X, Y: s.Y},
		{X: s.X + s.Base/2, Y: s.Y - s.Height},
		{X: s.X - s.Base/2, Y: s.Y - s.Height},
	}
}

// Bounds returns the axis-aligned box used for hit-testing. Text has no
// geometry and reports an empty box at its anchor.
func (s Shape) Bounds() Rect {
	switch s.Kind {
	case Rectangle:
		return Rect{X: s.X, Y: s.Y, W: s.Width, H: s.Height}.Normalize()
	case Square:
		return Rect{X: s.X, Y: s.Y, W: s.Size, H: s.Size}
	case Circle:
		return Rect{X: s.X - s.Radius, Y: s.Y - s.Radius, W: 2 * s.Radius, H: 2 * s.Radius}
	case Triangle:
		return Rect{X: s.X - s.Base/2, Y: s.Y - s.Height, W: s.Base, H: s.Height}
	case Freehand:
		if len(s.Points) == 0 {
			return Rect{X: s.X, Y: s.Y}
		}
		minX, minY := s.Points[0].X, s.Points[0].Y
		maxX, maxY := minX, minY
		for _, p := range s.Points[1:] {
			minX = math.Min(minX, p.X)
			minY = math.Min(minY, p.Y)
			maxX = math.Max(maxX, p.X)
			maxY = math.Max(maxY, p.Y)
		}
		return Rect{X: minX, Y: minY, W: maxX - minX, H: maxY - minY}
	default:
		return Rect{X: s.X, Y: s.Y}
	}
}

// Renderer is the drawing surface a shape renders into. Pixel work lives
// behind it.
type Renderer interface {
	Draw(s Shape)
}

// Render draws s onto r.
func (s Shape) Render(r Renderer) {
	r.Draw(s)
}

// String implements fmt.Stringer for log output.
func (s Shape) String() string {
	switch s.Kind {
	case Freehand:
		return fmt.Sprintf("freehand(%d points, width %g)", len(s.Points), s.StrokeWidth)
	case Rectangle:
		return fmt.Sprintf("rectangle(%g,%g %gx%g)", s.X, s.Y, s.Width, s.Height)
	case Square:
		return fmt.Sprintf("square(%g,%g size %g)", s.X, s.Y, s.Size)
	case Circle:
		return fmt.Sprintf("circle(%g,%g r %g)", s.X, s.Y, s.Radius)
	case Triangle:
		return fmt.Sprintf("triangle(%g,%g base %g height %g)", s.X, s.Y, s.Base, s.Height)
	case Text:
		return fmt.Sprintf("text(%g,%g %q)", s.X, s.Y, s.Text)
	default:
		return fmt.Sprintf("shape(%q)", string(s.Kind))
	}
}
