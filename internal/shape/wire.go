package shape

import (
	"fmt"

	"github.com/goccy/go-json"
)

// Record is the wire form of a shape. Pointer fields distinguish an
// absent field from a zero value so decoding can reject incomplete
// records.
type Record struct {
	Type        string   `json:"type,omitempty"`
	X           *float64 `json:"x,omitempty"`
	Y           *float64 `json:"y,omitempty"`
	Width       *float64 `json:"width,omitempty"`
	Height      *float64 `json:"height,omitempty"`
	Size        *float64 `json:"size,omitempty"`
	Radius      *float64 `json:"radius,omitempty"`
	Base        *float64 `json:"base,omitempty"`
	Points      []Point  `json:"points,omitempty"`
	StrokeWidth *float64 `json:"strokeWidth,omitempty"`
	StrokeColor string   `json:"strokeColor,omitempty"`
	FillColor   string   `json:"fillColor,omitempty"`
	Text        *string  `json:"text,omitempty"`
}

// UnknownKindError reports a record whose type is not a known variant.
type UnknownKindError struct {
	Type string
}

func (e *UnknownKindError) Error() string {
	if e.Type == "" {
		return "shape: missing type"
	}
	return fmt.Sprintf("shape: unknown type %q", e.Type)
}

// MissingFieldError reports a record without a field its kind requires.
type MissingFieldError struct {
	Kind  Kind
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("shape: %s record missing %q", e.Kind, e.Field)
}

func num(v float64) *float64 { return &v }

func str(v string) *string { return &v }

func strokeString(c Color) string {
	if c.IsNone() {
		return "transparent"
	}
	return c.String()
}

// ToWire converts s to its record form.
func (s Shape) ToWire() Record {
	r := Record{
		Type:        string(s.Kind),
		X:           num(s.X),
		Y:           num(s.Y),
		StrokeColor: strokeString(s.Stroke),
		FillColor:   s.Fill.String(),
	}
	switch s.Kind {
	case Freehand:
		r.Points = append([]Point(nil), s.Points...)
		r.StrokeWidth = num(s.StrokeWidth)
	case Rectangle:
		r.Width = num(s.Width)
		r.Height = num(s.Height)
	case Square:
		r.Size = num(s.Size)
	case Circle:
		r.Radius = num(s.Radius)
	case Triangle:
		r.Base = num(s.Base)
		r.Height = num(s.Height)
	case Text:
		r.Text = str(s.Text)
	}
	return r
}

// FromWire converts a record back into a shape.
func FromWire(r Record) (Shape, error) {
	kind := Kind(r.Type)
	if !kind.Valid() {
		return Shape{}, &UnknownKindError{Type: r.Type}
	}

	stroke, err := ParseColor(r.StrokeColor, DefaultStroke)
	if err != nil {
		return Shape{}, err
	}
	fill, err := ParseColor(r.FillColor, DefaultFill)
	if err != nil {
		return Shape{}, err
	}

	need := func(field string, v *float64) (float64, error) {
		if v == nil {
			return 0, &MissingFieldError{Kind: kind, Field: field}
		}
		return *v, nil
	}

	if kind == Freehand {
		if len(r.Points) == 0 {
			return Shape{}, &MissingFieldError{Kind: kind, Field: "points"}
		}
		width := 1.0
		if r.StrokeWidth != nil {
			width = *r.StrokeWidth
		}
		return NewFreehand(r.Points, width, stroke), nil
	}

	x, err := need("x", r.X)
	if err != nil {
		return Shape{}, err
	}
	y, err := need("y", r.Y)
	if err != nil {
		return Shape{}, err
	}

	switch kind {
	case Rectangle:
		w, err := need("width", r.Width)
		if err != nil {
			return Shape{}, err
		}
		h, err := need("height", r.Height)
		if err != nil {
			return Shape{}, err
		}
		return NewRectangle(x, y, w, h, stroke, fill), nil
	case Square:
		size := r.Size
		if size == nil {
			// older clients sent squares with a width only
			size = r.Width
		}
		v, err := need("size", size)
		if err != nil {
			return Shape{}, err
		}
		return NewSquare(x, y, v, stroke, fill), nil
	case Circle:
		v, err := need("radius", r.Radius)
		if err != nil {
			return Shape{}, err
		}
		return NewCircle(x, y, v, stroke, fill), nil
	case Triangle:
		b, err := need("base", r.Base)
		if err != nil {
			return Shape{}, err
		}
		h, err := need("height", r.Height)
		if err != nil {
			return Shape{}, err
		}
		return NewTriangle(x, y, b, h, stroke, fill), nil
	default: // Text
		if r.Text == nil {
			return Shape{}, &MissingFieldError{Kind: kind, Field: "text"}
		}
		t := NewText(x, y, *r.Text, stroke)
		t.Fill = fill
		return t, nil
	}
}

// MarshalJSON implements json.Marshaler.
func (s Shape) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.ToWire())
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Shape) UnmarshalJSON(data []byte) error {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	decoded, err := FromWire(r)
	if err != nil {
		return err
	}
	*s = decoded
	return nil
}
