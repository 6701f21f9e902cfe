package shape

import (
	"fmt"
	"strconv"
	"strings"
)

// Color is an RGBA color. A fully transparent black is "none".
type Color struct {
	R, G, B, A uint8
}

// Common colors.
var (
	Black       = Color{A: 0xff}
	White       = Color{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	Transparent = Color{}
)

// DefaultStroke and DefaultFill apply when a record omits a color.
var (
	DefaultStroke = Black
	DefaultFill   = Transparent
)

var namedColors = map[string]Color{
	"black":       Black,
	"white":       White,
	"red":         {R: 0xff, A: 0xff},
	"green":       {G: 0x80, A: 0xff},
	"lime":        {G: 0xff, A: 0xff},
	"blue":        {B: 0xff, A: 0xff},
	"yellow":      {R: 0xff, G: 0xff, A: 0xff},
	"orange":      {R: 0xff, G: 0xa5, A: 0xff},
	"purple":      {R: 0x80, B: 0x80, A: 0xff},
	"gray":        {R: 0x80, G: 0x80, B: 0x80, A: 0xff},
	"grey":        {R: 0x80, G: 0x80, B: 0x80, A: 0xff},
	"transparent": Transparent,
}

// IsNone reports whether c is the "no paint" color.
func (c Color) IsNone() bool {
	return c == Transparent
}

// String formats c as #rrggbb, #rrggbbaa when translucent, or "none".
func (c Color) String() string {
	if c.IsNone() {
		return "none"
	}
	if c.A == 0xff {
		return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
	}
	return fmt.Sprintf("#%02x%02x%02x%02x", c.R, c.G, c.B, c.A)
}

// ParseColor parses s. Empty, "none" and "null" yield fallback. Accepted
// forms are #rgb, #rrggbb, #rrggbbaa, 0xrrggbbaa and the names in the
// built-in table.
func ParseColor(s string, fallback Color) (Color, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	switch v {
	case "", "none", "null":
		return fallback, nil
	}
	if c, ok := namedColors[v]; ok {
		return c, nil
	}

	var hex string
	switch {
	case strings.HasPrefix(v, "#"):
		hex = v[1:]
	case strings.HasPrefix(v, "0x"):
		hex = v[2:]
	default:
		return fallback, fmt.Errorf("shape: unrecognized color %q", s)
	}

	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) == 6 {
		hex += "ff"
	}
	if len(hex) != 8 {
		return fallback, fmt.Errorf("shape: unrecognized color %q", s)
	}

	n, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return fallback, fmt.Errorf("shape: unrecognized color %q: %w", s, err)
	}
	return Color{
		R: uint8(n >> 24),
		G: uint8(n >> 16),
		B: uint8(n >> 8),
		A: uint8(n),
	}, nil
}

// MustParseColor is ParseColor for literals; it panics on error.
func MustParseColor(s string) Color {
	c, err := ParseColor(s, Transparent)
	if err != nil {
		panic(err)
	}
	return c
}
