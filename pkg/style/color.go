// Package style maps resolved risk views to map styles. It supports a
// continuous color ramp (RGB blend or HSL hue rotation), discrete score
// buckets and categorical risk levels, with a distinct style for countries
// that have no data.
package style

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Color is an opaque sRGB color.
type Color struct {
	R, G, B uint8
}

// RGB builds a Color.
func RGB(r, g, b uint8) Color { return Color{R: r, G: g, B: b} }

var named = map[string]Color{
	"white":  {255, 255, 255},
	"black":  {0, 0, 0},
	"red":    {255, 0, 0},
	"lime":   {0, 255, 0},
	"green":  {0, 128, 0},
	"orange": {255, 165, 0},
	"yellow": {255, 255, 0},
	"gray":   {128, 128, 128},
	"grey":   {128, 128, 128},
}

// ParseColor accepts #rgb, #rrggbb, rgb(r,g,b), hsl(h,s%,l%) and a few CSS
// color names.
func ParseColor(s string) (Color, error) {
	in := strings.ToLower(strings.TrimSpace(s))
	if c, ok := named[in]; ok {
		return c, nil
	}
	switch {
	case strings.HasPrefix(in, "#"):
		return parseHex(in[1:], s)
	case strings.HasPrefix(in, "rgb(") && strings.HasSuffix(in, ")"):
		parts, err := splitArgs(in[4:len(in)-1], 3)
		if err != nil {
			return Color{}, fmt.Errorf("color %q: %w", s, err)
		}
		var ch [3]uint8
		for i, p := range parts {
			n, err := strconv.Atoi(p)
			if err != nil || n < 0 || n > 255 {
				return Color{}, fmt.Errorf("color %q: channel %q out of range", s, p)
			}
			ch[i] = uint8(n)
		}
		return Color{ch[0], ch[1], ch[2]}, nil
	case strings.HasPrefix(in, "hsl(") && strings.HasSuffix(in, ")"):
		parts, err := splitArgs(in[4:len(in)-1], 3)
		if err != nil {
			return Color{}, fmt.Errorf("color %q: %w", s, err)
		}
		h, err1 := strconv.ParseFloat(parts[0], 64)
		sat, err2 := strconv.ParseFloat(strings.TrimSuffix(parts[1], "%"), 64)
		lum, err3 := strconv.ParseFloat(strings.TrimSuffix(parts[2], "%"), 64)
		if err1 != nil || err2 != nil || err3 != nil {
			return Color{}, fmt.Errorf("color %q: malformed hsl", s)
		}
		return HSL(h, sat/100, lum/100), nil
	}
	return Color{}, fmt.Errorf("unsupported color %q", s)
}

// MustParseColor is ParseColor for package-level constants.
func MustParseColor(s string) Color {
	c, err := ParseColor(s)
	if err != nil {
		panic(err)
	}
	return c
}

func parseHex(h, orig string) (Color, error) {
	if len(h) == 3 {
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	}
	if len(h) != 6 {
		return Color{}, fmt.Errorf("color %q: expected 3 or 6 hex digits", orig)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return Color{}, fmt.Errorf("color %q: %w", orig, err)
	}
	return Color{uint8(v >> 16), uint8(v >> 8), uint8(v)}, nil
}

func splitArgs(s string, n int) ([]string, error) {
	parts := strings.Split(s, ",")
	if len(parts) != n {
		return nil, fmt.Errorf("expected %d components", n)
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts, nil
}

// String renders the color in the rgb(r,g,b) form used by the map client.
func (c Color) String() string {
	return fmt.Sprintf("rgb(%d,%d,%d)", c.R, c.G, c.B)
}

// Hex renders the color as #rrggbb.
func (c Color) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// MarshalText implements encoding.TextMarshaler.
func (c Color) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Color) UnmarshalText(b []byte) error {
	parsed, err := ParseColor(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// HSL converts hue (degrees), saturation and lightness (0-1) to a Color.
func HSL(h, s, l float64) Color {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	s = clamp01(s)
	l = clamp01(l)

	c := (1 - math.Abs(2*l-1)) * s
	hp := h / 60
	x := c * (1 - math.Abs(math.Mod(hp, 2)-1))

	var r, g, b float64
	switch {
	case hp < 1:
		r, g, b = c, x, 0
	case hp < 2:
		r, g, b = x, c, 0
	case hp < 3:
		r, g, b = 0, c, x
	case hp < 4:
		r, g, b = 0, x, c
	case hp < 5:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}
	m := l - c/2
	return Color{channel(r + m), channel(g + m), channel(b + m)}
}

// HSL returns the hue (degrees), saturation and lightness of c.
func (c Color) HSL() (h, s, l float64) {
	r := float64(c.R) / 255
	g := float64(c.G) / 255
	b := float64(c.B) / 255
	maxC := math.Max(r, math.Max(g, b))
	minC := math.Min(r, math.Min(g, b))
	l = (maxC + minC) / 2
	d := maxC - minC
	if d == 0 {
		return 0, 0, l
	}
	s = d / (1 - math.Abs(2*l-1))
	switch maxC {
	case r:
		h = 60 * math.Mod((g-b)/d, 6)
	case g:
		h = 60 * ((b-r)/d + 2)
	default:
		h = 60 * ((r-g)/d + 4)
	}
	if h < 0 {
		h += 360
	}
	return h, s, l
}

func channel(v float64) uint8 {
	return uint8(math.Round(clamp01(v) * 255))
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
