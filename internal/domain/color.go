package domain

import (
	"fmt"
	"strings"
)

// Color is an opaque sRGB colour. It marshals as a "#rrggbb" string.
type Color struct {
	R, G, B uint8
}

// Hex formats the colour as "#rrggbb".
func (c Color) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

func (c Color) String() string { return c.Hex() }

// Packed returns the colour as a 24-bit integer, used for stable ordering.
func (c Color) Packed() uint32 {
	return uint32(c.R)<<16 | uint32(c.G)<<8 | uint32(c.B)
}

// ParseColor parses "#rrggbb" or "rrggbb".
func ParseColor(raw string) (Color, error) {
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "#")
	if len(raw) != 6 {
		return Color{}, fmt.Errorf("invalid color %q", raw)
	}
	var r, g, b uint8
	if _, err := fmt.Sscanf(raw, "%02x%02x%02x", &r, &g, &b); err != nil {
		return Color{}, fmt.Errorf("invalid color %q: %w", raw, err)
	}
	return Color{R: r, G: g, B: b}, nil
}

func (c Color) MarshalText() ([]byte, error) {
	return []byte(c.Hex()), nil
}

func (c *Color) UnmarshalText(text []byte) error {
	parsed, err := ParseColor(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
