package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownColor is returned when a color name is not one of the browser's
// nine tab group colors.
var ErrUnknownColor = errors.New("unknown group color")

// Color is a tab group color name as understood by the browser.
type Color string

const (
	ColorGrey   Color = "grey"
	ColorBlue   Color = "blue"
	ColorRed    Color = "red"
	ColorYellow Color = "yellow"
	ColorGreen  Color = "green"
	ColorPink   Color = "pink"
	ColorPurple Color = "purple"
	ColorCyan   Color = "cyan"
	ColorOrange Color = "orange"
)

// DefaultColor is used wherever a color is missing or invalid.
const DefaultColor = ColorGrey

// Palette is the round-robin order used for automatically created groups.
var Palette = []Color{
	ColorBlue, ColorRed, ColorYellow, ColorGreen, ColorPink,
	ColorPurple, ColorCyan, ColorOrange, ColorGrey,
}

var colorHex = map[Color]string{
	ColorGrey:   "#5F6368",
	ColorBlue:   "#1A73E8",
	ColorRed:    "#D93025",
	ColorYellow: "#F9AB00",
	ColorGreen:  "#1E8E3E",
	ColorPink:   "#D01884",
	ColorPurple: "#9334E6",
	ColorCyan:   "#12B5CB",
	ColorOrange: "#FA903E",
}

// ParseColor validates a color name. Matching is case-insensitive and
// ignores surrounding whitespace.
func ParseColor(s string) (Color, error) {
	c := Color(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := colorHex[c]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownColor, s)
	}
	return c, nil
}

// Valid reports whether c is one of the nine named colors.
func (c Color) Valid() bool {
	_, ok := colorHex[c]
	return ok
}

// OrDefault returns c if valid, otherwise DefaultColor.
func (c Color) OrDefault() Color {
	if c.Valid() {
		return c
	}
	return DefaultColor
}

// Hex returns the display color used by the browser UI for c.
// Invalid colors render as grey.
func (c Color) Hex() string {
	return colorHex[c.OrDefault()]
}

// PaletteColor returns the i-th color of the round-robin palette.
func PaletteColor(i int) Color {
	if i < 0 {
		i = -i
	}
	return Palette[i%len(Palette)]
}
