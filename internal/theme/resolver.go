// Package theme resolves theme color tokens into renderable colors.
package theme

import (
	"image/color"
	"math"
	"strconv"
	"strings"

	"golang.org/x/image/colornames"

	"github.com/lox/rizz/internal/models"
)

// Fallback is used for any token that cannot be resolved.
var Fallback = toNRGBA(colornames.Gray)

// palette is the fixed table of named tokens. Green and orange use the
// system palette values rather than the CSS ones.
var palette = map[string]color.NRGBA{
	"clear":  {},
	"black":  toNRGBA(colornames.Black),
	"white":  toNRGBA(colornames.White),
	"red":    toNRGBA(colornames.Red),
	"green":  {G: 255, A: 255},
	"blue":   toNRGBA(colornames.Blue),
	"yellow": toNRGBA(colornames.Yellow),
	"purple": toNRGBA(colornames.Purple),
	"orange": {R: 255, G: 128, A: 255},
	"gray":   toNRGBA(colornames.Gray),
}

// ColorTheme is a Theme with every token resolved.
type ColorTheme struct {
	Name          string
	Text          color.NRGBA
	Background    color.NRGBA
	Day           color.NRGBA
	DayBackground color.NRGBA
	DayText       color.NRGBA
}

// Resolve maps a color token to a color. "#RRGGBB" (case-insensitive) is
// parsed as hex; anything else is looked up in the named palette. Invalid
// tokens resolve to Fallback.
func Resolve(token string) color.NRGBA {
	if hex, ok := strings.CutPrefix(token, "#"); ok {
		return parseHex(hex)
	}
	if c, ok := palette[token]; ok {
		return c
	}
	return Fallback
}

// New resolves all tokens of t. The day background carries t's alpha,
// clamped to [0,1].
func New(t models.Theme) ColorTheme {
	return ColorTheme{
		Name:          t.Name,
		Text:          Resolve(t.Text),
		Background:    Resolve(t.Background),
		Day:           Resolve(t.Day),
		DayBackground: WithAlpha(Resolve(t.DayBackground), t.DayBackgroundAlpha),
		DayText:       Resolve(t.DayText),
	}
}

// Default is the resolved models.DefaultTheme.
func Default() ColorTheme {
	return New(models.DefaultTheme)
}

// WithAlpha replaces the opacity of c.
func WithAlpha(c color.NRGBA, alpha float64) color.NRGBA {
	if math.IsNaN(alpha) || alpha < 0 {
		alpha = 0
	}
	if alpha > 1 {
		alpha = 1
	}
	c.A = uint8(math.Round(alpha * 255))
	return c
}

// Hex formats c as "#RRGGBB".
func Hex(c color.NRGBA) string {
	const digits = "0123456789ABCDEF"
	b := []byte{'#', 0, 0, 0, 0, 0, 0}
	for i, v := range []uint8{c.R, c.G, c.B} {
		b[1+i*2] = digits[v>>4]
		b[2+i*2] = digits[v&0x0f]
	}
	return string(b)
}

func parseHex(s string) color.NRGBA {
	if len(s) != 6 {
		return Fallback
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return Fallback
	}
	return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}
}

func toNRGBA(c color.RGBA) color.NRGBA {
	return color.NRGBA{R: c.R, G: c.G, B: c.B, A: c.A}
}
