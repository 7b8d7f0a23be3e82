package colormap

import (
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// Fixed dynamic range of the engine in dBFS. The range is a property of the
// colormap, not of the viewport: retuning never rebuilds the table.
const (
	MinDBFS = -120.0
	MaxDBFS = -20.0

	// TableSize is the number of precomputed colors in a Mapper.
	TableSize = 256
)

// Palette selects a color scheme for power visualization.
//   - InfernoPalette: perceptually uniform black to white through purple,
//     red, orange and yellow. Production default; weak signals near the
//     noise floor stay visible without banding.
//   - ClassicPalette: the earlier analytic gradient, dark blue through cyan,
//     green and yellow to white. Kept as a selectable alternate.
type Palette string

const (
	InfernoPalette Palette = "inferno"
	ClassicPalette Palette = "classic"

	DefaultPalette = InfernoPalette
)

// Mapper provides constant-time power-to-color mapping through a precomputed
// lookup table. Immutable after construction and safe for concurrent reads.
type Mapper struct {
	table   [TableSize]color.RGBA
	palette Palette
}

// New creates a mapper for the given palette. Unknown palette names fall
// back to the default.
func New(palette Palette) *Mapper {
	fn := paletteFunc(palette)

	m := Mapper{palette: palette}
	for i := range m.table {
		m.table[i] = fn(float64(i) / float64(TableSize-1))
	}
	return &m
}

// Normalize maps a dBFS sample into [0, 1] over the engine's fixed range.
// Values outside the range clamp to the nearest edge.
func Normalize(dbfs float64) float64 {
	t := (dbfs - MinDBFS) / (MaxDBFS - MinDBFS)
	return math.Max(0, math.Min(1, t))
}

// Color returns the display color for a power sample in dBFS.
func (m *Mapper) Color(dbfs float64) color.RGBA {
	return m.table[int(math.Round(Normalize(dbfs)*float64(TableSize-1)))]
}

// Palette returns the palette this mapper was built with.
func (m *Mapper) Palette() Palette {
	return m.palette
}

// infernoAnchors span black to white through purple, red, orange and yellow.
var infernoAnchors = mustAnchors(
	"#000004",
	"#56106e",
	"#bb3754",
	"#f98c0a",
	"#fbd724",
	"#ffffff",
)

// classicAnchors reproduce the original analytic gradient: four linear
// segments from dark blue to white.
var classicAnchors = mustAnchors(
	"#00003c",
	"#00ffff",
	"#00c800",
	"#ffff00",
	"#ffffff",
)

// Gradient is the analytic classic gradient: piecewise-linear interpolation
// across the fixed anchors at arbitrary precision. The precomputed table is
// the production strategy; this remains the exact formula it quantizes.
func Gradient(t float64) color.RGBA {
	return blend(classicAnchors, t, false)
}

func paletteFunc(palette Palette) func(float64) color.RGBA {
	switch palette {
	case ClassicPalette:
		return Gradient

	default:
		// Blending in Luv keeps the perceived brightness ramp even across
		// segments.
		return func(t float64) color.RGBA {
			return blend(infernoAnchors, t, true)
		}
	}
}

// blend interpolates t over equally spaced anchors, either linearly in RGB
// or through the Luv color space.
func blend(anchors []colorful.Color, t float64, perceptual bool) color.RGBA {
	t = math.Max(0, math.Min(1, t))

	segments := len(anchors) - 1
	pos := t * float64(segments)
	i := int(pos)
	if i >= segments {
		i = segments - 1
	}
	frac := pos - float64(i)

	var c colorful.Color
	if perceptual {
		c = anchors[i].BlendLuv(anchors[i+1], frac).Clamped()
	} else {
		c = anchors[i].BlendRgb(anchors[i+1], frac)
	}

	r, g, b := c.RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 0xff}
}

func mustAnchors(hex ...string) []colorful.Color {
	anchors := make([]colorful.Color, len(hex))
	for i, h := range hex {
		c, err := colorful.Hex(h)
		if err != nil {
			panic(err)
		}
		anchors[i] = c
	}
	return anchors
}
