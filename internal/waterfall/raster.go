package waterfall

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/roman-kulish/spectrum-waterfall/internal/colormap"
)

// Background is the fixed color the raster is cleared to on (re)init.
var Background = color.RGBA{A: 0xff}

// Raster is the persistent pixel buffer holding the rendered waterfall
// history: each row is one spectrum snapshot, newest on top. It is owned and
// mutated exclusively by its renderer; callers synchronize externally.
type Raster struct {
	mapper *colormap.Mapper
	img    *image.RGBA

	width, height int // backing dimensions in device pixels
	ratio         float64
}

// NewRaster allocates a raster for a surface of the given displayed size.
// The backing buffer is scaled by the device pixel ratio so drawing stays
// sharp on high-density displays.
func NewRaster(displayWidth, displayHeight int, pixelRatio float64, mapper *colormap.Mapper) *Raster {
	r := Raster{mapper: mapper}
	r.Resize(displayWidth, displayHeight, pixelRatio)
	return &r
}

// Resize recomputes the backing dimensions from the displayed size and
// pixel ratio and clears the raster to the background color. Scroll history
// is discarded: a resized surface has no well-defined mapping from old rows
// to new ones.
func (r *Raster) Resize(displayWidth, displayHeight int, pixelRatio float64) {
	if pixelRatio <= 0 {
		pixelRatio = 1
	}
	r.ratio = pixelRatio
	r.width = int(float64(displayWidth) * pixelRatio)
	r.height = int(float64(displayHeight) * pixelRatio)

	if r.width <= 0 || r.height <= 0 {
		r.img = nil // nothing to draw on; Push degrades to a no-op
		return
	}

	r.img = image.NewRGBA(image.Rect(0, 0, r.width, r.height))
	draw.Draw(r.img, r.img.Bounds(), &image.Uniform{C: Background}, image.Point{}, draw.Src)
}

// Push scrolls history down one row and paints the frame's samples into the
// vacated top row. Resampling is nearest-neighbor by index; samples carry no
// frequency axis, so pixel x maps to sample floor(x/width*n). With no
// backing buffer (zero-sized surface) the call is a no-op.
func (r *Raster) Push(samples []float64) {
	if r.img == nil {
		return
	}

	// One bulk copy shifts every row down; the bottom row, the oldest
	// visible history, falls off. copy has memmove semantics, so the
	// overlapping ranges are safe.
	pix := r.img.Pix
	stride := r.img.Stride
	copy(pix[stride:], pix[:len(pix)-stride])

	n := len(samples)
	if n == 0 {
		for x := 0; x < r.width; x++ {
			r.setTop(x, Background)
		}
		return
	}

	for x := 0; x < r.width; x++ {
		idx := x * n / r.width
		if idx >= n {
			idx = n - 1
		}
		r.setTop(x, r.mapper.Color(samples[idx]))
	}
}

func (r *Raster) setTop(x int, c color.RGBA) {
	off := x * 4
	pix := r.img.Pix
	pix[off] = c.R
	pix[off+1] = c.G
	pix[off+2] = c.B
	pix[off+3] = c.A
}

// Image exposes the backing buffer for display commit or snapshot encoding.
// Nil when the raster has no drawable area.
func (r *Raster) Image() *image.RGBA {
	return r.img
}

// Width returns the backing width in device pixels.
func (r *Raster) Width() int { return r.width }

// Height returns the backing height in device pixels.
func (r *Raster) Height() int { return r.height }

// PixelRatio returns the ratio the backing buffer was scaled by.
func (r *Raster) PixelRatio() float64 { return r.ratio }
