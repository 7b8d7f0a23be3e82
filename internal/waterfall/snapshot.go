package waterfall

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"golang.org/x/image/font"

	"github.com/roman-kulish/spectrum-waterfall/internal/viewport"
)

const (
	dpi            = 72.0
	fontSize       = 13.0
	pixelsPerLabel = 150
	guidelineLen   = 24
)

// ErrNoRaster is returned when a snapshot is requested before the raster
// has a drawable area.
var ErrNoRaster = errors.New("raster has no drawable area")

// SnapshotInfo carries the metadata drawn onto an annotated snapshot.
type SnapshotInfo struct {
	Viewport  viewport.Config
	Source    string
	FrameRate float64
}

// Annotator draws frequency labels and an info line onto snapshot images.
// The font is loaded from disk; nothing is embedded in the binary.
type Annotator struct {
	context *freetype.Context
}

// NewAnnotator loads a TTF font from the given path.
func NewAnnotator(fontPath string) (*Annotator, error) {
	fontBytes, err := os.ReadFile(fontPath)
	if err != nil {
		return nil, fmt.Errorf("reading font: %w", err)
	}

	parsedFont, err := freetype.ParseFont(fontBytes)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	context := freetype.NewContext()
	context.SetDPI(dpi)
	context.SetFont(parsedFont)
	context.SetFontSize(fontSize)
	context.SetHinting(font.HintingNone)
	context.SetSrc(image.White)

	return &Annotator{context: context}, nil
}

// WriteSnapshot encodes the raster as PNG. The raster itself is never
// mutated; annotations are drawn on a copy. A nil annotator produces an
// unannotated image.
func WriteSnapshot(w io.Writer, raster *Raster, info SnapshotInfo, ann *Annotator) error {
	src := raster.Image()
	if src == nil {
		return ErrNoRaster
	}

	img := image.NewRGBA(src.Bounds())
	draw.Draw(img, img.Bounds(), src, image.Point{}, draw.Src)

	if ann != nil {
		if err := ann.annotate(img, info); err != nil {
			return fmt.Errorf("annotating snapshot: %w", err)
		}
	}

	return png.Encode(w, img)
}

func (a *Annotator) annotate(img *image.RGBA, info SnapshotInfo) error {
	a.context.SetClip(img.Bounds())
	a.context.SetDst(img)

	if err := a.drawFrequencyScale(img, info.Viewport); err != nil {
		return fmt.Errorf("drawing frequency scale: %w", err)
	}
	if err := a.drawInfo(img, info); err != nil {
		return fmt.Errorf("drawing info: %w", err)
	}
	return nil
}

func (a *Annotator) drawFrequencyScale(img *image.RGBA, cfg viewport.Config) error {
	width := img.Bounds().Dx()
	count := width / pixelsPerLabel
	if count < 2 {
		count = 2
	}

	hzPerLabel := cfg.BandwidthHz / float64(count)
	pxPerLabel := width / count

	for si := 0; si < count; si++ {
		hz := cfg.LeftEdgeHz() + float64(si)*hzPerLabel
		px := si * pxPerLabel

		// guideline on the exact frequency
		for y := 0; y < guidelineLen; y++ {
			img.Set(px, y, color.White)
		}

		pt := freetype.Pt(px+5, 17)
		if _, err := a.context.DrawString(humanHz(hz), pt); err != nil {
			return err
		}
	}
	return nil
}

func (a *Annotator) drawInfo(img *image.RGBA, info SnapshotInfo) error {
	span := viewport.VisibleSpan(img.Bounds().Dy(), info.FrameRate)

	line := fmt.Sprintf("Center: %s; Bandwidth: %s; History: %s",
		humanHz(info.Viewport.CenterHz),
		humanHz(info.Viewport.BandwidthHz),
		span.Round(100*time.Millisecond))
	if info.Source != "" {
		line += "; Source: " + info.Source
	}

	pt := freetype.Pt(3, img.Bounds().Dy()-6)
	_, err := a.context.DrawString(line, pt)
	return err
}

func humanHz(hz float64) string {
	fract, suffix := humanize.ComputeSI(hz)
	return fmt.Sprintf("%0.2f %sHz", fract, suffix)
}
