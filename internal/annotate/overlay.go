// Package annotate renders a visual overlay of a reconstructed extraction.
// Label boxes, value boxes and unpaired leftovers get distinct colors so a
// reviewer can see at a glance what the pairing pass did with each page.
package annotate

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math"

	"github.com/finovo/creditocr/internal/common"
	"github.com/finovo/creditocr/internal/geometry"
	"github.com/finovo/creditocr/internal/layout"
)

var (
	labelColor    = color.RGBA{R: 0x1b, G: 0x7a, B: 0x2c, A: 0xff} // green
	valueColor    = color.RGBA{R: 0x1f, G: 0x4e, B: 0xb5, A: 0xff} // blue
	leftoverColor = color.RGBA{R: 0x9e, G: 0x9e, B: 0x9e, A: 0xff} // gray
	pageRuleColor = color.RGBA{R: 0xd0, G: 0xd0, B: 0xd0, A: 0xff}
)

const (
	margin   = 16
	pageGap  = 24
	maxSide  = 8192
	boxWidth = 2
)

// Overlay draws extraction geometry onto a white canvas. Pages are stacked
// vertically, each sized to its own content bounds.
type Overlay struct{}

func NewOverlay() Overlay { return Overlay{} }

// Render produces a PNG of the whole extraction.
func (Overlay) Render(ex *layout.Extraction) ([]byte, error) {
	if ex == nil || len(ex.Pages) == 0 {
		return nil, common.NewAppError("ANNOTATE_ERROR", "nothing to render", common.ErrInvalidInput)
	}

	width, height := 0, margin
	offsets := make([]int, len(ex.Pages))
	for i, page := range ex.Pages {
		w, h := pageBounds(page)
		if w > width {
			width = w
		}
		offsets[i] = height
		height += h + pageGap
	}
	width += 2 * margin
	if width > maxSide || height > maxSide {
		return nil, common.NewAppError("ANNOTATE_ERROR", "extraction bounds exceed canvas limit", common.ErrInvalidInput)
	}
	if width < 2*margin {
		width = 2 * margin
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			dst.Set(x, y, color.White)
		}
	}

	for i, page := range ex.Pages {
		off := offsets[i]
		if i > 0 {
			for x := 0; x < width; x++ {
				dst.Set(x, off-pageGap/2, pageRuleColor)
			}
		}
		for _, p := range page.Pairs {
			drawBox(dst, p.Label.BBox, off, labelColor)
			drawBox(dst, p.Value.BBox, off, valueColor)
		}
		for _, l := range page.Leftovers {
			drawBox(dst, l.BBox, off, leftoverColor)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, common.WrapError(err, "encode overlay")
	}
	return buf.Bytes(), nil
}

// pageBounds returns the content extent of a page, ignoring negative
// coordinates so a stray fragment cannot shift the whole canvas.
func pageBounds(page layout.PageExtraction) (int, int) {
	maxX, maxY := 0.0, 0.0
	for _, s := range page.MergedSpans {
		maxX = math.Max(maxX, s.BBox.X2)
		maxY = math.Max(maxY, s.BBox.Y2)
	}
	return int(math.Ceil(maxX)), int(math.Ceil(maxY))
}

func drawBox(dst *image.RGBA, box geometry.BBox, offsetY int, col color.Color) {
	rect := image.Rect(
		margin+int(math.Floor(box.X1)),
		offsetY+int(math.Floor(box.Y1)),
		margin+int(math.Ceil(box.X2)),
		offsetY+int(math.Ceil(box.Y2)),
	)
	rect = rect.Intersect(dst.Bounds())
	if rect.Empty() {
		return
	}
	for t := 0; t < boxWidth; t++ {
		yTop := rect.Min.Y + t
		yBot := rect.Max.Y - 1 - t
		for x := rect.Min.X; x < rect.Max.X; x++ {
			dst.Set(x, yTop, col)
			dst.Set(x, yBot, col)
		}
		xLeft := rect.Min.X + t
		xRight := rect.Max.X - 1 - t
		for y := rect.Min.Y; y < rect.Max.Y; y++ {
			dst.Set(xLeft, y, col)
			dst.Set(xRight, y, col)
		}
	}
}
