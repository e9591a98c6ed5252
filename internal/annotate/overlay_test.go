package annotate

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finovo/creditocr/internal/geometry"
	"github.com/finovo/creditocr/internal/layout"
	"github.com/finovo/creditocr/internal/ocr"
)

func sampleExtraction(t *testing.T) *layout.Extraction {
	t.Helper()
	pages := []ocr.Page{{Number: 1, Fragments: []ocr.Fragment{
		{Text: "Loan Amount:", BBox: geometry.BBox{X1: 10, Y1: 100, X2: 120, Y2: 115}, Confidence: 0.95},
		{Text: "€2,000,000", BBox: geometry.BBox{X1: 160, Y1: 101, X2: 250, Y2: 116}, Confidence: 0.88},
	}}}
	ex := layout.Normalize(pages, layout.DefaultConfig())
	require.NotEmpty(t, ex.AllPairs())
	return ex
}

func TestRenderProducesPNG(t *testing.T) {
	data, err := NewOverlay().Render(sampleExtraction(t))
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)

	b := img.Bounds()
	assert.Greater(t, b.Dx(), 250)
	assert.Greater(t, b.Dy(), 100)

	// At least one pixel must differ from the white background.
	painted := false
	for y := b.Min.Y; y < b.Max.Y && !painted; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			if r != 0xffff || g != 0xffff || bl != 0xffff {
				painted = true
				break
			}
		}
	}
	assert.True(t, painted)
}

func TestRenderMultiPageStacksVertically(t *testing.T) {
	frag := ocr.Fragment{Text: "Zins: 3,5%", BBox: geometry.BBox{X1: 5, Y1: 10, X2: 90, Y2: 25}, Confidence: 0.9}
	one := layout.Normalize([]ocr.Page{{Number: 1, Fragments: []ocr.Fragment{frag}}}, layout.DefaultConfig())
	two := layout.Normalize([]ocr.Page{
		{Number: 1, Fragments: []ocr.Fragment{frag}},
		{Number: 2, Fragments: []ocr.Fragment{frag}},
	}, layout.DefaultConfig())

	single, err := NewOverlay().Render(one)
	require.NoError(t, err)
	double, err := NewOverlay().Render(two)
	require.NoError(t, err)

	imgOne, err := png.Decode(bytes.NewReader(single))
	require.NoError(t, err)
	imgTwo, err := png.Decode(bytes.NewReader(double))
	require.NoError(t, err)

	assert.Greater(t, imgTwo.Bounds().Dy(), imgOne.Bounds().Dy())
}

func TestRenderRejectsEmptyExtraction(t *testing.T) {
	_, err := NewOverlay().Render(nil)
	require.Error(t, err)
	_, err = NewOverlay().Render(&layout.Extraction{})
	require.Error(t, err)
}
