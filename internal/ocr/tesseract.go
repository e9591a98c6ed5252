//go:build ocr

package ocr

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// TesseractExtractor implements PageExtractor with the Tesseract engine via
// gosseract. Requires Tesseract installed on the system and the "ocr" build
// tag; without the tag the stub in stub.go is compiled instead.
type TesseractExtractor struct {
	lang string
	psm  gosseract.PageSegMode
}

type TesseractOption func(*TesseractExtractor)

// WithLanguage sets the recognition language(s), "+"-separated (e.g. "eng+deu").
func WithLanguage(lang string) TesseractOption {
	return func(t *TesseractExtractor) {
		if lang != "" {
			t.lang = lang
		}
	}
}

// WithPageSegMode overrides the page segmentation mode.
func WithPageSegMode(mode gosseract.PageSegMode) TesseractOption {
	return func(t *TesseractExtractor) { t.psm = mode }
}

func NewTesseractExtractor(opts ...TesseractOption) (*TesseractExtractor, error) {
	t := &TesseractExtractor{lang: "eng", psm: gosseract.PSM_AUTO}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

// ExtractPage runs word-level recognition and maps each word box to a
// Fragment. Tesseract reports confidence on a 0-100 scale; Fragments carry
// it normalized to [0,1].
func (t *TesseractExtractor) ExtractPage(ctx context.Context, image []byte) ([]Fragment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(t.lang); err != nil {
		return nil, fmt.Errorf("set language: %w", err)
	}
	if err := client.SetPageSegMode(t.psm); err != nil {
		return nil, fmt.Errorf("set page seg mode: %w", err)
	}
	if err := client.SetImageFromBytes(image); err != nil {
		return nil, fmt.Errorf("set image: %w", err)
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("word boxes: %w", err)
	}

	frags := make([]Fragment, 0, len(boxes))
	for _, b := range boxes {
		text := strings.TrimSpace(b.Word)
		if text == "" {
			continue
		}
		frags = append(frags, Fragment{
			Text:       text,
			Confidence: clamp01(b.Confidence / 100.0),
			BBox: boxFromRect(
				float64(b.Box.Min.X), float64(b.Box.Min.Y),
				float64(b.Box.Max.X), float64(b.Box.Max.Y),
			),
		})
	}
	return frags, nil
}
