//go:build !ocr

package ocr

import (
	"context"
	"errors"
)

// ErrOCRNotEnabled is returned when the Tesseract extractor is requested but
// OCR support was not compiled in. Rebuild with -tags ocr to enable it.
var ErrOCRNotEnabled = errors.New("ocr support not enabled; rebuild with -tags ocr")

// TesseractExtractor is the stub compiled without the "ocr" build tag.
type TesseractExtractor struct{}

type TesseractOption func(*TesseractExtractor)

func WithLanguage(string) TesseractOption {
	return func(*TesseractExtractor) {}
}

func NewTesseractExtractor(opts ...TesseractOption) (*TesseractExtractor, error) {
	return nil, ErrOCRNotEnabled
}

func (t *TesseractExtractor) ExtractPage(ctx context.Context, image []byte) ([]Fragment, error) {
	return nil, ErrOCRNotEnabled
}
