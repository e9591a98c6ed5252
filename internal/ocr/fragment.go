// Package ocr defines the OCR capability boundary: a page image goes in,
// positioned text fragments come out. The engine behind the interface is
// swappable; the rest of the system only sees Fragments.
package ocr

import (
	"context"

	"github.com/finovo/creditocr/internal/geometry"
)

// Fragment is one OCR-detected text token with its bounding box and
// confidence. Immutable once created; the unit of input to spatial
// reconstruction.
type Fragment struct {
	Text       string        `json:"text"`
	BBox       geometry.BBox `json:"bbox"`
	Confidence float64       `json:"confidence"` // [0,1]
}

// Page is the fragment set for one document page.
type Page struct {
	Number    int        `json:"page_number"` // 1-based
	Fragments []Fragment `json:"fragments"`
}

// PageExtractor extracts fragments from a single page image. A blank page
// yields zero fragments, not an error. Implementations must return bounding
// boxes in a consistent per-page coordinate system.
type PageExtractor interface {
	ExtractPage(ctx context.Context, image []byte) ([]Fragment, error)
}
