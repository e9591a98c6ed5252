package llm

import (
	"context"

	"github.com/finovo/creditocr/internal/geometry"
	"github.com/finovo/creditocr/internal/layout"
	"github.com/finovo/creditocr/internal/profiles"
)

// ExtractedField is one field the model mapped out of the document. Value
// and provenance come from the OCR pairs wherever a source pair can be
// matched; the model only supplies the field-name mapping.
type ExtractedField struct {
	Value      string         `json:"value"`
	Raw        string         `json:"raw,omitempty"`
	Confidence float64        `json:"confidence"`
	Page       int            `json:"page,omitempty"`
	BBox       *geometry.BBox `json:"bbox,omitempty"`
	Valid      bool           `json:"valid"`
	Errors     []string       `json:"errors,omitempty"`
}

// DocumentFields is the normalized result of one field-extraction run.
type DocumentFields struct {
	Extracted map[string]ExtractedField `json:"extracted_fields"`
	Missing   []string                  `json:"missing_fields"`
}

// Confidence aggregates the per-field confidences into one run-level score.
// Missing required fields pull the score to zero.
func (d DocumentFields) Confidence() float64 {
	if len(d.Extracted) == 0 {
		return 0
	}
	sum := 0.0
	for _, f := range d.Extracted {
		sum += f.Confidence
	}
	return sum / float64(len(d.Extracted))
}

// ExtractRequest carries everything a field extraction needs.
type ExtractRequest struct {
	Extraction *layout.Extraction
	Profile    profiles.Profile
	FileName   string
}

// FieldExtractor is the interface the pipeline depends on.
type FieldExtractor interface {
	ExtractFields(ctx context.Context, req ExtractRequest) (DocumentFields, []byte /*rawJSON*/, error)
}
