package llm

import (
	"strings"

	"github.com/finovo/creditocr/internal/layout"
	"github.com/finovo/creditocr/internal/profiles"
)

// BuildDocumentFields turns the model's name-to-text mapping into the
// normalized result. The model only maps document text to field names;
// value provenance (confidence, page, bbox) comes from the OCR pairs, found
// by matching the mapped text back against the pair values.
func BuildDocumentFields(mapped map[string]string, profile profiles.Profile, ex *layout.Extraction) DocumentFields {
	out := DocumentFields{
		Extracted: make(map[string]ExtractedField, len(mapped)),
	}

	var pairs []layout.Pair
	if ex != nil {
		pairs = ex.AllPairs()
	}

	for name, raw := range mapped {
		spec, ok := profile.FieldByName(name)
		if !ok {
			continue
		}

		field := ExtractedField{Raw: raw}
		cleaned, usable := CleanValue(raw, spec.Type)
		if usable {
			field.Value = cleaned
			field.Errors = ValidateField(cleaned, spec)
		} else {
			field.Value = strings.TrimSpace(raw)
			field.Errors = []string{"value could not be normalized"}
		}
		field.Valid = len(field.Errors) == 0

		if src, found := matchPair(raw, pairs); found {
			field.Confidence = src.Confidence
			field.Page = src.Page
			bbox := src.BBox
			field.BBox = &bbox
		} else {
			// No spatial provenance; keep the field but at reduced trust.
			field.Confidence = 0.5
		}
		out.Extracted[name] = field
	}

	for _, name := range profile.FieldNames() {
		if _, ok := out.Extracted[name]; !ok {
			out.Missing = append(out.Missing, name)
		}
	}
	return out
}

// matchPair finds the pair whose value text matches the mapped value. Exact
// match wins; otherwise a containment match in either direction is accepted.
func matchPair(value string, pairs []layout.Pair) (layout.Pair, bool) {
	needle := normalizeForMatch(value)
	if needle == "" {
		return layout.Pair{}, false
	}

	for _, p := range pairs {
		if normalizeForMatch(p.Value.Text) == needle {
			return p, true
		}
	}
	for _, p := range pairs {
		hay := normalizeForMatch(p.Value.Text)
		if hay == "" {
			continue
		}
		if strings.Contains(hay, needle) || strings.Contains(needle, hay) {
			return p, true
		}
	}
	return layout.Pair{}, false
}

func normalizeForMatch(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
