package layout

import "github.com/finovo/creditocr/internal/ocr"

// PageExtraction is the reconstructed structure of one page.
type PageExtraction struct {
	PageNumber  int          `json:"page_number"`
	Rows        []Row        `json:"rows"`
	MergedSpans []MergedSpan `json:"merged_spans"`
	Pairs       []Pair       `json:"pairs"`
	Leftovers   []MergedSpan `json:"leftovers"`
}

// Summary carries the aggregate counts of one normalization call.
type Summary struct {
	FragmentCount int `json:"fragment_count"`
	MergedCount   int `json:"merged_count"`
	PairCount     int `json:"pair_count"`
}

// Extraction is the sole handoff artifact to downstream field extraction.
// It is fully derived from the input fragments: the same fragments always
// produce an identical Extraction.
type Extraction struct {
	Pages   []PageExtraction `json:"pages"`
	Summary Summary          `json:"summary"`
}

// Normalize runs the full spatial reconstruction (rows, merged spans,
// label-value pairs) over every page and aggregates the results. An empty
// page contributes an empty PageExtraction, not an error.
func Normalize(pages []ocr.Page, cfg Config) *Extraction {
	cfg = cfg.withDefaults()
	out := &Extraction{Pages: make([]PageExtraction, 0, len(pages))}

	for _, page := range pages {
		pe := normalizePage(page, cfg)
		out.Summary.FragmentCount += len(page.Fragments)
		out.Summary.MergedCount += len(pe.MergedSpans)
		out.Summary.PairCount += len(pe.Pairs)
		out.Pages = append(out.Pages, pe)
	}
	return out
}

func normalizePage(page ocr.Page, cfg Config) PageExtraction {
	pe := PageExtraction{PageNumber: page.Number}

	pe.Rows = GroupRows(page.Fragments, cfg)
	for _, row := range pe.Rows {
		spans := MergeRow(row, cfg)
		pe.MergedSpans = append(pe.MergedSpans, spans...)

		pairs, leftovers := PairRow(spans, cfg)
		for i := range pairs {
			pairs[i].Page = page.Number
		}
		pe.Pairs = append(pe.Pairs, pairs...)
		pe.Leftovers = append(pe.Leftovers, leftovers...)
	}
	return pe
}

// AllPairs flattens the pairs of every page in reading order.
func (e *Extraction) AllPairs() []Pair {
	var out []Pair
	for _, p := range e.Pages {
		out = append(out, p.Pairs...)
	}
	return out
}

// PlainText renders the extraction as row-per-line text, the shape the
// field-extraction prompt consumes.
func (e *Extraction) PlainText() string {
	var b []byte
	for _, page := range e.Pages {
		for _, row := range page.Rows {
			for i, f := range row.Fragments {
				if i > 0 {
					b = append(b, ' ')
				}
				b = append(b, f.Text...)
			}
			b = append(b, '\n')
		}
	}
	return string(b)
}
