package layout

import (
	"strings"

	"github.com/finovo/creditocr/internal/geometry"
)

// MergedSpan is one or more fragments combined into a single coherent text
// unit. Its bbox is the union of all source bboxes and its confidence is the
// minimum of the source confidences.
type MergedSpan struct {
	Text          string        `json:"text"`
	BBox          geometry.BBox `json:"bbox"`
	Confidence    float64       `json:"confidence"`
	SourceIndexes []int         `json:"source_fragment_ids"`
}

// MergeRow merges horizontally adjacent fragments of one row into spans.
// Two neighbors merge when the gap between them is below cfg.GapThreshold
// and the combined text reaches cfg.MinMergeLength. A zero or slightly
// negative gap (overlap) still merges; an overlap beyond cfg.OverlapLimit is
// malformed input and the fragments stay separate.
// Merging runs to a fixpoint: a pass can grow a span past the length guard
// and thereby enable a merge an earlier pass declined, so passes repeat
// until the spans are stable. The result is unchanged by re-merging, and it
// partitions the row: every fragment lands in exactly one span.
func MergeRow(row Row, cfg Config) []MergedSpan {
	cfg = cfg.withDefaults()
	if len(row.Fragments) == 0 {
		return nil
	}

	spans := make([]MergedSpan, len(row.Fragments))
	for i := range row.Fragments {
		spans[i] = spanFromFragment(row, i)
	}
	for {
		merged := mergePass(spans, cfg)
		if len(merged) == len(spans) {
			return merged
		}
		spans = merged
	}
}

func mergePass(spans []MergedSpan, cfg Config) []MergedSpan {
	out := make([]MergedSpan, 0, len(spans))
	cur := spans[0]
	for i := 1; i < len(spans); i++ {
		next := spans[i]
		gap := spans[i-1].BBox.HorizontalGap(next.BBox)

		if shouldMerge(cur.Text, next.Text, gap, cfg) {
			cur = joinSpans(cur, next, cfg)
			continue
		}
		out = append(out, cur)
		cur = next
	}
	return append(out, cur)
}

// shouldMerge is the merge-or-not decision as a pure function of the
// observable features. The rule set is deliberately conservative: it exists
// to repair tokens the OCR engine split, not to build phrases.
func shouldMerge(curText, nextText string, gap float64, cfg Config) bool {
	if gap >= cfg.GapThreshold {
		return false
	}
	if gap < -cfg.OverlapLimit {
		// Implausible overlap, likely a bad box from the engine.
		return false
	}
	combined := len(strings.TrimSpace(curText)) + len(strings.TrimSpace(nextText))
	return combined >= cfg.MinMergeLength
}

func spanFromFragment(row Row, i int) MergedSpan {
	f := row.Fragments[i]
	return MergedSpan{
		Text:          strings.TrimSpace(f.Text),
		BBox:          f.BBox,
		Confidence:    f.Confidence,
		SourceIndexes: []int{row.Indexes[i]},
	}
}

func joinSpans(left, right MergedSpan, cfg Config) MergedSpan {
	left.Text = joinText(left.Text, right.Text, cfg.Separator)
	left.BBox = left.BBox.Union(right.BBox)
	if right.Confidence < left.Confidence {
		left.Confidence = right.Confidence
	}
	left.SourceIndexes = append(left.SourceIndexes, right.SourceIndexes...)
	return left
}

// joinText concatenates two trimmed fragment texts with the configured
// separator. An empty side contributes nothing; no separator is duplicated.
// The rule is deliberately dumb so that identical input always yields
// identical output.
func joinText(left, right, sep string) string {
	if left == "" {
		return right
	}
	if right == "" {
		return left
	}
	return left + sep + right
}
