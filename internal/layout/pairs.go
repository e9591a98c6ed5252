package layout

import (
	"math"
	"strings"

	"github.com/finovo/creditocr/internal/geometry"
)

// Class is the classification tag for a merged span. Classification is a
// pure, total function of the span's own features; the one relative check
// (a value may simply be longer than its label) is applied at pairing time.
type Class int

const (
	ClassNeither Class = iota
	ClassLabel
	ClassValue
	ClassAmbiguous // satisfies both heuristics
)

func (c Class) String() string {
	switch c {
	case ClassLabel:
		return "label"
	case ClassValue:
		return "value"
	case ClassAmbiguous:
		return "ambiguous"
	default:
		return "neither"
	}
}

// Pair is a label span matched to a value span on the same row.
type Pair struct {
	Label      MergedSpan    `json:"label"`
	Value      MergedSpan    `json:"value"`
	Confidence float64       `json:"confidence"`
	Page       int           `json:"page"`
	BBox       geometry.BBox `json:"bbox"`
}

// LabelText returns the pair's label with trailing punctuation stripped.
func (p Pair) LabelText() string {
	return strings.TrimSpace(strings.TrimRight(p.Label.Text, ":?"))
}

const currencyRunes = "€$£¥"

// Classify tags a span as label-like, value-like, both, or neither.
// Label-like: ends with a colon, contains a slash, or is shorter than
// cfg.ShortLabelLength. Value-like: contains a currency symbol or a digit.
func Classify(span MergedSpan, cfg Config) Class {
	cfg = cfg.withDefaults()
	text := strings.TrimSpace(span.Text)
	if text == "" {
		return ClassNeither
	}

	label := strings.HasSuffix(text, ":") ||
		strings.HasSuffix(text, "?") ||
		strings.Contains(text, "/") ||
		len(text) < cfg.ShortLabelLength
	value := containsValueChar(text)

	switch {
	case label && value:
		return ClassAmbiguous
	case label:
		return ClassLabel
	case value:
		return ClassValue
	default:
		return ClassNeither
	}
}

func containsValueChar(text string) bool {
	return strings.ContainsAny(text, currencyRunes+"0123456789")
}

// PairRow pairs label-like spans with value-like spans within one row.
// With exactly one label candidate and one value candidate the two pair
// directly; otherwise the leftmost unconsumed label candidate pairs with the
// nearest qualifying value span to its right. Every span is consumed by at
// most one pair; unconsumed spans are returned as leftovers, never dropped.
// A row that yields no valid pair is not an error.
func PairRow(spans []MergedSpan, cfg Config) ([]Pair, []MergedSpan) {
	cfg = cfg.withDefaults()
	if len(spans) == 0 {
		return nil, nil
	}

	if p, ok := threeElementPair(spans, cfg); ok {
		return []Pair{p}, nil
	}

	consumed := make([]bool, len(spans))
	var pairs []Pair

	for i := range spans {
		if consumed[i] {
			continue
		}
		cls := Classify(spans[i], cfg)
		if cls != ClassLabel && cls != ClassAmbiguous {
			continue
		}
		j := findValue(spans, consumed, i, cfg)
		if j < 0 {
			continue
		}
		pairs = append(pairs, buildPair(spans[i], spans[j], j-i-1, cfg))
		consumed[i], consumed[j] = true, true
	}

	var leftovers []MergedSpan
	for i, s := range spans {
		if !consumed[i] {
			leftovers = append(leftovers, s)
		}
	}
	return pairs, leftovers
}

// findValue returns the index of the nearest unconsumed span to the right of
// the label that qualifies as its value, or -1.
func findValue(spans []MergedSpan, consumed []bool, label int, cfg Config) int {
	labelLen := len(strings.TrimSpace(spans[label].Text))
	for j := label + 1; j < len(spans); j++ {
		if consumed[j] {
			continue
		}
		text := strings.TrimSpace(spans[j].Text)
		if text == "" {
			continue
		}
		// Value-like statically, or simply longer than the label candidate.
		if containsValueChar(text) || len(text) > labelLen {
			return j
		}
	}
	return -1
}

// buildPair derives the pair confidence from the minimum of the two span
// confidences, discounted once per span skipped between label and value.
func buildPair(label, value MergedSpan, skips int, cfg Config) Pair {
	conf := math.Min(label.Confidence, value.Confidence)
	for s := 0; s < skips; s++ {
		conf *= cfg.SkipPenalty
	}
	return Pair{
		Label:      label,
		Value:      value,
		Confidence: clampUnit(conf),
		BBox:       label.BBox.Union(value.BBox),
	}
}

// threeElementPair handles the "label label value" row shape: exactly three
// spans where only the last one carries value characters. The two leading
// spans combine into one label so table rows with split headings survive.
func threeElementPair(spans []MergedSpan, cfg Config) (Pair, bool) {
	if len(spans) != 3 {
		return Pair{}, false
	}
	last := strings.TrimSpace(spans[2].Text)
	if len(last) <= 1 || !containsValueChar(last) {
		return Pair{}, false
	}
	for _, s := range spans[:2] {
		if containsValueChar(s.Text) {
			return Pair{}, false
		}
	}

	label := MergedSpan{
		Text:          joinText(spans[0].Text, spans[1].Text, cfg.Separator),
		BBox:          spans[0].BBox.Union(spans[1].BBox),
		Confidence:    math.Min(spans[0].Confidence, spans[1].Confidence),
		SourceIndexes: append(append([]int{}, spans[0].SourceIndexes...), spans[1].SourceIndexes...),
	}
	return buildPair(label, spans[2], 0, cfg), true
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
