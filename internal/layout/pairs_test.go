package layout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finovo/creditocr/internal/geometry"
)

func span(text string, x1, x2, conf float64) MergedSpan {
	return MergedSpan{
		Text:       text,
		BBox:       geometry.BBox{X1: x1, Y1: 0, X2: x2, Y2: 20},
		Confidence: conf,
	}
}

func TestClassify(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		text string
		want Class
	}{
		{"Borrower Name and Registered Address of the Company", ClassNeither},
		{"Borrower Name and Registered Address of the Company:", ClassLabel},
		{"Name / Nom de la Societe du Groupe Industriel", ClassLabel},
		{"Interest Rate", ClassLabel},
		{"Total Outstanding Principal Amount Due 31.12.2025", ClassValue},
		{"€2,000,000", ClassAmbiguous},
		{"A really long value without digits that runs past the label cutoff", ClassNeither},
		{"", ClassNeither},
		{"   ", ClassNeither},
	}
	for _, tt := range tests {
		got := Classify(span(tt.text, 0, 100, 0.9), cfg)
		assert.Equal(t, tt.want, got, "text %q", tt.text)
	}
}

func TestPairRowLabelAndValue(t *testing.T) {
	spans := []MergedSpan{
		span("Loan Amount:", 0, 100, 0.9),
		span("€2,000,000", 150, 250, 0.8),
	}
	pairs, leftovers := PairRow(spans, DefaultConfig())
	require.Len(t, pairs, 1)
	assert.Empty(t, leftovers)

	assert.Equal(t, "Loan Amount:", pairs[0].Label.Text)
	assert.Equal(t, "Loan Amount", pairs[0].LabelText())
	assert.Equal(t, "€2,000,000", pairs[0].Value.Text)
	assert.Equal(t, 0.8, pairs[0].Confidence, "pair confidence is the minimum of the span confidences")
	assert.True(t, pairs[0].BBox.Contains(spans[0].BBox))
	assert.True(t, pairs[0].BBox.Contains(spans[1].BBox))
}

func TestPairRowSkipPenalty(t *testing.T) {
	cfg := DefaultConfig()
	direct := []MergedSpan{
		span("Facility Agent and Security Trustee:", 0, 100, 0.9),
		span("€500", 300, 350, 0.9),
	}
	skipped := []MergedSpan{
		span("Facility Agent and Security Trustee:", 0, 100, 0.9),
		span("x", 150, 160, 0.9), // neither label nor value, gets skipped
		span("€500", 300, 350, 0.9),
	}

	directPairs, _ := PairRow(direct, cfg)
	skippedPairs, skippedLeft := PairRow(skipped, cfg)
	require.Len(t, directPairs, 1)
	require.Len(t, skippedPairs, 1)

	assert.InDelta(t, 0.9, directPairs[0].Confidence, 1e-9)
	assert.InDelta(t, 0.9*cfg.SkipPenalty, skippedPairs[0].Confidence, 1e-9)
	assert.Less(t, skippedPairs[0].Confidence, directPairs[0].Confidence)

	require.Len(t, skippedLeft, 1)
	assert.Equal(t, "x", skippedLeft[0].Text)
}

func TestPairRowValueLongerThanLabel(t *testing.T) {
	// Neither static rule fires for the value; it qualifies only by being
	// longer than its label.
	spans := []MergedSpan{
		span("Company Name", 0, 100, 0.95),
		span("DemoTech Solutions GmbH", 150, 350, 0.9),
	}
	pairs, leftovers := PairRow(spans, DefaultConfig())
	require.Len(t, pairs, 1)
	assert.Empty(t, leftovers)
	assert.Equal(t, "DemoTech Solutions GmbH", pairs[0].Value.Text)
}

func TestPairRowNoPairIsNotAnError(t *testing.T) {
	spans := []MergedSpan{
		span("Notes", 0, 50, 0.9),
		span("End", 100, 130, 0.9), // shorter than the label, not value-like
	}
	pairs, leftovers := PairRow(spans, DefaultConfig())
	assert.Empty(t, pairs)
	assert.Len(t, leftovers, 2)
}

func TestPairRowThreeElementRow(t *testing.T) {
	spans := []MergedSpan{
		span("Interest", 0, 70, 0.9),
		span("Rate", 80, 120, 0.85),
		span("3.5%", 300, 340, 0.95),
	}
	pairs, leftovers := PairRow(spans, DefaultConfig())
	require.Len(t, pairs, 1)
	assert.Empty(t, leftovers)

	assert.Equal(t, "Interest Rate", pairs[0].Label.Text)
	assert.Equal(t, "3.5%", pairs[0].Value.Text)
	assert.InDelta(t, 0.85, pairs[0].Confidence, 1e-9)
}

func TestPairRowThreeElementRowNotApplied(t *testing.T) {
	// Middle span carries digits, so the row pairs normally instead.
	spans := []MergedSpan{
		span("Maturity Date:", 0, 100, 0.9),
		span("31.12.2030", 150, 250, 0.9),
		span("fixed", 300, 350, 0.9),
	}
	pairs, leftovers := PairRow(spans, DefaultConfig())
	require.Len(t, pairs, 1)
	assert.Equal(t, "Maturity Date:", pairs[0].Label.Text)
	assert.Equal(t, "31.12.2030", pairs[0].Value.Text)
	require.Len(t, leftovers, 1)
	assert.Equal(t, "fixed", leftovers[0].Text)
}

func TestPairRowConsumesEachSpanOnce(t *testing.T) {
	spans := []MergedSpan{
		span("Principal:", 0, 80, 0.9),
		span("€1,000", 100, 160, 0.9),
		span("Margin:", 200, 260, 0.9),
		span("2.25%", 300, 350, 0.9),
	}
	pairs, leftovers := PairRow(spans, DefaultConfig())
	require.Len(t, pairs, 2)
	assert.Empty(t, leftovers)
	assert.Equal(t, "€1,000", pairs[0].Value.Text)
	assert.Equal(t, "2.25%", pairs[1].Value.Text)
}

func TestPairRowConfidenceClamped(t *testing.T) {
	spans := []MergedSpan{
		span("Amount:", 0, 80, 1.5), // out-of-range input confidence
		span("€100", 100, 150, 2.0),
	}
	pairs, _ := PairRow(spans, DefaultConfig())
	require.Len(t, pairs, 1)
	assert.LessOrEqual(t, pairs[0].Confidence, 1.0)
}
