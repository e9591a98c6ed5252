package layout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finovo/creditocr/internal/ocr"
)

func rowOf(frags ...ocr.Fragment) Row {
	rows := GroupRows(frags, DefaultConfig())
	if len(rows) != 1 {
		panic("test fixture spans more than one row")
	}
	return rows[0]
}

func TestMergeRowEmptyRow(t *testing.T) {
	assert.Nil(t, MergeRow(Row{}, DefaultConfig()))
}

func TestMergeRowJoinsAdjacentFragments(t *testing.T) {
	row := rowOf(
		frag("Loan", 0, 0, 40, 20, 0.9),
		frag("Amount:", 45, 0, 110, 20, 0.8),
	)
	spans := MergeRow(row, DefaultConfig())
	require.Len(t, spans, 1)
	assert.Equal(t, "Loan Amount:", spans[0].Text)
	assert.Equal(t, []int{0, 1}, spans[0].SourceIndexes)
	assert.Equal(t, 0.8, spans[0].Confidence, "span confidence is the minimum of its sources")
	assert.True(t, spans[0].BBox.Contains(row.Fragments[0].BBox))
	assert.True(t, spans[0].BBox.Contains(row.Fragments[1].BBox))
}

func TestMergeRowSplitsAtWideGap(t *testing.T) {
	row := rowOf(
		frag("Label", 0, 0, 50, 20, 0.9),
		frag("Value", 70, 0, 120, 20, 0.9), // gap 20, at the threshold
	)
	spans := MergeRow(row, DefaultConfig())
	require.Len(t, spans, 2)
	assert.Equal(t, "Label", spans[0].Text)
	assert.Equal(t, "Value", spans[1].Text)
}

func TestMergeRowZeroAndNegativeGap(t *testing.T) {
	row := rowOf(
		frag("over", 0, 0, 50, 20, 0.9),
		frag("lap", 45, 0, 80, 20, 0.9), // overlap of 5
		frag("ping", 80, 0, 120, 20, 0.9), // touching, gap 0
	)
	spans := MergeRow(row, DefaultConfig())
	require.Len(t, spans, 1)
	assert.Equal(t, "over lap ping", spans[0].Text)
}

func TestMergeRowRejectsImplausibleOverlap(t *testing.T) {
	row := rowOf(
		frag("first", 0, 0, 100, 20, 0.9),
		frag("second", 10, 0, 110, 20, 0.9), // overlap 90, beyond OverlapLimit
	)
	spans := MergeRow(row, DefaultConfig())
	require.Len(t, spans, 2)
}

func TestMergeRowShortTokensStaySeparate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinMergeLength = 5
	row := rowOf(
		frag("a", 0, 0, 10, 20, 0.9),
		frag("b", 12, 0, 22, 20, 0.9),
	)
	spans := MergeRow(row, cfg)
	require.Len(t, spans, 2)
}

func TestMergeRowPartitionsRow(t *testing.T) {
	row := rowOf(
		frag("one", 0, 0, 30, 20, 0.9),
		frag("two", 35, 0, 65, 20, 0.9),
		frag("three", 200, 0, 250, 20, 0.9),
		frag("four", 255, 0, 300, 20, 0.9),
	)
	spans := MergeRow(row, DefaultConfig())

	seen := map[int]bool{}
	for _, s := range spans {
		for _, idx := range s.SourceIndexes {
			assert.False(t, seen[idx], "fragment %d merged twice", idx)
			seen[idx] = true
		}
	}
	assert.Len(t, seen, len(row.Fragments))
}

func TestMergeRowIdempotent(t *testing.T) {
	// The short first token only clears the length guard once its right
	// neighbors have merged, so a single pass would stop too early.
	row := rowOf(
		frag("a", 0, 0, 10, 20, 0.9),
		frag("b", 12, 0, 22, 20, 0.9),
		frag("cd", 24, 0, 44, 20, 0.9),
	)
	spans := MergeRow(row, DefaultConfig())
	require.Len(t, spans, 1)
	assert.Equal(t, "a b cd", spans[0].Text)

	// Feeding the output back in as atomic fragments yields the same spans.
	frags := make([]ocr.Fragment, len(spans))
	for i, s := range spans {
		frags[i] = ocr.Fragment{Text: s.Text, BBox: s.BBox, Confidence: s.Confidence}
	}
	again := MergeRow(rowOf(frags...), DefaultConfig())
	require.Len(t, again, len(spans))
	for i := range spans {
		assert.Equal(t, spans[i].Text, again[i].Text)
		assert.Equal(t, spans[i].BBox, again[i].BBox)
	}
}

func TestMergeRowCustomSeparator(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Separator = " / "
	row := rowOf(
		frag("Name", 0, 0, 40, 20, 0.9),
		frag("Nom", 45, 0, 80, 20, 0.9),
	)
	spans := MergeRow(row, cfg)
	require.Len(t, spans, 1)
	assert.Equal(t, "Name / Nom", spans[0].Text)
}
