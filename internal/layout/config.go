// Package layout reconstructs the spatial structure of an OCR'd page: it
// clusters fragments into rows, merges split fragments into coherent spans,
// and pairs label spans with value spans. All heuristics are approximate by
// design; malformed geometry degrades to singleton spans and leftovers
// instead of failing.
package layout

// Config holds the thresholds for spatial reconstruction. A Config is passed
// by value into every call so document-type profiles can tune thresholds
// without touching the algorithms.
type Config struct {
	// RowTolerance is the maximum vertical-center distance for two fragments
	// to share a row (page units).
	RowTolerance float64

	// GapThreshold is the maximum horizontal gap for two adjacent fragments
	// to merge into one span.
	GapThreshold float64

	// MinMergeLength is the minimum combined text length for a merge; below
	// it the fragments stay separate to avoid gluing unrelated short tokens.
	MinMergeLength int

	// OverlapLimit bounds how far two fragments may overlap horizontally and
	// still merge. A negative gap beyond this limit is treated as malformed
	// input and the fragments are kept separate.
	OverlapLimit float64

	// Separator joins the text of merged fragments. Profiles that want the
	// bilingual-form convention can set it to " / ".
	Separator string

	// ShortLabelLength is the text length below which a span counts as
	// label-like.
	ShortLabelLength int

	// SkipPenalty is the multiplicative confidence penalty applied once per
	// span skipped between a label and its paired value. Must be in (0,1]
	// so confidence is monotonically non-increasing in skip distance.
	SkipPenalty float64
}

// DefaultConfig returns the thresholds used when no document-type profile
// overrides them.
func DefaultConfig() Config {
	return Config{
		RowTolerance:     15,
		GapThreshold:     20,
		MinMergeLength:   3,
		OverlapLimit:     40,
		Separator:        " ",
		ShortLabelLength: 30,
		SkipPenalty:      0.85,
	}
}

// withDefaults fills zero-valued fields so a partially populated Config
// behaves sanely.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.RowTolerance <= 0 {
		c.RowTolerance = d.RowTolerance
	}
	if c.GapThreshold <= 0 {
		c.GapThreshold = d.GapThreshold
	}
	if c.MinMergeLength <= 0 {
		c.MinMergeLength = d.MinMergeLength
	}
	if c.OverlapLimit <= 0 {
		c.OverlapLimit = d.OverlapLimit
	}
	if c.Separator == "" {
		c.Separator = d.Separator
	}
	if c.ShortLabelLength <= 0 {
		c.ShortLabelLength = d.ShortLabelLength
	}
	if c.SkipPenalty <= 0 || c.SkipPenalty > 1 {
		c.SkipPenalty = d.SkipPenalty
	}
	return c
}
