package layout

import (
	"math"
	"sort"

	"github.com/finovo/creditocr/internal/geometry"
	"github.com/finovo/creditocr/internal/ocr"
)

// Row is a horizontal cluster of fragments judged to lie on the same visual
// line. Rows are transient: they exist only for the duration of one
// normalization call.
type Row struct {
	Fragments []ocr.Fragment `json:"fragments"`
	Indexes   []int          `json:"source_fragment_ids"` // positions in the page's fragment slice
	CenterY   float64        `json:"center_y"`
	BBox      geometry.BBox  `json:"bbox"`
}

type cluster struct {
	frags   []ocr.Fragment
	indexes []int
	sum     float64 // running sum of vertical centers
}

func (c *cluster) centroid() float64 {
	return c.sum / float64(len(c.frags))
}

func (c *cluster) add(f ocr.Fragment, idx int) {
	c.frags = append(c.frags, f)
	c.indexes = append(c.indexes, idx)
	c.sum += f.BBox.CenterY()
}

// GroupRows clusters fragments into rows by vertical-center proximity.
// Membership is transitive along a tolerance chain: each fragment joins the
// cluster whose running centroid is nearest within cfg.RowTolerance, so
// gradual drift does not fragment a row. On an exact centroid-distance tie
// the earlier (upper) cluster wins. Rows come back sorted top-to-bottom with
// fragments sorted left-to-right; empty input yields nil, not an error.
func GroupRows(frags []ocr.Fragment, cfg Config) []Row {
	cfg = cfg.withDefaults()
	if len(frags) == 0 {
		return nil
	}

	type indexed struct {
		frag ocr.Fragment
		idx  int
	}
	sorted := make([]indexed, len(frags))
	for i, f := range frags {
		sorted[i] = indexed{frag: f, idx: i}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].frag.BBox.CenterY() < sorted[j].frag.BBox.CenterY()
	})

	var clusters []*cluster
	for _, in := range sorted {
		cy := in.frag.BBox.CenterY()

		best := -1
		bestDist := math.Inf(1)
		for ci, c := range clusters {
			d := math.Abs(cy - c.centroid())
			if d <= cfg.RowTolerance && d < bestDist {
				best = ci
				bestDist = d
			}
		}
		if best >= 0 {
			clusters[best].add(in.frag, in.idx)
		} else {
			nc := &cluster{}
			nc.add(in.frag, in.idx)
			clusters = append(clusters, nc)
		}
	}

	rows := make([]Row, 0, len(clusters))
	for _, c := range clusters {
		rows = append(rows, buildRow(c))
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].CenterY < rows[j].CenterY
	})
	return rows
}

func buildRow(c *cluster) Row {
	order := make([]int, len(c.frags))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return c.frags[order[a]].BBox.X1 < c.frags[order[b]].BBox.X1
	})

	row := Row{
		Fragments: make([]ocr.Fragment, 0, len(c.frags)),
		Indexes:   make([]int, 0, len(c.frags)),
		CenterY:   c.centroid(),
	}
	for i, o := range order {
		f := c.frags[o]
		row.Fragments = append(row.Fragments, f)
		row.Indexes = append(row.Indexes, c.indexes[o])
		if i == 0 {
			row.BBox = f.BBox
		} else {
			row.BBox = row.BBox.Union(f.BBox)
		}
	}
	return row
}
