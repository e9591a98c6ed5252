// Package geometry provides the bounding-box primitives shared by the OCR
// and layout packages.
package geometry

import "math"

// BBox is an axis-aligned bounding box in page coordinates. X grows to the
// right, Y grows downward; (X1,Y1) is the top-left corner.
type BBox struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Width returns the horizontal extent.
func (b BBox) Width() float64 {
	return b.X2 - b.X1
}

// Height returns the vertical extent.
func (b BBox) Height() float64 {
	return b.Y2 - b.Y1
}

// CenterY returns the vertical center, the quantity row grouping clusters on.
func (b BBox) CenterY() float64 {
	return (b.Y1 + b.Y2) / 2
}

// Union returns the smallest box containing both b and other.
func (b BBox) Union(other BBox) BBox {
	return BBox{
		X1: math.Min(b.X1, other.X1),
		Y1: math.Min(b.Y1, other.Y1),
		X2: math.Max(b.X2, other.X2),
		Y2: math.Max(b.Y2, other.Y2),
	}
}

// HorizontalGap returns the horizontal distance from b's right edge to
// other's left edge. Negative when the boxes overlap horizontally.
func (b BBox) HorizontalGap(other BBox) float64 {
	return other.X1 - b.X2
}

// Contains reports whether other lies entirely inside b.
func (b BBox) Contains(other BBox) bool {
	return other.X1 >= b.X1 && other.Y1 >= b.Y1 &&
		other.X2 <= b.X2 && other.Y2 <= b.Y2
}

// IsValid reports whether the box has non-negative extent on both axes.
func (b BBox) IsValid() bool {
	return b.X2 >= b.X1 && b.Y2 >= b.Y1
}
