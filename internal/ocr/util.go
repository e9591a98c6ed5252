package ocr

import "github.com/finovo/creditocr/internal/geometry"

func boxFromRect(x1, y1, x2, y2 float64) geometry.BBox {
	return geometry.BBox{X1: x1, Y1: y1, X2: x2, Y2: y2}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
