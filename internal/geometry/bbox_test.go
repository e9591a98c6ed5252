package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBBoxDimensions(t *testing.T) {
	b := BBox{X1: 10, Y1: 20, X2: 110, Y2: 50}
	assert.Equal(t, 100.0, b.Width())
	assert.Equal(t, 30.0, b.Height())
	assert.Equal(t, 35.0, b.CenterY())
	assert.True(t, b.IsValid())
}

func TestBBoxUnionContainsSources(t *testing.T) {
	a := BBox{X1: 10, Y1: 10, X2: 50, Y2: 30}
	b := BBox{X1: 60, Y1: 12, X2: 120, Y2: 28}

	u := a.Union(b)
	assert.True(t, u.Contains(a), "union must contain first source box")
	assert.True(t, u.Contains(b), "union must contain second source box")
	assert.Equal(t, BBox{X1: 10, Y1: 10, X2: 120, Y2: 30}, u)
}

func TestHorizontalGap(t *testing.T) {
	a := BBox{X1: 0, Y1: 0, X2: 40, Y2: 10}

	tests := []struct {
		name string
		next BBox
		want float64
	}{
		{"separated", BBox{X1: 55, Y1: 0, X2: 80, Y2: 10}, 15},
		{"touching", BBox{X1: 40, Y1: 0, X2: 60, Y2: 10}, 0},
		{"overlapping", BBox{X1: 30, Y1: 0, X2: 60, Y2: 10}, -10},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, a.HorizontalGap(tc.next))
		})
	}
}
