package phantom

import (
	"gonum.org/v1/gonum/mat"

	"xraysim/internal/models"
)

// Cone returns the thickness map of a right circular cone seen from the side.
//
// The cone occupies round(height*scale) rows and round(width*scale) columns,
// anchored top-left at offset. Row i of the block samples the cone axis at
// t = i*heightMM/rows, so the first row carries the full base diameter and the
// last row stops one step short of the apex-to-base length. Every column of a
// row holds the same chord length 2*r(t).
func Cone(height, width int, scale float64, offset models.Offset) *mat.Dense {
	thickness := mat.NewDense(height, width, nil)

	rows := scaledExtent(height, scale)
	cols := scaledExtent(width, scale)
	if rows <= 0 || cols <= 0 {
		return thickness
	}

	baseMM := ConeBaseMM * scale

	// Column range after clipping to the canvas
	x0, x1 := clip(offset.DX, cols, width)
	if x0 >= x1 {
		return thickness
	}

	for i := 0; i < rows; i++ {
		y := offset.DY + i
		if y < 0 || y >= height {
			continue
		}

		// t/heightMM reduces to i/rows
		radius := (1 - float64(i)/float64(rows)) * baseMM / 2
		chord := 2 * radius

		row := thickness.RawRowView(y)
		for x := x0; x < x1; x++ {
			row[x] = chord
		}
	}

	return thickness
}

// clip intersects [start, start+n) with [0, limit)
func clip(start, n, limit int) (int, int) {
	lo, hi := start, start+n
	if lo < 0 {
		lo = 0
	}
	if hi > limit {
		hi = limit
	}
	return lo, hi
}
