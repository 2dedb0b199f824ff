package phantom

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"xraysim/internal/models"
)

// Sphere returns the thickness map of a solid sphere viewed along the
// projection axis.
//
// The projected disk has diameter D = round(min(height, width)*scale) pixels and
// is centred on the canvas centre shifted by offset. A pixel at distance r from
// the centre gets the chord 2*sqrt(R^2 - r^2), converted from pixels to mm.
func Sphere(height, width int, scale float64, offset models.Offset) *mat.Dense {
	thickness := mat.NewDense(height, width, nil)

	diameter := scaledExtent(min(height, width), scale)
	if diameter <= 0 {
		return thickness
	}

	radius := float64(diameter) / 2
	mmPerPx := SphereDiameterMM * scale / float64(diameter)

	cx := float64(width)/2 + float64(offset.DX)
	cy := float64(height)/2 + float64(offset.DY)

	// Only rows and columns inside the bounding box of the disk can be hit
	y0 := max(0, int(math.Floor(cy-radius)))
	y1 := min(height-1, int(math.Ceil(cy+radius)))
	x0 := max(0, int(math.Floor(cx-radius)))
	x1 := min(width-1, int(math.Ceil(cx+radius)))

	r2 := radius * radius
	for y := y0; y <= y1; y++ {
		dy := float64(y) - cy
		row := thickness.RawRowView(y)
		for x := x0; x <= x1; x++ {
			dx := float64(x) - cx
			d2 := dx*dx + dy*dy
			if d2 > r2 {
				continue
			}
			row[x] = 2 * math.Sqrt(r2-d2) * mmPerPx
		}
	}

	return thickness
}
