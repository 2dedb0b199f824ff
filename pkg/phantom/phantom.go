// Package phantom generates projected thickness maps (in mm) of simple
// geometric phantoms.
//
// A thickness map has the shape of the output canvas and holds, for every
// pixel, the chord length of the ray through the phantom. Pixels outside the
// phantom silhouette are zero. Phantoms that extend past the canvas are
// clipped to it.
package phantom

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"xraysim/internal/models"
)

// Physical phantom size at scale 1.0. Sizes scale linearly with the phantom
// scale so the thickness profile keeps its shape.
const (
	ConeBaseMM       = 40.0
	ConeHeightMM     = 80.0
	SphereDiameterMM = 40.0
)

// ThicknessMap builds the thickness map for spec, dispatching on its kind.
// Unknown kinds produce an all-zero map.
//
// Canvas dimensions must be positive; mat.NewDense panics otherwise.
func ThicknessMap(spec models.PhantomSpec) *mat.Dense {
	switch spec.Kind {
	case models.Cone:
		return Cone(spec.CanvasHeight, spec.CanvasWidth, spec.Scale, spec.Offset)
	case models.Sphere:
		return Sphere(spec.CanvasHeight, spec.CanvasWidth, spec.Scale, spec.Offset)
	default:
		return mat.NewDense(spec.CanvasHeight, spec.CanvasWidth, nil)
	}
}

// scaledExtent rounds n*scale to whole pixels
func scaledExtent(n int, scale float64) int {
	return int(math.Round(float64(n) * scale))
}
