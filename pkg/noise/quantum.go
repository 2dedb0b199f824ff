package noise

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Quantum draws Poisson photon counts for a signal proportional to the true
// count. The expected count of a pixel is signal * photons / max(signal); the
// drawn counts are rescaled by their own maximum into [0, 1].
//
// Pixels are drawn in row-major order, one draw per pixel with a positive
// expectation.
func Quantum(signal mat.Matrix, photons float64, src rand.Source) (*mat.Dense, error) {
	if src == nil {
		return nil, ErrNilSource
	}

	peak := mat.Max(signal)
	if !(peak > 0) {
		return nil, fmt.Errorf("%w (signal max %g)", ErrDegenerateCounts, peak)
	}

	var counts mat.Dense
	counts.Apply(func(_, _ int, v float64) float64 {
		expected := v * photons / peak
		if !(expected > 0) {
			return 0
		}
		return distuv.Poisson{Lambda: expected, Src: src}.Rand()
	}, signal)

	top := mat.Max(&counts)
	if !(top > 0) {
		return nil, fmt.Errorf("%w (photons %g)", ErrDegenerateCounts, photons)
	}

	counts.Apply(func(_, _ int, v float64) float64 {
		return v / top
	}, &counts)
	return &counts, nil
}
