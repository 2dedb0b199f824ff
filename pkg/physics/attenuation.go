package physics

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Mu is the linear attenuation coefficient in 1/mm. It is a toy value standing
// in for an energy-averaged coefficient.
const Mu = 0.005

// ErrDegenerateSignal is returned when the primary signal has no positive
// maximum to normalize by.
var ErrDegenerateSignal = errors.New("physics: primary signal has no positive maximum")

// Transmission returns the Beer-Lambert transmitted fraction through
// thicknessMM millimetres of material.
func Transmission(thicknessMM float64) float64 {
	return math.Exp(-Mu * thicknessMM)
}

// PrimarySignal returns fluence * transmission for every pixel of the
// thickness map, before any normalization.
func PrimarySignal(thickness mat.Matrix, fluence float64) *mat.Dense {
	var signal mat.Dense
	signal.Apply(func(_, _ int, v float64) float64 {
		return fluence * Transmission(v)
	}, thickness)
	return &signal
}

// Attenuate computes the primary signal and normalizes it to a unit peak.
// It returns ErrDegenerateSignal when the signal maximum is not positive,
// which happens for zero or negative fluence.
func Attenuate(thickness mat.Matrix, fluence float64) (*mat.Dense, error) {
	signal := PrimarySignal(thickness, fluence)

	peak := mat.Max(signal)
	if !(peak > 0) {
		return nil, fmt.Errorf("%w (max %g, fluence %g)", ErrDegenerateSignal, peak, fluence)
	}

	signal.Apply(func(_, _ int, v float64) float64 {
		return v / peak
	}, signal)
	return signal, nil
}
