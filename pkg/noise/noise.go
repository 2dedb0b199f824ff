// Package noise layers the two detector noise models on a normalized primary
// signal: Poisson quantum noise followed by additive Gaussian system noise.
//
// Every function takes the random source explicitly. Output is reproducible
// for identical inputs and an identically seeded source. A source is not safe
// for concurrent use; callers sharing one across goroutines must synchronize.
package noise

import (
	"errors"
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// DefaultSigma is the default standard deviation of the system noise
const DefaultSigma = 0.02

var (
	// ErrNilSource is returned when no random source is supplied
	ErrNilSource = errors.New("noise: nil random source")

	// ErrDegenerateCounts is returned when the photon count field has no
	// positive maximum to rescale by
	ErrDegenerateCounts = errors.New("noise: photon counts have no positive maximum")

	// ErrInvalidSigma is returned for a negative or NaN system noise sigma
	ErrInvalidSigma = errors.New("noise: sigma must be a non-negative number")
)

// Apply adds quantum noise for photons per pixel and then system noise with
// standard deviation sigma. The result lies in [0, 1].
func Apply(primaryNorm mat.Matrix, photons, sigma float64, src rand.Source) (*mat.Dense, error) {
	quantum, err := Quantum(primaryNorm, photons, src)
	if err != nil {
		return nil, fmt.Errorf("quantum noise: %w", err)
	}

	img, err := System(quantum, sigma, src)
	if err != nil {
		return nil, fmt.Errorf("system noise: %w", err)
	}

	return img, nil
}
