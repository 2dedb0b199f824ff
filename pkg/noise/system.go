package noise

import (
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// System adds zero-mean Gaussian noise with standard deviation sigma to every
// pixel and clips the result to [0, 1].
func System(img mat.Matrix, sigma float64, src rand.Source) (*mat.Dense, error) {
	if src == nil {
		return nil, ErrNilSource
	}
	if !(sigma >= 0) {
		return nil, ErrInvalidSigma
	}

	gauss := distuv.Normal{Mu: 0, Sigma: sigma, Src: src}

	var out mat.Dense
	out.Apply(func(_, _ int, v float64) float64 {
		return clamp01(v + gauss.Rand())
	}, img)

	return &out, nil
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
