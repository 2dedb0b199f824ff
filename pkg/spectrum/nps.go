// Package spectrum estimates the noise power spectrum (NPS) of simulated
// images, the standard frequency-domain description of detector noise.
package spectrum

import (
	"errors"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/mat"
)

// ErrTooSmall is returned for images with fewer than two rows or columns
var ErrTooSmall = errors.New("spectrum: image must be at least 2x2")

// NPS is a radially averaged noise power spectrum
type NPS struct {
	// Frequency holds bin centres in cycles per pixel, up to Nyquist (0.5)
	Frequency []float64

	// Power holds the mean power per bin, normalized so that white noise of
	// variance s^2 has a flat spectrum at s^2
	Power []float64
}

// NoisePower computes the radially averaged NPS of img after removing its
// mean.
//
// Parameters:
//   - img: image data, any size of at least 2x2
//
// Returns:
//   - the spectrum with min(rows, cols)/2 bins
func NoisePower(img *mat.Dense) (*NPS, error) {
	rows, cols := img.Dims()
	if rows < 2 || cols < 2 {
		return nil, ErrTooSmall
	}

	power := periodogram(img)
	half := cols/2 + 1

	nBins := min(rows, cols) / 2
	binWidth := 0.5 / float64(nBins)
	sums := make([]float64, nBins)
	counts := make([]int, nBins)

	for v := 0; v < rows; v++ {
		fv := float64(v)
		if v > rows/2 {
			fv -= float64(rows)
		}
		fv /= float64(rows)

		for u := 0; u < half; u++ {
			fu := float64(u) / float64(cols)
			k := int(math.Hypot(fu, fv) / binWidth)
			if k >= nBins {
				continue
			}
			sums[k] += power[v*half+u]
			counts[k]++
		}
	}

	nps := &NPS{
		Frequency: make([]float64, nBins),
		Power:     make([]float64, nBins),
	}
	for k := range sums {
		nps.Frequency[k] = (float64(k) + 0.5) * binWidth
		if counts[k] > 0 {
			nps.Power[k] = sums[k] / float64(counts[k])
		}
	}

	return nps, nil
}

// periodogram returns |F(u,v)|^2 / (rows*cols) over the non-redundant half of
// the 2-D spectrum, laid out row-major with cols/2+1 entries per row.
//
// Rows are transformed with the real FFT, then each retained column with the
// complex FFT.
func periodogram(img *mat.Dense) []float64 {
	rows, cols := img.Dims()
	half := cols/2 + 1

	mean := mat.Sum(img) / float64(rows*cols)

	rowFFT := fourier.NewFFT(cols)
	spec := make([]complex128, rows*half)
	seq := make([]float64, cols)
	for i := 0; i < rows; i++ {
		for j, v := range img.RawRowView(i) {
			seq[j] = v - mean
		}
		rowFFT.Coefficients(spec[i*half:(i+1)*half], seq)
	}

	colFFT := fourier.NewCmplxFFT(rows)
	col := make([]complex128, rows)
	out := make([]complex128, rows)
	power := make([]float64, rows*half)
	norm := float64(rows * cols)
	for u := 0; u < half; u++ {
		for v := 0; v < rows; v++ {
			col[v] = spec[v*half+u]
		}
		colFFT.Coefficients(out, col)
		for v := 0; v < rows; v++ {
			a := cmplx.Abs(out[v])
			power[v*half+u] = a * a / norm
		}
	}

	return power
}
