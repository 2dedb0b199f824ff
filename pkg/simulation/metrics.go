package simulation

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ImageMetrics summarizes the quality of a simulated image
type ImageMetrics struct {
	Mean   float64
	StdDev float64
	Min    float64
	Max    float64

	// SNR is Mean / StdDev over the whole image
	SNR float64

	// Entropy is the Shannon entropy (bits) of a 256-bin intensity histogram
	Entropy float64

	// CNR is the contrast-to-noise ratio between the phantom and the
	// background: |mean(phantom) - mean(background)| / std(background).
	// It is zero when either region is empty or the background is flat.
	CNR float64
}

// Analyze computes ImageMetrics for img. thickness, when non-nil, marks the
// phantom region (thickness > 0) for the CNR.
func Analyze(img, thickness *mat.Dense) ImageMetrics {
	data := values(img)

	var m ImageMetrics
	if len(data) == 0 {
		return m
	}

	m.Mean, m.StdDev = stat.MeanStdDev(data, nil)
	m.Min = floats.Min(data)
	m.Max = floats.Max(data)
	if m.StdDev > 0 {
		m.SNR = m.Mean / m.StdDev
	}
	m.Entropy = entropy(data, m.Min, m.Max)

	if thickness != nil {
		m.CNR = contrastToNoise(data, values(thickness))
	}

	return m
}

// contrastToNoise splits pixels by the phantom mask
func contrastToNoise(data, mask []float64) float64 {
	if len(mask) != len(data) {
		return 0
	}

	var inside, outside []float64
	for i, v := range data {
		if mask[i] > 0 {
			inside = append(inside, v)
		} else {
			outside = append(outside, v)
		}
	}
	if len(inside) == 0 || len(outside) < 2 {
		return 0
	}

	meanIn := stat.Mean(inside, nil)
	meanOut, stdOut := stat.MeanStdDev(outside, nil)
	if stdOut == 0 {
		return 0
	}

	return math.Abs(meanIn-meanOut) / stdOut
}

// entropy computes the Shannon entropy of data over a 256-bin histogram
// spanning [min, max]
func entropy(data []float64, min, max float64) float64 {
	// If all values are the same, entropy is 0
	if max <= min {
		return 0
	}

	const numBins = 256
	hist := make([]float64, numBins)
	binWidth := (max - min) / numBins

	for _, v := range data {
		binIdx := int((v - min) / binWidth)
		if binIdx >= numBins {
			binIdx = numBins - 1
		} else if binIdx < 0 {
			binIdx = 0
		}
		hist[binIdx]++
	}

	n := float64(len(data))
	h := 0.0
	for _, count := range hist {
		if count > 0 {
			p := count / n
			h -= p * math.Log2(p)
		}
	}

	return h
}

// values flattens m in row-major order
func values(m *mat.Dense) []float64 {
	if m == nil || m.IsEmpty() {
		return nil
	}
	rows, cols := m.Dims()
	out := make([]float64, 0, rows*cols)
	for i := 0; i < rows; i++ {
		out = append(out, m.RawRowView(i)...)
	}
	return out
}
