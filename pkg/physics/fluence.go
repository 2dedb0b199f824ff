// Package physics holds the toy X-ray physics of the simulator: the air-kerma
// fluence model and Beer-Lambert attenuation.
package physics

// K calibrates Fluence so that typical settings give on the order of 1e6
// photons per pixel.
const K = 120.0

// Fluence returns photons per pixel for the given tube voltage (kVp) and
// current-time product (mAs), using the coarse model K * kVp^2 * mAs.
//
// Inputs are not range checked; zero or negative values propagate into a zero
// or negative fluence.
func Fluence(kvp, mas float64) float64 {
	return K * kvp * kvp * mas
}
