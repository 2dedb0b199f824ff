// Package simulation composes the image-formation pipeline: fluence, phantom
// thickness, Beer-Lambert attenuation and detector noise.
package simulation

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"

	"xraysim/internal/models"
	"xraysim/pkg/noise"
	"xraysim/pkg/phantom"
	"xraysim/pkg/physics"
)

// ErrInvalidCanvas is returned for non-positive canvas dimensions
var ErrInvalidCanvas = errors.New("simulation: canvas dimensions must be positive")

// Params holds everything one simulation run needs apart from the random
// source.
type Params struct {
	// KVp and MAs are the tube settings. They are only used when Photons is nil.
	KVp float64
	MAs float64

	// Height and Width are the canvas size in pixels
	Height int
	Width  int

	// Scale is the phantom size as a fraction of the canvas, in (0, 1]
	Scale float64

	// Offset moves the phantom within the canvas
	Offset models.Offset

	// Photons, when set, overrides the fluence model with a fixed number of
	// photons per pixel
	Photons *float64

	// Sigma is the standard deviation of the additive system noise
	Sigma float64

	Kind models.PhantomKind
}

// DefaultParams returns the defaults of the desktop tool: a full-size cone on
// a 512x512 canvas at 80 kVp and 10 mAs.
func DefaultParams() Params {
	return Params{
		KVp:    80,
		MAs:    10,
		Height: 512,
		Width:  512,
		Scale:  1.0,
		Sigma:  noise.DefaultSigma,
		Kind:   models.Cone,
	}
}

// Acquisition returns the tube settings of p
func (p Params) Acquisition() models.AcquisitionParams {
	return models.AcquisitionParams{KVp: p.KVp, MAs: p.MAs}
}

// PhantomSpec returns the phantom placement described by p
func (p Params) PhantomSpec() models.PhantomSpec {
	return models.PhantomSpec{
		Kind:         p.Kind,
		CanvasHeight: p.Height,
		CanvasWidth:  p.Width,
		Scale:        p.Scale,
		Offset:       p.Offset,
	}
}

// PhotonsPerPixel returns the override if present, otherwise the fluence model
// evaluated at the tube settings.
func (p Params) PhotonsPerPixel() float64 {
	if p.Photons != nil {
		return *p.Photons
	}
	return physics.Fluence(p.KVp, p.MAs)
}

// Result carries the final image together with the intermediate maps
type Result struct {
	// Image is the final noisy image, every value in [0, 1]
	Image *mat.Dense

	// Thickness is the phantom thickness map in mm
	Thickness *mat.Dense

	// Primary is the noise-free transmitted signal normalized to unit peak
	Primary *mat.Dense

	// Photons is the fluence used, in photons per pixel
	Photons float64
}

// Simulator runs the pipeline and reports its stages to a logger
type Simulator struct {
	log *zap.Logger
}

// NewSimulator creates a simulator. A nil logger discards all output.
func NewSimulator(log *zap.Logger) *Simulator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Simulator{log: log}
}

// Run executes the full pipeline for p, drawing noise from src.
//
// The source is the only state carried between calls. Reusing it across runs
// makes the noise depend on the order of the runs.
func (s *Simulator) Run(p Params, src rand.Source) (*Result, error) {
	if p.Height <= 0 || p.Width <= 0 {
		return nil, fmt.Errorf("%w: got %dx%d", ErrInvalidCanvas, p.Width, p.Height)
	}
	if src == nil {
		return nil, noise.ErrNilSource
	}

	// Step 1: photon fluence
	photons := p.PhotonsPerPixel()
	s.log.Debug("fluence",
		zap.Float64("kvp", p.KVp),
		zap.Float64("mas", p.MAs),
		zap.Bool("override", p.Photons != nil),
		zap.Float64("photons_per_pixel", photons))

	// Step 2: phantom thickness map
	thickness := phantom.ThicknessMap(p.PhantomSpec())
	s.log.Debug("thickness map",
		zap.Stringer("phantom", p.Kind),
		zap.Int("height", p.Height),
		zap.Int("width", p.Width),
		zap.Float64("scale", p.Scale),
		zap.Int("dx", p.Offset.DX),
		zap.Int("dy", p.Offset.DY),
		zap.Float64("max_mm", mat.Max(thickness)))

	// Step 3: Beer-Lambert attenuation, normalized to unit peak
	primary, err := physics.Attenuate(thickness, photons)
	if err != nil {
		return nil, fmt.Errorf("attenuation: %w", err)
	}
	s.log.Debug("attenuation", zap.Float64("min_transmission", mat.Min(primary)))

	// Step 4: quantum then system noise
	img, err := noise.Apply(primary, photons, p.Sigma, src)
	if err != nil {
		return nil, err
	}
	s.log.Debug("noise", zap.Float64("sigma", p.Sigma))

	return &Result{
		Image:     img,
		Thickness: thickness,
		Primary:   primary,
		Photons:   photons,
	}, nil
}

// Simulate runs the pipeline without logging and returns only the final image.
// This is the entry point shared by the command-line tool and the interactive
// controls.
func Simulate(p Params, src rand.Source) (*mat.Dense, error) {
	res, err := NewSimulator(nil).Run(p, src)
	if err != nil {
		return nil, err
	}
	return res.Image, nil
}
