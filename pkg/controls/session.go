package controls

import (
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/exp/rand"

	"xraysim/internal/models"
	"xraysim/pkg/simulation"
	"xraysim/pkg/visualization"
)

// Session ties a panel to a simulator and a viewer. Every change re-runs the
// simulation synchronously and refreshes the viewer.
//
// The session owns its random source for its whole lifetime, so the noise of a
// render depends on how many renders came before it. A Session is not safe for
// concurrent use.
type Session struct {
	Panel  *Panel
	Viewer *visualization.Viewer

	width, height int
	sim           *simulation.Simulator
	src           rand.Source
	log           *zap.Logger
}

// NewSession creates a session for a width x height canvas and renders the
// initial image.
func NewSession(width, height int, src rand.Source, log *zap.Logger) (*Session, error) {
	if log == nil {
		log = zap.NewNop()
	}

	s := &Session{
		Panel:  DefaultPanel(width, height),
		Viewer: visualization.NewViewer(nil),
		width:  width,
		height: height,
		sim:    simulation.NewSimulator(log),
		src:    src,
		log:    log,
	}

	if err := s.Render(); err != nil {
		return nil, err
	}
	return s, nil
}

// Set changes one control and re-renders. On a failed render the viewer keeps
// the previous image.
func (s *Session) Set(name string, v float64) error {
	snapped, err := s.Panel.Set(name, v)
	if err != nil {
		return err
	}
	s.log.Debug("control changed", zap.String("control", name), zap.Float64("value", snapped))
	return s.Render()
}

// SetKind switches the phantom and re-renders
func (s *Session) SetKind(kind models.PhantomKind) error {
	s.Panel.SetKind(kind)
	return s.Render()
}

// Render runs the simulation for the current control values
func (s *Session) Render() error {
	res, err := s.sim.Run(s.Panel.Params(s.width, s.height), s.src)
	if err != nil {
		return fmt.Errorf("render failed: %w", err)
	}
	s.Viewer.Update(res.Image)
	return nil
}

// Probe returns the hover read-out at (x, y)
func (s *Session) Probe(x, y int) (visualization.PixelInfo, error) {
	return s.Viewer.Probe(x, y)
}

// Save exports the displayed image. Non-positive sizes keep the native
// resolution; otherwise the image is resampled bilinearly.
func (s *Session) Save(path string, width, height int) error {
	if err := s.Viewer.Export(path, width, height); err != nil {
		return err
	}
	s.log.Info("image saved", zap.String("path", path))
	return nil
}
