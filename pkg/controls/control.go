// Package controls models the interactive front end without a widget toolkit:
// bounded, step-quantized parameter controls and a session that re-runs the
// simulation whenever a control changes.
package controls

import (
	"fmt"
	"math"
	"sort"

	"xraysim/internal/models"
	"xraysim/pkg/simulation"
)

// Control names used by DefaultPanel
const (
	KVp     = "kvp"
	MAs     = "mas"
	Scale   = "scale"
	OffsetX = "offset_x"
	OffsetY = "offset_y"
	Photons = "photons"
	Sigma   = "sigma"
)

// Control is one bounded parameter, quantized to Step
type Control struct {
	Name    string
	Label   string
	Unit    string
	Min     float64
	Max     float64
	Step    float64
	Default float64
}

// Snap rounds v to the nearest multiple of Step and clamps it to [Min, Max]
func (c Control) Snap(v float64) float64 {
	if c.Step > 0 {
		v = math.Round(v/c.Step) * c.Step
		// Trim the representation error of the multiplication
		v = roundTo(v, decimals(c.Step))
	}
	return math.Max(c.Min, math.Min(c.Max, v))
}

// decimals returns the number of decimal places needed to represent step
func decimals(step float64) int {
	n := 0
	for n < 12 && math.Abs(step-math.Round(step)) > 1e-9 {
		step *= 10
		n++
	}
	return n
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// Panel is the set of controls and their current values
type Panel struct {
	controls map[string]Control
	values   map[string]float64
	kind     models.PhantomKind
}

// DefaultPanel returns the controls of the desktop tool for a canvas of the
// given size.
func DefaultPanel(width, height int) *Panel {
	return NewPanel(
		Control{Name: KVp, Label: "kVp", Unit: "kV", Min: 40, Max: 120, Step: 1, Default: 80},
		Control{Name: MAs, Label: "mAs", Unit: "mAs", Min: 1, Max: 20, Step: 0.1, Default: 10},
		Control{Name: Scale, Label: "Cone scale", Min: 0.1, Max: 1.0, Step: 0.05, Default: 0.5},
		Control{Name: OffsetX, Label: "Offset X", Unit: "px", Min: 0, Max: float64(width), Step: 1, Default: 100},
		Control{Name: OffsetY, Label: "Offset Y", Unit: "px", Min: 0, Max: float64(height), Step: 1, Default: 150},
		Control{Name: Photons, Label: "Photons/pixel", Min: 1e3, Max: 1e7, Step: 1e3, Default: 1e6},
		Control{Name: Sigma, Label: "System sigma", Min: 0, Max: 0.05, Step: 0.001, Default: 0.02},
	)
}

// NewPanel creates a panel with every control at its default
func NewPanel(controls ...Control) *Panel {
	p := &Panel{
		controls: make(map[string]Control, len(controls)),
		values:   make(map[string]float64, len(controls)),
	}
	for _, c := range controls {
		p.controls[c.Name] = c
		p.values[c.Name] = c.Snap(c.Default)
	}
	return p
}

// Names lists the controls in alphabetical order
func (p *Panel) Names() []string {
	names := make([]string, 0, len(p.controls))
	for name := range p.controls {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Control returns the definition of name
func (p *Panel) Control(name string) (Control, bool) {
	c, ok := p.controls[name]
	return c, ok
}

// Value returns the current value of name, or 0 for unknown controls
func (p *Panel) Value(name string) float64 {
	return p.values[name]
}

// Set snaps v to the control's grid and stores it, returning the stored value
func (p *Panel) Set(name string, v float64) (float64, error) {
	c, ok := p.controls[name]
	if !ok {
		return 0, fmt.Errorf("unknown control: %q", name)
	}
	if math.IsNaN(v) {
		return 0, fmt.Errorf("control %q: value is NaN", name)
	}
	snapped := c.Snap(v)
	p.values[name] = snapped
	return snapped, nil
}

// SetKind selects the phantom kind
func (p *Panel) SetKind(kind models.PhantomKind) {
	p.kind = kind
}

// Params builds simulation parameters for a canvas of the given size from the
// current values. The photons control always overrides the fluence model, as
// in the desktop tool.
func (p *Panel) Params(width, height int) simulation.Params {
	params := simulation.DefaultParams()
	params.Width = width
	params.Height = height
	params.Kind = p.kind

	if v, ok := p.values[KVp]; ok {
		params.KVp = v
	}
	if v, ok := p.values[MAs]; ok {
		params.MAs = v
	}
	if v, ok := p.values[Scale]; ok {
		params.Scale = v
	}
	if v, ok := p.values[OffsetX]; ok {
		params.Offset.DX = int(v)
	}
	if v, ok := p.values[OffsetY]; ok {
		params.Offset.DY = int(v)
	}
	if v, ok := p.values[Photons]; ok {
		photons := v
		params.Photons = &photons
	}
	if v, ok := p.values[Sigma]; ok {
		params.Sigma = v
	}

	return params
}
