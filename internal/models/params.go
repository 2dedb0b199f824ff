package models

import (
	"fmt"
	"strings"
)

// AcquisitionParams holds the X-ray tube settings used to derive photon fluence
type AcquisitionParams struct {
	// KVp is the peak tube voltage in kV
	KVp float64

	// MAs is the tube current-time product in mAs
	MAs float64
}

// PhantomKind selects the geometric phantom placed in the beam
type PhantomKind uint8

const (
	Cone PhantomKind = iota
	Sphere
)

// String returns the lowercase name used by flags and config files
func (k PhantomKind) String() string {
	switch k {
	case Cone:
		return "cone"
	case Sphere:
		return "sphere"
	default:
		return fmt.Sprintf("PhantomKind(%d)", uint8(k))
	}
}

// ParsePhantomKind maps a name to a PhantomKind. Matching is case-insensitive.
func ParsePhantomKind(text string) (PhantomKind, error) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "cone":
		return Cone, nil
	case "sphere":
		return Sphere, nil
	default:
		return 0, fmt.Errorf("invalid phantom kind: %q", text)
	}
}

func (k PhantomKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *PhantomKind) UnmarshalText(text []byte) error {
	kind, err := ParsePhantomKind(string(text))
	if err != nil {
		return err
	}
	*k = kind
	return nil
}

// Offset is a pixel displacement of the phantom within the canvas
type Offset struct {
	DX int
	DY int
}

// PhantomSpec describes where and how large the phantom is drawn.
//
// The scaled extent plus the offset may exceed the canvas; the phantom is then
// clipped to the canvas bounds.
type PhantomSpec struct {
	Kind PhantomKind

	// CanvasHeight and CanvasWidth are the output dimensions in pixels
	CanvasHeight int
	CanvasWidth  int

	// Scale is the phantom size as a fraction of the canvas, in (0, 1]
	Scale float64

	Offset Offset
}
