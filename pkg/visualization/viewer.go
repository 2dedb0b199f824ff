// Package visualization renders simulated images as 8-bit grayscale rasters
// and provides the read-out and export operations of the interactive viewer.
package visualization

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"

	"golang.org/x/image/draw"
	"gonum.org/v1/gonum/mat"
)

// ErrNoImage is returned by viewer operations before any image is shown
var ErrNoImage = errors.New("visualization: no image loaded")

// PixelInfo is the hover read-out for one pixel
type PixelInfo struct {
	X, Y      int
	Intensity float64
}

// Viewer holds the currently displayed image. The display range is fixed to
// [0, 1] so successive images are directly comparable.
type Viewer struct {
	// img is the displayed image, values in [0, 1]
	img *mat.Dense

	// dimensions of the image
	width  int
	height int
}

// NewViewer creates a viewer showing img. img may be nil.
func NewViewer(img *mat.Dense) *Viewer {
	v := &Viewer{}
	v.Update(img)
	return v
}

// Update replaces the displayed image
func (v *Viewer) Update(img *mat.Dense) {
	v.img = img
	v.width, v.height = 0, 0
	if img != nil {
		v.height, v.width = img.Dims()
	}
}

// Image returns the displayed image
func (v *Viewer) Image() *mat.Dense {
	return v.img
}

// Gray renders the displayed image as an 8-bit raster
func (v *Viewer) Gray() (*image.Gray, error) {
	if v.img == nil {
		return nil, ErrNoImage
	}
	return ToGray(v.img), nil
}

// Probe returns the coordinate and intensity under the cursor at (x, y)
func (v *Viewer) Probe(x, y int) (PixelInfo, error) {
	if v.img == nil {
		return PixelInfo{}, ErrNoImage
	}
	if x < 0 || y < 0 || x >= v.width || y >= v.height {
		return PixelInfo{}, fmt.Errorf("position (%d, %d) outside %dx%d image", x, y, v.width, v.height)
	}
	return PixelInfo{X: x, Y: y, Intensity: v.img.At(y, x)}, nil
}

// Profile extracts a line profile through the image along the specified axis:
// "row" returns row index across all columns, "col" returns column index down
// all rows.
func (v *Viewer) Profile(axis string, index int) ([]float64, error) {
	if v.img == nil {
		return nil, ErrNoImage
	}
	if index < 0 {
		return nil, fmt.Errorf("index must be non-negative")
	}

	switch axis {
	case "row":
		if index >= v.height {
			return nil, fmt.Errorf("row %d exceeds height %d", index, v.height)
		}
		return mat.Row(nil, index, v.img), nil

	case "col":
		if index >= v.width {
			return nil, fmt.Errorf("column %d exceeds width %d", index, v.width)
		}
		return mat.Col(nil, index, v.img), nil

	default:
		return nil, fmt.Errorf("invalid axis: %s (must be row or col)", axis)
	}
}

// SavePNG writes the displayed image at native resolution
func (v *Viewer) SavePNG(filename string) error {
	gray, err := v.Gray()
	if err != nil {
		return err
	}
	return WritePNG(filename, gray)
}

// Export writes the displayed image resampled to width x height with bilinear
// interpolation. Zero or negative sizes keep the native resolution along that
// axis.
func (v *Viewer) Export(filename string, width, height int) error {
	gray, err := v.Gray()
	if err != nil {
		return err
	}
	return WritePNG(filename, Resample(gray, width, height))
}

// ToGray converts an image with values in [0, 1] to 8-bit gray using
// round(x*255). Values outside the display range are clipped.
func ToGray(img mat.Matrix) *image.Gray {
	rows, cols := img.Dims()
	gray := image.NewGray(image.Rect(0, 0, cols, rows))

	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			value := math.Max(0, math.Min(1, img.At(y, x)))
			gray.SetGray(x, y, color.Gray{Y: uint8(math.Round(value * 255))})
		}
	}

	return gray
}

// Resample scales src to width x height with bilinear interpolation. A
// non-positive size keeps the source size along that axis.
func Resample(src image.Image, width, height int) *image.Gray {
	bounds := src.Bounds()
	if width <= 0 {
		width = bounds.Dx()
	}
	if height <= 0 {
		height = bounds.Dy()
	}

	dst := image.NewGray(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, bounds, draw.Src, nil)
	return dst
}

// WritePNG encodes img as PNG into filename
func WritePNG(filename string, img image.Image) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create image file: %w", err)
	}

	if err := png.Encode(file, img); err != nil {
		file.Close()
		return fmt.Errorf("failed to encode image: %w", err)
	}

	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close image file: %w", err)
	}

	return nil
}
