// Package visualization renders collapsed images, cube frames, spectra and
// line fits to PNG files.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"

	"ifucube/pkg/calibration"
	"ifucube/pkg/cube"
	"ifucube/pkg/ifuerr"
)

// ImageOptions controls how pixel values are mapped to gray levels.
type ImageOptions struct {
	// Log applies a logarithmic stretch. Non-positive pixels render black.
	Log bool
}

// Viewer renders the spatial frames of an IFU cube.
type Viewer struct {
	cube *cube.Cube

	// dimensions of the cube
	frames int
	height int
	width  int
}

// NewViewer creates a viewer over c. Two-dimensional cubes have one frame.
func NewViewer(c *cube.Cube) (*Viewer, error) {
	frames, ny, nx, err := c.Dims3()
	if err != nil {
		return nil, err
	}
	return &Viewer{cube: c, frames: frames, height: ny, width: nx}, nil
}

// Frames returns the number of spectral frames.
func (v *Viewer) Frames() int { return v.frames }

// FrameImage returns frame i as a (y, x) matrix.
func (v *Viewer) FrameImage(i int) (*mat.Dense, error) {
	if i < 0 || i >= v.frames {
		return nil, fmt.Errorf("%w: frame %d exceeds %d frames", ifuerr.ErrOutOfRange, i, v.frames)
	}
	plane := v.height * v.width
	raw := append([]float64(nil), v.cube.Data()[i*plane:(i+1)*plane]...)
	return mat.NewDense(v.height, v.width, raw), nil
}

// SaveFrameSequence writes frames [Begin, End) of region, or every frame
// when region is nil, as frame_NNNN.png files under outputDir. It returns
// the written paths.
func (v *Viewer) SaveFrameSequence(outputDir string, region *calibration.Region, opts ImageOptions) ([]string, error) {
	begin, end, err := calibration.Resolve(region, v.frames)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, err
	}

	paths := make([]string, 0, end-begin)
	for i := begin; i < end; i++ {
		img, err := v.FrameImage(i)
		if err != nil {
			return nil, err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("frame_%04d.png", i))
		if err := SaveImage(img, filename, opts); err != nil {
			return nil, err
		}
		paths = append(paths, filename)
	}

	return paths, nil
}

// Render maps img onto 16-bit gray levels between its smallest and largest
// finite values. Row 0 of img is the top row of the image. Non-finite
// pixels render black.
func Render(img *mat.Dense, opts ImageOptions) *image.Gray16 {
	rows, cols := img.Dims()
	out := image.NewGray16(image.Rect(0, 0, cols, rows))

	transform := func(v float64) float64 { return v }
	if opts.Log {
		transform = func(v float64) float64 {
			if v <= 0 {
				return math.NaN()
			}
			return math.Log10(v)
		}
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for y := 0; y < rows; y++ {
		for _, v := range img.RawRowView(y) {
			t := transform(v)
			if math.IsNaN(t) || math.IsInf(t, 0) {
				continue
			}
			lo = math.Min(lo, t)
			hi = math.Max(hi, t)
		}
	}
	if math.IsInf(lo, 1) {
		return out
	}

	span := hi - lo
	for y := 0; y < rows; y++ {
		for x, v := range img.RawRowView(y) {
			t := transform(v)
			if math.IsNaN(t) || math.IsInf(t, 0) {
				continue
			}
			level := 1.0
			if span > 0 {
				level = (t - lo) / span
			}
			out.SetGray16(x, y, color.Gray16{Y: uint16(math.Round(level * 65535))})
		}
	}
	return out
}

// SaveImage renders img and writes it as a PNG file, creating parent
// directories as needed.
func SaveImage(img *mat.Dense, filename string, opts ImageOptions) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return err
	}
	file, err := os.Create(filename)
	if err != nil {
		return err
	}

	if err := png.Encode(file, Render(img, opts)); err != nil {
		file.Close()
		return fmt.Errorf("error encoding %s: %w", filename, err)
	}
	return file.Close()
}
