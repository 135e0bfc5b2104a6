package fitsfile

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/astrogo/fitsio"
	"gonum.org/v1/gonum/mat"

	"ifucube/pkg/calibration"
	"ifucube/pkg/cube"
)

// Write encodes cubes as consecutive 64-bit float image HDUs. The first cube
// becomes the primary HDU. A non-nil calibration is stored as the spectral
// WCS keys of every cube with three axes.
func Write(w io.Writer, cal *calibration.Calibration, cubes ...*cube.Cube) error {
	if len(cubes) == 0 {
		return fmt.Errorf("no cubes to write")
	}
	f, err := fitsio.Create(w)
	if err != nil {
		return fmt.Errorf("error creating FITS stream: %w", err)
	}

	for _, c := range cubes {
		if err := writeCube(f, cal, c); err != nil {
			f.Close()
			return err
		}
	}
	return f.Close()
}

func writeCube(f *fitsio.File, cal *calibration.Calibration, c *cube.Cube) error {
	shape := c.Shape()
	axes := make([]int, len(shape))
	for k, d := range shape {
		axes[len(shape)-1-k] = d
	}

	img := fitsio.NewImage(-64, axes)
	defer img.Close()

	cards := []fitsio.Card{{Name: "OBJECT", Value: c.Name()}}
	if cal != nil && len(shape) == 3 {
		cards = append(cards,
			fitsio.Card{Name: "CRPIX3", Value: cal.CRPix + 1, Comment: "reference frame (1-based)"},
			fitsio.Card{Name: "CRVAL3", Value: cal.CRVal, Comment: "wavelength at reference frame"},
			fitsio.Card{Name: "CDELT3", Value: cal.CDelt, Comment: "wavelength per frame"},
		)
	}
	if err := img.Header().Append(cards...); err != nil {
		return fmt.Errorf("error writing header of %s: %w", c.Name(), err)
	}
	if err := img.Write(append([]float64(nil), c.Data()...)); err != nil {
		return fmt.Errorf("error writing data of %s: %w", c.Name(), err)
	}
	if err := f.Write(img); err != nil {
		return fmt.Errorf("error writing HDU %s: %w", c.Name(), err)
	}
	return nil
}

// SaveImage writes a collapsed (y, x) image to a single-HDU FITS file.
func SaveImage(path, name string, img *mat.Dense) error {
	r, c := img.Dims()
	raw := make([]float64, 0, r*c)
	for y := 0; y < r; y++ {
		raw = append(raw, img.RawRowView(y)...)
	}
	cb, err := cube.FromData(name, raw, r, c)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("error creating output directory: %w", err)
	}
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating FITS file: %w", err)
	}
	if err := Write(out, nil, cb); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
