// Package fitsfile reads IFU cubes from FITS files and writes cubes or
// collapsed images back. Every HDU with a non-empty image becomes one cube.
package fitsfile

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/astrogo/fitsio"

	"ifucube/pkg/calibration"
	"ifucube/pkg/cube"
)

// spectralAxis is the 1-based FITS axis holding wavelength in an IFU cube
// (NAXIS1 = x, NAXIS2 = y, NAXIS3 = wavelength).
const spectralAxis = 3

// Dataset is the content of one FITS file.
type Dataset struct {
	// Name is the file base name without extension.
	Name string

	// Cubes holds one cube per non-empty image HDU, named Name+"<hdu index + 1>".
	Cubes []*cube.Cube

	// Calibrations holds the spectral solution of each cube, keyed by cube
	// name, when the header carries one.
	Calibrations map[string]calibration.Calibration
}

// Open reads the FITS file at path.
func Open(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening FITS file: %w", err)
	}
	defer f.Close()

	return Read(f, BaseName(path))
}

// BaseName returns the file name of path without directories or extension.
func BaseName(path string) string {
	base := filepath.Base(path)
	if i := strings.Index(base, "."); i > 0 {
		base = base[:i]
	}
	return base
}

// Read decodes every image HDU from r.
func Read(r io.Reader, name string) (*Dataset, error) {
	file, err := fitsio.Open(r)
	if err != nil {
		return nil, fmt.Errorf("error decoding FITS stream: %w", err)
	}
	defer file.Close()

	ds := &Dataset{Name: name, Calibrations: make(map[string]calibration.Calibration)}
	for i, hdu := range file.HDUs() {
		img, ok := hdu.(fitsio.Image)
		if !ok {
			continue
		}
		hdr := img.Header()
		axes := hdr.Axes()
		if len(axes) == 0 {
			continue
		}
		n := 1
		for _, a := range axes {
			n *= a
		}
		if n == 0 {
			continue
		}

		data, err := readPixels(img, n)
		if err != nil {
			return nil, fmt.Errorf("error reading HDU %d: %w", i, err)
		}
		applyScaling(hdr, data)

		// FITS lists the fastest axis first; cubes are [frames, y, x].
		shape := make([]int, len(axes))
		for k, a := range axes {
			shape[len(axes)-1-k] = a
		}
		cb, err := cube.FromData(fmt.Sprintf("%s%d", name, i+1), data, shape...)
		if err != nil {
			return nil, fmt.Errorf("error building cube from HDU %d: %w", i, err)
		}
		ds.Cubes = append(ds.Cubes, cb)

		if len(axes) >= spectralAxis {
			if cal, ok := calibration.FromHeader(headerFloat(hdr), spectralAxis); ok {
				ds.Calibrations[cb.Name()] = cal
			}
		}
	}
	return ds, nil
}

// Collection wraps the dataset in a cube.Collection keyed by its name.
func (d *Dataset) Collection() *cube.Collection {
	col := cube.NewCollection()
	col.Add(d.Name, d.Cubes...)
	return col
}

// readPixels decodes the n stored values of img into float64, whatever its
// BITPIX. fitsio only reads into slices whose element size matches BITPIX.
func readPixels(img fitsio.Image, n int) ([]float64, error) {
	switch bitpix := img.Header().Bitpix(); bitpix {
	case 8:
		raw := make([]uint8, n)
		if err := img.Read(&raw); err != nil {
			return nil, err
		}
		return toFloat64(raw), nil
	case 16:
		raw := make([]int16, n)
		if err := img.Read(&raw); err != nil {
			return nil, err
		}
		return toFloat64(raw), nil
	case 32:
		raw := make([]int32, n)
		if err := img.Read(&raw); err != nil {
			return nil, err
		}
		return toFloat64(raw), nil
	case 64:
		raw := make([]int64, n)
		if err := img.Read(&raw); err != nil {
			return nil, err
		}
		return toFloat64(raw), nil
	case -32:
		raw := make([]float32, n)
		if err := img.Read(&raw); err != nil {
			return nil, err
		}
		return toFloat64(raw), nil
	case -64:
		data := make([]float64, n)
		if err := img.Read(&data); err != nil {
			return nil, err
		}
		return data, nil
	default:
		return nil, fmt.Errorf("unsupported BITPIX %d", bitpix)
	}
}

func toFloat64[T uint8 | int16 | int32 | int64 | float32](raw []T) []float64 {
	data := make([]float64, len(raw))
	for i, v := range raw {
		data[i] = float64(v)
	}
	return data
}

// headerFloat adapts a FITS header to a numeric key lookup.
func headerFloat(hdr *fitsio.Header) func(string) (float64, bool) {
	return func(key string) (float64, bool) {
		card := hdr.Get(key)
		if card == nil {
			return 0, false
		}
		switch v := card.Value.(type) {
		case float64:
			return v, true
		case float32:
			return float64(v), true
		case int:
			return float64(v), true
		case int64:
			return float64(v), true
		case int32:
			return float64(v), true
		default:
			return 0, false
		}
	}
}

// applyScaling converts stored values to physical values with BSCALE and BZERO.
func applyScaling(hdr *fitsio.Header, data []float64) {
	get := headerFloat(hdr)
	scale, ok := get("BSCALE")
	if !ok {
		scale = 1
	}
	zero, _ := get("BZERO")
	if scale == 1 && zero == 0 {
		return
	}
	for i, v := range data {
		data[i] = v*scale + zero
	}
}
