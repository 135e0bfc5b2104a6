// Package spectrum extracts calibrated spectra of individual spaxels from an
// IFU cube.
package spectrum

import (
	"fmt"
	"log/slog"

	"gonum.org/v1/gonum/mat"

	"ifucube/internal/logging"
	"ifucube/pkg/calibration"
	"ifucube/pkg/cube"
	"ifucube/pkg/ifuerr"
	"ifucube/pkg/polyfit"
)

// Options controls an extraction.
type Options struct {
	// Region limits extraction to frames [Begin, End); nil extracts every frame.
	Region *calibration.Region

	// RemoveContinuum subtracts a straight-line fit of flux against
	// wavelength from every series. It is a local linear detrend, not a
	// physical continuum model.
	RemoveContinuum bool

	// Logger receives progress records. Nil discards them.
	Logger *slog.Logger
}

// Spectrum holds the extracted series of every requested spaxel over a
// common frame range.
type Spectrum struct {
	// Wavelength holds the calibrated wavelength of every sample.
	Wavelength []float64

	// Frame holds the cube frame index of every sample.
	Frame []float64

	// Flux holds one series per spaxel, in the order of Spaxels.
	Flux [][]float64

	// Spaxels lists the extracted positions.
	Spaxels []Spaxel

	// ContinuumRemoved reports whether a linear continuum was subtracted.
	ContinuumRemoved bool
}

// Len returns the number of samples per series.
func (s *Spectrum) Len() int { return len(s.Wavelength) }

// Rows returns a 3 x n matrix: wavelength, frame and the flux of spaxel i.
func (s *Spectrum) Rows(i int) (*mat.Dense, error) {
	if i < 0 || i >= len(s.Flux) {
		return nil, fmt.Errorf("%w: spaxel %d of %d", ifuerr.ErrOutOfRange, i, len(s.Flux))
	}
	n := s.Len()
	out := mat.NewDense(3, n, nil)
	out.SetRow(0, s.Wavelength)
	out.SetRow(1, s.Frame)
	out.SetRow(2, s.Flux[i])
	return out, nil
}

// Extract slices the spectrum of every spaxel out of c, which must be
// shaped [frames, y, x]. Without a region every frame is extracted.
func Extract(c *cube.Cube, spaxels Spaxels, calib calibration.Calibration, opts Options) (*Spectrum, error) {
	if c.NDim() != 3 {
		return nil, fmt.Errorf("%w: extraction needs a [frames, y, x] cube, %s has shape %v", ifuerr.ErrShapeMismatch, c.Name(), c.Shape())
	}
	if spaxels.Len() == 0 {
		return nil, fmt.Errorf("%w: no spaxels to extract", ifuerr.ErrInvalidArgument)
	}
	frames, ny, nx, err := c.Dims3()
	if err != nil {
		return nil, err
	}
	begin, end, err := calibration.Resolve(opts.Region, frames)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", c.Name(), err)
	}
	for _, sp := range spaxels.list {
		if sp.X < 0 || sp.X >= nx || sp.Y < 0 || sp.Y >= ny {
			return nil, fmt.Errorf("%w: spaxel %v outside %dx%d field", ifuerr.ErrOutOfRange, sp, nx, ny)
		}
	}

	log := logging.OrDiscard(opts.Logger)
	log.Debug("extracting spectra", "cube", c.Name(), "spaxels", spaxels.Len(), "begin", begin, "end", end)

	n := end - begin
	spec := &Spectrum{
		Frame:   make([]float64, n),
		Flux:    make([][]float64, spaxels.Len()),
		Spaxels: spaxels.List(),
	}
	for i := range spec.Frame {
		spec.Frame[i] = float64(begin + i)
	}
	spec.Wavelength = calib.Wavelengths(spec.Frame)

	data := c.Data()
	plane := ny * nx
	for k, sp := range spaxels.list {
		series := make([]float64, n)
		for i := 0; i < n; i++ {
			series[i] = data[(begin+i)*plane+sp.Y*nx+sp.X]
		}
		spec.Flux[k] = series
	}

	if opts.RemoveContinuum {
		for k, series := range spec.Flux {
			detrended, line, err := polyfit.Subtract(spec.Wavelength, series, 1)
			if err != nil {
				return nil, fmt.Errorf("continuum of spaxel %v: %w", spec.Spaxels[k], err)
			}
			log.Debug("removed linear continuum", "spaxel", spec.Spaxels[k].String(), "coeffs", line.Coeffs)
			spec.Flux[k] = detrended
		}
		spec.ContinuumRemoved = true
	}
	return spec, nil
}
