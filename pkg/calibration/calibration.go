// Package calibration converts between spectral frame indices and physical
// wavelengths using a linear (CRPIX, CRVAL, CDELT) solution.
package calibration

import (
	"fmt"
	"math"

	"ifucube/pkg/ifuerr"
)

// Calibration is the linear spectral solution of a cube.
type Calibration struct {
	// CRPix is the reference frame index (0-based).
	CRPix float64 `yaml:"crpix"`

	// CRVal is the wavelength at the reference frame.
	CRVal float64 `yaml:"crval"`

	// CDelt is the wavelength increment per frame. Must be non-zero for the
	// inverse mapping.
	CDelt float64 `yaml:"cdelt"`
}

// Identity maps frame i to wavelength i.
var Identity = Calibration{CRPix: 0, CRVal: 0, CDelt: 1}

// Validate reports whether c can be inverted.
func (c Calibration) Validate() error {
	if c.CDelt == 0 {
		return fmt.Errorf("%w: calibration delta is zero", ifuerr.ErrDivisionByZero)
	}
	if math.IsNaN(c.CRPix) || math.IsNaN(c.CRVal) || math.IsNaN(c.CDelt) {
		return fmt.Errorf("%w: calibration contains NaN", ifuerr.ErrInvalidArgument)
	}
	return nil
}

// FrameToWavelength returns the wavelength of frame.
func (c Calibration) FrameToWavelength(frame float64) float64 {
	return (frame-c.CRPix)*c.CDelt + c.CRVal
}

// Wavelengths maps every frame in frames to its wavelength.
func (c Calibration) Wavelengths(frames []float64) []float64 {
	out := make([]float64, len(frames))
	for i, f := range frames {
		out[i] = c.FrameToWavelength(f)
	}
	return out
}

// WavelengthToFrame returns the frame nearest to wavelength. Halfway values
// round to even.
func (c Calibration) WavelengthToFrame(wavelength float64) (int, error) {
	if c.CDelt == 0 {
		return 0, fmt.Errorf("%w: calibration delta is zero", ifuerr.ErrDivisionByZero)
	}
	frame := c.CRPix + (wavelength-c.CRVal)/c.CDelt
	if math.IsNaN(frame) || math.IsInf(frame, 0) {
		return 0, fmt.Errorf("%w: wavelength %g maps to a non-finite frame", ifuerr.ErrOutOfRange, wavelength)
	}
	return int(math.RoundToEven(frame)), nil
}

// FromHeader builds a calibration for the given 1-based axis from FITS WCS
// keys. CRPIXn is 1-based in FITS and is converted to a 0-based frame. When
// CDELTn is absent the CDn_n matrix term is used. The boolean is false when
// no usable delta is present.
func FromHeader(get func(key string) (float64, bool), axis int) (Calibration, bool) {
	delt, ok := get(fmt.Sprintf("CDELT%d", axis))
	if !ok || delt == 0 {
		delt, ok = get(fmt.Sprintf("CD%d_%d", axis, axis))
	}
	if !ok || delt == 0 {
		return Calibration{}, false
	}

	cal := Calibration{CDelt: delt}
	if pix, ok := get(fmt.Sprintf("CRPIX%d", axis)); ok {
		cal.CRPix = pix - 1
	}
	if val, ok := get(fmt.Sprintf("CRVAL%d", axis)); ok {
		cal.CRVal = val
	}
	return cal, true
}
