package config

import (
	"fmt"

	"ifucube/pkg/calibration"
	"ifucube/pkg/collapse"
	"ifucube/pkg/ifuerr"
	"ifucube/pkg/linefit"
)

// CollapseOptions converts the collapse section.
func (c *Config) CollapseOptions() (collapse.Options, error) {
	method, err := collapse.ParseMethod(c.Collapse.Method)
	if err != nil {
		return collapse.Options{}, err
	}
	region, err := toRegion(c.Collapse.Region)
	if err != nil {
		return collapse.Options{}, fmt.Errorf("collapse region: %w", err)
	}
	if c.Collapse.Sigma < 0 {
		return collapse.Options{}, fmt.Errorf("%w: negative clipping sigma %g", ifuerr.ErrInvalidArgument, c.Collapse.Sigma)
	}
	opts := collapse.Options{Method: method, Region: region}
	if c.Collapse.Sigma != 0 {
		opts.Clip = &collapse.SigmaClip{Sigma: c.Collapse.Sigma, MaxIters: c.Collapse.MaxIters}
	}
	return opts, nil
}

// ExtractionRegion converts the extraction frame range.
func (c *Config) ExtractionRegion() (*calibration.Region, error) {
	region, err := toRegion(c.Extraction.Region)
	if err != nil {
		return nil, fmt.Errorf("extraction region: %w", err)
	}
	return region, nil
}

// LineFitOptions converts the line fit section.
func (c *Config) LineFitOptions() (linefit.Options, error) {
	cont, err := linefit.ParseContinuum(c.LineFit.Continuum)
	if err != nil {
		return linefit.Options{}, err
	}
	return linefit.Options{
		Continuum:     cont,
		Degree:        c.LineFit.Degree,
		WidthSeed:     c.LineFit.WidthSeed,
		MaxIterations: c.LineFit.MaxIterations,
	}, nil
}

// LineWindow returns the configured line window. The boolean is false when
// no window is configured.
func (c *Config) LineWindow() ([2]float64, bool, error) {
	switch len(c.LineFit.Window) {
	case 0:
		return [2]float64{}, false, nil
	case 2:
		w := [2]float64{c.LineFit.Window[0], c.LineFit.Window[1]}
		if !(w[0] < w[1]) {
			return w, false, fmt.Errorf("%w: line window %v is empty", ifuerr.ErrInvalidArgument, c.LineFit.Window)
		}
		return w, true, nil
	default:
		return [2]float64{}, false, fmt.Errorf("%w: line window needs two wavelengths, got %d", ifuerr.ErrInvalidArgument, len(c.LineFit.Window))
	}
}

func toRegion(bounds []int) (*calibration.Region, error) {
	switch len(bounds) {
	case 0:
		return nil, nil
	case 2:
		if bounds[0] >= bounds[1] {
			return nil, fmt.Errorf("%w: region %v is empty", ifuerr.ErrInvalidArgument, bounds)
		}
		return calibration.NewRegion(bounds[0], bounds[1]), nil
	default:
		return nil, fmt.Errorf("%w: region needs two bounds, got %d", ifuerr.ErrInvalidArgument, len(bounds))
	}
}
