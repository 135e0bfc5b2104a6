package models

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"ifucube/pkg/calibration"
	"ifucube/pkg/linefit"
	"ifucube/pkg/spectrum"
)

// ImageStats summarizes the finite pixels of a collapsed image
type ImageStats struct {
	Min, Max, Mean float64

	// Finite is the number of pixels that entered the statistics
	Finite int
}

// NewImageStats computes the statistics of img, ignoring NaN and Inf pixels
func NewImageStats(img *mat.Dense) ImageStats {
	rows, _ := img.Dims()
	var finite []float64
	for y := 0; y < rows; y++ {
		for _, v := range img.RawRowView(y) {
			if !math.IsNaN(v) && !math.IsInf(v, 0) {
				finite = append(finite, v)
			}
		}
	}
	if len(finite) == 0 {
		return ImageStats{Min: math.NaN(), Max: math.NaN(), Mean: math.NaN()}
	}

	s := ImageStats{Min: finite[0], Max: finite[0], Finite: len(finite)}
	for _, v := range finite[1:] {
		s.Min = math.Min(s.Min, v)
		s.Max = math.Max(s.Max, v)
	}
	s.Mean = stat.Mean(finite, nil)
	return s
}

// CubeReport describes what a pipeline run did with one cube
type CubeReport struct {
	// Name is the cube name, e.g. "target1"
	Name string

	// Shape is the cube shape as [frames, y, x]
	Shape []int

	// Calibration is the spectral solution used for this cube
	Calibration calibration.Calibration

	// Image summarizes the collapsed image
	Image ImageStats

	// Spectrum holds the extracted spectra, or nil when no spaxels were requested
	Spectrum *spectrum.Spectrum

	// Line holds the measured line, or nil when no window was configured or
	// the fit failed
	Line *linefit.Result

	// LineError explains a failed line measurement
	LineError string

	// Skipped explains why the cube was not processed; empty otherwise
	Skipped string

	// Outputs lists the files written for this cube
	Outputs []string
}

// Report is the outcome of one pipeline run
type Report struct {
	// RunID identifies the run in logs and output metadata
	RunID uuid.UUID

	// Started is when the run began
	Started time.Time

	// Duration is the wall time of the run
	Duration time.Duration

	// Cubes holds one entry per cube, sorted by name
	Cubes []CubeReport
}

// SortCubes orders the cube reports by name
func (r *Report) SortCubes() {
	sort.Slice(r.Cubes, func(i, j int) bool { return r.Cubes[i].Name < r.Cubes[j].Name })
}

// Cube returns the report of the named cube
func (r *Report) Cube(name string) (CubeReport, bool) {
	for _, c := range r.Cubes {
		if c.Name == name {
			return c, true
		}
	}
	return CubeReport{}, false
}
