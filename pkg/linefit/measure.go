// Package linefit measures a spectral line by fitting a single Gaussian
// profile to a window of an extracted spectrum.
package linefit

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/maorshutman/lm"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"ifucube/internal/logging"
	"ifucube/pkg/ifuerr"
	"ifucube/pkg/polyfit"
)

const (
	// DefaultWidthSeed is the initial Gaussian width, in wavelength units.
	DefaultWidthSeed = 3.0

	// DefaultMaxIterations is the Levenberg-Marquardt iteration budget.
	DefaultMaxIterations = 200

	// minSamples is the number of free Gaussian parameters.
	minSamples = 3
)

// Options controls a line measurement.
type Options struct {
	// Continuum selects the polynomial subtracted before fitting.
	Continuum Continuum

	// Degree is the polynomial degree used by PolyN.
	Degree int

	// WidthSeed is the initial standard deviation. Zero means
	// DefaultWidthSeed. The seed is clamped to a quarter of the window span.
	WidthSeed float64

	// MaxIterations bounds the optimizer. Zero means DefaultMaxIterations.
	MaxIterations int

	// Logger receives the fitted parameters. Nil discards them.
	Logger *slog.Logger
}

// Params are the parameters of a Gaussian A*exp(-(x-Center)^2 / (2*StdDev^2)).
type Params struct {
	Amplitude float64 `json:"amplitude" yaml:"amplitude"`
	Center    float64 `json:"center" yaml:"center"`
	StdDev    float64 `json:"stddev" yaml:"stddev"`
}

// FWHM returns the full width at half maximum.
func (p Params) FWHM() float64 {
	return 2 * math.Sqrt(2*math.Ln2) * p.StdDev
}

// Eval evaluates the Gaussian at x.
func (p Params) Eval(x float64) float64 {
	return gaussian(x, p.Amplitude, p.Center, p.StdDev)
}

// Result is a measured line.
type Result struct {
	// Wavelength and Flux hold the windowed spectrum. Flux is
	// continuum-subtracted when a continuum was requested.
	Wavelength []float64
	Flux       []float64

	// Frame holds the windowed frame indices when frames were supplied.
	Frame []float64

	// Continuum holds the subtracted polynomial evaluated at Wavelength, or
	// nil when none was removed.
	Continuum []float64

	// Params holds the fitted Gaussian.
	Params Params

	// Initial holds the starting guess of the successful fit.
	Initial Params
}

// Rows returns a 2 x n matrix of windowed wavelength and flux.
func (r *Result) Rows() *mat.Dense {
	out := mat.NewDense(2, len(r.Wavelength), nil)
	out.SetRow(0, r.Wavelength)
	out.SetRow(1, r.Flux)
	return out
}

// Model evaluates the fitted Gaussian at every windowed wavelength.
func (r *Result) Model() []float64 {
	out := make([]float64, len(r.Wavelength))
	for i, x := range r.Wavelength {
		out[i] = r.Params.Eval(x)
	}
	return out
}

// Measure fits a Gaussian to the samples of (wavelength, flux) whose
// wavelength lies inside window, bounds included. wavelength must be
// monotonic, increasing or decreasing. frame may be nil.
func Measure(wavelength, flux, frame []float64, window [2]float64, opts Options) (*Result, error) {
	if len(wavelength) != len(flux) {
		return nil, fmt.Errorf("%w: %d wavelengths for %d fluxes", ifuerr.ErrShapeMismatch, len(wavelength), len(flux))
	}
	if frame != nil && len(frame) != len(wavelength) {
		return nil, fmt.Errorf("%w: %d frames for %d wavelengths", ifuerr.ErrShapeMismatch, len(frame), len(wavelength))
	}
	if !(window[0] < window[1]) {
		return nil, fmt.Errorf("%w: window [%g, %g] is empty", ifuerr.ErrInvalidArgument, window[0], window[1])
	}
	if len(wavelength) == 0 {
		return nil, fmt.Errorf("%w: empty spectrum", ifuerr.ErrOutOfRange)
	}
	first, last := floats.Min(wavelength), floats.Max(wavelength)
	if window[0] < first || window[1] > last {
		return nil, fmt.Errorf("%w: window [%g, %g] outside spectrum coverage [%g, %g]",
			ifuerr.ErrOutOfRange, window[0], window[1], first, last)
	}

	lo, hi := -1, -1
	for i, w := range wavelength {
		if w >= window[0] && w <= window[1] {
			if lo < 0 {
				lo = i
			}
			hi = i
		}
	}
	if lo < 0 || hi-lo+1 < minSamples {
		return nil, fmt.Errorf("%w: window [%g, %g] holds fewer than %d samples", ifuerr.ErrOutOfRange, window[0], window[1], minSamples)
	}

	log := logging.OrDiscard(opts.Logger)
	res := &Result{
		Wavelength: append([]float64(nil), wavelength[lo:hi+1]...),
		Flux:       append([]float64(nil), flux[lo:hi+1]...),
	}
	if frame != nil {
		res.Frame = append([]float64(nil), frame[lo:hi+1]...)
	}
	log.Debug("line window", "first", lo, "last", hi, "from", res.Wavelength[0], "to", res.Wavelength[len(res.Wavelength)-1])

	deg, err := opts.Continuum.degree(opts.Degree)
	if err != nil {
		return nil, err
	}
	if deg >= 0 {
		detrended, poly, err := polyfit.Subtract(res.Wavelength, res.Flux, deg)
		if err != nil {
			return nil, fmt.Errorf("continuum %s: %w", opts.Continuum, err)
		}
		res.Continuum = poly.EvalAll(res.Wavelength)
		res.Flux = detrended
	}

	seed := initialGuess(res.Wavelength, res.Flux, opts.WidthSeed)
	iters := opts.MaxIterations
	if iters <= 0 {
		iters = DefaultMaxIterations
	}

	params, err := fit(res.Wavelength, res.Flux, seed, iters)
	if err != nil {
		// One retry from a wider seed before giving up.
		log.Debug("gaussian fit failed, retrying with a wider seed", "err", err)
		seed.StdDev *= 2
		params, err = fit(res.Wavelength, res.Flux, seed, iters)
		if err != nil {
			return nil, err
		}
	}
	res.Params = params
	res.Initial = seed
	log.Debug("gaussian fit", "amplitude", params.Amplitude, "center", params.Center,
		"stddev", params.StdDev, "fwhm", params.FWHM())
	return res, nil
}

// initialGuess seeds the amplitude and center at the flux maximum.
func initialGuess(x, y []float64, width float64) Params {
	i := floats.MaxIdx(y)
	if width <= 0 {
		width = DefaultWidthSeed
	}
	if span := floats.Max(x) - floats.Min(x); width > span/4 {
		width = span / 4
	}
	return Params{Amplitude: y[i], Center: x[i], StdDev: width}
}

func gaussian(x, amp, center, sigma float64) float64 {
	d := (x - center) / sigma
	return amp * math.Exp(-0.5*d*d)
}

// fit is the optimizer used by Measure; tests swap it out.
var fit = fitGaussian

// fitGaussian runs Levenberg-Marquardt from seed and validates the solution.
func fitGaussian(x, y []float64, seed Params, iterations int) (Params, error) {
	residuals := func(dst, p []float64) {
		for i, xi := range x {
			dst[i] = y[i] - gaussian(xi, p[0], p[1], p[2])
		}
	}
	jac := &lm.NumJac{Func: residuals}

	problem := lm.LMProblem{
		Dim:        3,
		Size:       len(x),
		Func:       residuals,
		Jac:        jac.Jac,
		InitParams: []float64{seed.Amplitude, seed.Center, seed.StdDev},
		Tau:        1e-3,
		Eps1:       1e-12,
		Eps2:       1e-12,
	}
	result, err := lm.LM(problem, &lm.Settings{Iterations: iterations, ObjectiveTol: 1e-16})
	if err != nil {
		return Params{}, fmt.Errorf("%w: %v", ifuerr.ErrFitDidNotConverge, err)
	}
	if len(result.X) != 3 {
		return Params{}, fmt.Errorf("%w: optimizer returned no solution", ifuerr.ErrFitDidNotConverge)
	}

	p := Params{Amplitude: result.X[0], Center: result.X[1], StdDev: math.Abs(result.X[2])}
	if err := checkSolution(p, x); err != nil {
		return Params{}, err
	}
	return p, nil
}

// checkSolution rejects parameters that are non-finite, have a vanishing
// width or place the center outside the sampled window.
func checkSolution(p Params, x []float64) error {
	for _, v := range []float64{p.Amplitude, p.Center, p.StdDev} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite parameters %+v", ifuerr.ErrFitDidNotConverge, p)
		}
	}
	lo, hi := floats.Min(x), floats.Max(x)
	if p.StdDev < 1e-9*(hi-lo) {
		return fmt.Errorf("%w: collapsed width %g", ifuerr.ErrFitDidNotConverge, p.StdDev)
	}
	if p.Center < lo || p.Center > hi {
		return fmt.Errorf("%w: center %g left the window [%g, %g]", ifuerr.ErrFitDidNotConverge, p.Center, lo, hi)
	}
	return nil
}
