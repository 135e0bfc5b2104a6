// Package polyfit fits least-squares polynomials, used to model and remove
// spectral continua.
package polyfit

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"ifucube/pkg/ifuerr"
)

// Poly is a fitted polynomial. The abscissa is centred and scaled before
// evaluation to keep the normal equations well conditioned.
type Poly struct {
	// Coeffs holds the coefficients in the normalized variable, lowest order first
	Coeffs []float64

	shift float64
	scale float64
}

// Degree returns the polynomial degree.
func (p Poly) Degree() int { return len(p.Coeffs) - 1 }

// Eval evaluates the polynomial at x.
func (p Poly) Eval(x float64) float64 {
	t := (x - p.shift) / p.scale
	// Horner
	v := 0.0
	for i := len(p.Coeffs) - 1; i >= 0; i-- {
		v = v*t + p.Coeffs[i]
	}
	return v
}

// EvalAll evaluates the polynomial at every element of xs.
func (p Poly) EvalAll(xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = p.Eval(x)
	}
	return out
}

// Fit returns the least-squares polynomial of the given degree through
// (x, y). It needs at least degree+1 points with distinct abscissae.
func Fit(x, y []float64, degree int) (Poly, error) {
	if len(x) != len(y) {
		return Poly{}, fmt.Errorf("%w: %d abscissae for %d ordinates", ifuerr.ErrShapeMismatch, len(x), len(y))
	}
	if degree < 0 {
		return Poly{}, fmt.Errorf("%w: negative degree %d", ifuerr.ErrInvalidArgument, degree)
	}
	if len(x) < degree+1 {
		return Poly{}, fmt.Errorf("%w: %d points cannot determine a degree %d polynomial", ifuerr.ErrInvalidArgument, len(x), degree)
	}

	shift := stat.Mean(x, nil)
	scale := (floats.Max(x) - floats.Min(x)) / 2
	if scale == 0 || math.IsNaN(scale) {
		if degree > 0 {
			return Poly{}, fmt.Errorf("%w: abscissae are all equal", ifuerr.ErrInvalidArgument)
		}
		scale = 1
	}

	// Vandermonde matrix in the normalized variable.
	n, m := len(x), degree+1
	a := mat.NewDense(n, m, nil)
	for i, xi := range x {
		t := (xi - shift) / scale
		p := 1.0
		for j := 0; j < m; j++ {
			a.Set(i, j, p)
			p *= t
		}
	}

	var coef mat.VecDense
	if err := coef.SolveVec(a, mat.NewVecDense(n, append([]float64(nil), y...))); err != nil {
		return Poly{}, fmt.Errorf("%w: polynomial fit failed: %v", ifuerr.ErrInvalidArgument, err)
	}

	coeffs := make([]float64, m)
	for j := range coeffs {
		coeffs[j] = coef.AtVec(j)
	}
	return Poly{Coeffs: coeffs, shift: shift, scale: scale}, nil
}

// Subtract fits a polynomial of the given degree to (x, y) and returns y
// minus the fit along with the fitted polynomial.
func Subtract(x, y []float64, degree int) ([]float64, Poly, error) {
	p, err := Fit(x, y, degree)
	if err != nil {
		return nil, Poly{}, err
	}
	out := make([]float64, len(y))
	floats.SubTo(out, y, p.EvalAll(x))
	return out, p, nil
}
