// Package ifuerr defines the error kinds reported by the ifucube core.
// Errors returned by the core wrap one of these sentinels, so callers
// classify them with errors.Is.
package ifuerr

import "errors"

var (
	// ErrInvalidArgument reports an unknown method, a malformed spaxel list,
	// a non-positive clip threshold or a similar bad parameter.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrOutOfRange reports a frame or wavelength region not covered by the input.
	ErrOutOfRange = errors.New("out of range")

	// ErrDivisionByZero reports a zero divisor, e.g. a zero calibration delta.
	ErrDivisionByZero = errors.New("division by zero")

	// ErrFitDidNotConverge reports a nonlinear fit that failed within its budget.
	ErrFitDidNotConverge = errors.New("fit did not converge")

	// ErrShapeMismatch reports array dimensions inconsistent with the expected layout.
	ErrShapeMismatch = errors.New("shape mismatch")
)
