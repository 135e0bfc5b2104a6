package linefit

import (
	"fmt"
	"strings"

	"ifucube/pkg/ifuerr"
)

// Continuum selects the polynomial removed from the windowed flux before
// the line is fitted.
type Continuum int

const (
	// NoContinuum leaves the flux untouched.
	NoContinuum Continuum = iota
	// Linear removes a degree 1 polynomial.
	Linear
	// Poly2 removes a degree 2 polynomial.
	Poly2
	// PolyN removes a polynomial of Options.Degree.
	PolyN
)

func (c Continuum) String() string {
	switch c {
	case NoContinuum:
		return "none"
	case Linear:
		return "linear"
	case Poly2:
		return "poly2"
	case PolyN:
		return "polyn"
	default:
		return fmt.Sprintf("Continuum(%d)", int(c))
	}
}

// ParseContinuum returns the Continuum named s. The empty string means none.
func ParseContinuum(s string) (Continuum, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return NoContinuum, nil
	case "linear":
		return Linear, nil
	case "poly2":
		return Poly2, nil
	case "polyn":
		return PolyN, nil
	default:
		return 0, fmt.Errorf("%w: unknown continuum method %q", ifuerr.ErrInvalidArgument, s)
	}
}

// degree returns the polynomial degree to subtract, or -1 for none.
func (c Continuum) degree(n int) (int, error) {
	switch c {
	case NoContinuum:
		return -1, nil
	case Linear:
		return 1, nil
	case Poly2:
		return 2, nil
	case PolyN:
		if n < 0 {
			return 0, fmt.Errorf("%w: negative continuum degree %d", ifuerr.ErrInvalidArgument, n)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%w: unknown continuum method %d", ifuerr.ErrInvalidArgument, int(c))
	}
}
