package collapse

import (
	"fmt"
	"math"
	"strings"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"ifucube/pkg/ifuerr"
)

// Method is the statistic used to reduce the spectral axis.
type Method int

const (
	Sum Method = iota
	Mean
	Median
)

func (m Method) String() string {
	switch m {
	case Sum:
		return "sum"
	case Mean:
		return "mean"
	case Median:
		return "median"
	default:
		return fmt.Sprintf("Method(%d)", int(m))
	}
}

// ParseMethod returns the Method named s (case-insensitive).
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sum":
		return Sum, nil
	case "mean":
		return Mean, nil
	case "median":
		return Median, nil
	default:
		return 0, fmt.Errorf("%w: unknown collapse method %q", ifuerr.ErrInvalidArgument, s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Method) MarshalText() ([]byte, error) {
	if err := m.validate(); err != nil {
		return nil, err
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Method) UnmarshalText(text []byte) error {
	parsed, err := ParseMethod(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

func (m Method) validate() error {
	switch m {
	case Sum, Mean, Median:
		return nil
	default:
		return fmt.Errorf("%w: unknown collapse method %d", ifuerr.ErrInvalidArgument, int(m))
	}
}

// reduce applies the statistic to values. A NaN sample makes every statistic
// NaN. An empty slice means clipping rejected everything: the sum of nothing
// is 0 and the mean or median of nothing is NaN.
func (m Method) reduce(values []float64) (float64, error) {
	switch m {
	case Sum:
		return floats.Sum(values), nil
	case Mean:
		if len(values) == 0 || floats.HasNaN(values) {
			return math.NaN(), nil
		}
		return stat.Mean(values, nil), nil
	case Median:
		if len(values) == 0 || floats.HasNaN(values) {
			return math.NaN(), nil
		}
		return stats.Median(values)
	default:
		return 0, fmt.Errorf("%w: unknown collapse method %d", ifuerr.ErrInvalidArgument, int(m))
	}
}
