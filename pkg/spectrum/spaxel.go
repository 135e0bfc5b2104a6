package spectrum

import (
	"fmt"
	"log/slog"

	"ifucube/internal/logging"
	"ifucube/pkg/ifuerr"
)

// MaxSpaxels is the largest number of spaxels extracted in one call.
const MaxSpaxels = 3

// Spaxel is a spatial pixel position.
type Spaxel struct {
	X int `yaml:"x"`
	Y int `yaml:"y"`
}

func (s Spaxel) String() string {
	return fmt.Sprintf("[%d, %d]", s.X, s.Y)
}

// Spaxels is an ordered set of at most MaxSpaxels positions.
type Spaxels struct {
	list []Spaxel
}

// NewSpaxels keeps the first MaxSpaxels positions and logs a warning when
// more were given.
func NewSpaxels(logger *slog.Logger, spaxels ...Spaxel) Spaxels {
	if len(spaxels) > MaxSpaxels {
		logging.OrDiscard(logger).Warn("too many spaxels requested, extra ones dropped",
			"requested", len(spaxels), "kept", MaxSpaxels)
		spaxels = spaxels[:MaxSpaxels]
	}
	return Spaxels{list: append([]Spaxel(nil), spaxels...)}
}

// ParseSpaxels accepts either k (x, y) pairs, [[x1, y1], [x2, y2], ...], or
// two parallel sequences, [[x1, x2, ...], [y1, y2, ...]]. Input whose rows
// are longer than two is read as parallel sequences; a 2x2 input is read as
// pairs.
func ParseSpaxels(raw [][]int, logger *slog.Logger) (Spaxels, error) {
	if len(raw) == 0 {
		return Spaxels{}, fmt.Errorf("%w: no spaxels given", ifuerr.ErrInvalidArgument)
	}

	var out []Spaxel
	if len(raw[0]) > 2 {
		if len(raw) != 2 || len(raw[1]) != len(raw[0]) {
			return Spaxels{}, fmt.Errorf("%w: parallel spaxel sequences must be two rows of equal length", ifuerr.ErrInvalidArgument)
		}
		logging.OrDiscard(logger).Debug("spaxels given as parallel sequences, transposing", "count", len(raw[0]))
		for i := range raw[0] {
			out = append(out, Spaxel{X: raw[0][i], Y: raw[1][i]})
		}
	} else {
		for i, pair := range raw {
			if len(pair) != 2 {
				return Spaxels{}, fmt.Errorf("%w: spaxel %d has %d coordinates, want 2", ifuerr.ErrInvalidArgument, i, len(pair))
			}
			out = append(out, Spaxel{X: pair[0], Y: pair[1]})
		}
	}
	return NewSpaxels(logger, out...), nil
}

// Len returns the number of spaxels.
func (s Spaxels) Len() int { return len(s.list) }

// At returns spaxel i.
func (s Spaxels) At(i int) Spaxel { return s.list[i] }

// List returns a copy of the spaxels in order.
func (s Spaxels) List() []Spaxel { return append([]Spaxel(nil), s.list...) }
