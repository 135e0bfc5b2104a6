package calibration

import (
	"fmt"

	"ifucube/pkg/ifuerr"
)

// Region is a half-open frame interval [Begin, End) over the spectral axis.
// A nil *Region stands for the whole axis.
type Region struct {
	Begin int `yaml:"begin"`
	End   int `yaml:"end"`
}

// NewRegion returns a pointer to the region [begin, end).
func NewRegion(begin, end int) *Region {
	return &Region{Begin: begin, End: end}
}

// Len returns the number of frames covered.
func (r Region) Len() int {
	return r.End - r.Begin
}

// Validate checks r against an axis of n frames.
func (r Region) Validate(n int) error {
	if r.Begin >= r.End {
		return fmt.Errorf("%w: empty region [%d, %d)", ifuerr.ErrInvalidArgument, r.Begin, r.End)
	}
	if r.Begin < 0 || r.End > n {
		return fmt.Errorf("%w: region [%d, %d) outside axis of %d frames", ifuerr.ErrOutOfRange, r.Begin, r.End, n)
	}
	return nil
}

// Resolve returns the bounds of r on an axis of n frames, or the whole axis
// when r is nil.
func Resolve(r *Region, n int) (begin, end int, err error) {
	if r == nil {
		return 0, n, nil
	}
	if err := r.Validate(n); err != nil {
		return 0, 0, err
	}
	return r.Begin, r.End, nil
}

func (r Region) String() string {
	return fmt.Sprintf("[%d, %d)", r.Begin, r.End)
}
