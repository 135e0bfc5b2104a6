package collapse

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"

	"ifucube/pkg/ifuerr"
)

// maxClipIters bounds clipping that was asked to run until convergence.
const maxClipIters = 100

// SigmaClip configures iterative outlier rejection along the spectral axis.
type SigmaClip struct {
	// Sigma is the rejection threshold in standard deviations. Must be positive.
	Sigma float64

	// MaxIters caps the number of rejection passes; 0 iterates until no
	// further sample is rejected.
	MaxIters int
}

func (s SigmaClip) validate() error {
	if !(s.Sigma > 0) || math.IsInf(s.Sigma, 0) {
		return fmt.Errorf("%w: clip threshold must be positive and finite, got %g", ifuerr.ErrInvalidArgument, s.Sigma)
	}
	if s.MaxIters < 0 {
		return fmt.Errorf("%w: negative clip iteration cap %d", ifuerr.ErrInvalidArgument, s.MaxIters)
	}
	return nil
}

// clip masks non-finite samples, then rejects samples further than Sigma
// standard deviations from the median of the current survivors, repeating
// until nothing changes. It returns the survivors, in input order, and the
// number of masked or rejected samples.
func (s SigmaClip) clip(values []float64) ([]float64, int, error) {
	iters := s.MaxIters
	if iters == 0 {
		iters = maxClipIters
	}

	kept := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			kept = append(kept, v)
		}
	}
	for i := 0; i < iters && len(kept) > 0; i++ {
		center, err := stats.Median(kept)
		if err != nil {
			return nil, 0, err
		}
		spread, err := stats.StandardDeviationPopulation(kept)
		if err != nil {
			return nil, 0, err
		}
		bound := s.Sigma * spread

		next := make([]float64, 0, len(kept))
		for _, v := range kept {
			if math.Abs(v-center) <= bound {
				next = append(next, v)
			}
		}
		if len(next) == len(kept) {
			break
		}
		kept = next
	}
	return kept, len(values) - len(kept), nil
}
