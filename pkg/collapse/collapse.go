// Package collapse reduces an IFU cube along its spectral axis to a 2-D
// image, optionally rejecting outliers with iterative sigma clipping.
package collapse

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"ifucube/internal/logging"
	"ifucube/pkg/calibration"
	"ifucube/pkg/cube"
)

// Options controls a collapse.
type Options struct {
	// Region limits the collapse to frames [Begin, End); nil collapses the whole axis.
	Region *calibration.Region

	// Method is the reduction statistic.
	Method Method

	// Clip enables sigma clipping when non-nil.
	Clip *SigmaClip

	// Workers bounds the number of image rows reduced concurrently.
	// Zero means runtime.NumCPU().
	Workers int

	// Logger receives progress records. Nil discards them.
	Logger *slog.Logger
}

// Collapse reduces c along its first axis and returns an image shaped
// (y, x). Two-dimensional cubes count as a single frame.
//
// When clipping is enabled every spaxel's series is clipped and the statistic
// is recomputed over the surviving samples only. If clipping rejects nothing
// anywhere the unclipped image is returned as is.
func Collapse(c *cube.Cube, opts Options) (*mat.Dense, error) {
	if err := opts.Method.validate(); err != nil {
		return nil, err
	}
	if opts.Clip != nil {
		if err := opts.Clip.validate(); err != nil {
			return nil, err
		}
	}
	frames, ny, nx, err := c.Dims3()
	if err != nil {
		return nil, err
	}
	begin, end, err := calibration.Resolve(opts.Region, frames)
	if err != nil {
		return nil, fmt.Errorf("collapse %s: %w", c.Name(), err)
	}

	log := logging.OrDiscard(opts.Logger)
	if opts.Region == nil {
		log.Debug("collapsing entire spectral axis", "cube", c.Name(), "method", opts.Method, "frames", frames)
	} else {
		log.Debug("collapsing spectral region", "cube", c.Name(), "method", opts.Method, "region", opts.Region.String())
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	data := c.Data()
	plane := ny * nx
	depth := end - begin

	base := mat.NewDense(ny, nx, nil)
	var clipped *mat.Dense
	if opts.Clip != nil {
		clipped = mat.NewDense(ny, nx, nil)
	}
	var rejected atomic.Int64

	var g errgroup.Group
	g.SetLimit(workers)
	for y := 0; y < ny; y++ {
		g.Go(func() error {
			series := make([]float64, depth)
			for x := 0; x < nx; x++ {
				for f := 0; f < depth; f++ {
					series[f] = data[(begin+f)*plane+y*nx+x]
				}
				v, err := opts.Method.reduce(series)
				if err != nil {
					return err
				}
				base.Set(y, x, v)

				if clipped == nil {
					continue
				}
				kept, n, err := opts.Clip.clip(series)
				if err != nil {
					return err
				}
				if n > 0 {
					rejected.Add(int64(n))
					if v, err = opts.Method.reduce(kept); err != nil {
						return err
					}
				}
				clipped.Set(y, x, v)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("collapse %s: %w", c.Name(), err)
	}

	if clipped == nil {
		return base, nil
	}
	if rejected.Load() == 0 {
		log.Debug("clipping rejected no samples, keeping unclipped image", "cube", c.Name())
		return base, nil
	}
	log.Debug("sigma clipping done", "cube", c.Name(), "sigma", opts.Clip.Sigma, "rejected", rejected.Load())
	return clipped, nil
}
