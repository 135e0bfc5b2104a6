// Package pipeline runs the collapse, extraction and line measurement steps
// over every cube of a collection and writes the requested products.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"ifucube/internal/logging"
	"ifucube/internal/models"
	"ifucube/pkg/calibration"
	"ifucube/pkg/collapse"
	"ifucube/pkg/cube"
	"ifucube/pkg/export"
	"ifucube/pkg/fitsfile"
	"ifucube/pkg/ifuerr"
	"ifucube/pkg/linefit"
	"ifucube/pkg/spectrum"
	"ifucube/pkg/visualization"
)

// Table formats understood by Params.TableFormat.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// ExtractionParams selects the spaxels whose spectra are extracted.
type ExtractionParams struct {
	Spaxels spectrum.Spaxels
	Options spectrum.Options
}

// LineFitParams configures the line measurement on the first spaxel.
type LineFitParams struct {
	// Window is the [min, max] wavelength range of the line; nil skips the fit.
	Window  *[2]float64
	Options linefit.Options
}

// Params holds the pipeline parameters.
type Params struct {
	// Collapse configures the collapsed image of every cube.
	Collapse collapse.Options

	// Extraction configures the spectra.
	Extraction ExtractionParams

	// LineFit configures the line measurement.
	LineFit LineFitParams

	// Calibration is used for cubes without an entry in Calibrations.
	Calibration calibration.Calibration

	// Calibrations holds per-cube solutions, usually read from FITS headers.
	Calibrations map[string]calibration.Calibration

	// NumCores bounds the number of cubes processed concurrently.
	NumCores int

	// OutputDir receives one subdirectory per cube when SaveResults is set.
	OutputDir string

	// SaveResults determines whether images, plots and tables are written.
	SaveResults bool

	// TableFormat is FormatCSV or FormatXLSX.
	TableFormat string

	// LogScale stretches the collapsed PNG logarithmically.
	LogScale bool

	// Logger receives progress records. Nil discards them.
	Logger *slog.Logger
}

// Runner processes cube collections.
type Runner struct {
	params *Params
	log    *slog.Logger
}

// NewRunner creates a runner with the provided parameters.
func NewRunner(params *Params) *Runner {
	return &Runner{
		params: params,
		log:    logging.OrDiscard(params.Logger),
	}
}

// Process runs the pipeline over every cube of col, at most NumCores at a
// time. Cubes that are not three-dimensional are reported as skipped. The
// first error cancels the remaining cubes.
func (r *Runner) Process(ctx context.Context, col *cube.Collection) (*models.Report, error) {
	cubes := col.All()
	if len(cubes) == 0 {
		return nil, fmt.Errorf("%w: no cubes to process", ifuerr.ErrInvalidArgument)
	}
	switch r.params.TableFormat {
	case "", FormatCSV, FormatXLSX:
	default:
		return nil, fmt.Errorf("%w: unknown table format %q", ifuerr.ErrInvalidArgument, r.params.TableFormat)
	}

	report := &models.Report{RunID: uuid.New(), Started: time.Now()}
	log := r.log.With("run", report.RunID.String())
	log.Info("starting pipeline", "cubes", len(cubes), "cores", r.params.NumCores)

	if r.params.SaveResults {
		if err := os.MkdirAll(r.params.OutputDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	if r.params.NumCores > 0 {
		g.SetLimit(r.params.NumCores)
	}

	var mu sync.Mutex
	for _, c := range cubes {
		g.Go(func() error {
			cr, err := r.processCube(ctx, log.With("cube", c.Name()), c)
			if err != nil {
				return fmt.Errorf("cube %s: %w", c.Name(), err)
			}
			mu.Lock()
			report.Cubes = append(report.Cubes, cr)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report.SortCubes()
	report.Duration = time.Since(report.Started)
	log.Info("pipeline finished", "duration", report.Duration)
	return report, nil
}

func (r *Runner) processCube(ctx context.Context, log *slog.Logger, c *cube.Cube) (models.CubeReport, error) {
	cr := models.CubeReport{Name: c.Name(), Shape: c.Shape()}
	if c.NDim() != 3 {
		cr.Skipped = fmt.Sprintf("shape %v is not [frames, y, x]", c.Shape())
		log.Info("skipping cube", "reason", cr.Skipped)
		return cr, nil
	}
	cr.Calibration = r.calibrationFor(c.Name())
	outDir := filepath.Join(r.params.OutputDir, c.Name())

	// Step 1: collapse
	if err := ctx.Err(); err != nil {
		return cr, err
	}
	collapseOpts := r.params.Collapse
	collapseOpts.Logger = log
	img, err := collapse.Collapse(c, collapseOpts)
	if err != nil {
		return cr, fmt.Errorf("failed to collapse: %w", err)
	}
	cr.Image = models.NewImageStats(img)
	log.Debug("collapsed", "min", cr.Image.Min, "max", cr.Image.Max, "mean", cr.Image.Mean)

	if r.params.SaveResults {
		paths, err := r.saveImage(outDir, c.Name(), img)
		if err != nil {
			return cr, err
		}
		cr.Outputs = append(cr.Outputs, paths...)
	}

	// Step 2: extract spectra
	if r.params.Extraction.Spaxels.Len() == 0 {
		return cr, nil
	}
	if err := ctx.Err(); err != nil {
		return cr, err
	}
	extractOpts := r.params.Extraction.Options
	extractOpts.Logger = log
	spec, err := spectrum.Extract(c, r.params.Extraction.Spaxels, cr.Calibration, extractOpts)
	if err != nil {
		return cr, fmt.Errorf("failed to extract spectra: %w", err)
	}
	cr.Spectrum = spec

	// Step 3: measure the line on the first spaxel
	if window := r.params.LineFit.Window; window != nil {
		if err := ctx.Err(); err != nil {
			return cr, err
		}
		fitOpts := r.params.LineFit.Options
		fitOpts.Logger = log
		res, err := linefit.Measure(spec.Wavelength, spec.Flux[0], spec.Frame, *window, fitOpts)
		switch {
		case err == nil:
			cr.Line = res
			log.Info("measured line", "spaxel", spec.Spaxels[0].String(),
				"center", res.Params.Center, "fwhm", res.Params.FWHM(), "amplitude", res.Params.Amplitude)
		case errors.Is(err, ifuerr.ErrFitDidNotConverge), errors.Is(err, ifuerr.ErrOutOfRange):
			cr.LineError = err.Error()
			log.Warn("line measurement failed", "err", err)
		default:
			return cr, fmt.Errorf("failed to measure line: %w", err)
		}
	}

	if r.params.SaveResults {
		paths, err := r.saveSpectra(outDir, spec, cr.Line)
		if err != nil {
			return cr, err
		}
		cr.Outputs = append(cr.Outputs, paths...)
	}
	return cr, nil
}

func (r *Runner) calibrationFor(name string) calibration.Calibration {
	if cal, ok := r.params.Calibrations[name]; ok {
		return cal
	}
	return r.params.Calibration
}

// saveImage writes the collapsed image as PNG and FITS.
func (r *Runner) saveImage(dir, name string, img *mat.Dense) ([]string, error) {
	pngPath := filepath.Join(dir, "collapsed.png")
	if err := visualization.SaveImage(img, pngPath, visualization.ImageOptions{Log: r.params.LogScale}); err != nil {
		return nil, fmt.Errorf("failed to save collapsed image: %w", err)
	}
	fitsPath := filepath.Join(dir, "collapsed.fits")
	if err := fitsfile.SaveImage(fitsPath, name+" collapsed", img); err != nil {
		return nil, fmt.Errorf("failed to save collapsed FITS: %w", err)
	}
	return []string{pngPath, fitsPath}, nil
}

// saveSpectra writes the spectrum and line tables and plots. res may be nil.
func (r *Runner) saveSpectra(dir string, spec *spectrum.Spectrum, res *linefit.Result) ([]string, error) {
	var paths []string

	plotPath := filepath.Join(dir, "spectrum.png")
	if err := visualization.PlotSpectrum(spec, plotPath); err != nil {
		return nil, fmt.Errorf("failed to plot spectrum: %w", err)
	}
	paths = append(paths, plotPath)

	if res != nil {
		linePlot := filepath.Join(dir, "line.png")
		if err := visualization.PlotLineFit(res, linePlot); err != nil {
			return nil, fmt.Errorf("failed to plot line fit: %w", err)
		}
		paths = append(paths, linePlot)
	}

	if r.params.TableFormat == FormatXLSX {
		xlsxPath := filepath.Join(dir, "tables.xlsx")
		if err := export.WriteXLSX(xlsxPath, spec, res); err != nil {
			return nil, fmt.Errorf("failed to export tables: %w", err)
		}
		return append(paths, xlsxPath), nil
	}

	tables := []table{
		{"spectrum.csv", func(w io.Writer) error { return export.WriteSpectrumCSV(w, spec) }},
	}
	if res != nil {
		tables = append(tables,
			table{"line.csv", func(w io.Writer) error { return export.WriteLineCSV(w, res) }},
			table{"fit.csv", func(w io.Writer) error { return export.WriteFitCSV(w, res) }},
		)
	}
	for _, tbl := range tables {
		path := filepath.Join(dir, tbl.name)
		if err := writeFile(path, tbl.write); err != nil {
			return nil, fmt.Errorf("failed to export %s: %w", tbl.name, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

type table struct {
	name  string
	write func(io.Writer) error
}

func writeFile(path string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
