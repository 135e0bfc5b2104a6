package visualization

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"ifucube/pkg/ifuerr"
	"ifucube/pkg/linefit"
	"ifucube/pkg/spectrum"
)

// Plot size, matching a wide spectrum panel.
const (
	plotWidth  = 12 * vg.Inch
	plotHeight = 4 * vg.Inch
)

var dashed = []vg.Length{vg.Points(6), vg.Points(4)}

// PlotSpectrum draws the flux of every spaxel against wavelength. Each
// wavelength tick also carries its frame index, the frame range goes into
// the title and a dashed zero line is added when the continuum was removed.
func PlotSpectrum(spec *spectrum.Spectrum, filename string) error {
	n := spec.Len()
	if n == 0 {
		return fmt.Errorf("%w: empty spectrum", ifuerr.ErrInvalidArgument)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Frames %.0f-%.0f", spec.Frame[0], spec.Frame[n-1])
	p.X.Label.Text = "Wavelength (µm) / frame"
	p.Y.Label.Text = "Counts (D/n)"
	p.X.Min = floats.Min(spec.Wavelength)
	p.X.Max = floats.Max(spec.Wavelength)
	p.X.Tick.Marker = frameTicks{wavelength: spec.Wavelength, frame: spec.Frame}
	p.Add(plotter.NewGrid())

	for k, flux := range spec.Flux {
		line, err := plotter.NewLine(finitePoints(spec.Wavelength, flux))
		if err != nil {
			return fmt.Errorf("error plotting spaxel %v: %w", spec.Spaxels[k], err)
		}
		line.LineStyle.Color = plotutil.Color(k)
		line.LineStyle.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(spec.Spaxels[k].String(), line)
	}

	if spec.ContinuumRemoved {
		zero, err := plotter.NewLine(plotter.XYs{
			{X: spec.Wavelength[0], Y: 0},
			{X: spec.Wavelength[n-1], Y: 0},
		})
		if err != nil {
			return err
		}
		zero.LineStyle.Color = color.Black
		zero.LineStyle.Dashes = dashed
		p.Add(zero)
	}

	return save(p, filename)
}

// PlotLineFit draws the windowed spectrum, the fitted Gaussian and a dashed
// marker at the fitted center.
func PlotLineFit(res *linefit.Result, filename string) error {
	n := len(res.Wavelength)
	if n == 0 {
		return fmt.Errorf("%w: empty line window", ifuerr.ErrInvalidArgument)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Line at %.5f µm, FWHM %.5f", res.Params.Center, res.Params.FWHM())
	p.X.Label.Text = "Wavelength (µm)"
	if len(res.Frame) == n {
		p.Title.Text += fmt.Sprintf(" (frames %.0f-%.0f)", res.Frame[0], res.Frame[n-1])
		p.X.Label.Text += " / frame"
		p.X.Tick.Marker = frameTicks{wavelength: res.Wavelength, frame: res.Frame}
	}
	p.Y.Label.Text = "Counts (D/n)"
	p.X.Min = floats.Min(res.Wavelength)
	p.X.Max = floats.Max(res.Wavelength)

	data, err := plotter.NewLine(finitePoints(res.Wavelength, res.Flux))
	if err != nil {
		return fmt.Errorf("error plotting spectrum: %w", err)
	}
	data.LineStyle.Color = color.RGBA{G: 128, A: 255}
	data.LineStyle.Width = vg.Points(2)

	model := res.Model()
	fit, err := plotter.NewLine(finitePoints(res.Wavelength, model))
	if err != nil {
		return fmt.Errorf("error plotting fit: %w", err)
	}
	fit.LineStyle.Color = color.RGBA{R: 255, A: 255}
	fit.LineStyle.Width = vg.Points(1)

	lo, hi := yRange(res.Flux, model)
	center, err := plotter.NewLine(plotter.XYs{
		{X: res.Params.Center, Y: lo},
		{X: res.Params.Center, Y: hi},
	})
	if err != nil {
		return err
	}
	center.LineStyle.Color = color.Black
	center.LineStyle.Width = vg.Points(1.5)
	center.LineStyle.Dashes = dashed

	p.Add(data, fit, center)
	p.Legend.Add("Spectrum", data)
	p.Legend.Add("Gauss Fit", fit)
	p.Legend.Add("Line Location", center)

	return save(p, filename)
}

// frameTicks labels each major wavelength tick with the frame it falls on,
// printed on a second line. gonum/plot has no secondary axis, so the frame
// scale shares the wavelength axis.
type frameTicks struct {
	wavelength []float64
	frame      []float64
}

func (t frameTicks) Ticks(min, max float64) []plot.Tick {
	ticks := plot.DefaultTicks{}.Ticks(min, max)
	n := len(t.wavelength)
	if n < 2 || len(t.frame) != n || t.wavelength[n-1] == t.wavelength[0] {
		return ticks
	}
	slope := (t.frame[n-1] - t.frame[0]) / (t.wavelength[n-1] - t.wavelength[0])
	for i := range ticks {
		if ticks[i].Label == "" {
			continue
		}
		f := t.frame[0] + slope*(ticks[i].Value-t.wavelength[0])
		ticks[i].Label += fmt.Sprintf("\n%.0f", f)
	}
	return ticks
}

func save(p *plot.Plot, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return err
	}
	if err := p.Save(plotWidth, plotHeight, filename); err != nil {
		return fmt.Errorf("error saving plot %s: %w", filename, err)
	}
	return nil
}

// finitePoints pairs x and y, skipping samples plotter would reject.
func finitePoints(x, y []float64) plotter.XYs {
	pts := make(plotter.XYs, 0, len(x))
	for i := range x {
		if isFinite(x[i]) && isFinite(y[i]) {
			pts = append(pts, plotter.XY{X: x[i], Y: y[i]})
		}
	}
	return pts
}

func yRange(series ...[]float64) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, s := range series {
		for _, v := range s {
			if isFinite(v) {
				lo = math.Min(lo, v)
				hi = math.Max(hi, v)
			}
		}
	}
	if lo > hi {
		return 0, 1
	}
	return lo, hi
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
