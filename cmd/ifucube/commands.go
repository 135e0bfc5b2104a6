package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"ifucube/internal/models"
	"ifucube/pkg/calibration"
	"ifucube/pkg/collapse"
	"ifucube/pkg/config"
	"ifucube/pkg/cube"
	"ifucube/pkg/export"
	"ifucube/pkg/fitsfile"
	"ifucube/pkg/linefit"
	"ifucube/pkg/pipeline"
	"ifucube/pkg/spectrum"
	"ifucube/pkg/visualization"
)

func newInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info FILE",
		Short: "List the cubes of a FITS file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := fitsfile.Open(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %d cube(s)\n", ds.Name, len(ds.Cubes))
			for _, c := range ds.Cubes {
				fmt.Fprintf(out, "  %-16s shape %v", c.Name(), c.Shape())
				if cal, ok := ds.Calibrations[c.Name()]; ok {
					frames := c.Shape()[0]
					fmt.Fprintf(out, "  %.6f-%.6f (step %g)", cal.FrameToWavelength(0), cal.FrameToWavelength(float64(frames-1)), cal.CDelt)
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}
}

func newCollapseCmd(a *app) *cobra.Command {
	var cubeName, output, fitsOutput string

	cmd := &cobra.Command{
		Use:   "collapse FILE",
		Short: "Collapse a cube along its spectral axis into an image",
		Long: `Collapse a cube into a 2-D image with sum, mean or median, optionally
restricted to a frame region and with iterative sigma clipping.

Example: ifucube collapse target.fits --method median --region 100,900 --sigma 3`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := applyCollapseFlags(cmd, a.cfg); err != nil {
				return err
			}
			c, _, err := a.openCube(args[0], cubeName)
			if err != nil {
				return err
			}
			opts, err := a.cfg.CollapseOptions()
			if err != nil {
				return err
			}
			opts.Logger = a.log

			img, err := collapse.Collapse(c, opts)
			if err != nil {
				return err
			}
			stats := models.NewImageStats(img)
			fmt.Fprintf(cmd.OutOrStdout(), "%s collapsed with %s: min %g max %g mean %g\n",
				c.Name(), opts.Method, stats.Min, stats.Max, stats.Mean)

			if output == "" {
				output = filepath.Join(a.cfg.Output.Dir, c.Name()+"_collapsed.png")
			}
			if err := visualization.SaveImage(img, output, visualization.ImageOptions{Log: a.cfg.Output.LogScale}); err != nil {
				return err
			}
			a.log.Info("saved collapsed image", "path", output)

			if fitsOutput != "" {
				if err := fitsfile.SaveImage(fitsOutput, c.Name()+" collapsed", img); err != nil {
					return err
				}
				a.log.Info("saved collapsed FITS", "path", fitsOutput)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&cubeName, "cube", "", "Cube name (default: first 3-D cube)")
	cmd.Flags().String("method", "", "Reduction: sum|mean|median")
	cmd.Flags().IntSlice("region", nil, "Frame region begin,end")
	cmd.Flags().Float64("sigma", 0, "Sigma clipping threshold (0 disables)")
	cmd.Flags().Bool("log", false, "Logarithmic image stretch")
	cmd.Flags().StringVarP(&output, "output", "o", "", "PNG output path")
	cmd.Flags().StringVar(&fitsOutput, "fits", "", "Also write the image to this FITS path")
	return cmd
}

func newExtractCmd(a *app) *cobra.Command {
	var cubeName, plotPath, tablePath string

	cmd := &cobra.Command{
		Use:   "extract FILE",
		Short: "Extract the spectra of up to three spaxels",
		Long: `Extract the spectra of up to three spaxels, optionally removing a linear
continuum, and write them as a plot and a CSV or XLSX table.

Example: ifucube extract target.fits --spaxel 10,12 --spaxel 30,31 --continuum`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := applyExtractionFlags(cmd, a.cfg); err != nil {
				return err
			}
			spec, c, err := a.extract(args[0], cubeName)
			if err != nil {
				return err
			}

			if plotPath == "" {
				plotPath = filepath.Join(a.cfg.Output.Dir, c.Name()+"_spectrum.png")
			}
			if err := visualization.PlotSpectrum(spec, plotPath); err != nil {
				return err
			}
			a.log.Info("saved spectrum plot", "path", plotPath)

			if tablePath == "" {
				tablePath = filepath.Join(a.cfg.Output.Dir, c.Name()+"_spectrum."+a.cfg.Output.TableFormat)
			}
			if err := writeTables(tablePath, spec, nil); err != nil {
				return err
			}
			a.log.Info("saved spectrum table", "path", tablePath)
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d samples for %d spaxel(s)\n", c.Name(), spec.Len(), len(spec.Flux))
			return nil
		},
	}

	cmd.Flags().StringVar(&cubeName, "cube", "", "Cube name (default: first 3-D cube)")
	cmd.Flags().StringArray("spaxel", nil, "Spaxel x,y (repeatable, at most 3)")
	cmd.Flags().IntSlice("region", nil, "Frame region begin,end")
	cmd.Flags().Bool("continuum", false, "Remove a linear continuum")
	cmd.Flags().StringVar(&plotPath, "plot", "", "Plot output path")
	cmd.Flags().StringVar(&tablePath, "table", "", "Table output path (.csv or .xlsx)")
	return cmd
}

func newMeasureCmd(a *app) *cobra.Command {
	var cubeName, plotPath, tablePath string

	cmd := &cobra.Command{
		Use:   "measure FILE",
		Short: "Fit a Gaussian line in the spectrum of one spaxel",
		Long: `Fit a single Gaussian inside a wavelength window of the first spaxel's
spectrum, optionally after subtracting a polynomial continuum.

Example: ifucube measure target.fits --spaxel 10,12 --window 2.16,2.17 --line-continuum linear`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := applyExtractionFlags(cmd, a.cfg); err != nil {
				return err
			}
			if err := applyLineFitFlags(cmd, a.cfg); err != nil {
				return err
			}
			window, ok, err := a.cfg.LineWindow()
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no line window: set --window or lineFit.window")
			}
			fitOpts, err := a.cfg.LineFitOptions()
			if err != nil {
				return err
			}
			fitOpts.Logger = a.log

			spec, c, err := a.extract(args[0], cubeName)
			if err != nil {
				return err
			}
			res, err := linefit.Measure(spec.Wavelength, spec.Flux[0], spec.Frame, window, fitOpts)
			if err != nil {
				return err
			}

			p := res.Params
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s: amplitude %g center %.6f stddev %.6f fwhm %.6f\n",
				c.Name(), spec.Spaxels[0], p.Amplitude, p.Center, p.StdDev, p.FWHM())

			if plotPath != "" {
				if err := visualization.PlotLineFit(res, plotPath); err != nil {
					return err
				}
				a.log.Info("saved line plot", "path", plotPath)
			}
			if tablePath != "" {
				if err := writeTables(tablePath, nil, res); err != nil {
					return err
				}
				a.log.Info("saved line table", "path", tablePath)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&cubeName, "cube", "", "Cube name (default: first 3-D cube)")
	cmd.Flags().StringArray("spaxel", nil, "Spaxel x,y; the first one is measured")
	cmd.Flags().IntSlice("region", nil, "Frame region begin,end")
	cmd.Flags().Bool("continuum", false, "Remove a linear continuum from the spectrum first")
	cmd.Flags().Float64Slice("window", nil, "Line window min,max in wavelength units")
	cmd.Flags().String("line-continuum", "", "Continuum under the line: none|linear|poly2|polyn")
	cmd.Flags().Int("degree", 1, "Polynomial degree for polyn")
	cmd.Flags().Float64("width-seed", 0, "Initial Gaussian width")
	cmd.Flags().StringVar(&plotPath, "plot", "", "Plot output path")
	cmd.Flags().StringVar(&tablePath, "table", "", "Table output path (.csv or .xlsx)")
	return cmd
}

func newFramesCmd(a *app) *cobra.Command {
	var cubeName, outputDir string
	var region []int
	var logScale bool

	cmd := &cobra.Command{
		Use:   "frames FILE",
		Short: "Save the frames of a cube as a PNG sequence",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := a.openCube(args[0], cubeName)
			if err != nil {
				return err
			}
			var r *calibration.Region
			if len(region) > 0 {
				if len(region) != 2 {
					return fmt.Errorf("--region needs begin,end")
				}
				r = calibration.NewRegion(region[0], region[1])
			}
			viewer, err := visualization.NewViewer(c)
			if err != nil {
				return err
			}
			if outputDir == "" {
				outputDir = filepath.Join(a.cfg.Output.Dir, c.Name()+"_frames")
			}
			paths, err := viewer.SaveFrameSequence(outputDir, r, visualization.ImageOptions{Log: logScale})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %d frame(s) to %s\n", len(paths), outputDir)
			return nil
		},
	}

	cmd.Flags().StringVar(&cubeName, "cube", "", "Cube name (default: first 3-D cube)")
	cmd.Flags().IntSliceVar(&region, "region", nil, "Frame region begin,end")
	cmd.Flags().StringVar(&outputDir, "dir", "", "Output directory")
	cmd.Flags().BoolVar(&logScale, "log", false, "Logarithmic image stretch")
	return cmd
}

func newRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run FILE...",
		Short: "Run the configured pipeline over every cube of the given files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := pipeline.ParamsFromConfig(a.cfg, a.log)
			if err != nil {
				return err
			}

			col := cube.NewCollection()
			params.Calibrations = make(map[string]calibration.Calibration)
			for _, path := range args {
				ds, err := fitsfile.Open(path)
				if err != nil {
					return err
				}
				col.Add(ds.Name, ds.Cubes...)
				for name, cal := range ds.Calibrations {
					params.Calibrations[name] = cal
				}
			}

			report, err := pipeline.NewRunner(params).Process(cmd.Context(), col)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "run %s: %d cube(s) in %s\n", report.RunID, len(report.Cubes), report.Duration)
			for _, cr := range report.Cubes {
				switch {
				case cr.Skipped != "":
					fmt.Fprintf(out, "  %-16s skipped: %s\n", cr.Name, cr.Skipped)
				case cr.Line != nil:
					fmt.Fprintf(out, "  %-16s line at %.6f, fwhm %.6f\n", cr.Name, cr.Line.Params.Center, cr.Line.Params.FWHM())
				case cr.LineError != "":
					fmt.Fprintf(out, "  %-16s line failed: %s\n", cr.Name, cr.LineError)
				default:
					fmt.Fprintf(out, "  %-16s mean %g\n", cr.Name, cr.Image.Mean)
				}
			}
			return nil
		},
	}
}

func newInitConfigCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init-config [PATH]",
		Short: "Write a default configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.configPath
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := config.CreateDefaultConfigFile(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
}

// extract opens the cube and extracts the configured spaxels.
func (a *app) extract(path, cubeName string) (*spectrum.Spectrum, *cube.Cube, error) {
	c, cal, err := a.openCube(path, cubeName)
	if err != nil {
		return nil, nil, err
	}
	spaxels, err := spectrum.ParseSpaxels(a.cfg.Extraction.Spaxels, a.log)
	if err != nil {
		return nil, nil, err
	}
	region, err := a.cfg.ExtractionRegion()
	if err != nil {
		return nil, nil, err
	}
	spec, err := spectrum.Extract(c, spaxels, cal, spectrum.Options{
		Region:          region,
		RemoveContinuum: a.cfg.Extraction.RemoveContinuum,
		Logger:          a.log,
	})
	if err != nil {
		return nil, nil, err
	}
	return spec, c, nil
}

// writeTables writes spec or res to path, as XLSX when path ends in .xlsx
// and CSV otherwise.
func writeTables(path string, spec *spectrum.Spectrum, res *linefit.Result) error {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return export.WriteXLSX(path, spec, res)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if spec != nil {
		err = export.WriteSpectrumCSV(f, spec)
	} else {
		err = export.WriteLineCSV(f, res)
	}
	if err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func applyCollapseFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("method") {
		cfg.Collapse.Method, _ = flags.GetString("method")
	}
	if flags.Changed("region") {
		cfg.Collapse.Region, _ = flags.GetIntSlice("region")
	}
	if flags.Changed("sigma") {
		cfg.Collapse.Sigma, _ = flags.GetFloat64("sigma")
	}
	if flags.Changed("log") {
		cfg.Output.LogScale, _ = flags.GetBool("log")
	}
	return cfg.Validate()
}

func applyExtractionFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("spaxel") {
		raw, _ := flags.GetStringArray("spaxel")
		spaxels, err := parseSpaxelFlags(raw)
		if err != nil {
			return err
		}
		cfg.Extraction.Spaxels = spaxels
	}
	if flags.Changed("region") {
		cfg.Extraction.Region, _ = flags.GetIntSlice("region")
	}
	if flags.Changed("continuum") {
		cfg.Extraction.RemoveContinuum, _ = flags.GetBool("continuum")
	}
	return cfg.Validate()
}

func applyLineFitFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("window") {
		cfg.LineFit.Window, _ = flags.GetFloat64Slice("window")
	}
	if flags.Changed("line-continuum") {
		cfg.LineFit.Continuum, _ = flags.GetString("line-continuum")
	}
	if flags.Changed("degree") {
		cfg.LineFit.Degree, _ = flags.GetInt("degree")
	}
	if flags.Changed("width-seed") {
		cfg.LineFit.WidthSeed, _ = flags.GetFloat64("width-seed")
	}
	return cfg.Validate()
}

// parseSpaxelFlags turns "x,y" strings into coordinate pairs.
func parseSpaxelFlags(raw []string) ([][]int, error) {
	out := make([][]int, 0, len(raw))
	for _, s := range raw {
		parts := strings.Split(s, ",")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid spaxel %q, want x,y", s)
		}
		x, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil {
			return nil, fmt.Errorf("invalid spaxel %q: %w", s, err)
		}
		y, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return nil, fmt.Errorf("invalid spaxel %q: %w", s, err)
		}
		out = append(out, []int{x, y})
	}
	return out, nil
}
