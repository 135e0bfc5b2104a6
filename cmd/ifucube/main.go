package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"ifucube/internal/logging"
	"ifucube/pkg/calibration"
	"ifucube/pkg/config"
	"ifucube/pkg/cube"
	"ifucube/pkg/fitsfile"
)

// app carries the state shared by every subcommand.
type app struct {
	configPath string
	verbose    bool

	cfg *config.Config
	log *slog.Logger
}

func main() {
	if err := newRootCmd(&app{}).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newRootCmd wires every subcommand to a.
func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ifucube",
		Short: "Collapse, extract and measure spectra of IFU data cubes",
		Long: `ifucube works on integral-field spectroscopy cubes stored in FITS files.

Settings come from a YAML file (--config), then IFUCUBE_* environment
variables, then command line flags. A .env file in the working directory is
loaded first when present.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}
	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "ifucube.yaml", "Path to the YAML configuration")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(
		newInfoCmd(a),
		newCollapseCmd(a),
		newExtractCmd(a),
		newMeasureCmd(a),
		newFramesCmd(a),
		newRunCmd(a),
		newInitConfigCmd(a),
	)
	return rootCmd
}

// setup loads .env, the configuration and environment overrides, then builds
// the logger.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("error loading .env: %w", err)
	}

	cfg, err := config.LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return err
	}
	if a.verbose {
		cfg.Output.Verbose = true
	}
	a.cfg = cfg
	a.log = logging.New(cfg.Output.Verbose, os.Stderr)
	a.log.Debug("configuration loaded", "path", a.configPath)
	return nil
}

// openCube reads path and returns the named cube, or the first cube with
// three axes when name is empty, plus its spectral calibration.
func (a *app) openCube(path, name string) (*cube.Cube, calibration.Calibration, error) {
	ds, err := fitsfile.Open(path)
	if err != nil {
		return nil, calibration.Calibration{}, err
	}

	var picked *cube.Cube
	for _, c := range ds.Cubes {
		if (name == "" && c.NDim() == 3) || c.Name() == name {
			picked = c
			break
		}
	}
	if picked == nil {
		if name == "" {
			return nil, calibration.Calibration{}, fmt.Errorf("%s holds no [frames, y, x] cube", path)
		}
		return nil, calibration.Calibration{}, fmt.Errorf("%s holds no cube named %q", path, name)
	}

	cal, ok := ds.Calibrations[picked.Name()]
	if !ok {
		cal = a.cfg.Calibration
		a.log.Debug("no spectral calibration in header, using configured one", "cube", picked.Name())
	}
	a.log.Info("opened cube", "cube", picked.Name(), "shape", picked.Shape())
	return picked, cal, nil
}
