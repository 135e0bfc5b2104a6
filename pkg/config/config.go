// Package config provides configuration loading and management for ifucube.
// It handles loading configuration from YAML files, environment overrides
// and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"gopkg.in/yaml.v3"

	"ifucube/pkg/calibration"
	"ifucube/pkg/collapse"
	"ifucube/pkg/ifuerr"
	"ifucube/pkg/linefit"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "IFUCUBE_"

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters
	Processing struct {
		// NumCores specifies how many cubes are processed in parallel
		NumCores int `yaml:"numCores"`
	} `yaml:"processing"`

	// Calibration is the spectral solution used when a file header has none
	Calibration calibration.Calibration `yaml:"calibration"`

	// Collapse parameters
	Collapse struct {
		// Method is one of sum, mean or median
		Method string `yaml:"method"`

		// Region holds [begin, end) frames; empty collapses the whole axis
		Region []int `yaml:"region"`

		// Sigma is the clipping threshold; 0 disables clipping
		Sigma float64 `yaml:"sigma"`

		// MaxIters caps the clipping passes; 0 iterates until convergence
		MaxIters int `yaml:"maxIters"`
	} `yaml:"collapse"`

	// Extraction parameters
	Extraction struct {
		// Spaxels holds [x, y] pairs; at most three are used
		Spaxels [][]int `yaml:"spaxels"`

		// Region holds [begin, end) frames; empty extracts the whole axis
		Region []int `yaml:"region"`

		// RemoveContinuum subtracts a linear continuum from every spectrum
		RemoveContinuum bool `yaml:"removeContinuum"`
	} `yaml:"extraction"`

	// Line fit parameters
	LineFit struct {
		// Window holds the [min, max] wavelengths of the line; empty skips the fit
		Window []float64 `yaml:"window"`

		// Continuum is one of none, linear, poly2 or polyn
		Continuum string `yaml:"continuum"`

		// Degree is the polynomial degree used by polyn
		Degree int `yaml:"degree"`

		// WidthSeed is the initial Gaussian width in wavelength units
		WidthSeed float64 `yaml:"widthSeed"`

		// MaxIterations bounds the Levenberg-Marquardt optimizer
		MaxIterations int `yaml:"maxIterations"`
	} `yaml:"lineFit"`

	// Output parameters
	Output struct {
		// Dir is where images, plots and tables are written
		Dir string `yaml:"dir"`

		// SaveResults determines whether the pipeline writes its products
		SaveResults bool `yaml:"saveResults"`

		// TableFormat is csv or xlsx
		TableFormat string `yaml:"tableFormat"`

		// LogScale stretches collapsed images logarithmically
		LogScale bool `yaml:"logScale"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Processing.NumCores = runtime.NumCPU()

	cfg.Calibration = calibration.Identity

	cfg.Collapse.Method = collapse.Sum.String()

	cfg.Extraction.Spaxels = [][]int{{0, 0}}

	cfg.LineFit.Continuum = linefit.NoContinuum.String()
	cfg.LineFit.Degree = 1
	cfg.LineFit.WidthSeed = linefit.DefaultWidthSeed
	cfg.LineFit.MaxIterations = linefit.DefaultMaxIterations

	cfg.Output.Dir = "ifucube_results"
	cfg.Output.SaveResults = true
	cfg.Output.TableFormat = "csv"
	cfg.Output.LogScale = true
	cfg.Output.Verbose = false

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}

// ApplyEnv overrides fields from IFUCUBE_* variables returned by lookup,
// typically os.LookupEnv after a .env file was loaded.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	floatVars := map[string]*float64{
		"CRPIX":      &c.Calibration.CRPix,
		"CRVAL":      &c.Calibration.CRVal,
		"CDELT":      &c.Calibration.CDelt,
		"SIGMA":      &c.Collapse.Sigma,
		"WIDTH_SEED": &c.LineFit.WidthSeed,
	}
	for key, dst := range floatVars {
		if v, ok := lookup(EnvPrefix + key); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("error parsing %s%s: %w", EnvPrefix, key, err)
			}
			*dst = f
		}
	}

	if v, ok := lookup(EnvPrefix + "NUM_CORES"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("error parsing %sNUM_CORES: %w", EnvPrefix, err)
		}
		c.Processing.NumCores = n
	}
	if v, ok := lookup(EnvPrefix + "VERBOSE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("error parsing %sVERBOSE: %w", EnvPrefix, err)
		}
		c.Output.Verbose = b
	}
	if v, ok := lookup(EnvPrefix + "COLLAPSE_METHOD"); ok {
		c.Collapse.Method = v
	}
	if v, ok := lookup(EnvPrefix + "OUTPUT_DIR"); ok {
		c.Output.Dir = v
	}
	return nil
}

// Validate checks that every setting can be turned into core options.
func (c *Config) Validate() error {
	if c.Processing.NumCores < 1 {
		return fmt.Errorf("%w: numCores must be at least 1", ifuerr.ErrInvalidArgument)
	}
	if err := c.Calibration.Validate(); err != nil {
		return err
	}
	if _, err := c.CollapseOptions(); err != nil {
		return err
	}
	if _, err := c.ExtractionRegion(); err != nil {
		return err
	}
	if _, err := c.LineFitOptions(); err != nil {
		return err
	}
	if _, _, err := c.LineWindow(); err != nil {
		return err
	}
	switch c.Output.TableFormat {
	case "csv", "xlsx":
	default:
		return fmt.Errorf("%w: unknown table format %q", ifuerr.ErrInvalidArgument, c.Output.TableFormat)
	}
	return nil
}
