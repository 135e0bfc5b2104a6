package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"ifucube/pkg/collapse"
	"ifucube/pkg/ifuerr"
	"ifucube/pkg/linefit"
)

// TestDefaultConfig verifies that the defaults validate and convert
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default config does not validate: %v", err)
	}

	opts, err := cfg.CollapseOptions()
	if err != nil {
		t.Fatalf("Failed to convert collapse options: %v", err)
	}
	if opts.Method != collapse.Sum {
		t.Errorf("Expected sum collapse, got %s", opts.Method)
	}
	if opts.Clip != nil {
		t.Errorf("Expected clipping disabled by default")
	}
	if opts.Region != nil {
		t.Errorf("Expected whole-axis collapse by default, got %v", opts.Region)
	}

	if _, ok, _ := cfg.LineWindow(); ok {
		t.Errorf("Expected no line window by default")
	}
}

// TestSaveAndLoadConfig verifies a round trip through a YAML file
func TestSaveAndLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "ifucube.yaml")

	cfg := DefaultConfig()
	cfg.Processing.NumCores = 3
	cfg.Calibration.CRVal = 1.95
	cfg.Calibration.CDelt = 2.5e-4
	cfg.Collapse.Method = "median"
	cfg.Collapse.Region = []int{100, 900}
	cfg.Collapse.Sigma = 2.5
	cfg.Extraction.Spaxels = [][]int{{10, 12}, {30, 31}}
	cfg.LineFit.Window = []float64{2.16, 2.17}
	cfg.LineFit.Continuum = "linear"

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if loaded.Processing.NumCores != 3 {
		t.Errorf("Expected 3 cores, got %d", loaded.Processing.NumCores)
	}
	if loaded.Calibration != cfg.Calibration {
		t.Errorf("Expected calibration %+v, got %+v", cfg.Calibration, loaded.Calibration)
	}

	opts, err := loaded.CollapseOptions()
	if err != nil {
		t.Fatalf("Failed to convert collapse options: %v", err)
	}
	if opts.Method != collapse.Median || opts.Clip == nil || opts.Clip.Sigma != 2.5 {
		t.Errorf("Unexpected collapse options %+v", opts)
	}
	if opts.Region == nil || opts.Region.Begin != 100 || opts.Region.End != 900 {
		t.Errorf("Unexpected collapse region %v", opts.Region)
	}

	if len(loaded.Extraction.Spaxels) != 2 || loaded.Extraction.Spaxels[1][1] != 31 {
		t.Errorf("Unexpected spaxels %v", loaded.Extraction.Spaxels)
	}

	window, ok, err := loaded.LineWindow()
	if err != nil || !ok || window != [2]float64{2.16, 2.17} {
		t.Errorf("Unexpected line window %v (%v, %v)", window, ok, err)
	}

	fit, err := loaded.LineFitOptions()
	if err != nil {
		t.Fatalf("Failed to convert line fit options: %v", err)
	}
	if fit.Continuum != linefit.Linear {
		t.Errorf("Expected linear continuum, got %s", fit.Continuum)
	}
}

// TestLoadMissingConfig verifies that a missing file yields defaults
func TestLoadMissingConfig(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Expected defaults for missing file, got error: %v", err)
	}
	if cfg.Collapse.Method != "sum" {
		t.Errorf("Expected default method sum, got %s", cfg.Collapse.Method)
	}
}

// TestLoadInvalidConfig verifies that malformed YAML is reported
func TestLoadInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("collapse: [unclosed"), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("Expected a parse error")
	}
}

// TestApplyEnv verifies environment overrides
func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"IFUCUBE_CDELT":           "0.001",
		"IFUCUBE_NUM_CORES":       "2",
		"IFUCUBE_COLLAPSE_METHOD": "mean",
		"IFUCUBE_VERBOSE":         "true",
		"IFUCUBE_OUTPUT_DIR":      "/tmp/out",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(lookup); err != nil {
		t.Fatalf("Failed to apply env: %v", err)
	}
	if cfg.Calibration.CDelt != 0.001 || cfg.Processing.NumCores != 2 || cfg.Collapse.Method != "mean" ||
		!cfg.Output.Verbose || cfg.Output.Dir != "/tmp/out" {
		t.Errorf("Environment not applied: %+v", cfg)
	}

	env["IFUCUBE_SIGMA"] = "lots"
	if err := cfg.ApplyEnv(lookup); err == nil {
		t.Error("Expected an error for a malformed float")
	}
}

// TestValidateRejects verifies that bad settings are reported as invalid arguments
func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"method":    func(c *Config) { c.Collapse.Method = "mode" },
		"sigma":     func(c *Config) { c.Collapse.Sigma = -1 },
		"region":    func(c *Config) { c.Collapse.Region = []int{5} },
		"empty":     func(c *Config) { c.Extraction.Region = []int{5, 5} },
		"continuum": func(c *Config) { c.LineFit.Continuum = "spline" },
		"window":    func(c *Config) { c.LineFit.Window = []float64{2.2, 2.1} },
		"cores":     func(c *Config) { c.Processing.NumCores = 0 },
		"format":    func(c *Config) { c.Output.TableFormat = "json" },
	}
	for name, mutate := range cases {
		cfg := DefaultConfig()
		mutate(cfg)
		err := cfg.Validate()
		if !errors.Is(err, ifuerr.ErrInvalidArgument) {
			t.Errorf("%s: expected invalid argument, got %v", name, err)
		}
	}

	cfg := DefaultConfig()
	cfg.Calibration.CDelt = 0
	if err := cfg.Validate(); !errors.Is(err, ifuerr.ErrDivisionByZero) {
		t.Errorf("Expected division by zero for zero delta, got %v", err)
	}
}
