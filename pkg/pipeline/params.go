package pipeline

import (
	"fmt"
	"log/slog"

	"ifucube/pkg/config"
	"ifucube/pkg/spectrum"
)

// ParamsFromConfig builds pipeline parameters from a validated configuration.
func ParamsFromConfig(cfg *config.Config, logger *slog.Logger) (*Params, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	collapseOpts, err := cfg.CollapseOptions()
	if err != nil {
		return nil, err
	}
	region, err := cfg.ExtractionRegion()
	if err != nil {
		return nil, err
	}
	var spaxels spectrum.Spaxels
	if len(cfg.Extraction.Spaxels) > 0 {
		spaxels, err = spectrum.ParseSpaxels(cfg.Extraction.Spaxels, logger)
		if err != nil {
			return nil, err
		}
	}
	fitOpts, err := cfg.LineFitOptions()
	if err != nil {
		return nil, err
	}

	params := &Params{
		Collapse: collapseOpts,
		Extraction: ExtractionParams{
			Spaxels: spaxels,
			Options: spectrum.Options{Region: region, RemoveContinuum: cfg.Extraction.RemoveContinuum},
		},
		LineFit:     LineFitParams{Options: fitOpts},
		Calibration: cfg.Calibration,
		NumCores:    cfg.Processing.NumCores,
		OutputDir:   cfg.Output.Dir,
		SaveResults: cfg.Output.SaveResults,
		TableFormat: cfg.Output.TableFormat,
		LogScale:    cfg.Output.LogScale,
		Logger:      logger,
	}

	window, ok, err := cfg.LineWindow()
	if err != nil {
		return nil, err
	}
	if ok {
		params.LineFit.Window = &window
	}
	return params, nil
}
