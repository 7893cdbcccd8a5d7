package model

import (
	"fmt"
	"path/filepath"
	"strings"

	"SmartMix/internal/logging"
	"SmartMix/internal/mix"
)

// Options locate the model artifacts.
type Options struct {
	ModelPath  string
	ScalerPath string
	OrtLibrary string
	Schema     Schema
}

// Assets are the scaler, model and output mapping loaded at start-up.
// They are read-only afterwards.
type Assets struct {
	Scaler *Scaler
	Model  Regressor
	Schema Schema
}

// Load reads both artifacts and checks them against each other. Every
// failure wraps ErrModelUnavailable.
func Load(opts Options) (*Assets, error) {
	scaler, err := LoadScaler(opts.ScalerPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	if scaler.Features() != mix.FeatureCount {
		return nil, fmt.Errorf("%w: scaler fitted on %d features, want %d", ErrModelUnavailable, scaler.Features(), mix.FeatureCount)
	}

	var reg Regressor
	switch strings.ToLower(filepath.Ext(opts.ModelPath)) {
	case ".onnx":
		reg, err = NewOrtRegressor(opts.ModelPath, opts.OrtLibrary)
	case ".json":
		reg, err = LoadForest(opts.ModelPath)
	default:
		err = fmt.Errorf("unsupported model format %q", filepath.Ext(opts.ModelPath))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}

	if err := opts.Schema.Validate(reg.Outputs()); err != nil {
		_ = reg.Close()
		return nil, fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}

	logging.Info().
		Str("model", opts.ModelPath).
		Str("scaler", opts.ScalerPath).
		Int("outputs", reg.Outputs()).
		Msg("model assets loaded")

	return &Assets{Scaler: scaler, Model: reg, Schema: opts.Schema}, nil
}

// Close releases the model.
func (a *Assets) Close() error {
	if a == nil || a.Model == nil {
		return nil
	}
	return a.Model.Close()
}
