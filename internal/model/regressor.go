package model

import "errors"

var (
	// ErrModelUnavailable means the model or scaler could not be loaded.
	ErrModelUnavailable = errors.New("model unavailable")
	// ErrOutputShape means the model declares fewer outputs than the schema maps.
	ErrOutputShape = errors.New("model output shape mismatch")
)

// Regressor is a multi-output model fed with scaled features.
type Regressor interface {
	Predict(features []float64) ([]float64, error)
	Outputs() int
	Close() error
}
