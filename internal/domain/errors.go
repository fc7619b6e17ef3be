package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidHorizon is returned when a forecast is requested for fewer than one day.
var ErrInvalidHorizon = errors.New("forecast horizon must be at least 1 day")

// ErrNotFound is returned by series providers for an unknown city or column.
var ErrNotFound = errors.New("not found")

// ErrAmbiguousLocation is returned when a city name without a country matches
// cities in more than one country.
var ErrAmbiguousLocation = errors.New("city name exists in more than one country, country is required")

// InsufficientDataError reports that a series is too short for any strategy.
// It is the only forecasting failure surfaced to callers.
type InsufficientDataError struct {
	Key  string
	Min  int
	Have int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("Not enough data to predict %s. Minimum %d points required.", e.Key, e.Min)
}

// ModelLoadError wraps a failure to load the model artifact for a key.
type ModelLoadError struct {
	Key string
	Err error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("load model %s: %v", e.Key, e.Err)
}

func (e *ModelLoadError) Unwrap() error { return e.Err }

// ModelPredictError wraps a failure raised while a loaded model was predicting.
type ModelPredictError struct {
	Key  string
	Step int
	Err  error
}

func (e *ModelPredictError) Error() string {
	return fmt.Sprintf("predict %s step %d: %v", e.Key, e.Step, e.Err)
}

func (e *ModelPredictError) Unwrap() error { return e.Err }
