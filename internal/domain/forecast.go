package domain

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"
)

const (
	// ModelWindow is the fixed trailing window fed to a stored model.
	ModelWindow = 7
	// MinSmoothingPoints is the smallest series the fallback will forecast from.
	MinSmoothingPoints = 3
	// SmoothingWindow caps how many trailing values the fallback averages.
	SmoothingWindow = 7
)

// Model is a loaded, read-only predictor for one pollutant column. It must be
// safe for concurrent use.
type Model interface {
	// Predict returns the next value given ModelWindow values ordered oldest to newest.
	Predict(window []float64) (float64, error)
}

// ModelStore resolves pollutant column keys to models.
type ModelStore interface {
	Exists(key string) bool
	Load(key string) (Model, error)
}

// StrategyName identifies which algorithm produced a forecast.
type StrategyName string

const (
	StrategyModel     StrategyName = "model"
	StrategySmoothing StrategyName = "smoothing"
)

// Strategy rolls a series of values forward by horizon steps.
type Strategy interface {
	Name() StrategyName
	Predict(values []float64, horizon int) ([]float64, error)
}

// ModelStrategy feeds a sliding ModelWindow to a model, appending every
// prediction to the window so later steps are conditioned on earlier predictions.
type ModelStrategy struct {
	Key   string
	Model Model
}

func (ModelStrategy) Name() StrategyName { return StrategyModel }

// Predict requires at least ModelWindow values. A model error or a non-finite
// prediction aborts the rollout with a *ModelPredictError.
func (s ModelStrategy) Predict(values []float64, horizon int) ([]float64, error) {
	if len(values) < ModelWindow {
		return nil, &ModelPredictError{Key: s.Key, Err: fmt.Errorf("need %d values, have %d", ModelWindow, len(values))}
	}

	window := make([]float64, ModelWindow)
	copy(window, values[len(values)-ModelWindow:])

	out := make([]float64, 0, horizon)
	for step := 1; step <= horizon; step++ {
		input := make([]float64, ModelWindow)
		copy(input, window)

		pred, err := safePredict(s.Model, input)
		if err != nil {
			return nil, &ModelPredictError{Key: s.Key, Step: step, Err: err}
		}
		if math.IsNaN(pred) || math.IsInf(pred, 0) {
			return nil, &ModelPredictError{Key: s.Key, Step: step, Err: fmt.Errorf("non-finite prediction %v", pred)}
		}
		out = append(out, pred)

		copy(window, window[1:])
		window[ModelWindow-1] = pred
	}
	return out, nil
}

// safePredict converts a panicking model into an error.
func safePredict(m Model, window []float64) (pred float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("model panicked: %v", r)
		}
	}()
	return m.Predict(window)
}

// SmoothingStrategy emits the mean of the last min(n, SmoothingWindow) values
// of a working series that grows by each emitted mean. The averaging window
// therefore widens until it saturates at SmoothingWindow.
type SmoothingStrategy struct{}

func (SmoothingStrategy) Name() StrategyName { return StrategySmoothing }

func (SmoothingStrategy) Predict(values []float64, horizon int) ([]float64, error) {
	if len(values) == 0 {
		return nil, errors.New("smoothing: empty series")
	}

	working := make([]float64, len(values), len(values)+horizon)
	copy(working, values)

	out := make([]float64, 0, horizon)
	for range horizon {
		n := min(len(working), SmoothingWindow)
		avg := stat.Mean(working[len(working)-n:], nil)
		out = append(out, avg)
		working = append(working, avg)
	}
	return out, nil
}

// Result is the outcome of a successful forecast: exactly horizon points at
// consecutive days after the last observation.
type Result struct {
	Key            string       `json:"pollutant"`
	Strategy       StrategyName `json:"strategy"`
	Points         []Point      `json:"points"`
	Fallback       bool         `json:"fallback,omitempty"`
	FallbackReason string       `json:"fallback_reason,omitempty"`
}

// Forecaster chooses between a stored model and the smoothing fallback.
type Forecaster struct {
	store  ModelStore
	logger *slog.Logger
}

// NewForecaster creates a Forecaster. A nil store disables the model strategy.
func NewForecaster(store ModelStore, logger *slog.Logger) *Forecaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Forecaster{store: store, logger: logger}
}

// ModelAvailable reports whether the model strategy should be attempted.
func (f *Forecaster) ModelAvailable(key string, series Series) bool {
	return f.store != nil && series.Len() >= ModelWindow && f.store.Exists(key)
}

// Forecast predicts horizon daily values for the series. Model load and
// predict failures are logged and absorbed by falling back to smoothing; the
// only data-related error returned is *InsufficientDataError.
func (f *Forecaster) Forecast(series Series, key string, horizon int) (Result, error) {
	if horizon < 1 {
		return Result{}, ErrInvalidHorizon
	}

	values := series.Values()
	last, _ := series.Last()

	var fallbackErr error
	if f.ModelAvailable(key, series) {
		preds, err := f.predictWithModel(key, values, horizon)
		if err == nil {
			return newResult(key, StrategyModel, last.Date, preds), nil
		}
		fallbackErr = err
		f.logger.Warn("model forecast failed, falling back to smoothing",
			"pollutant", key,
			"points", series.Len(),
			"error", err,
		)
	}

	if series.Len() < MinSmoothingPoints {
		return Result{}, &InsufficientDataError{Key: key, Min: MinSmoothingPoints, Have: series.Len()}
	}

	preds, err := SmoothingStrategy{}.Predict(values, horizon)
	if err != nil {
		return Result{}, err
	}

	res := newResult(key, StrategySmoothing, last.Date, preds)
	if fallbackErr != nil {
		res.Fallback = true
		res.FallbackReason = fallbackErr.Error()
	}
	return res, nil
}

func (f *Forecaster) predictWithModel(key string, values []float64, horizon int) ([]float64, error) {
	model, err := f.store.Load(key)
	if err != nil {
		var loadErr *ModelLoadError
		if !errors.As(err, &loadErr) {
			err = &ModelLoadError{Key: key, Err: err}
		}
		return nil, err
	}
	if model == nil {
		return nil, &ModelLoadError{Key: key, Err: errors.New("store returned nil model")}
	}
	return ModelStrategy{Key: key, Model: model}.Predict(values, horizon)
}

func newResult(key string, strategy StrategyName, last time.Time, preds []float64) Result {
	points := make([]Point, len(preds))
	for i, v := range preds {
		points[i] = Point{Date: last.AddDate(0, 0, i+1), Value: v}
	}
	return Result{Key: key, Strategy: strategy, Points: points}
}
