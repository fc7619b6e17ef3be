// Package model implements the persisted per-column forecasting model: a
// linear regression over the previous domain.ModelWindow daily values.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/couchcryptid/air-quality-forecast/internal/domain"
)

// LinearModel predicts the next value as Intercept + sum(Coefficients[i] * window[i]),
// with window ordered oldest to newest. It is immutable after Decode or Train.
type LinearModel struct {
	Key          string    `json:"key"`
	Window       int       `json:"window"`
	Coefficients []float64 `json:"coefficients"`
	Intercept    float64   `json:"intercept"`
	Samples      int       `json:"samples"`
	TestRMSE     float64   `json:"test_rmse"`
	TrainedAt    time.Time `json:"trained_at"`
}

var _ domain.Model = (*LinearModel)(nil)

// ErrShapeMismatch is returned when a window length differs from the model's.
var ErrShapeMismatch = errors.New("window shape mismatch")

// Predict evaluates the regression on a window of exactly Window values.
func (m *LinearModel) Predict(window []float64) (float64, error) {
	if len(window) != len(m.Coefficients) {
		return 0, fmt.Errorf("%w: expected %d values, got %d", ErrShapeMismatch, len(m.Coefficients), len(window))
	}
	y := m.Intercept
	for i, c := range m.Coefficients {
		y += c * window[i]
	}
	return y, nil
}

// Validate checks the artifact is internally consistent.
func (m *LinearModel) Validate() error {
	if m.Window != domain.ModelWindow {
		return fmt.Errorf("model %s: window %d, want %d", m.Key, m.Window, domain.ModelWindow)
	}
	if len(m.Coefficients) != m.Window {
		return fmt.Errorf("model %s: %d coefficients for window %d", m.Key, len(m.Coefficients), m.Window)
	}
	for _, c := range append([]float64{m.Intercept}, m.Coefficients...) {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return fmt.Errorf("model %s: non-finite parameter", m.Key)
		}
	}
	return nil
}

// Save writes the artifact as indented JSON.
func (m *LinearModel) Save(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("encode model %s: %w", m.Key, err)
	}
	return nil
}

// Decode reads and validates an artifact written by Save.
func Decode(r io.Reader) (*LinearModel, error) {
	var m LinearModel
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}
