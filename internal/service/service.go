// Package service implements the forecasting use cases shared by the HTTP
// API, the Kafka pipeline, and the CLI.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/air-quality-forecast/internal/domain"
	"github.com/couchcryptid/air-quality-forecast/internal/observability"
)

// ErrNonFiniteValue is returned when asked to classify NaN or an infinity.
var ErrNonFiniteValue = errors.New("value must be a finite number")

// SeriesProvider supplies observed series. Unknown cities and columns are
// reported as domain.ErrNotFound, a bare city name shared by several
// countries as domain.ErrAmbiguousLocation.
type SeriesProvider interface {
	Series(ctx context.Context, loc domain.Location, key string) (domain.Series, error)
	Latest(ctx context.Context, key string) ([]domain.Reading, error)
	Columns(ctx context.Context) ([]string, error)
	Cities(ctx context.Context) ([]domain.Location, error)
}

// ForecastLogger persists generated reports.
type ForecastLogger interface {
	SaveForecastLog(ctx context.Context, report domain.Report) error
}

// Service wires a series provider to the forecaster.
type Service struct {
	provider   SeriesProvider
	forecaster *domain.Forecaster
	logger     *slog.Logger
	metrics    *observability.Metrics
	clock      clockwork.Clock
	reports    ForecastLogger
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the clock used for Report.GeneratedAt.
func WithClock(c clockwork.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithForecastLogger records every successful report. Logging failures are
// warned about and never fail the forecast.
func WithForecastLogger(l ForecastLogger) Option {
	return func(s *Service) { s.reports = l }
}

// New creates a Service.
func New(provider SeriesProvider, forecaster *domain.Forecaster, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Service {
	s := &Service{
		provider:   provider,
		forecaster: forecaster,
		logger:     logger,
		metrics:    metrics,
		clock:      clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Forecast predicts horizon days of key for loc and classifies every point.
func (s *Service) Forecast(ctx context.Context, loc domain.Location, key string, horizon int) (domain.Report, error) {
	start := s.clock.Now()
	defer func() { s.metrics.ForecastDuration.Observe(s.clock.Since(start).Seconds()) }()

	if horizon < 1 {
		return domain.Report{}, domain.ErrInvalidHorizon
	}
	series, err := s.provider.Series(ctx, loc, key)
	if err != nil {
		return domain.Report{}, err
	}

	res, err := s.forecaster.Forecast(series, key, horizon)
	if err != nil {
		var insufficient *domain.InsufficientDataError
		if errors.As(err, &insufficient) {
			s.metrics.InsufficientData.Inc()
		}
		return domain.Report{}, err
	}

	s.metrics.Forecasts.WithLabelValues(string(res.Strategy)).Inc()
	if res.Fallback {
		s.metrics.ModelFallbacks.Inc()
	}

	report := domain.Report{
		City:           loc.City,
		Country:        loc.Country,
		Pollutant:      key,
		HorizonDays:    horizon,
		Strategy:       res.Strategy,
		Fallback:       res.Fallback,
		FallbackReason: res.FallbackReason,
		Observed:       series.Len(),
		Points:         make([]domain.ForecastPoint, len(res.Points)),
		GeneratedAt:    s.clock.Now().UTC(),
	}
	if last, ok := series.Last(); ok {
		report.LastObserved = last.Date
	}
	for i, p := range res.Points {
		band := domain.Classify(p.Value)
		s.metrics.Classifications.WithLabelValues(band.Slug()).Inc()
		report.Points[i] = domain.ForecastPoint{Date: p.Date, Value: p.Value, Band: band}
	}

	s.logger.Debug("forecast generated",
		"city", loc.City,
		"country", loc.Country,
		"pollutant", key,
		"strategy", res.Strategy,
		"horizon", horizon,
	)
	return report, nil
}

// Record persists report if a ForecastLogger is configured.
func (s *Service) Record(ctx context.Context, report domain.Report) {
	if s.reports == nil {
		return
	}
	if err := s.reports.SaveForecastLog(ctx, report); err != nil {
		s.logger.Warn("save forecast log failed", "error", err, "request_id", report.RequestID)
	}
}

// Classify validates and classifies a single value.
func (s *Service) Classify(value float64) (domain.Band, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, ErrNonFiniteValue
	}
	band := domain.Classify(value)
	s.metrics.Classifications.WithLabelValues(band.Slug()).Inc()
	return band, nil
}

// Alert is a city's latest reading of a column with its band.
type Alert struct {
	domain.Reading
	Band domain.Band `json:"band"`
}

// Alerts returns the latest classified reading of key per city, most severe
// first. A non-empty country keeps only that country's cities.
func (s *Service) Alerts(ctx context.Context, key, country string) ([]Alert, error) {
	readings, err := s.provider.Latest(ctx, key)
	if err != nil {
		return nil, err
	}
	country = strings.TrimSpace(country)
	alerts := make([]Alert, 0, len(readings))
	for _, r := range readings {
		if country != "" && !strings.EqualFold(r.Country, country) {
			continue
		}
		alerts = append(alerts, Alert{Reading: r, Band: domain.Classify(r.Value)})
	}
	sortAlerts(alerts)
	return alerts, nil
}

// Comparison pairs a satellite and a ground reading taken on the same day.
type Comparison struct {
	Date      time.Time `json:"date"`
	Satellite float64   `json:"satellite"`
	Ground    float64   `json:"ground"`
	Diff      float64   `json:"diff"`
}

// Compare pairs key with its counterpart column for loc. key may name either
// source; the result is always satellite against ground, on shared days only.
func (s *Service) Compare(ctx context.Context, loc domain.Location, key string) ([]Comparison, error) {
	other, ok := domain.Counterpart(key)
	if !ok {
		return nil, fmt.Errorf("%w: column %q has no satellite or ground suffix", ErrInvalidRequest, key)
	}
	satKey, groundKey := key, other
	if _, src, _ := domain.ParseColumn(key); src == domain.SourceGround {
		satKey, groundKey = other, key
	}

	sat, err := s.provider.Series(ctx, loc, satKey)
	if err != nil {
		return nil, err
	}
	ground, err := s.provider.Series(ctx, loc, groundKey)
	if err != nil {
		return nil, err
	}

	groundByDay := make(map[time.Time]float64, ground.Len())
	for _, p := range ground.Points() {
		groundByDay[p.Date] = p.Value
	}
	var out []Comparison
	for _, p := range sat.Points() {
		g, ok := groundByDay[p.Date]
		if !ok {
			continue
		}
		out = append(out, Comparison{Date: p.Date, Satellite: p.Value, Ground: g, Diff: p.Value - g})
	}
	return out, nil
}

// Columns lists the forecastable column keys.
func (s *Service) Columns(ctx context.Context) ([]string, error) {
	return s.provider.Columns(ctx)
}

// Cities lists the known cities with their countries.
func (s *Service) Cities(ctx context.Context) ([]domain.Location, error) {
	return s.provider.Cities(ctx)
}
