package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/air-quality-forecast/internal/domain"
	"github.com/couchcryptid/air-quality-forecast/internal/observability"
)

// --- test doubles ---

type fakeProvider struct {
	series map[domain.Location]map[string][]domain.Point
	latest map[string][]domain.Reading
}

func (p *fakeProvider) Series(_ context.Context, loc domain.Location, key string) (domain.Series, error) {
	var matches []map[string][]domain.Point
	for l, byKey := range p.series {
		if strings.EqualFold(l.City, loc.City) && (loc.Country == "" || strings.EqualFold(l.Country, loc.Country)) {
			matches = append(matches, byKey)
		}
	}
	switch len(matches) {
	case 0:
		return domain.Series{}, fmt.Errorf("city %q: %w", loc.String(), domain.ErrNotFound)
	case 1:
	default:
		return domain.Series{}, fmt.Errorf("city %q: %w", loc.City, domain.ErrAmbiguousLocation)
	}
	pts, ok := matches[0][key]
	if !ok {
		return domain.Series{}, fmt.Errorf("column %q: %w", key, domain.ErrNotFound)
	}
	return domain.NewSeries(pts), nil
}

func (p *fakeProvider) Latest(_ context.Context, key string) ([]domain.Reading, error) {
	r, ok := p.latest[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return r, nil
}

func (p *fakeProvider) Columns(context.Context) ([]string, error) {
	return []string{"PM10_ground", "PM10_sat"}, nil
}

func (p *fakeProvider) Cities(context.Context) ([]domain.Location, error) {
	return []domain.Location{{City: "Delhi", Country: "India"}}, nil
}

type constModel float64

func (m constModel) Predict([]float64) (float64, error) { return float64(m), nil }

type staticStore struct{ model domain.Model }

func (s staticStore) Exists(string) bool { return s.model != nil }

func (s staticStore) Load(string) (domain.Model, error) { return s.model, nil }

type failingStore struct{}

func (failingStore) Exists(string) bool { return true }

func (failingStore) Load(key string) (domain.Model, error) {
	return nil, &domain.ModelLoadError{Key: key, Err: errors.New("corrupt")}
}

type recordingLog struct {
	reports []domain.Report
	err     error
}

func (l *recordingLog) SaveForecastLog(_ context.Context, r domain.Report) error {
	l.reports = append(l.reports, r)
	return l.err
}

// --- helpers ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func day(d int) time.Time {
	return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC)
}

func points(values ...float64) []domain.Point {
	out := make([]domain.Point, len(values))
	for i, v := range values {
		out[i] = domain.Point{Date: day(i + 1), Value: v}
	}
	return out
}

func newProvider() *fakeProvider {
	return &fakeProvider{
		series: map[domain.Location]map[string][]domain.Point{
			{City: "Delhi", Country: "India"}: {
				"PM10_ground": points(10, 20, 30, 40, 50, 60, 70, 80),
				"PM10_sat":    points(12, 22, 28),
				"SO2_ground":  points(1, 2),
			},
			{City: "London", Country: "UK"}: {
				"PM10_ground": points(10, 11, 12),
			},
			{City: "London", Country: "Canada"}: {
				"PM10_ground": points(300, 310, 320),
			},
		},
		latest: map[string][]domain.Reading{
			"PM2.5_ground": {
				{City: "Lima", Country: "Peru", Date: day(5), Value: 40},
				{City: "Delhi", Country: "India", Date: day(5), Value: 250},
				{City: "Agra", Country: "India", Date: day(5), Value: 120},
				{City: "Pune", Country: "India", Date: day(5), Value: 120},
			},
		},
	}
}

func newTestService(store domain.ModelStore, opts ...Option) (*Service, *observability.Metrics) {
	metrics := observability.NewMetricsForTesting()
	f := domain.NewForecaster(store, discardLogger())
	return New(newProvider(), f, discardLogger(), metrics, opts...), metrics
}

// --- Forecast ---

func TestForecast_SmoothingReport(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC))
	svc, metrics := newTestService(nil, WithClock(clock))

	report, err := svc.Forecast(context.Background(), domain.Location{City: "Delhi"}, "PM10_sat", 2)
	require.NoError(t, err)

	want := domain.Report{
		City:         "Delhi",
		Pollutant:    "PM10_sat",
		HorizonDays:  2,
		Strategy:     domain.StrategySmoothing,
		Observed:     3,
		LastObserved: day(3),
		Points: []domain.ForecastPoint{
			{Date: day(4), Value: 62.0 / 3, Band: domain.Good},
			{Date: day(5), Value: (62.0 + 62.0/3) / 4, Band: domain.Good},
		},
		GeneratedAt: clock.Now(),
	}
	if diff := cmp.Diff(want, report, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("report mismatch (-want +got):\n%s", diff)
	}
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.Forecasts.WithLabelValues("smoothing")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.Classifications.WithLabelValues("good")), 0)
}

func TestForecast_ModelReportClassifiesPoints(t *testing.T) {
	svc, metrics := newTestService(staticStore{model: constModel(175)})

	report, err := svc.Forecast(context.Background(), domain.Location{City: "delhi"}, "PM10_ground", 3)
	require.NoError(t, err)

	assert.Equal(t, domain.StrategyModel, report.Strategy)
	assert.False(t, report.Fallback)
	require.Len(t, report.Points, 3)
	for _, p := range report.Points {
		assert.Equal(t, domain.VeryUnhealthy, p.Band)
	}
	assert.Equal(t, day(9), report.Points[0].Date)
	assert.InDelta(t, 3, testutil.ToFloat64(metrics.Classifications.WithLabelValues("very_unhealthy")), 0)
}

func TestForecast_FallbackCounted(t *testing.T) {
	svc, metrics := newTestService(failingStore{})

	report, err := svc.Forecast(context.Background(), domain.Location{City: "Delhi"}, "PM10_ground", 1)
	require.NoError(t, err)

	assert.Equal(t, domain.StrategySmoothing, report.Strategy)
	assert.True(t, report.Fallback)
	assert.Contains(t, report.FallbackReason, "corrupt")
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.ModelFallbacks), 0)
}

func TestForecast_InsufficientData(t *testing.T) {
	svc, metrics := newTestService(nil)

	_, err := svc.Forecast(context.Background(), domain.Location{City: "Delhi"}, "SO2_ground", 3)
	var insufficient *domain.InsufficientDataError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, "Not enough data to predict SO2_ground. Minimum 3 points required.", err.Error())
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.InsufficientData), 0)
}

func TestForecast_NotFound(t *testing.T) {
	svc, _ := newTestService(nil)

	_, err := svc.Forecast(context.Background(), domain.Location{City: "Paris"}, "PM10_ground", 3)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.Forecast(context.Background(), domain.Location{City: "Delhi"}, "CO_sat", 3)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestForecast_SameCityNameInTwoCountries(t *testing.T) {
	svc, _ := newTestService(nil)

	uk, err := svc.Forecast(context.Background(), domain.Location{City: "London", Country: "UK"}, "PM10_ground", 1)
	require.NoError(t, err)
	assert.Equal(t, "UK", uk.Country)
	assert.InDelta(t, 11, uk.Points[0].Value, 1e-9)

	ca, err := svc.Forecast(context.Background(), domain.Location{City: "london", Country: "canada"}, "PM10_ground", 1)
	require.NoError(t, err)
	assert.InDelta(t, 310, ca.Points[0].Value, 1e-9)

	_, err = svc.Forecast(context.Background(), domain.Location{City: "London"}, "PM10_ground", 1)
	assert.ErrorIs(t, err, domain.ErrAmbiguousLocation)
}

func TestForecast_InvalidHorizon(t *testing.T) {
	svc, _ := newTestService(nil)

	_, err := svc.Forecast(context.Background(), domain.Location{City: "Delhi"}, "PM10_ground", 0)
	assert.ErrorIs(t, err, domain.ErrInvalidHorizon)
}

func TestRecord(t *testing.T) {
	log := &recordingLog{err: errors.New("db down")}
	svc, _ := newTestService(nil, WithForecastLogger(log))

	report, err := svc.Forecast(context.Background(), domain.Location{City: "Delhi"}, "PM10_sat", 1)
	require.NoError(t, err)
	report.RequestID = "req-1"

	svc.Record(context.Background(), report)
	require.Len(t, log.reports, 1)
	assert.Equal(t, "req-1", log.reports[0].RequestID)

	plain, _ := newTestService(nil)
	plain.Record(context.Background(), report)
}

// --- Classify ---

func TestClassify(t *testing.T) {
	svc, metrics := newTestService(nil)

	band, err := svc.Classify(150)
	require.NoError(t, err)
	assert.Equal(t, domain.Unhealthy, band)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.Classifications.WithLabelValues("unhealthy")), 0)

	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := svc.Classify(v)
		assert.ErrorIs(t, err, ErrNonFiniteValue)
	}
}

// --- Alerts ---

func TestAlerts_SortedBySeverity(t *testing.T) {
	svc, _ := newTestService(nil)

	alerts, err := svc.Alerts(context.Background(), "PM2.5_ground", "")
	require.NoError(t, err)

	var cities []string
	for _, a := range alerts {
		cities = append(cities, a.City)
	}
	assert.Equal(t, []string{"Delhi", "Agra", "Pune", "Lima"}, cities)
	assert.Equal(t, domain.Hazardous, alerts[0].Band)
	assert.Equal(t, domain.Good, alerts[3].Band)

	_, err = svc.Alerts(context.Background(), "CO_sat", "")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAlerts_CountryFilter(t *testing.T) {
	svc, _ := newTestService(nil)

	alerts, err := svc.Alerts(context.Background(), "PM2.5_ground", "india")
	require.NoError(t, err)

	var cities []string
	for _, a := range alerts {
		cities = append(cities, a.City)
	}
	assert.Equal(t, []string{"Delhi", "Agra", "Pune"}, cities)

	alerts, err = svc.Alerts(context.Background(), "PM2.5_ground", "Chile")
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

// --- Compare ---

func TestCompare_PairsSharedDays(t *testing.T) {
	svc, _ := newTestService(nil)

	want := []Comparison{
		{Date: day(1), Satellite: 12, Ground: 10, Diff: 2},
		{Date: day(2), Satellite: 22, Ground: 20, Diff: 2},
		{Date: day(3), Satellite: 28, Ground: 30, Diff: -2},
	}
	for _, key := range []string{"PM10_sat", "PM10_ground"} {
		got, err := svc.Compare(context.Background(), domain.Location{City: "Delhi"}, key)
		require.NoError(t, err, key)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("%s comparison mismatch (-want +got):\n%s", key, diff)
		}
	}
}

func TestCompare_Errors(t *testing.T) {
	svc, _ := newTestService(nil)

	_, err := svc.Compare(context.Background(), domain.Location{City: "Delhi"}, "PM10")
	require.ErrorIs(t, err, ErrInvalidRequest)

	_, err = svc.Compare(context.Background(), domain.Location{City: "Delhi"}, "SO2_ground")
	assert.ErrorIs(t, err, domain.ErrNotFound, "missing satellite counterpart")
}

func TestColumnsAndCities(t *testing.T) {
	svc, _ := newTestService(nil)

	cols, err := svc.Columns(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"PM10_ground", "PM10_sat"}, cols)

	cities, err := svc.Cities(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.Location{{City: "Delhi", Country: "India"}}, cities)
}
