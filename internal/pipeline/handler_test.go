package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/air-quality-forecast/internal/domain"
	"github.com/couchcryptid/air-quality-forecast/internal/pipeline"
)

var generatedAt = time.Date(2024, time.April, 1, 12, 0, 0, 0, time.UTC)

type fakeForecaster struct {
	err      error
	calls    []domain.ForecastRequest
	recorded []domain.Report
}

func (f *fakeForecaster) Forecast(_ context.Context, loc domain.Location, key string, horizon int) (domain.Report, error) {
	f.calls = append(f.calls, domain.ForecastRequest{City: loc.City, Country: loc.Country, Pollutant: key, HorizonDays: horizon})
	if f.err != nil {
		return domain.Report{}, f.err
	}
	pts := make([]domain.ForecastPoint, horizon)
	for i := range pts {
		pts[i] = domain.ForecastPoint{
			Date:  time.Date(2024, time.March, 11+i, 0, 0, 0, 0, time.UTC),
			Value: 120,
			Band:  domain.Unhealthy,
		}
	}
	return domain.Report{
		City:        loc.City,
		Country:     loc.Country,
		Pollutant:   key,
		HorizonDays: horizon,
		Strategy:    domain.StrategyModel,
		Observed:    10,
		Points:      pts,
		GeneratedAt: generatedAt,
	}, nil
}

func (f *fakeForecaster) Record(_ context.Context, r domain.Report) {
	f.recorded = append(f.recorded, r)
}

func decodeRejection(t *testing.T, out domain.OutputEvent) domain.Rejection {
	t.Helper()
	assert.Equal(t, "rejected", out.Headers["status"])
	var rej domain.Rejection
	require.NoError(t, json.Unmarshal(out.Value, &rej))
	assert.Equal(t, rej.Reason, out.Headers["reason"])
	return rej
}

func TestForecastHandler_Served(t *testing.T) {
	fc := &fakeForecaster{}
	h := pipeline.NewHandler(fc, discardLogger())

	resp := h.Handle(context.Background(), makeRawRequest(t, "req-1", "Delhi", "PM2.5_ground", 2))
	require.NoError(t, resp.Err)
	assert.Equal(t, pipeline.OutcomeServed, resp.Outcome)
	assert.Equal(t, domain.StrategyModel, resp.Strategy)

	out := resp.Event
	assert.Equal(t, []byte("req-1"), out.Key)
	assert.Equal(t, map[string]string{
		"status":       "ok",
		"pollutant":    "PM2.5_ground",
		"strategy":     "model",
		"generated_at": "2024-04-01T12:00:00Z",
	}, out.Headers)

	var report domain.Report
	require.NoError(t, json.Unmarshal(out.Value, &report))
	assert.Equal(t, "req-1", report.RequestID)
	require.Len(t, report.Points, 2)
	assert.Equal(t, domain.Unhealthy, report.Points[0].Band)
	assert.Contains(t, string(out.Value), `"band":"Unhealthy"`)

	require.Len(t, fc.recorded, 1)
	assert.Equal(t, "req-1", fc.recorded[0].RequestID)
}

func TestForecastHandler_PassesCountry(t *testing.T) {
	fc := &fakeForecaster{}
	h := pipeline.NewHandler(fc, discardLogger())

	raw := domain.RawEvent{Value: []byte(`{"request_id":"req-2","city":"London","country":"Canada","pollutant":"PM10_sat","horizon_days":1}`)}
	resp := h.Handle(context.Background(), raw)
	require.Equal(t, pipeline.OutcomeServed, resp.Outcome)

	require.Len(t, fc.calls, 1)
	assert.Equal(t, "Canada", fc.calls[0].Country)
	assert.Equal(t, "Canada", resp.Event.Headers["country"])
}

func TestForecastHandler_AssignsRequestID(t *testing.T) {
	h := pipeline.NewHandler(&fakeForecaster{}, discardLogger())

	raw := domain.RawEvent{Value: []byte(`{"city":"Delhi","pollutant":"PM10_sat","horizon_days":1}`)}
	resp := h.Handle(context.Background(), raw)
	require.Equal(t, pipeline.OutcomeServed, resp.Outcome)

	_, err := uuid.Parse(string(resp.Event.Key))
	assert.NoError(t, err, "generated request id should be a UUID")
}

func TestForecastHandler_RejectsInvalidRequests(t *testing.T) {
	cases := map[string]string{
		"not json":          `not json`,
		"missing city":      `{"pollutant":"PM10_sat","horizon_days":1}`,
		"missing pollutant": `{"city":"Delhi","horizon_days":1}`,
		"missing horizon":   `{"city":"Delhi","pollutant":"PM10_sat"}`,
		"horizon too large": `{"city":"Delhi","pollutant":"PM10_sat","horizon_days":31}`,
		"negative horizon":  `{"city":"Delhi","pollutant":"PM10_sat","horizon_days":-2}`,
		"wrong type":        `{"city":"Delhi","pollutant":"PM10_sat","horizon_days":"7"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			fc := &fakeForecaster{}
			h := pipeline.NewHandler(fc, discardLogger())

			resp := h.Handle(context.Background(), domain.RawEvent{Key: []byte("k-1"), Value: []byte(body)})
			assert.Equal(t, pipeline.OutcomeInvalid, resp.Outcome)
			require.Error(t, resp.Err)
			assert.Empty(t, fc.calls, "invalid requests never reach the forecaster")

			rej := decodeRejection(t, resp.Event)
			assert.Equal(t, "invalid", rej.Reason)
			assert.Equal(t, "k-1", rej.RequestID, "the message key stands in for a missing request id")
			assert.Contains(t, rej.Error, "invalid request")
		})
	}
}

func TestForecastHandler_RejectionEchoesRequest(t *testing.T) {
	h := pipeline.NewHandler(&fakeForecaster{}, discardLogger())
	requestedAt := time.Date(2024, time.April, 2, 8, 0, 0, 0, time.UTC)

	raw := domain.RawEvent{
		Value:     []byte(`{"request_id":"req-5","city":"Delhi","country":"India","pollutant":"PM10_sat","horizon_days":99}`),
		Timestamp: requestedAt,
	}
	rej := decodeRejection(t, h.Handle(context.Background(), raw).Event)
	assert.Equal(t, domain.Rejection{
		RequestID:   "req-5",
		City:        "Delhi",
		Country:     "India",
		Pollutant:   "PM10_sat",
		Reason:      "invalid",
		Error:       rej.Error,
		RequestedAt: requestedAt,
	}, rej)
}

func TestForecastHandler_RejectionReasons(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		outcome pipeline.Outcome
		message string
	}{
		{
			name:    "insufficient data",
			err:     &domain.InsufficientDataError{Key: "SO2_ground", Min: 3, Have: 2},
			outcome: pipeline.OutcomeInsufficientData,
			message: (&domain.InsufficientDataError{Key: "SO2_ground", Min: 3, Have: 2}).Error(),
		},
		{
			name:    "unknown city",
			err:     fmt.Errorf("city %q: %w", "Paris", domain.ErrNotFound),
			outcome: pipeline.OutcomeNotFound,
			message: `city "Paris": not found`,
		},
		{
			name:    "ambiguous city",
			err:     fmt.Errorf("city %q: %w", "London", domain.ErrAmbiguousLocation),
			outcome: pipeline.OutcomeInvalid,
		},
		{
			name:    "internal failure",
			err:     errors.New("connection reset by peer"),
			outcome: pipeline.OutcomeFailed,
			message: "internal error",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fc := &fakeForecaster{err: tc.err}
			h := pipeline.NewHandler(fc, discardLogger())

			resp := h.Handle(context.Background(), makeRawRequest(t, "req-9", "Delhi", "SO2_ground", 3))
			assert.Equal(t, tc.outcome, resp.Outcome)
			require.ErrorIs(t, resp.Err, tc.err)
			assert.Contains(t, resp.Err.Error(), "req-9")
			assert.Empty(t, fc.recorded)

			rej := decodeRejection(t, resp.Event)
			assert.Equal(t, "req-9", rej.RequestID)
			assert.Equal(t, string(tc.outcome), rej.Reason)
			if tc.message != "" {
				assert.Equal(t, tc.message, rej.Error)
			}
		})
	}
}

func TestEncodeReport_HeadersForFallback(t *testing.T) {
	out, err := pipeline.EncodeReport(domain.Report{
		RequestID:   "req-3",
		Pollutant:   "O3_sat",
		Strategy:    domain.StrategySmoothing,
		Fallback:    true,
		GeneratedAt: generatedAt,
	})
	require.NoError(t, err)
	assert.Equal(t, "smoothing", out.Headers["strategy"])
	assert.NotContains(t, out.Headers, "country")
	assert.Contains(t, string(out.Value), `"fallback":true`)
}
