package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/air-quality-forecast/internal/domain"
	"github.com/couchcryptid/air-quality-forecast/internal/service"
)

// Outcome classifies how a request was answered. Every value except
// OutcomeServed is sent back to the caller as a rejection reason.
type Outcome string

const (
	OutcomeServed           Outcome = "served"
	OutcomeInvalid          Outcome = "invalid"
	OutcomeNotFound         Outcome = "not_found"
	OutcomeInsufficientData Outcome = "insufficient_data"
	OutcomeFailed           Outcome = "error"
)

// Response is the single sink event a request produces, plus what the
// pipeline needs to count and log it.
type Response struct {
	Event    domain.OutputEvent
	Outcome  Outcome
	Strategy domain.StrategyName // set when served
	Err      error               // set when rejected
}

// Forecaster produces and records classified forecasts.
type Forecaster interface {
	Forecast(ctx context.Context, loc domain.Location, key string, horizon int) (domain.Report, error)
	Record(ctx context.Context, report domain.Report)
}

// ForecastHandler implements Handler by running each request through the
// forecasting service.
type ForecastHandler struct {
	forecaster Forecaster
	logger     *slog.Logger
}

// NewHandler creates a ForecastHandler.
func NewHandler(forecaster Forecaster, logger *slog.Logger) *ForecastHandler {
	return &ForecastHandler{
		forecaster: forecaster,
		logger:     logger,
	}
}

func (h *ForecastHandler) Handle(ctx context.Context, raw domain.RawEvent) Response {
	req, err := service.DecodeRequest(raw.Value)
	if err != nil {
		return h.reject(raw, req, err)
	}

	report, err := h.forecaster.Forecast(ctx, req.Location(), req.Pollutant, req.HorizonDays)
	if err != nil {
		return h.reject(raw, req, err)
	}
	report.RequestID = req.RequestID

	out, err := EncodeReport(report)
	if err != nil {
		return h.reject(raw, req, err)
	}
	h.forecaster.Record(ctx, report)

	h.logger.Debug("forecast request served",
		"request_id", req.RequestID,
		"city", req.City,
		"country", req.Country,
		"pollutant", req.Pollutant,
		"strategy", report.Strategy,
	)
	return Response{Event: out, Outcome: OutcomeServed, Strategy: report.Strategy}
}

// reject answers req with a rejection event. req may be partially filled or
// zero when the payload did not decode.
func (h *ForecastHandler) reject(raw domain.RawEvent, req domain.ForecastRequest, err error) Response {
	outcome := outcomeFor(err)
	rej := domain.Rejection{
		RequestID:   req.RequestID,
		City:        req.City,
		Country:     req.Country,
		Pollutant:   req.Pollutant,
		Reason:      string(outcome),
		Error:       err.Error(),
		RequestedAt: raw.Timestamp,
	}
	if rej.RequestID == "" {
		rej.RequestID = string(raw.Key)
	}
	if outcome == OutcomeFailed {
		// Internal failures are logged in full but not echoed to callers.
		rej.Error = "internal error"
	}

	out, encErr := EncodeRejection(rej)
	if encErr != nil {
		// Only a timestamp outside years 0-9999 fails to encode.
		rej.RequestedAt = time.Time{}
		out, _ = EncodeRejection(rej)
	}
	return Response{
		Event:   out,
		Outcome: outcome,
		Err:     fmt.Errorf("request %s: %w", rej.RequestID, err),
	}
}

func outcomeFor(err error) Outcome {
	var insufficient *domain.InsufficientDataError
	switch {
	case errors.As(err, &insufficient):
		return OutcomeInsufficientData
	case errors.Is(err, domain.ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, domain.ErrInvalidHorizon),
		errors.Is(err, domain.ErrAmbiguousLocation):
		return OutcomeInvalid
	default:
		return OutcomeFailed
	}
}

// EncodeReport encodes a report for the sink topic, keyed by request id.
func EncodeReport(report domain.Report) (domain.OutputEvent, error) {
	data, err := json.Marshal(report)
	if err != nil {
		return domain.OutputEvent{}, fmt.Errorf("encode report: %w", err)
	}
	headers := map[string]string{
		"status":       "ok",
		"pollutant":    report.Pollutant,
		"strategy":     string(report.Strategy),
		"generated_at": report.GeneratedAt.Format(time.RFC3339),
	}
	if report.Country != "" {
		headers["country"] = report.Country
	}
	return domain.OutputEvent{Key: []byte(report.RequestID), Value: data, Headers: headers}, nil
}

// EncodeRejection encodes a rejection for the sink topic, keyed by request id.
func EncodeRejection(rej domain.Rejection) (domain.OutputEvent, error) {
	data, err := json.Marshal(rej)
	if err != nil {
		return domain.OutputEvent{}, fmt.Errorf("encode rejection: %w", err)
	}
	return domain.OutputEvent{
		Key:   []byte(rej.RequestID),
		Value: data,
		Headers: map[string]string{
			"status": "rejected",
			"reason": rej.Reason,
		},
	}, nil
}
