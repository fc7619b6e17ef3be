package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/couchcryptid/air-quality-forecast/internal/domain"
	"github.com/couchcryptid/air-quality-forecast/internal/service"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

type classifyResponse struct {
	Value float64     `json:"value"`
	Band  domain.Band `json:"band"`
	Level string      `json:"level"`
}

type alertsResponse struct {
	Pollutant string          `json:"pollutant"`
	Country   string          `json:"country,omitempty"`
	Alerts    []service.Alert `json:"alerts"`
}

type compareResponse struct {
	City      string               `json:"city"`
	Country   string               `json:"country,omitempty"`
	Pollutant string               `json:"pollutant"`
	Points    []service.Comparison `json:"points"`
}

type columnsResponse struct {
	Columns []string          `json:"columns"`
	Cities  []domain.Location `json:"cities"`
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("value")
	if raw == "" {
		s.writeError(w, r, fmt.Errorf("%w: value is required", service.ErrInvalidRequest))
		return
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: value %q is not a number", service.ErrInvalidRequest, raw))
		return
	}
	band, err := s.svc.Classify(v)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, classifyResponse{Value: v, Band: band, Level: band.Slug()})
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %v", service.ErrInvalidRequest, err))
		return
	}
	req, err := service.DecodeRequest(body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	report, err := s.svc.Forecast(r.Context(), req.Location(), req.Pollutant, req.HorizonDays)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	report.RequestID = req.RequestID
	s.svc.Record(r.Context(), report)

	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	key, country := q.Get("pollutant"), q.Get("country")
	if key == "" {
		s.writeError(w, r, fmt.Errorf("%w: pollutant is required", service.ErrInvalidRequest))
		return
	}
	alerts, err := s.svc.Alerts(r.Context(), key, country)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, alertsResponse{Pollutant: key, Country: country, Alerts: alerts})
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	loc := domain.Location{City: q.Get("city"), Country: q.Get("country")}
	key := q.Get("pollutant")
	if loc.City == "" || key == "" {
		s.writeError(w, r, fmt.Errorf("%w: city and pollutant are required", service.ErrInvalidRequest))
		return
	}
	points, err := s.svc.Compare(r.Context(), loc, key)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if points == nil {
		points = []service.Comparison{}
	}
	writeJSON(w, http.StatusOK, compareResponse{City: loc.City, Country: loc.Country, Pollutant: key, Points: points})
}

func (s *Server) handleColumns(w http.ResponseWriter, r *http.Request) {
	cols, err := s.svc.Columns(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	cities, err := s.svc.Cities(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, columnsResponse{Columns: cols, Cities: cities})
}

// statusFor maps service and domain errors to HTTP status codes.
func statusFor(err error) int {
	var insufficient *domain.InsufficientDataError
	switch {
	case errors.As(err, &insufficient):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, service.ErrNonFiniteValue),
		errors.Is(err, domain.ErrInvalidHorizon),
		errors.Is(err, domain.ErrAmbiguousLocation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	var insufficient *domain.InsufficientDataError
	if errors.As(err, &insufficient) {
		msg = insufficient.Error()
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
		msg = http.StatusText(status)
	} else {
		s.logger.Debug("request rejected", "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // client may have gone away
}
