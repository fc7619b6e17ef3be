package domain

import (
	"context"
	"time"
)

// RawEvent represents an unprocessed message from the source topic.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// ForecastRequest asks for a horizon-day forecast of one city's pollutant column.
type ForecastRequest struct {
	RequestID   string `json:"request_id,omitempty"`
	City        string `json:"city" validate:"required"`
	Country     string `json:"country,omitempty"`
	Pollutant   string `json:"pollutant" validate:"required"`
	HorizonDays int    `json:"horizon_days" validate:"required,min=1,max=30"`
}

// Location returns the requested city.
func (r ForecastRequest) Location() Location {
	return Location{City: r.City, Country: r.Country}
}

// ForecastPoint is a predicted value with its health band.
type ForecastPoint struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
	Band  Band      `json:"band"`
}

// Report is a classified forecast for one city and pollutant column.
type Report struct {
	RequestID      string          `json:"request_id,omitempty"`
	City           string          `json:"city"`
	Country        string          `json:"country,omitempty"`
	Pollutant      string          `json:"pollutant"`
	HorizonDays    int             `json:"horizon_days"`
	Strategy       StrategyName    `json:"strategy"`
	Fallback       bool            `json:"fallback,omitempty"`
	FallbackReason string          `json:"fallback_reason,omitempty"`
	Observed       int             `json:"observed_points"`
	LastObserved   time.Time       `json:"last_observed"`
	Points         []ForecastPoint `json:"points"`
	GeneratedAt    time.Time       `json:"generated_at"`
}

// Rejection answers a forecast request that could not be served.
type Rejection struct {
	RequestID   string    `json:"request_id,omitempty"`
	City        string    `json:"city,omitempty"`
	Country     string    `json:"country,omitempty"`
	Pollutant   string    `json:"pollutant,omitempty"`
	Reason      string    `json:"reason"`
	Error       string    `json:"error"`
	RequestedAt time.Time `json:"requested_at,omitzero"`
}

// OutputEvent is the serialized form destined for the sink topic.
type OutputEvent struct {
	Key     []byte
	Value   []byte
	Headers map[string]string
}
