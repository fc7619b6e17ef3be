package domain

import (
	"encoding/json"
	"fmt"
	"math"
)

// Band is one of the five ordered health-impact categories for a pollutant
// reading. The zero value is Good.
type Band int

const (
	Good Band = iota
	Moderate
	Unhealthy
	VeryUnhealthy
	Hazardous
)

// bandThresholds holds the inclusive upper bound of every band except Hazardous.
var bandThresholds = [...]float64{50, 100, 150, 200}

var bandLabels = [...]string{"Good", "Moderate", "Unhealthy", "Very Unhealthy", "Hazardous"}

var bandSlugs = [...]string{"good", "moderate", "unhealthy", "very_unhealthy", "hazardous"}

// Classify maps a finite pollutant value to its band. Boundary values belong
// to the lower band, e.g. exactly 50 is Good and 50.0001 is Moderate.
// Non-finite input must be rejected by the caller.
func Classify(value float64) Band {
	for i, upper := range bandThresholds {
		if value <= upper {
			return Band(i)
		}
	}
	return Hazardous
}

// Bands returns all bands from safest to most severe.
func Bands() []Band {
	return []Band{Good, Moderate, Unhealthy, VeryUnhealthy, Hazardous}
}

// UpperBound returns the inclusive upper threshold of the band, or +Inf for Hazardous.
func (b Band) UpperBound() float64 {
	if b >= Good && int(b) < len(bandThresholds) {
		return bandThresholds[b]
	}
	return math.Inf(1)
}

func (b Band) valid() bool { return b >= Good && b <= Hazardous }

// String returns the display label, e.g. "Very Unhealthy".
func (b Band) String() string {
	if !b.valid() {
		return fmt.Sprintf("Band(%d)", int(b))
	}
	return bandLabels[b]
}

// Slug returns a snake_case label suitable for metrics and identifiers.
func (b Band) Slug() string {
	if !b.valid() {
		return "unknown"
	}
	return bandSlugs[b]
}

func (b Band) MarshalJSON() ([]byte, error) {
	if !b.valid() {
		return nil, fmt.Errorf("marshal band: invalid value %d", int(b))
	}
	return json.Marshal(b.String())
}

func (b *Band) UnmarshalJSON(data []byte) error {
	var label string
	if err := json.Unmarshal(data, &label); err != nil {
		return fmt.Errorf("unmarshal band: %w", err)
	}
	for i, l := range bandLabels {
		if l == label || bandSlugs[i] == label {
			*b = Band(i)
			return nil
		}
	}
	return fmt.Errorf("unmarshal band: unknown label %q", label)
}
