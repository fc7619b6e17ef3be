package domain

import (
	"strings"
	"time"
)

// Measurement sources distinguished by column suffix.
const (
	SourceSatellite = "sat"
	SourceGround    = "ground"
)

// Pollutants lists the species carried by the merged dataset, in display order.
var Pollutants = []string{"PM2.5", "PM10", "NO2_level", "O3", "CO", "VOCs", "SO2"}

// Column builds the column key for a pollutant and source, e.g. "PM2.5_ground".
func Column(pollutant, source string) string {
	return pollutant + "_" + source
}

// ParseColumn splits a column key into pollutant and source. ok is false when
// the key carries neither the satellite nor the ground suffix.
func ParseColumn(key string) (pollutant, source string, ok bool) {
	for _, src := range []string{SourceSatellite, SourceGround} {
		if p, found := strings.CutSuffix(key, "_"+src); found && p != "" {
			return p, src, true
		}
	}
	return "", "", false
}

// Counterpart returns the column measuring the same pollutant from the other
// source, e.g. "PM10_sat" -> "PM10_ground".
func Counterpart(key string) (string, bool) {
	p, src, ok := ParseColumn(key)
	if !ok {
		return "", false
	}
	if src == SourceSatellite {
		return Column(p, SourceGround), true
	}
	return Column(p, SourceSatellite), true
}

// Location names a city within a country. Country may be empty when the city
// name occurs in only one country. Matching is case-insensitive.
type Location struct {
	City    string `json:"city"`
	Country string `json:"country,omitempty"`
}

func (l Location) String() string {
	if l.Country == "" {
		return l.City
	}
	return l.City + ", " + l.Country
}

// Reading is one city's observation of a pollutant column on a given day.
type Reading struct {
	City    string    `json:"city"`
	Country string    `json:"country,omitempty"`
	Date    time.Time `json:"date"`
	Value   float64   `json:"value"`
	Lat     float64   `json:"lat,omitempty"`
	Lon     float64   `json:"lon,omitempty"`
}

// Measurement is one cell of the dataset: a city's value for a column on a day.
type Measurement struct {
	City    string
	Country string
	Date    time.Time
	Column  string
	Value   float64
	Lat     float64
	Lon     float64
}
