package domain

import (
	"math"
	"sort"
	"time"
)

// Point is a single daily reading in a Series.
type Point struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// Series is an immutable, date-ordered sequence of finite readings for one
// (city, pollutant column) pair. Construct it with NewSeries.
type Series struct {
	points []Point
}

// NewSeries normalizes raw points into a Series: dates are truncated to UTC
// calendar days, non-finite values are dropped, points are sorted ascending
// and, for duplicate dates, the last supplied point wins. The input slice is
// not modified.
func NewSeries(points []Point) Series {
	byDay := make(map[time.Time]int, len(points))
	out := make([]Point, 0, len(points))

	for _, p := range points {
		if math.IsNaN(p.Value) || math.IsInf(p.Value, 0) {
			continue
		}
		day := CalendarDay(p.Date)
		if i, ok := byDay[day]; ok {
			out[i].Value = p.Value
			continue
		}
		byDay[day] = len(out)
		out = append(out, Point{Date: day, Value: p.Value})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return Series{points: out}
}

// CalendarDay truncates t to midnight UTC of its calendar date.
func CalendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Len returns the number of points.
func (s Series) Len() int { return len(s.points) }

// Points returns a copy of the points in date order.
func (s Series) Points() []Point {
	out := make([]Point, len(s.points))
	copy(out, s.points)
	return out
}

// Values returns a copy of the values in date order.
func (s Series) Values() []float64 {
	out := make([]float64, len(s.points))
	for i, p := range s.points {
		out[i] = p.Value
	}
	return out
}

// Last returns the most recent point. ok is false for an empty series.
func (s Series) Last() (p Point, ok bool) {
	if len(s.points) == 0 {
		return Point{}, false
	}
	return s.points[len(s.points)-1], true
}
