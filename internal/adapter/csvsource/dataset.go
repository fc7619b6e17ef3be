// Package csvsource loads the merged satellite/ground pollution CSV into
// in-memory per-city series.
package csvsource

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/air-quality-forecast/internal/domain"
)

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// Stats summarizes what Parse accepted and skipped.
type Stats struct {
	Rows         int `json:"rows"`
	SkippedRows  int `json:"skipped_rows"`
	InvalidCells int `json:"invalid_cells"`
}

type city struct {
	name    string
	country string
	lat     float64
	lon     float64
	raw     map[string][]domain.Point
	series  map[string]domain.Series
}

// Dataset is an immutable snapshot of the CSV. A city is identified by its
// name and country; both are matched case-insensitively.
type Dataset struct {
	cities  map[string]*city   // cityKey -> city
	byName  map[string][]*city // lower(name) -> one entry per country
	ordered []*city            // sorted by name, then country
	columns []string
	stats   Stats
}

func cityKey(name, country string) string {
	return strings.ToLower(strings.TrimSpace(name)) + "\x00" + strings.ToLower(strings.TrimSpace(country))
}

// normalizeHeader maps the merge suffixes to the canonical column names:
// "_x" is the satellite source and "_y" the ground source.
func normalizeHeader(h string) string {
	h = strings.TrimSpace(h)
	h = strings.TrimPrefix(h, "\ufeff")
	switch h {
	case "lat_x":
		return "lat"
	case "lon_x":
		return "lon"
	case "lat_y", "lon_y":
		return h
	}
	if p, ok := strings.CutSuffix(h, "_x"); ok {
		return domain.Column(p, domain.SourceSatellite)
	}
	if p, ok := strings.CutSuffix(h, "_y"); ok {
		return domain.Column(p, domain.SourceGround)
	}
	return h
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return domain.CalendarDay(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// parseValue returns ok=false for missing cells.
func parseValue(s string) (v float64, ok bool, err error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "nan", "null", "none", "na":
		return 0, false, nil
	}
	v, err = strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

// Parse reads the CSV from r. The header must contain date and city columns;
// every "<pollutant>_sat" or "<pollutant>_ground" column becomes a series.
// Rows with an unparseable date or empty city are skipped and counted.
func Parse(r io.Reader) (*Dataset, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("csvsource: empty file")
	}
	if err != nil {
		return nil, fmt.Errorf("csvsource: read header: %w", err)
	}

	idx := map[string]int{}
	var valueCols []int
	var valueKeys []string
	for i, h := range header {
		name := normalizeHeader(h)
		if _, dup := idx[name]; dup {
			continue
		}
		idx[name] = i
		if _, _, ok := domain.ParseColumn(name); ok {
			valueCols = append(valueCols, i)
			valueKeys = append(valueKeys, name)
		}
	}
	dateCol, okDate := idx["date"]
	cityCol, okCity := idx["city"]
	if !okDate || !okCity {
		return nil, errors.New("csvsource: header must contain date and city columns")
	}
	countryCol, hasCountry := idx["country"]
	latCol, hasLat := idx["lat"]
	lonCol, hasLon := idx["lon"]

	ds := &Dataset{cities: map[string]*city{}, byName: map[string][]*city{}}
	seenCols := map[string]bool{}

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csvsource: read row %d: %w", ds.stats.Rows+ds.stats.SkippedRows+2, err)
		}

		field := func(i int) string {
			if i < len(rec) {
				return rec[i]
			}
			return ""
		}

		name := strings.TrimSpace(field(cityCol))
		date, err := parseDate(field(dateCol))
		if name == "" || err != nil {
			ds.stats.SkippedRows++
			continue
		}
		ds.stats.Rows++

		var country string
		if hasCountry {
			country = strings.TrimSpace(field(countryCol))
		}
		key := cityKey(name, country)
		c := ds.cities[key]
		if c == nil {
			c = &city{name: name, country: country, raw: map[string][]domain.Point{}}
			ds.cities[key] = c
			lower := strings.ToLower(name)
			ds.byName[lower] = append(ds.byName[lower], c)
		}
		if hasLat && hasLon {
			lat, okLat, _ := parseValue(field(latCol))
			lon, okLon, _ := parseValue(field(lonCol))
			if okLat && okLon {
				c.lat, c.lon = lat, lon
			}
		}

		for j, col := range valueCols {
			v, ok, err := parseValue(field(col))
			if err != nil {
				ds.stats.InvalidCells++
				continue
			}
			if !ok {
				continue
			}
			col := valueKeys[j]
			c.raw[col] = append(c.raw[col], domain.Point{Date: date, Value: v})
			seenCols[col] = true
		}
	}

	for _, c := range ds.cities {
		c.series = make(map[string]domain.Series, len(c.raw))
		for key, pts := range c.raw {
			c.series[key] = domain.NewSeries(pts)
		}
		c.raw = nil
		ds.ordered = append(ds.ordered, c)
	}
	sort.Slice(ds.ordered, func(i, j int) bool {
		a, b := ds.ordered[i], ds.ordered[j]
		if a.name != b.name {
			return a.name < b.name
		}
		return a.country < b.country
	})
	for key := range seenCols {
		ds.columns = append(ds.columns, key)
	}
	sort.Strings(ds.columns)
	return ds, nil
}

// Stats returns the parse summary.
func (d *Dataset) Stats() Stats { return d.stats }

// Cities returns every city with its country, sorted by name then country.
func (d *Dataset) Cities() []domain.Location {
	out := make([]domain.Location, len(d.ordered))
	for i, c := range d.ordered {
		out[i] = domain.Location{City: c.name, Country: c.country}
	}
	return out
}

// Columns returns the column keys with at least one value, sorted.
func (d *Dataset) Columns() []string {
	return append([]string(nil), d.columns...)
}

func (d *Dataset) hasColumn(key string) bool {
	i := sort.SearchStrings(d.columns, key)
	return i < len(d.columns) && d.columns[i] == key
}

// lookup resolves loc to a city. Without a country the name must be unique.
func (d *Dataset) lookup(loc domain.Location) (*city, error) {
	if strings.TrimSpace(loc.Country) != "" {
		if c, ok := d.cities[cityKey(loc.City, loc.Country)]; ok {
			return c, nil
		}
		return nil, fmt.Errorf("city %q: %w", loc.String(), domain.ErrNotFound)
	}
	matches := d.byName[strings.ToLower(strings.TrimSpace(loc.City))]
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("city %q: %w", loc.City, domain.ErrNotFound)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("city %q: %w", loc.City, domain.ErrAmbiguousLocation)
	}
}

// Series returns the series for a city and column. A known city without
// values for a known column yields an empty series.
func (d *Dataset) Series(loc domain.Location, key string) (domain.Series, error) {
	c, err := d.lookup(loc)
	if err != nil {
		return domain.Series{}, err
	}
	if !d.hasColumn(key) {
		return domain.Series{}, fmt.Errorf("column %q: %w", key, domain.ErrNotFound)
	}
	return c.series[key], nil
}

// Latest returns the most recent reading of key for every city that has one,
// sorted by city then country.
func (d *Dataset) Latest(key string) ([]domain.Reading, error) {
	if !d.hasColumn(key) {
		return nil, fmt.Errorf("column %q: %w", key, domain.ErrNotFound)
	}
	var out []domain.Reading
	for _, c := range d.ordered {
		last, ok := c.series[key].Last()
		if !ok {
			continue
		}
		out = append(out, domain.Reading{
			City:    c.name,
			Country: c.country,
			Date:    last.Date,
			Value:   last.Value,
			Lat:     c.lat,
			Lon:     c.lon,
		})
	}
	return out, nil
}

// Measurements flattens the dataset into one row per city, column and day.
func (d *Dataset) Measurements() []domain.Measurement {
	var out []domain.Measurement
	for _, c := range d.ordered {
		for _, key := range d.columns {
			for _, p := range c.series[key].Points() {
				out = append(out, domain.Measurement{
					City:    c.name,
					Country: c.country,
					Date:    p.Date,
					Column:  key,
					Value:   p.Value,
					Lat:     c.lat,
					Lon:     c.lon,
				})
			}
		}
	}
	return out
}
