// Command genmock writes a synthetic merged pollution dataset for local runs
// and integration fixtures. The output uses the raw "_x"/"_y" merge suffixes
// so it goes through the same header renaming as real data.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -out data/mock/merged_pollution_data.csv \
//	  -days 60 -seed 42
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/couchcryptid/air-quality-forecast/internal/domain"
)

type cityDef struct {
	name    string
	country string
	lat     float64
	lon     float64
	base    float64 // typical PM2.5 level, other pollutants scale from it
}

var cities = []cityDef{
	{name: "Delhi", country: "India", lat: 28.61, lon: 77.21, base: 140},
	{name: "Beijing", country: "China", lat: 39.90, lon: 116.40, base: 90},
	{name: "Cairo", country: "Egypt", lat: 30.04, lon: 31.24, base: 70},
	{name: "London", country: "UK", lat: 51.51, lon: -0.13, base: 25},
	{name: "Sydney", country: "Australia", lat: -33.87, lon: 151.21, base: 12},
}

// scale relates each pollutant to the city's PM2.5 base level.
var scale = map[string]float64{
	"PM2.5":     1,
	"PM10":      1.6,
	"NO2_level": 0.5,
	"O3":        0.7,
	"CO":        0.05,
	"VOCs":      0.3,
	"SO2":       0.2,
}

type options struct {
	days  int
	start time.Time
	seed  uint64
	gaps  float64
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "output path for the merged CSV")
	days := flag.Int("days", 60, "number of days per city")
	start := flag.String("start", "2024-01-01", "first date (YYYY-MM-DD)")
	seed := flag.Uint64("seed", 42, "random seed")
	gaps := flag.Float64("gaps", 0.05, "fraction of cells left empty")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}
	first, err := time.Parse(time.DateOnly, *start)
	if err != nil {
		return fmt.Errorf("parse -start: %w", err)
	}
	if *days < 1 {
		return fmt.Errorf("-days must be at least 1, got %d", *days)
	}

	if err := os.MkdirAll(filepath.Dir(*out), 0o755); err != nil {
		return err
	}
	f, err := os.Create(*out)
	if err != nil {
		return err
	}
	defer f.Close()

	rows, err := generate(f, options{days: *days, start: first, seed: *seed, gaps: *gaps})
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}
	log.Printf("wrote %d rows for %d cities: %s", rows, len(cities), *out)
	return nil
}

func header() []string {
	h := []string{"date", "city", "country"}
	for _, p := range domain.Pollutants {
		h = append(h, p+"_x")
	}
	h = append(h, "lat_x", "lon_x")
	for _, p := range domain.Pollutants {
		h = append(h, p+"_y")
	}
	return append(h, "lat_y", "lon_y")
}

// generate writes one row per city per day and returns the number of rows.
// Values follow a weekly cycle plus noise, ground readings run slightly above
// satellite ones.
func generate(w io.Writer, opts options) (int, error) {
	rng := rand.New(rand.NewPCG(opts.seed, opts.seed^0x9e3779b97f4a7c15))
	cw := csv.NewWriter(w)
	if err := cw.Write(header()); err != nil {
		return 0, err
	}

	var rows int
	for _, c := range cities {
		for d := range opts.days {
			date := opts.start.AddDate(0, 0, d)
			cycle := 1 + 0.2*math.Sin(2*math.Pi*float64(d)/7)

			row := []string{date.Format(time.DateOnly), c.name, c.country}
			row = append(row, readings(rng, c.base*cycle, 1.0, opts.gaps)...)
			row = append(row, coord(c.lat), coord(c.lon))
			row = append(row, readings(rng, c.base*cycle, 1.1, opts.gaps)...)
			row = append(row, coord(c.lat), coord(c.lon))

			if err := cw.Write(row); err != nil {
				return rows, err
			}
			rows++
		}
	}
	cw.Flush()
	return rows, cw.Error()
}

func readings(rng *rand.Rand, level, bias, gaps float64) []string {
	out := make([]string, 0, len(domain.Pollutants))
	for _, p := range domain.Pollutants {
		if rng.Float64() < gaps {
			out = append(out, "")
			continue
		}
		v := level * scale[p] * bias * (1 + 0.15*rng.NormFloat64())
		out = append(out, strconv.FormatFloat(math.Max(v, 0), 'f', 2, 64))
	}
	return out
}

func coord(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
