package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/air-quality-forecast/internal/domain"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := Run(context.Background(), append([]string{"aq"}, args...), &stdout, &stderr)
	return stdout.String(), err
}

// writeSeriesCSV writes 60 days of an AR(1)-like PM10 ground series for two cities.
func writeSeriesCSV(t *testing.T) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("date,city,country,PM10_y,SO2_y\n")
	for _, city := range []string{"Delhi", "Agra"} {
		v := 80.0
		for d := 0; d < 60; d++ {
			v = 20 + 0.75*v + 5*math.Sin(float64(d))
			date := fmt.Sprintf("2024-%02d-%02d", 1+d/28, 1+d%28)
			so2 := ""
			if d < 3 {
				so2 = "4"
			}
			fmt.Fprintf(&b, "%s,%s,India,%.3f,%s\n", date, city, v, so2)
		}
	}
	path := filepath.Join(t.TempDir(), "merged.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func TestClassify(t *testing.T) {
	out, err := run(t, "classify", "12", "50", "50.5", "250")
	require.NoError(t, err)
	assert.Equal(t, "12\tGood\n50\tGood\n50.5\tModerate\n250\tHazardous\n", out)
}

func TestClassify_Errors(t *testing.T) {
	_, err := run(t, "classify")
	require.Error(t, err)

	_, err = run(t, "classify", "abc")
	assert.ErrorContains(t, err, "not a number")

	_, err = run(t, "classify", "NaN")
	assert.ErrorContains(t, err, "finite")
}

func TestInvalidLogFormat(t *testing.T) {
	_, err := run(t, "--log-format", "xml", "classify", "1")
	assert.ErrorContains(t, err, "invalid log format")
}

func TestForecast_SmoothingWithoutModels(t *testing.T) {
	data := writeSeriesCSV(t)

	out, err := run(t, "forecast", "--data", data, "--models", t.TempDir(), "--city", "delhi", "--pollutant", "PM10_ground", "--days", "3")
	require.NoError(t, err)

	var report domain.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, domain.StrategySmoothing, report.Strategy)
	assert.False(t, report.Fallback)
	assert.Len(t, report.Points, 3)
}

func TestForecast_InsufficientData(t *testing.T) {
	data := writeSeriesCSV(t)

	_, err := run(t, "forecast", "--data", data, "--models", t.TempDir(), "--city", "Agra", "--pollutant", "SO2_ground", "--days", "2")
	require.NoError(t, err, "three points are enough for smoothing")

	_, err = run(t, "forecast", "--data", data, "--city", "Agra", "--pollutant", "CO_sat")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestForecast_RequiresFlags(t *testing.T) {
	_, err := run(t, "forecast", "--pollutant", "PM10_ground")
	assert.Error(t, err)
}

func TestTrainThenForecastWithModel(t *testing.T) {
	data := writeSeriesCSV(t)
	models := filepath.Join(t.TempDir(), "models")

	out, err := run(t, "--log-format", "text", "train", "--data", data, "--models", models)
	require.NoError(t, err)
	assert.Contains(t, out, "PM10_ground\tsamples=")
	assert.NotContains(t, out, "SO2_ground", "too-short columns are skipped")
	assert.FileExists(t, filepath.Join(models, "PM10_ground.json"))

	out, err = run(t, "forecast", "--data", data, "--models", models, "--city", "Delhi", "--pollutant", "PM10_ground", "--days", "5")
	require.NoError(t, err)

	var report domain.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, domain.StrategyModel, report.Strategy)
	assert.Len(t, report.Points, 5)
}

func TestTrain_FilterWithoutData(t *testing.T) {
	data := writeSeriesCSV(t)

	_, err := run(t, "train", "--data", data, "--models", t.TempDir(), "--pollutant", "SO2")
	assert.ErrorContains(t, err, "no column had enough data")
}

func TestTrain_MinPoints(t *testing.T) {
	data := writeSeriesCSV(t)

	_, err := run(t, "train", "--data", data, "--models", t.TempDir(), "--min-points", "200")
	assert.ErrorContains(t, err, "no column had enough data")

	_, err = run(t, "train", "--data", data, "--models", t.TempDir(), "--min-points", "0")
	assert.ErrorContains(t, err, "min-points must be positive")

	out, err := run(t, "train", "--data", data, "--models", t.TempDir(), "--min-points", "100", "--pollutant", "PM10")
	require.NoError(t, err)
	assert.Contains(t, out, "PM10_ground\tsamples=")
}

func TestTrain_ConstantColumnDoesNotAbortRun(t *testing.T) {
	var b strings.Builder
	b.WriteString("date,city,country,PM10_y,CO_y\n")
	v := 80.0
	for d := 0; d < 40; d++ {
		v = 20 + 0.75*v + 5*math.Sin(float64(d))
		fmt.Fprintf(&b, "2024-%02d-%02d,Pune,India,%.3f,5\n", 1+d/28, 1+d%28, v)
	}
	data := filepath.Join(t.TempDir(), "flat.csv")
	require.NoError(t, os.WriteFile(data, []byte(b.String()), 0o644))
	models := t.TempDir()

	out, err := run(t, "train", "--data", data, "--models", models)
	require.NoError(t, err)
	assert.Contains(t, out, "CO_ground\tsamples=")
	assert.Contains(t, out, "PM10_ground\tsamples=")
	assert.FileExists(t, filepath.Join(models, "CO_ground.json"))
}

func TestForecast_Country(t *testing.T) {
	data := writeSeriesCSV(t)

	out, err := run(t, "forecast", "--data", data, "--models", t.TempDir(), "--city", "Agra", "--country", "india", "--pollutant", "PM10_ground", "--days", "2")
	require.NoError(t, err)
	var report domain.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Len(t, report.Points, 2)

	_, err = run(t, "forecast", "--data", data, "--models", t.TempDir(), "--city", "Agra", "--country", "France", "--pollutant", "PM10_ground")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMatchesColumn(t *testing.T) {
	assert.True(t, matchesColumn("PM10_sat", ""))
	assert.True(t, matchesColumn("PM10_sat", "pm10_SAT"))
	assert.True(t, matchesColumn("PM10_sat", "PM10"))
	assert.False(t, matchesColumn("PM10_sat", "PM2.5"))
	assert.False(t, matchesColumn("PM10_sat", "PM10_ground"))
}

func TestImport_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	_, err := run(t, "import", "--data", writeSeriesCSV(t))
	assert.Error(t, err)
}
