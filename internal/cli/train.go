package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/couchcryptid/air-quality-forecast/internal/adapter/csvsource"
	"github.com/couchcryptid/air-quality-forecast/internal/adapter/modelstore"
	"github.com/couchcryptid/air-quality-forecast/internal/domain"
	"github.com/couchcryptid/air-quality-forecast/internal/model"
)

func (a *app) cmdTrain() *cli.Command {
	var dataPath, modelDir, only string
	var minPoints int64

	return &cli.Command{
		Name:  "train",
		Usage: "Fit one linear model per satellite and ground column and write the artifacts",
		Flags: []cli.Flag{
			dataFlag(&dataPath),
			modelsFlag(&modelDir),
			&cli.StringFlag{
				Name:        "pollutant",
				Usage:       "Only train columns for this pollutant or column key",
				Destination: &only,
			},
			&cli.Int64Flag{
				Name:        "min-points",
				Usage:       "Fewest observations a column needs to be trained",
				Value:       model.MinTrainingPoints,
				Destination: &minPoints,
			},
		},
		Action: func(_ context.Context, _ *cli.Command) error {
			ds, err := csvsource.Load(dataPath)
			if err != nil {
				return err
			}
			if minPoints < 1 {
				return fmt.Errorf("min-points must be positive, got %d", minPoints)
			}
			store := modelstore.NewFileStore(modelDir, a.metrics())
			opts := model.Options{MinPoints: int(minPoints)}

			trained := 0
			for _, key := range ds.Columns() {
				if !matchesColumn(key, only) {
					continue
				}
				series, err := columnSeries(ds, key)
				if err != nil {
					return err
				}
				m, err := model.TrainWith(key, series, opts)
				if err != nil {
					a.logger.Warn("skipping column", "pollutant", key, "error", err)
					continue
				}
				m.TrainedAt = time.Now().UTC()
				if err := store.Save(m); err != nil {
					return fmt.Errorf("save model %s: %w", key, err)
				}
				trained++
				fmt.Fprintf(a.stdout, "%s\tsamples=%d\ttest_rmse=%.4f\n", key, m.Samples, m.TestRMSE)
			}
			if trained == 0 {
				return errors.New("train: no column had enough data")
			}
			a.logger.Info("training complete", "models", trained, "dir", modelDir)
			return nil
		},
	}
}

// columnSeries collects key's non-empty series across every city.
func columnSeries(ds *csvsource.Dataset, key string) ([]domain.Series, error) {
	var series []domain.Series
	for _, loc := range ds.Cities() {
		s, err := ds.Series(loc, key)
		if err != nil {
			return nil, err
		}
		if s.Len() > 0 {
			series = append(series, s)
		}
	}
	return series, nil
}

// matchesColumn reports whether key is selected by filter, which may name a
// full column key or just its pollutant.
func matchesColumn(key, filter string) bool {
	if filter == "" || strings.EqualFold(key, filter) {
		return true
	}
	p, _, ok := domain.ParseColumn(key)
	return ok && strings.EqualFold(p, filter)
}
