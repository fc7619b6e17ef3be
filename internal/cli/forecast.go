package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/couchcryptid/air-quality-forecast/internal/adapter/csvsource"
	"github.com/couchcryptid/air-quality-forecast/internal/adapter/modelstore"
	"github.com/couchcryptid/air-quality-forecast/internal/domain"
	"github.com/couchcryptid/air-quality-forecast/internal/service"
)

func (a *app) cmdForecast() *cli.Command {
	var dataPath, modelDir, city, country, key string
	var days int64

	return &cli.Command{
		Name:  "forecast",
		Usage: "Forecast a city's pollutant column and print the report as JSON",
		Flags: []cli.Flag{
			dataFlag(&dataPath),
			modelsFlag(&modelDir),
			&cli.StringFlag{Name: "city", Usage: "City name (case-insensitive)", Required: true, Destination: &city},
			&cli.StringFlag{Name: "country", Usage: "Country, required when the city name exists in more than one country", Destination: &country},
			&cli.StringFlag{Name: "pollutant", Usage: "Column key, e.g. PM2.5_ground", Required: true, Destination: &key},
			&cli.Int64Flag{Name: "days", Usage: "Forecast horizon in days", Value: 7, Destination: &days},
		},
		Action: func(ctx context.Context, _ *cli.Command) error {
			src, err := csvsource.Open(dataPath, a.logger)
			if err != nil {
				return err
			}
			metrics := a.metrics()
			store := modelstore.NewFileStore(modelDir, metrics)
			svc := service.New(src, domain.NewForecaster(store, a.logger), a.logger, metrics)

			report, err := svc.Forecast(ctx, domain.Location{City: city, Country: country}, key, int(days))
			if err != nil {
				return err
			}
			enc := json.NewEncoder(a.stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return fmt.Errorf("write report: %w", err)
			}
			return nil
		},
	}
}
