// Package cli implements the aq operator command: classify values,
// forecast from a CSV snapshot, train model artifacts, and import data into
// Postgres.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v3"

	"github.com/couchcryptid/air-quality-forecast/internal/observability"
)

type app struct {
	stdout io.Writer
	stderr io.Writer
	logger *slog.Logger
}

// Run runs the CLI application. Results go to stdout and logs to stderr.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	a := &app{stdout: stdout, stderr: stderr, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	var logLevel, logFormat string
	root := &cli.Command{
		Name:   "aq",
		Usage:  "Air pollution classification and forecasting",
		Writer: stdout,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "Log level (debug, info, warn, error)",
				Category:    "Logging",
				Value:       "info",
				Sources:     cli.EnvVars("LOG_LEVEL"),
				Destination: &logLevel,
			},
			&cli.StringFlag{
				Name:        "log-format",
				Usage:       "Log format (json, text, console)",
				Category:    "Logging",
				Value:       "console",
				Sources:     cli.EnvVars("LOG_FORMAT"),
				Destination: &logFormat,
			},
		},
		Before: func(ctx context.Context, _ *cli.Command) (context.Context, error) {
			switch logFormat {
			case "json", "text", "console":
			default:
				return ctx, fmt.Errorf("invalid log format %q", logFormat)
			}
			a.logger = observability.NewLoggerTo(a.stderr, logLevel, logFormat)
			return ctx, nil
		},
		Commands: []*cli.Command{
			a.cmdClassify(),
			a.cmdForecast(),
			a.cmdTrain(),
			a.cmdImport(),
		},
	}

	if err := root.Run(ctx, args); err != nil {
		return fmt.Errorf("aq: %w", err)
	}
	return nil
}

func (a *app) metrics() *observability.Metrics {
	return observability.NewMetricsWith(prometheus.NewRegistry())
}

func dataFlag(dest *string) cli.Flag {
	return &cli.StringFlag{
		Name:        "data",
		Usage:       "Merged pollution CSV",
		Value:       "data/merged_pollution_data.csv",
		Sources:     cli.EnvVars("DATA_PATH"),
		Destination: dest,
	}
}

func modelsFlag(dest *string) cli.Flag {
	return &cli.StringFlag{
		Name:        "models",
		Usage:       "Directory of model artifacts",
		Value:       "models",
		Sources:     cli.EnvVars("MODEL_DIR"),
		Destination: dest,
	}
}
