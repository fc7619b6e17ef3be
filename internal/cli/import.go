package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/couchcryptid/air-quality-forecast/internal/adapter/csvsource"
	"github.com/couchcryptid/air-quality-forecast/internal/adapter/postgres"
)

func (a *app) cmdImport() *cli.Command {
	var dataPath, databaseURL string

	return &cli.Command{
		Name:  "import",
		Usage: "Load the merged CSV into the Postgres measurements table",
		Flags: []cli.Flag{
			dataFlag(&dataPath),
			&cli.StringFlag{
				Name:        "database-url",
				Usage:       "PostgreSQL connection string",
				Sources:     cli.EnvVars("DATABASE_URL"),
				Required:    true,
				Destination: &databaseURL,
			},
		},
		Action: func(ctx context.Context, _ *cli.Command) error {
			if databaseURL == "" {
				return errors.New("import: --database-url is required")
			}
			ds, err := csvsource.Load(dataPath)
			if err != nil {
				return err
			}

			pool, err := postgres.Connect(ctx, databaseURL)
			if err != nil {
				return err
			}
			defer pool.Close()

			repo := postgres.NewRepository(pool)
			if err := repo.EnsureSchema(ctx); err != nil {
				return err
			}
			n, err := repo.Import(ctx, ds.Measurements())
			if err != nil {
				return err
			}
			st := ds.Stats()
			a.logger.Info("import complete", "measurements", n, "rows", st.Rows, "skipped_rows", st.SkippedRows)
			fmt.Fprintf(a.stdout, "imported %d measurements\n", n)
			return nil
		},
	}
}
