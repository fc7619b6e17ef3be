package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/urfave/cli/v3"

	"github.com/couchcryptid/air-quality-forecast/internal/service"
)

func (a *app) cmdClassify() *cli.Command {
	return &cli.Command{
		Name:      "classify",
		Usage:     "Print the health band of one or more pollutant values",
		ArgsUsage: "<value> [value...]",
		Action: func(_ context.Context, c *cli.Command) error {
			if c.Args().Len() == 0 {
				return errors.New("classify: at least one value is required")
			}
			svc := service.New(nil, nil, a.logger, a.metrics())
			for _, arg := range c.Args().Slice() {
				v, err := strconv.ParseFloat(arg, 64)
				if err != nil {
					return fmt.Errorf("classify: %q is not a number", arg)
				}
				band, err := svc.Classify(v)
				if err != nil {
					return fmt.Errorf("classify %s: %w", arg, err)
				}
				fmt.Fprintf(a.stdout, "%s\t%s\n", arg, band)
			}
			return nil
		},
	}
}
