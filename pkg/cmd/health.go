package cmd

import (
	"context"
	"fmt"

	"github.com/deriddl/deriddl/pkg/config"
	"github.com/deriddl/deriddl/pkg/dialect"
	"github.com/deriddl/deriddl/pkg/executor"
	"github.com/deriddl/deriddl/pkg/health"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v3"
	"go.uber.org/fx"
)

type healthParams struct {
	fx.In

	Config *config.Config
}

// healthCmd creates the health command for preflight environment checks.
//
// Example usage:
//
//	# Check directory, catalog, connectivity, and optional tooling
//	deriddl health
func healthCmd(p healthParams) *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "Run preflight checks on the migration environment",
		Description: `Probe the migration environment without changing anything:
- the migration directory exists
- every migration file parses
- the target database is reachable
- sqlfluff is available for optional linting

Exits non-zero when any probe fails; warnings do not fail the command.`,
		Before: requireConfig(p.Config),
		Flags:  []cli.Flag{dsnFlag},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runHealth(ctx, cmd, p)
		},
	}
}

func runHealth(ctx context.Context, cmd *cli.Command, p healthParams) error {
	dsn := cmd.String("dsn")
	if dsn == "" {
		dsn = p.Config.Database.DSN
	}

	var connect func(ctx context.Context) error
	d := dialect.NewRegistry().Detect(dsn)
	if dsn != "" {
		connect = func(ctx context.Context) error {
			db, err := executor.Open(ctx, executor.Config{
				Driver:           d.Driver,
				DSN:              dsn,
				StatementTimeout: p.Config.Database.StatementTimeout,
			})
			if err != nil {
				return err
			}
			return db.Close()
		}
	}

	checks := health.RunAll(ctx, []*health.Probe{
		health.DirProbe(p.Config.Dir),
		health.CatalogProbe(p.Config.Dir, p.Config.MaxFileSize),
		health.DatabaseProbe(d.Name, connect),
		health.LinterProbe(),
	})

	for _, c := range checks {
		fmt.Fprintf(cmd.Writer, "%s %s: %s\n", healthMarker(c.Status), c.Name, c.Detail)
	}

	if health.Failed(checks) {
		return errors.New("health checks failed")
	}
	return nil
}

func healthMarker(s health.Status) string {
	switch s {
	case health.Pass:
		return "✅"
	case health.Warn:
		return "⚠️"
	default:
		return "❌"
	}
}
