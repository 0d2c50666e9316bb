package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/deriddl/deriddl/pkg/config"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v3"
	"go.uber.org/fx"
)

type initParams struct {
	fx.In

	Config *config.Config
}

// initCmd creates the init command for bootstrapping the tracking tables.
//
// Example usage:
//
//	# Create the schema_migrations and lock tables
//	deriddl init --dsn "file:app.db"
func initCmd(p initParams) *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Create the migration tracking tables",
		Description: `Create the migration directory if needed, then create the
schema_migrations tracking table and the advisory lock table in the target
database. Every step is idempotent, so running init against an
already-initialized project is a no-op.`,
		Before: requireConfig(p.Config),
		Flags:  []cli.Flag{dsnFlag},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runInit(ctx, cmd, p)
		},
	}
}

func runInit(ctx context.Context, cmd *cli.Command, p initParams) error {
	slog.Info("Initializing tracking tables", "dir", p.Config.Dir)

	if err := os.MkdirAll(p.Config.Dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create migration directory %s", p.Config.Dir)
	}

	t, err := openTarget(ctx, p.Config, cmd)
	if err != nil {
		return err
	}
	defer t.close()

	if err := t.ledger.Init(ctx); err != nil {
		return err
	}

	fmt.Fprintf(cmd.Writer, "✓ Tracking tables ready (%s dialect)\n", t.dialect.Name)
	return nil
}
