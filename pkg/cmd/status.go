package cmd

import (
	"context"
	"log/slog"

	"github.com/deriddl/deriddl/pkg/config"
	"github.com/deriddl/deriddl/pkg/reconciler"
	"github.com/deriddl/deriddl/pkg/report"
	"github.com/urfave/cli/v3"
	"go.uber.org/fx"
)

type statusParams struct {
	fx.In

	Config *config.Config
}

// status creates the status command for showing the reconciled migration
// state.
//
// The command classifies every migration file and every ledger record into
// one of the reconciled states (applied, pending, drifted, missing,
// repeatable current or due) and prints the full view with a summary.
//
// Example usage:
//
//	# Show migration status
//	deriddl status
//
//	# Against an explicit database
//	deriddl status --dsn "postgres://localhost/app"
func status(p statusParams) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show migration status",
		Description: `Display the reconciled migration state for the target database.

The status command shows:
- Applied, pending, drifted, and missing versioned migrations
- Repeatable migrations that are current or due to re-run
- A recommendation for the next action

Status is read-only and never modifies the database.`,
		Before: requireConfig(p.Config),
		Flags:  []cli.Flag{dsnFlag},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runStatus(ctx, cmd, p)
		},
	}
}

func runStatus(ctx context.Context, cmd *cli.Command, p statusParams) error {
	slog.Info("Checking migration status", "dir", p.Config.Dir)

	cat, err := loadCatalog(p.Config)
	if err != nil {
		return err
	}

	t, err := openTarget(ctx, p.Config, cmd)
	if err != nil {
		return err
	}
	defer t.close()

	set, err := t.ledger.Load(ctx)
	if err != nil {
		return err
	}

	report.WriteStatus(cmd.Writer, reconciler.Reconcile(cat, set))
	return nil
}
