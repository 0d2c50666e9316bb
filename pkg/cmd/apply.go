package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/deriddl/deriddl/pkg/config"
	"github.com/deriddl/deriddl/pkg/engine"
	"github.com/deriddl/deriddl/pkg/plan"
	"github.com/deriddl/deriddl/pkg/reconciler"
	"github.com/deriddl/deriddl/pkg/report"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v3"
	"go.uber.org/fx"
)

type applyParams struct {
	fx.In

	Config *config.Config
}

// apply creates the apply command for executing outstanding migrations.
//
// The command holds the advisory lock for the duration of the run so
// concurrent invocations against the same database serialize instead of
// interleaving. Execution is fail-fast: the first failure stops the run
// and later migrations are skipped.
//
// Example usage:
//
//	# Apply all outstanding migrations
//	deriddl apply
//
//	# Show what would be executed without applying
//	deriddl apply --dry-run
func apply(p applyParams) *cli.Command {
	return &cli.Command{
		Name:  "apply",
		Usage: "Apply outstanding migrations",
		Description: `Execute every pending versioned migration in order, then every changed
repeatable migration by name. Each migration's outcome is recorded in the
tracking table, failures included, so a failed run can be retried after the
underlying problem is fixed.

Drifted or missing migrations abort the run before anything executes. The
--dry-run flag prints the plan without taking the lock, executing anything,
or writing any record.`,
		Before: requireConfig(p.Config),
		Flags: []cli.Flag{
			dsnFlag,
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Show what would be executed without applying changes",
				Value: false,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runApply(ctx, cmd, p)
		},
	}
}

func runApply(ctx context.Context, cmd *cli.Command, p applyParams) error {
	dryRun := cmd.Bool("dry-run")

	slog.Info("Applying migrations", "dir", p.Config.Dir, "dry_run", dryRun)

	cat, err := loadCatalog(p.Config)
	if err != nil {
		return err
	}

	t, err := openTarget(ctx, p.Config, cmd)
	if err != nil {
		return err
	}
	defer t.close()

	if !t.ledger.Initialized(ctx) {
		if !p.Config.Ledger.AutoCreate {
			return errors.New("tracking tables not found; run 'deriddl init' first")
		}
		if err := t.ledger.Init(ctx); err != nil {
			return err
		}
	}

	eng := engine.New(engine.Config{Executor: t.db, Ledger: t.ledger})

	if dryRun {
		set, err := t.ledger.Load(ctx)
		if err != nil {
			return err
		}

		pln, err := plan.Build(reconciler.Reconcile(cat, set), plan.ModeApply)
		if err != nil {
			return err
		}

		report.WriteApply(cmd.Writer, eng.DryRun(pln))
		return nil
	}

	return t.ledger.WithLock(ctx, lockOwner(), p.Config.Ledger.LockWait, func(ctx context.Context) error {
		// State is loaded inside the lock so the plan reflects whatever a
		// concurrent invocation finished before we acquired it.
		set, err := t.ledger.Load(ctx)
		if err != nil {
			return err
		}

		pln, err := plan.Build(reconciler.Reconcile(cat, set), plan.ModeApply)
		if err != nil {
			return err
		}

		rep, applyErr := eng.Apply(ctx, pln)
		report.WriteApply(cmd.Writer, rep)
		return applyErr
	})
}

func lockOwner() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s:%d", host, os.Getpid())
}
