package cmd

import (
	"context"
	"log/slog"

	"github.com/deriddl/deriddl/pkg/config"
	"github.com/deriddl/deriddl/pkg/plan"
	"github.com/deriddl/deriddl/pkg/reconciler"
	"github.com/deriddl/deriddl/pkg/report"
	"github.com/urfave/cli/v3"
	"go.uber.org/fx"
)

type planParams struct {
	fx.In

	Config *config.Config
}

// planCmd creates the plan command for previewing what apply would execute.
//
// Plan runs the same integrity checks as apply, but reports drifted or
// missing migrations instead of failing on them. Reads always succeed.
//
// Example usage:
//
//	# Preview outstanding migrations
//	deriddl plan
func planCmd(p planParams) *cli.Command {
	return &cli.Command{
		Name:  "plan",
		Usage: "Show migrations that apply would execute",
		Description: `Compute the ordered set of migrations an apply run would execute:
pending versioned migrations first, changed repeatable migrations after.

Drifted checksums and recorded migrations with no file are reported in the
output, but do not fail the command; only apply refuses to proceed on them.
Plan never modifies the database.`,
		Before: requireConfig(p.Config),
		Flags:  []cli.Flag{dsnFlag},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runPlan(ctx, cmd, p)
		},
	}
}

func runPlan(ctx context.Context, cmd *cli.Command, p planParams) error {
	slog.Info("Building migration plan", "dir", p.Config.Dir)

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

	entries := reconciler.Reconcile(cat, set)
	pln, err := plan.Build(entries, plan.ModeReport)
	if err != nil {
		return err
	}

	report.WritePlan(cmd.Writer, entries, pln)
	return nil
}
