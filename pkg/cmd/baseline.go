package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/deriddl/deriddl/pkg/config"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v3"
	"go.uber.org/fx"
)

type baselineParams struct {
	fx.In

	Config *config.Config
}

// baseline creates the baseline command for adopting an existing database.
//
// Baselining records a version below which migrations are considered
// already applied, without executing them. It is the onboarding path for a
// database whose schema predates the migration directory.
//
// Example usage:
//
//	# Treat migrations 0001..0042 as already applied
//	deriddl baseline 42
func baseline(p baselineParams) *cli.Command {
	return &cli.Command{
		Name:      "baseline",
		Usage:     "Mark migrations up to a version as already applied",
		ArgsUsage: "<version>",
		Description: `Record a baseline version in the tracking table. Versioned migrations at
or below the baseline reconcile as applied even though they were never
executed by this tool.

Baselining is refused when a migration at or above the requested version
has already been applied, since that history would contradict it.`,
		Before: requireConfig(p.Config),
		Flags:  []cli.Flag{dsnFlag},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runBaseline(ctx, cmd, p)
		},
	}
}

func runBaseline(ctx context.Context, cmd *cli.Command, p baselineParams) error {
	if cmd.Args().Len() != 1 {
		return errors.New("baseline requires exactly one argument: the version")
	}

	version, err := strconv.Atoi(cmd.Args().First())
	if err != nil || version <= 0 {
		return errors.Errorf("invalid baseline version %q", cmd.Args().First())
	}

	slog.Info("Setting baseline", "version", version)

	t, err := openTarget(ctx, p.Config, cmd)
	if err != nil {
		return err
	}
	defer t.close()

	if err := t.ledger.Init(ctx); err != nil {
		return err
	}

	if err := t.ledger.SetBaseline(ctx, version); err != nil {
		return err
	}

	fmt.Fprintf(cmd.Writer, "✓ Baseline set at version %d\n", version)
	return nil
}
