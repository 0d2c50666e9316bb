package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/deriddl/deriddl/pkg/catalog"
	"github.com/deriddl/deriddl/pkg/config"
	"github.com/deriddl/deriddl/pkg/plan"
	"github.com/deriddl/deriddl/pkg/reconciler"
	"github.com/urfave/cli/v3"
	"go.uber.org/fx"
)

type validateParams struct {
	fx.In

	Config *config.Config
}

// validate creates the validate command for catalog and integrity checks.
//
// File checks need no database: every migration file is parsed, enforcing
// the filename grammar, the size limit, statement syntax, and duplicate
// detection, with version-sequence gaps reported as warnings. When a DSN is
// configured the command additionally reconciles against the ledger and
// fails on drifted or missing migrations.
//
// Example usage:
//
//	# Validate the configured migration directory and ledger
//	deriddl validate
//
//	# Validate an arbitrary directory without a config file
//	deriddl validate --migrations ./db/migrations
func validate(p validateParams) *cli.Command {
	return &cli.Command{
		Name:  "validate",
		Usage: "Validate migration files and ledger integrity",
		Description: `Parse every migration file in the directory and report problems:
filenames outside the grammar, duplicate versions or repeatable names,
files over the size limit, and SQL that cannot be split into statements.
Gaps in the version sequence are reported as warnings, not errors.

With a configured DSN the catalog is also reconciled against the tracking
table, and drifted checksums or recorded migrations with no file fail the
command. Without one only the file checks run.`,
		Flags: []cli.Flag{
			dsnFlag,
			&cli.StringFlag{
				Name:  "migrations",
				Usage: "migration directory (overrides the config file)",
				Config: cli.StringConfig{
					TrimSpace: true,
				},
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runValidate(ctx, cmd, p)
		},
	}
}

func runValidate(ctx context.Context, cmd *cli.Command, p validateParams) error {
	cfg := p.Config
	if cfg == nil {
		cfg = config.Default()
	}

	dir := cmd.String("migrations")
	if dir == "" {
		dir = cfg.Dir
	}

	cat, err := catalog.LoadWithLimit(os.DirFS(dir), cfg.MaxFileSize)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.Writer, "✓ %d migration file(s) valid\n", len(cat.Migrations))

	if gaps := cat.Gaps(); len(gaps) > 0 {
		fmt.Fprintf(cmd.Writer, "⚠ version sequence has gaps: %v\n", gaps)
	}

	if cmd.String("dsn") == "" && cfg.Database.DSN == "" {
		return nil
	}

	t, err := openTarget(ctx, cfg, cmd)
	if err != nil {
		return err
	}
	defer t.close()

	set, err := t.ledger.Load(ctx)
	if err != nil {
		return err
	}

	entries := reconciler.Reconcile(cat, set)
	if issues := entries.Integrity(); len(issues) > 0 {
		for _, e := range issues {
			fmt.Fprintf(cmd.Writer, "❌ %s: %s\n", e.Identity, e.State)
		}
		return &plan.IntegrityError{
			Drifted: issues.Filter(reconciler.Drifted),
			Missing: issues.Filter(reconciler.Missing),
		}
	}

	fmt.Fprintln(cmd.Writer, "✓ ledger matches the catalog")
	return nil
}
