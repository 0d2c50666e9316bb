package cmd

import (
	"context"
	"os"

	"github.com/deriddl/deriddl/pkg/catalog"
	"github.com/deriddl/deriddl/pkg/config"
	"github.com/deriddl/deriddl/pkg/dialect"
	"github.com/deriddl/deriddl/pkg/engine"
	"github.com/deriddl/deriddl/pkg/executor"
	"github.com/deriddl/deriddl/pkg/ledger"
	"github.com/deriddl/deriddl/pkg/plan"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v3"
)

// Exit codes encode the failure class for scripting. Zero is success and
// one is any error not covered below.
const (
	exitGeneric    = 1
	exitCatalog    = 2
	exitIntegrity  = 3
	exitContention = 4
	exitExecution  = 5
	exitLedger     = 6
)

var dsnFlag = &cli.StringFlag{
	Name:    "dsn",
	Usage:   "database connection string (overrides the config file)",
	Sources: cli.EnvVars("DERIDDL_DSN"),
	Config: cli.StringConfig{
		TrimSpace: true,
	},
}

// exitCode maps an error to its process exit code. The ledger write check
// runs before the execution check because a *ledger.WriteError wrapped in
// an apply failure means the database changed without being recorded, which
// is the more severe condition.
func exitCode(err error) int {
	var (
		catErr     *catalog.Error
		integrity  *plan.IntegrityError
		contention *ledger.ContentionError
		writeErr   *ledger.WriteError
		execErr    *engine.ExecutionError
	)

	switch {
	case errors.As(err, &catErr):
		return exitCatalog
	case errors.As(err, &integrity):
		return exitIntegrity
	case errors.As(err, &contention):
		return exitContention
	case errors.As(err, &writeErr):
		return exitLedger
	case errors.As(err, &execErr):
		return exitExecution
	default:
		return exitGeneric
	}
}

func requireConfig(cfg *config.Config) func(context.Context, *cli.Command) (context.Context, error) {
	return func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
		if cfg == nil {
			return ctx, errors.Errorf("%s not found", config.DefaultFile)
		}

		return ctx, nil
	}
}

// target bundles everything a database-facing command needs.
type target struct {
	db      *executor.DB
	dialect *dialect.Dialect
	ledger  *ledger.Ledger
}

func (t *target) close() { _ = t.db.Close() }

// openTarget resolves the dialect from config or DSN, connects, and wires
// a ledger over the connection. The --dsn flag wins over the config file.
func openTarget(ctx context.Context, cfg *config.Config, cmd *cli.Command) (*target, error) {
	dsn := cmd.String("dsn")
	if dsn == "" {
		dsn = cfg.Database.DSN
	}
	if dsn == "" {
		return nil, errors.New("no dsn configured; set database.dsn or pass --dsn")
	}

	registry := dialect.NewRegistry()

	var (
		d   *dialect.Dialect
		err error
	)
	if cfg.Database.Dialect != "" {
		d, err = registry.Get(cfg.Database.Dialect)
		if err != nil {
			return nil, err
		}
	} else {
		d = registry.Detect(dsn)
	}

	db, err := executor.Open(ctx, executor.Config{
		Driver:           d.Driver,
		DSN:              dsn,
		StatementTimeout: cfg.Database.StatementTimeout,
		TransactionalDDL: d.TransactionalDDL,
	})
	if err != nil {
		return nil, err
	}

	return &target{
		db:      db,
		dialect: d,
		ledger: ledger.New(ledger.Config{
			Executor:  db,
			Dialect:   d,
			Table:     cfg.Ledger.Table,
			LockTable: cfg.Ledger.LockTable,
		}),
	}, nil
}

func loadCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	return catalog.LoadWithLimit(os.DirFS(cfg.Dir), cfg.MaxFileSize)
}
