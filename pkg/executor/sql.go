package executor

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
)

// DefaultStatementTimeout bounds every executor call unless the caller
// configures something else.
const DefaultStatementTimeout = 30 * time.Second

type (
	// Config contains configuration options for opening a DB executor.
	Config struct {
		// Driver is the registered database/sql driver name, e.g. "sqlite".
		Driver string

		// DSN is the driver-specific connection string.
		DSN string

		// StatementTimeout bounds each individual executor call. Zero means
		// DefaultStatementTimeout.
		StatementTimeout time.Duration

		// TransactionalDDL declares whether the backend supports DDL inside
		// transactions. The dialect layer knows this; the executor just
		// reports it through SupportsTransactions.
		TransactionalDDL bool
	}

	// DB is the database/sql-backed Executor implementation.
	DB struct {
		db      *sql.DB
		timeout time.Duration
		txDDL   bool
	}

	sqlTx struct {
		tx *sql.Tx
		db *DB
	}

	// noopTx passes statements straight through to the connection for
	// backends that auto-commit DDL.
	noopTx struct {
		db *DB
	}

	timedRows struct {
		*sql.Rows
		cancel context.CancelFunc
	}
)

func (r *timedRows) Close() error {
	defer r.cancel()
	return r.Rows.Close()
}

// Open creates a DB executor for the configured driver and connection
// string. The connection is validated with a ping before it is returned.
//
// Example usage:
//
//	db, err := executor.Open(ctx, executor.Config{
//		Driver:           "sqlite",
//		DSN:              "file:app.db",
//		TransactionalDDL: true,
//	})
//	if err != nil {
//		return err
//	}
//	defer db.Close()
func Open(ctx context.Context, cfg Config) (*DB, error) {
	handle, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s connection", cfg.Driver)
	}

	timeout := cfg.StatementTimeout
	if timeout <= 0 {
		timeout = DefaultStatementTimeout
	}

	db := &DB{db: handle, timeout: timeout, txDDL: cfg.TransactionalDDL}

	pingCtx, cancel := db.bound(ctx)
	defer cancel()
	if err := handle.PingContext(pingCtx); err != nil {
		_ = handle.Close()
		return nil, errors.Wrap(err, "failed to connect to database")
	}

	return db, nil
}

// Close releases the underlying connection pool.
func (d *DB) Close() error { return d.db.Close() }

// Ping verifies the connection is still usable.
func (d *DB) Ping(ctx context.Context) error {
	ctx, cancel := d.bound(ctx)
	defer cancel()
	return errors.Wrap(d.db.PingContext(ctx), "failed to ping database")
}

func (d *DB) Exec(ctx context.Context, statement string, args ...any) (int64, error) {
	ctx, cancel := d.bound(ctx)
	defer cancel()

	res, err := d.db.ExecContext(ctx, statement, args...)
	if err != nil {
		return 0, &Error{Statement: statement, Err: err}
	}

	// DDL results often have no row count; that is not an error.
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return affected, nil
}

func (d *DB) Query(ctx context.Context, statement string, args ...any) (Rows, error) {
	// The timeout must outlive this call: cancelling before the caller has
	// iterated the rows would abort the result set, so cancellation is tied
	// to Close instead.
	ctx, cancel := d.bound(ctx)

	rows, err := d.db.QueryContext(ctx, statement, args...) //nolint:sqlclosecheck // caller closes
	if err != nil {
		cancel()
		return nil, &Error{Statement: statement, Err: err}
	}
	return &timedRows{Rows: rows, cancel: cancel}, nil
}

func (d *DB) Begin(ctx context.Context) (Tx, error) {
	if !d.txDDL {
		return &noopTx{db: d}, nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin transaction")
	}
	return &sqlTx{tx: tx, db: d}, nil
}

func (d *DB) SupportsTransactions() bool { return d.txDDL }

// bound derives a context limited by the configured statement timeout.
func (d *DB) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d.timeout)
}

func (t *sqlTx) Exec(ctx context.Context, statement string, args ...any) (int64, error) {
	ctx, cancel := t.db.bound(ctx)
	defer cancel()

	res, err := t.tx.ExecContext(ctx, statement, args...)
	if err != nil {
		return 0, &Error{Statement: statement, Err: err}
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return affected, nil
}

func (t *sqlTx) Commit() error   { return errors.Wrap(t.tx.Commit(), "failed to commit") }
func (t *sqlTx) Rollback() error { return errors.Wrap(t.tx.Rollback(), "failed to rollback") }

func (t *noopTx) Exec(ctx context.Context, statement string, args ...any) (int64, error) {
	return t.db.Exec(ctx, statement, args...)
}

func (t *noopTx) Commit() error   { return nil }
func (t *noopTx) Rollback() error { return nil }
