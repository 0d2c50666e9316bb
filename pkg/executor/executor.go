package executor

import (
	"context"
	"fmt"
)

type (
	// Executor is the abstract statement-execution capability. The ledger
	// and the apply engine consume the target database exclusively through
	// this interface.
	Executor interface {
		// Exec runs a single statement and returns the number of rows
		// affected where the backend reports one (zero for DDL).
		Exec(ctx context.Context, statement string, args ...any) (int64, error)

		// Query runs a statement that returns rows. The caller owns the
		// returned Rows and must close them.
		Query(ctx context.Context, statement string, args ...any) (Rows, error)

		// Begin opens a transaction. On backends without transactional DDL
		// this returns a pass-through transaction whose Commit and Rollback
		// are no-ops; SupportsTransactions reports which case applies so
		// callers can choose their execution strategy.
		Begin(ctx context.Context) (Tx, error)

		// SupportsTransactions reports whether Begin opens a real
		// transaction covering DDL statements.
		SupportsTransactions() bool
	}

	// Tx is an in-flight transaction (possibly a no-op, see Executor.Begin).
	Tx interface {
		Exec(ctx context.Context, statement string, args ...any) (int64, error)
		Commit() error
		Rollback() error
	}

	// Rows is the minimal row-iteration surface the ledger needs, satisfied
	// by *sql.Rows.
	Rows interface {
		Next() bool
		Scan(dest ...any) error
		Err() error
		Close() error
	}

	// Error wraps a statement-execution failure with the statement that
	// caused it.
	Error struct {
		Statement string
		Err       error
	}
)

func (e *Error) Error() string {
	stmt := e.Statement
	if len(stmt) > 80 {
		stmt = stmt[:77] + "..."
	}
	return fmt.Sprintf("failed to execute %q: %v", stmt, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
