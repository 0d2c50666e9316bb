// Package executor provides the statement-execution capability consumed by
// the ledger and the apply engine.
//
// The Executor interface abstracts the connectivity layer away from the
// migration core: anything that can execute a statement, run a query, open a
// transaction, and answer whether the backend supports transactional DDL can
// drive migrations. The packaged implementation wraps database/sql, which
// makes every registered driver, ODBC bridges included, usable without
// touching the core.
//
// All calls are context-bound; the database/sql implementation additionally
// applies a per-statement timeout so no executor call blocks indefinitely.
package executor
