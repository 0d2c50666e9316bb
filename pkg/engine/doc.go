// Package engine executes migration plans against the target database.
//
// Execution is fail-fast: the first failing migration stops the run, the
// failure is recorded in the ledger, and every later entry is skipped. When
// the backend supports transactional DDL each migration runs in its own
// transaction, so a failure leaves no partial effects from that file. On
// backends without it the engine falls back to sequential statement
// execution and records which statement failed.
package engine
