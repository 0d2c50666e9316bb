// Package ledger reads and writes the persisted record of applied
// migrations in the target database.
//
// The ledger owns two tables: the tracking table (one row per migration
// identity, holding the checksum recorded at apply time, the outcome, and
// timing) and a single-row lock table used as an advisory lock across
// concurrent invocations. Both are created idempotently by Init.
//
// Loading tolerates an uninitialized tracking table by returning an empty
// set: a first run against a fresh database is not an error. Writing is
// strictly an after-the-fact record: the apply engine only calls Record once
// a migration's statements have finished, so a crash before the write leaves
// no misleading success row behind.
package ledger
