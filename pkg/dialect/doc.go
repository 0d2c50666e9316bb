// Package dialect captures the per-backend knowledge the migration core
// must not hardcode: how to create the tracking tables, whether DDL can run
// inside a transaction, and how to recognize a backend from its connection
// string.
//
// Dialects are plain data. The registry ships with postgres, mysql, sqlite,
// and a generic fallback; an unrecognized connection string gets the generic
// dialect, which assumes the least capable backend (no transactional DDL).
package dialect
