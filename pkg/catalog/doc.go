// Package catalog discovers and parses SQL migration files.
//
// A migration directory contains versioned migrations (applied exactly once,
// in ascending version order) and repeatable migrations (re-applied whenever
// their content changes). The catalog turns a directory into typed,
// checksummed migration descriptors with a deterministic ordering: the same
// directory contents always produce the same checksums and the same order,
// regardless of filesystem listing order.
//
// Recognized filenames:
//   - Versioned: a zero-padded ordinal of at least four digits, an
//     underscore, and a snake_case description, e.g. 0001_init_schema.sql
//   - Repeatable: an R__ prefix and a snake_case name, e.g. R__views.sql
//
// Any other .sql file under the migrations root is a parse error; loading is
// all-or-nothing so a broken directory never yields a partial catalog.
package catalog
