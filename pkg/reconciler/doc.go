// Package reconciler merges the migration catalog with the persisted ledger
// state into a classified, deterministic view.
//
// Reconcile is a pure function: it holds no state, touches no I/O, and the
// same inputs always produce the same ordered output. Every invocation of
// the tool rebuilds the view from scratch; nothing is cached across runs.
package reconciler
