package ledger

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/deriddl/deriddl/pkg/catalog"
	"github.com/deriddl/deriddl/pkg/dialect"
	"github.com/deriddl/deriddl/pkg/executor"
	"github.com/pkg/errors"
)

const (
	// DefaultTable is the tracking table name.
	DefaultTable = "schema_migrations"

	// DefaultLockTable is the advisory lock table name.
	DefaultLockTable = "schema_migrations_lock"

	// baselineIdentity marks the single baseline row in the tracking table.
	// It sorts outside the filename grammar so it can never collide with a
	// real migration identity.
	baselineIdentity = ".baseline"

	kindBaseline = "baseline"
)

type (
	// Record is one persisted row of the tracking table.
	Record struct {
		// Identity is the migration identity: the zero-padded ordinal for
		// versioned migrations, "R__<name>" for repeatable ones.
		Identity string

		// Kind is catalog.Versioned or catalog.Repeatable.
		Kind catalog.Kind

		// Checksum is the h1 content hash recorded at apply time. For a
		// successful versioned migration it is write-once: a later catalog
		// mismatch is drift, never an update.
		Checksum string

		// AppliedAt is when the recorded attempt started.
		AppliedAt time.Time

		// Success reports whether every statement of the attempt succeeded.
		Success bool

		// Duration is how long the attempt took.
		Duration time.Duration

		// RunCount is the number of successful executions; always 1 for
		// versioned migrations, incremented on each repeatable re-run.
		RunCount int
	}

	// Set is the loaded tracking state, indexed by identity with load order
	// preserved.
	Set struct {
		records  map[string]*Record
		order    []string
		baseline int
	}

	// Ledger provides access to the tracking and lock tables through the
	// abstract executor.
	Ledger struct {
		exec      executor.Executor
		dialect   *dialect.Dialect
		table     string
		lockTable string
		now       func() time.Time
	}

	// Config contains configuration options for creating a Ledger.
	Config struct {
		// Executor is the statement-execution capability for the target
		// database.
		Executor executor.Executor

		// Dialect supplies the backend-specific DDL shapes.
		Dialect *dialect.Dialect

		// Table overrides DefaultTable when non-empty.
		Table string

		// LockTable overrides DefaultLockTable when non-empty.
		LockTable string

		// Now overrides the clock, for tests.
		Now func() time.Time
	}

	// WriteError reports a failed tracking-table write. When it follows a
	// successful statement execution it signals an inconsistent state: the
	// database was mutated but the mutation was not recorded.
	WriteError struct {
		Identity string
		Err      error
	}
)

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to record outcome for %s: %v", e.Identity, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// New creates a Ledger from the provided configuration.
func New(cfg Config) *Ledger {
	l := &Ledger{
		exec:      cfg.Executor,
		dialect:   cfg.Dialect,
		table:     cfg.Table,
		lockTable: cfg.LockTable,
		now:       cfg.Now,
	}
	if l.table == "" {
		l.table = DefaultTable
	}
	if l.lockTable == "" {
		l.lockTable = DefaultLockTable
	}
	if l.now == nil {
		l.now = time.Now
	}
	return l
}

// Init idempotently creates the tracking and lock tables.
func (l *Ledger) Init(ctx context.Context) error {
	if _, err := l.exec.Exec(ctx, l.dialect.CreateTrackingTableSQL(l.table)); err != nil {
		return errors.Wrap(err, "failed to create tracking table")
	}
	if _, err := l.exec.Exec(ctx, l.dialect.CreateLockTableSQL(l.lockTable)); err != nil {
		return errors.Wrap(err, "failed to create lock table")
	}
	return nil
}

// Initialized reports whether the tracking table exists. The probe is a
// trivial query; any failure is taken to mean "not there yet", matching how
// a first run against a fresh database should behave.
func (l *Ledger) Initialized(ctx context.Context) bool {
	rows, err := l.exec.Query(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", l.table))
	if err != nil {
		return false
	}
	_ = rows.Close()
	return true
}

// Load reads every tracking row into a Set. An uninitialized tracking table
// yields an empty Set, not an error.
func (l *Ledger) Load(ctx context.Context) (*Set, error) {
	set := &Set{records: make(map[string]*Record)}

	if !l.Initialized(ctx) {
		return set, nil
	}

	query := fmt.Sprintf(`SELECT identity, kind, checksum, applied_at, success, duration_ms, run_count
FROM %s
ORDER BY identity ASC`, l.table)

	rows, err := l.exec.Query(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load tracking rows")
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			rec        Record
			kind       string
			appliedAt  any
			success    any
			durationMS int64
		)

		if err := rows.Scan(&rec.Identity, &kind, &rec.Checksum, &appliedAt, &success, &durationMS, &rec.RunCount); err != nil {
			return nil, errors.Wrap(err, "failed to scan tracking row")
		}

		rec.Kind = catalog.Kind(kind)
		rec.AppliedAt = coerceTime(appliedAt)
		rec.Success = coerceBool(success)
		rec.Duration = time.Duration(durationMS) * time.Millisecond

		if rec.Identity == baselineIdentity && kind == kindBaseline {
			if v, err := strconv.Atoi(rec.Checksum); err == nil {
				set.baseline = v
			}
			continue
		}

		set.records[rec.Identity] = &rec
		set.order = append(set.order, rec.Identity)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate tracking rows")
	}

	return set, nil
}

// execer is the statement-execution capability shared by the executor and
// its transactions.
type execer interface {
	Exec(ctx context.Context, statement string, args ...any) (int64, error)
}

// Record persists the outcome of one migration attempt, replacing any
// previous row for the same identity. The delete and insert run in one
// transaction when the backend supports it, so a failure mid-write cannot
// lose the previous row. Failures surface as *WriteError so callers can
// distinguish "could not record" from "could not execute".
func (l *Ledger) Record(ctx context.Context, rec *Record) error {
	if !l.exec.SupportsTransactions() {
		return l.writeRecord(ctx, l.exec, rec)
	}

	tx, err := l.exec.Begin(ctx)
	if err != nil {
		return &WriteError{Identity: rec.Identity, Err: err}
	}

	if err := l.writeRecord(ctx, tx, rec); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return &WriteError{Identity: rec.Identity, Err: err}
	}
	return nil
}

func (l *Ledger) writeRecord(ctx context.Context, exec execer, rec *Record) error {
	// Replace-by-identity keeps the write portable across backends without
	// relying on vendor upsert syntax.
	if _, err := exec.Exec(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE identity = %s", l.table, l.dialect.Placeholder(0)), rec.Identity,
	); err != nil {
		return &WriteError{Identity: rec.Identity, Err: err}
	}

	insert := fmt.Sprintf(`INSERT INTO %s (identity, kind, checksum, applied_at, success, duration_ms, run_count)
VALUES (%s)`, l.table, l.placeholders(7))

	if _, err := exec.Exec(ctx, insert,
		rec.Identity,
		string(rec.Kind),
		rec.Checksum,
		rec.AppliedAt.UTC().Format(time.RFC3339Nano),
		boolValue(rec.Success),
		rec.Duration.Milliseconds(),
		rec.RunCount,
	); err != nil {
		return &WriteError{Identity: rec.Identity, Err: err}
	}

	return nil
}

// SetBaseline records a baseline version: versioned migrations at or below
// it reconcile as applied even without individual rows. Rejected when a
// successful versioned migration at or above the requested version is
// already recorded, since that history would contradict the baseline.
func (l *Ledger) SetBaseline(ctx context.Context, version int) error {
	set, err := l.Load(ctx)
	if err != nil {
		return err
	}

	for _, rec := range set.Records() {
		if rec.Kind != catalog.Versioned || !rec.Success {
			continue
		}
		if v, err := strconv.Atoi(rec.Identity); err == nil && v >= version {
			return errors.Errorf("cannot baseline at version %d: migration %s is already applied", version, rec.Identity)
		}
	}

	return l.Record(ctx, &Record{
		Identity:  baselineIdentity,
		Kind:      kindBaseline,
		Checksum:  strconv.Itoa(version),
		AppliedAt: l.now(),
		Success:   true,
		RunCount:  1,
	})
}

func (l *Ledger) placeholders(n int) string {
	out := make([]string, n)
	for i := range out {
		out[i] = l.dialect.Placeholder(i)
	}
	return strings.Join(out, ", ")
}

// NewSet builds a Set in memory without touching a database. Useful for
// reconciling against synthetic state in tests and tooling.
func NewSet(baseline int, records ...*Record) *Set {
	set := &Set{records: make(map[string]*Record, len(records)), baseline: baseline}
	for _, rec := range records {
		if !set.Has(rec.Identity) {
			set.order = append(set.order, rec.Identity)
		}
		set.records[rec.Identity] = rec
	}
	return set
}

// Get returns the record for an identity, or nil.
func (s *Set) Get(identity string) *Record { return s.records[identity] }

// Has reports whether any record exists for the identity.
func (s *Set) Has(identity string) bool {
	_, ok := s.records[identity]
	return ok
}

// Count returns the number of migration records (the baseline row excluded).
func (s *Set) Count() int { return len(s.records) }

// Baseline returns the recorded baseline version, zero when none is set.
func (s *Set) Baseline() int { return s.baseline }

// Records returns all records in load order.
func (s *Set) Records() []*Record {
	out := make([]*Record, 0, len(s.order))
	for _, identity := range s.order {
		out = append(out, s.records[identity])
	}
	return out
}

// coerceTime maps whatever the driver hands back for a timestamp column
// onto time.Time. Backends disagree here (native timestamps, text, bytes),
// so the ledger accepts all of them.
func coerceTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		return parseTime(t)
	case []byte:
		return parseTime(string(t))
	default:
		return time.Time{}
	}
}

func parseTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05.999999999", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func coerceBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case int64:
		return b != 0
	case string:
		return b == "1" || b == "true" || b == "t"
	case []byte:
		return coerceBool(string(b))
	default:
		return false
	}
}

func boolValue(b bool) int {
	if b {
		return 1
	}
	return 0
}
