package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/deriddl/deriddl/pkg/catalog"
	"github.com/deriddl/deriddl/pkg/executor"
	"github.com/deriddl/deriddl/pkg/ledger"
	"github.com/deriddl/deriddl/pkg/plan"
	"github.com/deriddl/deriddl/pkg/reconciler"
	"github.com/pkg/errors"
)

// Status is the per-entry outcome of an apply run.
type Status string

const (
	// StatusApplied marks entries that succeeded: executed and recorded,
	// or selected by a dry run (Report.DryRun distinguishes the two).
	StatusApplied Status = "applied"

	// StatusFailed marks the entry whose execution or recording failed.
	StatusFailed Status = "failed"

	// StatusSkipped marks entries not attempted because an earlier entry
	// failed or the run was cancelled.
	StatusSkipped Status = "skipped"
)

type (
	// Engine applies plans and records outcomes in the ledger.
	Engine struct {
		exec   executor.Executor
		ledger *ledger.Ledger
		now    func() time.Time
	}

	// Config contains configuration options for creating an Engine.
	Config struct {
		Executor executor.Executor
		Ledger   *ledger.Ledger

		// Now overrides the clock, for tests.
		Now func() time.Time
	}

	// Result is the outcome of one plan entry.
	Result struct {
		Identity string
		Status   Status
		Duration time.Duration
		Err      error
	}

	// Report summarizes a finished (or aborted) apply run.
	Report struct {
		Results []*Result
		Elapsed time.Duration

		// DryRun marks a report produced without touching the database.
		DryRun bool
	}

	// ExecutionError reports a migration whose statements failed. The
	// underlying *executor.Error carries the failing statement.
	ExecutionError struct {
		Identity string
		Err      error
	}
)

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("migration %s failed: %v", e.Identity, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// New creates an Engine from the provided configuration.
func New(cfg Config) *Engine {
	e := &Engine{exec: cfg.Executor, ledger: cfg.Ledger, now: cfg.Now}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// Applied returns how many entries finished successfully.
func (r *Report) Applied() int { return r.count(StatusApplied) }

// Failed returns how many entries failed (zero or one, execution is
// fail-fast).
func (r *Report) Failed() int { return r.count(StatusFailed) }

// Skipped returns how many entries were not attempted.
func (r *Report) Skipped() int { return r.count(StatusSkipped) }

func (r *Report) count(s Status) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == s {
			n++
		}
	}
	return n
}

// DryRun reports what Apply would do without touching the database. It
// performs no execution and no ledger writes; every plan entry counts as
// succeeded, so a dry run of n outstanding migrations reports n applied.
func (e *Engine) DryRun(p *plan.Plan) *Report {
	report := &Report{DryRun: true}
	for _, entry := range p.Entries {
		report.Results = append(report.Results, &Result{
			Identity: entry.Identity,
			Status:   StatusApplied,
		})
	}
	return report
}

// Apply executes every entry of the plan in order, recording each outcome
// in the ledger. The first failure stops the run: its record is written
// with success=false, the remaining entries are marked skipped, and the
// error is returned alongside the partial report.
//
// A *ledger.WriteError returned here means a migration executed but its
// outcome could not be recorded; the database and ledger are out of sync
// and the operator has to intervene.
func (e *Engine) Apply(ctx context.Context, p *plan.Plan) (*Report, error) {
	report := &Report{}
	started := e.now()

	var runErr error
	for _, entry := range p.Entries {
		if runErr != nil {
			report.Results = append(report.Results, &Result{Identity: entry.Identity, Status: StatusSkipped})
			continue
		}
		if err := ctx.Err(); err != nil {
			runErr = errors.Wrap(err, "apply run cancelled")
			report.Results = append(report.Results, &Result{Identity: entry.Identity, Status: StatusSkipped})
			continue
		}

		res, err := e.applyOne(ctx, entry)
		report.Results = append(report.Results, res)
		if err != nil {
			runErr = err
		}
	}

	report.Elapsed = e.now().Sub(started)
	return report, runErr
}

func (e *Engine) applyOne(ctx context.Context, entry *reconciler.Entry) (*Result, error) {
	m := entry.Migration
	began := e.now()
	execErr := e.run(ctx, m)
	elapsed := e.now().Sub(began)

	res := &Result{Identity: entry.Identity, Duration: elapsed}

	rec := &ledger.Record{
		Identity:  m.Identity,
		Kind:      m.Kind,
		Checksum:  m.Checksum,
		AppliedAt: began,
		Success:   execErr == nil,
		Duration:  elapsed,
		RunCount:  nextRunCount(entry, execErr == nil),
	}

	if err := e.ledger.Record(ctx, rec); err != nil {
		res.Status = StatusFailed

		// When the statements already failed, the execution error stays
		// primary: nothing succeeded unrecorded, so the bookkeeping failure
		// is only attached to the message. A write failure after successful
		// statements is the inconsistent-state case and surfaces as is.
		if execErr != nil {
			res.Err = errors.Wrapf(execErr, "additionally failed to record the failure: %v", err)
			return res, res.Err
		}

		res.Err = err
		return res, err
	}

	if execErr != nil {
		res.Status = StatusFailed
		res.Err = execErr
		return res, execErr
	}

	res.Status = StatusApplied
	return res, nil
}

// run executes all statements of one migration, transactionally when the
// backend allows DDL in transactions.
func (e *Engine) run(ctx context.Context, m *catalog.Migration) error {
	if !e.exec.SupportsTransactions() {
		for _, stmt := range m.Statements {
			if _, err := e.exec.Exec(ctx, stmt); err != nil {
				return &ExecutionError{Identity: m.Identity, Err: err}
			}
		}
		return nil
	}

	tx, err := e.exec.Begin(ctx)
	if err != nil {
		return &ExecutionError{Identity: m.Identity, Err: err}
	}

	for _, stmt := range m.Statements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return &ExecutionError{Identity: m.Identity, Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &ExecutionError{Identity: m.Identity, Err: errors.Wrap(err, "commit failed")}
	}
	return nil
}

// nextRunCount tracks successful executions only: a failed attempt keeps
// the previous count, a successful versioned run is always 1, and a
// successful repeatable run increments whatever was recorded before.
func nextRunCount(entry *reconciler.Entry, success bool) int {
	prev := 0
	if entry.Record != nil {
		prev = entry.Record.RunCount
	}
	if !success {
		return prev
	}
	if entry.Migration.Kind == catalog.Repeatable {
		return prev + 1
	}
	return 1
}
