// Package report renders reconciled state, plans, and apply outcomes for
// the CLI.
package report

import (
	"fmt"
	"io"

	"github.com/deriddl/deriddl/pkg/engine"
	"github.com/deriddl/deriddl/pkg/plan"
	"github.com/deriddl/deriddl/pkg/reconciler"
)

// WriteStatus renders the full reconciled view with a per-state summary.
func WriteStatus(w io.Writer, entries reconciler.Entries) {
	fmt.Fprintf(w, "Migration Status\n\n")
	fmt.Fprintf(w, "Total entries: %d\n", len(entries))
	fmt.Fprintf(w, "✅ Applied: %d\n", entries.Count(reconciler.Applied))
	fmt.Fprintf(w, "⏳ Pending: %d\n", entries.Count(reconciler.Pending))
	fmt.Fprintf(w, "🔁 Repeatable current: %d\n", entries.Count(reconciler.RepeatableCurrent))
	fmt.Fprintf(w, "🔂 Repeatable due: %d\n", entries.Count(reconciler.RepeatableDue))

	if n := entries.Count(reconciler.Drifted); n > 0 {
		fmt.Fprintf(w, "❌ Drifted: %d\n", n)
	}
	if n := entries.Count(reconciler.Missing); n > 0 {
		fmt.Fprintf(w, "❌ Missing: %d\n", n)
	}
	fmt.Fprintln(w)

	for _, e := range entries {
		fmt.Fprintf(w, "  %s %s%s\n", stateMarker(e.State), e.Identity, entryDetail(e))
	}

	fmt.Fprintln(w)
	writeRecommendation(w, entries)
}

// WritePlan renders what an apply run would execute, together with any
// integrity findings that would block it. Findings are reported, not fatal;
// the command itself still succeeds.
func WritePlan(w io.Writer, entries reconciler.Entries, p *plan.Plan) {
	issues := entries.Integrity()

	if p.Empty() && len(issues) == 0 {
		fmt.Fprintln(w, "Nothing to apply; database is up to date.")
		return
	}

	for _, e := range issues {
		fmt.Fprintf(w, "  ❌ %s%s\n", e.Identity, entryDetail(e))
	}
	if len(issues) > 0 && !p.Empty() {
		fmt.Fprintln(w)
	}

	if !p.Empty() {
		fmt.Fprintf(w, "Planned migrations (%d):\n", len(p.Entries))
		for _, e := range p.Entries {
			fmt.Fprintf(w, "  ⏳ %s (%d statements)\n", e.Identity, len(e.Migration.Statements))
		}
	}

	if len(issues) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "💡 Resolve drifted or missing migrations before applying")
	}
}

// WriteApply renders the outcome of an apply run (or a dry run).
func WriteApply(w io.Writer, rep *engine.Report) {
	if len(rep.Results) == 0 {
		fmt.Fprintln(w, "Nothing to apply; database is up to date.")
		return
	}

	for _, res := range rep.Results {
		switch res.Status {
		case engine.StatusApplied:
			if rep.DryRun {
				fmt.Fprintf(w, "  ⏳ %s (dry run)\n", res.Identity)
			} else {
				fmt.Fprintf(w, "  ✅ %s (%v)\n", res.Identity, res.Duration)
			}
		case engine.StatusFailed:
			fmt.Fprintf(w, "  ❌ %s: %v\n", res.Identity, res.Err)
		case engine.StatusSkipped:
			fmt.Fprintf(w, "  ⏭️ %s (skipped)\n", res.Identity)
		}
	}

	fmt.Fprintln(w)
	if rep.DryRun {
		fmt.Fprintf(w, "Would apply %d migration(s)\n", rep.Applied())
		return
	}
	if failed := rep.Failed(); failed > 0 {
		fmt.Fprintf(w, "❌ Applied %d, failed %d, skipped %d\n", rep.Applied(), failed, rep.Skipped())
		return
	}
	fmt.Fprintf(w, "✅ Applied %d migration(s) in %v\n", rep.Applied(), rep.Elapsed)
}

func stateMarker(s reconciler.State) string {
	switch s {
	case reconciler.Applied, reconciler.RepeatableCurrent:
		return "✅"
	case reconciler.Pending, reconciler.RepeatableDue:
		return "⏳"
	default:
		return "❌"
	}
}

func entryDetail(e *reconciler.Entry) string {
	switch e.State {
	case reconciler.Applied:
		if e.Record == nil {
			return " (baselined)"
		}
		return fmt.Sprintf(" (applied %s)", e.Record.AppliedAt.UTC().Format("2006-01-02 15:04:05"))
	case reconciler.Drifted:
		return " (checksum mismatch)"
	case reconciler.Missing:
		return " (recorded but file not found)"
	case reconciler.RepeatableCurrent:
		return fmt.Sprintf(" (run %d times)", e.Record.RunCount)
	default:
		return ""
	}
}

func writeRecommendation(w io.Writer, entries reconciler.Entries) {
	if len(entries.Integrity()) > 0 {
		fmt.Fprintln(w, "💡 Resolve drifted or missing migrations before applying")
		return
	}
	if entries.Count(reconciler.Pending) > 0 || entries.Count(reconciler.RepeatableDue) > 0 {
		fmt.Fprintln(w, "💡 Run 'deriddl apply' to apply outstanding migrations")
		return
	}
	fmt.Fprintln(w, "✅ All migrations are up to date")
}
