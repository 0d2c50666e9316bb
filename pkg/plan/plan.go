// Package plan derives an ordered execution plan from a reconciled view.
package plan

import (
	"fmt"
	"strings"

	"github.com/deriddl/deriddl/pkg/reconciler"
)

// Mode selects how strictly integrity issues are treated while building.
type Mode int

const (
	// ModeApply refuses to build a plan when the view contains drifted or
	// missing migrations. This is the mode used before executing anything.
	ModeApply Mode = iota

	// ModeReport builds the plan regardless of integrity issues, for
	// display purposes only.
	ModeReport
)

type (
	// Plan is the ordered set of entries that an apply run would execute:
	// pending versioned migrations first, due repeatable migrations after.
	Plan struct {
		Entries reconciler.Entries
	}

	// IntegrityError reports that the catalog and ledger disagree in a way
	// that makes applying unsafe. Nothing is executed when it is returned.
	IntegrityError struct {
		Drifted reconciler.Entries
		Missing reconciler.Entries
	}
)

func (e *IntegrityError) Error() string {
	var parts []string
	for _, entry := range e.Drifted {
		parts = append(parts, fmt.Sprintf("%s has drifted", entry.Identity))
	}
	for _, entry := range e.Missing {
		parts = append(parts, fmt.Sprintf("%s is recorded but has no file", entry.Identity))
	}
	return "integrity check failed: " + strings.Join(parts, ", ")
}

// Build selects the executable entries from a reconciled view.
//
// In ModeApply any Drifted or Missing entry aborts the build with
// *IntegrityError; the operator has to resolve the disagreement before the
// engine will touch the database. An empty plan is not an error: it means
// the database is already up to date.
func Build(entries reconciler.Entries, mode Mode) (*Plan, error) {
	if mode == ModeApply {
		if issues := entries.Integrity(); len(issues) > 0 {
			return nil, &IntegrityError{
				Drifted: issues.Filter(reconciler.Drifted),
				Missing: issues.Filter(reconciler.Missing),
			}
		}
	}

	return &Plan{Entries: entries.Filter(reconciler.Pending, reconciler.RepeatableDue)}, nil
}

// Empty reports whether the plan has nothing to execute.
func (p *Plan) Empty() bool { return len(p.Entries) == 0 }
