package reconciler

import (
	"sort"
	"strconv"

	"github.com/deriddl/deriddl/pkg/catalog"
	"github.com/deriddl/deriddl/pkg/ledger"
)

// State classifies one migration identity after comparing catalog and ledger.
type State string

const (
	// Applied means a versioned migration was recorded successfully with a
	// matching checksum, or is covered by the baseline version.
	Applied State = "applied"

	// Drifted means a versioned migration was recorded but its file content
	// no longer matches the recorded checksum.
	Drifted State = "drifted"

	// Missing means the ledger records a versioned identity that has no
	// matching file in the catalog.
	Missing State = "missing"

	// Pending means a versioned migration has not been applied successfully
	// yet. A previously failed attempt with an unchanged checksum is Pending
	// again so it can be retried.
	Pending State = "pending"

	// RepeatableCurrent means a repeatable migration's last successful run
	// matches the current file content.
	RepeatableCurrent State = "repeatable_current"

	// RepeatableDue means a repeatable migration needs to run: it has never
	// run, its content changed since the last run, or the last run failed.
	RepeatableDue State = "repeatable_due"
)

type (
	// Entry is one reconciled migration identity. Migration is nil for
	// Missing entries; Record is nil for identities the ledger has never
	// seen.
	Entry struct {
		Identity  string
		State     State
		Migration *catalog.Migration
		Record    *ledger.Record
	}

	// Entries is the full reconciled view, ordered versioned ascending by
	// version then repeatable ascending by name.
	Entries []*Entry
)

// Reconcile classifies every catalog migration and every ledger record into
// a single ordered view. It is pure: no I/O, no mutation of its inputs.
func Reconcile(cat *catalog.Catalog, set *ledger.Set) Entries {
	var versioned, repeatable Entries

	seen := make(map[string]bool, len(cat.Migrations))
	for _, m := range cat.Migrations {
		seen[m.Identity] = true

		e := &Entry{
			Identity:  m.Identity,
			Migration: m,
			Record:    set.Get(m.Identity),
		}
		if m.Kind == catalog.Versioned {
			e.State = classifyVersioned(m, e.Record, set.Baseline())
			versioned = append(versioned, e)
		} else {
			e.State = classifyRepeatable(m, e.Record)
			repeatable = append(repeatable, e)
		}
	}

	for _, rec := range set.Records() {
		if rec.Kind != catalog.Versioned || seen[rec.Identity] {
			continue
		}
		versioned = append(versioned, &Entry{
			Identity: rec.Identity,
			State:    Missing,
			Record:   rec,
		})
	}

	sort.SliceStable(versioned, func(i, j int) bool {
		return versionOf(versioned[i]) < versionOf(versioned[j])
	})
	sort.SliceStable(repeatable, func(i, j int) bool {
		return repeatable[i].Identity < repeatable[j].Identity
	})

	return append(versioned, repeatable...)
}

// classifyVersioned implements the precedence order for versioned entries:
// drift is checked before the success flag, so a failed attempt whose file
// has since changed surfaces as Drifted rather than silently retrying
// different content.
func classifyVersioned(m *catalog.Migration, rec *ledger.Record, baseline int) State {
	if rec == nil {
		if baseline > 0 && m.Version <= baseline {
			return Applied
		}
		return Pending
	}
	if rec.Checksum != m.Checksum {
		return Drifted
	}
	if !rec.Success {
		return Pending
	}
	return Applied
}

func classifyRepeatable(m *catalog.Migration, rec *ledger.Record) State {
	if rec == nil || rec.Checksum != m.Checksum || !rec.Success {
		return RepeatableDue
	}
	return RepeatableCurrent
}

func versionOf(e *Entry) int {
	if e.Migration != nil {
		return e.Migration.Version
	}
	v, _ := strconv.Atoi(e.Identity)
	return v
}

// Filter returns the entries in the given states, preserving order.
func (es Entries) Filter(states ...State) Entries {
	var out Entries
	for _, e := range es {
		for _, s := range states {
			if e.State == s {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

// Count returns how many entries are in the given state.
func (es Entries) Count(state State) int {
	n := 0
	for _, e := range es {
		if e.State == state {
			n++
		}
	}
	return n
}

// Integrity returns the entries that block an apply run: drifted and
// missing migrations.
func (es Entries) Integrity() Entries {
	return es.Filter(Drifted, Missing)
}
