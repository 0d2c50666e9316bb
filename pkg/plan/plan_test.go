package plan_test

import (
	"testing"
	"testing/fstest"

	"github.com/deriddl/deriddl/pkg/catalog"
	"github.com/deriddl/deriddl/pkg/ledger"
	"github.com/deriddl/deriddl/pkg/plan"
	"github.com/deriddl/deriddl/pkg/reconciler"
	"github.com/stretchr/testify/require"
)

func reconcile(t *testing.T, files map[string]string, set *ledger.Set) reconciler.Entries {
	t.Helper()

	fsys := fstest.MapFS{}
	for name, content := range files {
		fsys[name] = &fstest.MapFile{Data: []byte(content)}
	}

	cat, err := catalog.Load(fsys)
	require.NoError(t, err)

	return reconciler.Reconcile(cat, set)
}

func TestBuild(t *testing.T) {
	t.Run("selects pending and due entries in order", func(t *testing.T) {
		entries := reconcile(t, map[string]string{
			"0001_a.sql":   "SELECT 1;",
			"0002_b.sql":   "SELECT 2;",
			"R__views.sql": "SELECT 3;",
		}, ledger.NewSet(0, &ledger.Record{
			Identity: "0001", Kind: catalog.Versioned, Checksum: catalog.Checksum([]byte("SELECT 1;")), Success: true,
		}))

		p, err := plan.Build(entries, plan.ModeApply)
		require.NoError(t, err)
		require.False(t, p.Empty())

		var order []string
		for _, e := range p.Entries {
			order = append(order, e.Identity)
		}
		require.Equal(t, []string{"0002", "R__views"}, order)
	})

	t.Run("empty plan is success", func(t *testing.T) {
		entries := reconcile(t, map[string]string{
			"0001_a.sql": "SELECT 1;",
		}, ledger.NewSet(0, &ledger.Record{
			Identity: "0001", Kind: catalog.Versioned, Checksum: catalog.Checksum([]byte("SELECT 1;")), Success: true,
		}))

		p, err := plan.Build(entries, plan.ModeApply)
		require.NoError(t, err)
		require.True(t, p.Empty())
	})

	t.Run("apply mode fails on drift", func(t *testing.T) {
		entries := reconcile(t, map[string]string{
			"0001_a.sql": "SELECT 1;",
			"0002_b.sql": "SELECT 2;",
		}, ledger.NewSet(0, &ledger.Record{
			Identity: "0001", Kind: catalog.Versioned, Checksum: "h1:old", Success: true,
		}))

		_, err := plan.Build(entries, plan.ModeApply)
		require.Error(t, err)

		var integrity *plan.IntegrityError
		require.ErrorAs(t, err, &integrity)
		require.Len(t, integrity.Drifted, 1)
		require.Empty(t, integrity.Missing)
		require.Contains(t, err.Error(), "0001 has drifted")
	})

	t.Run("apply mode fails on missing", func(t *testing.T) {
		entries := reconcile(t, map[string]string{
			"0002_b.sql": "SELECT 2;",
		}, ledger.NewSet(0, &ledger.Record{
			Identity: "0001", Kind: catalog.Versioned, Checksum: "h1:x", Success: true,
		}))

		_, err := plan.Build(entries, plan.ModeApply)
		require.Error(t, err)

		var integrity *plan.IntegrityError
		require.ErrorAs(t, err, &integrity)
		require.Len(t, integrity.Missing, 1)
		require.Contains(t, err.Error(), "0001 is recorded but has no file")
	})

	t.Run("report mode tolerates integrity issues", func(t *testing.T) {
		entries := reconcile(t, map[string]string{
			"0001_a.sql": "SELECT changed;",
			"0002_b.sql": "SELECT 2;",
		}, ledger.NewSet(0, &ledger.Record{
			Identity: "0001", Kind: catalog.Versioned, Checksum: "h1:old", Success: true,
		}))

		p, err := plan.Build(entries, plan.ModeReport)
		require.NoError(t, err)
		require.Len(t, p.Entries, 1)
		require.Equal(t, "0002", p.Entries[0].Identity)
	})
}
