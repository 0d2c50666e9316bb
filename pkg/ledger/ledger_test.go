package ledger_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/deriddl/deriddl/pkg/catalog"
	"github.com/deriddl/deriddl/pkg/dialect"
	"github.com/deriddl/deriddl/pkg/executor"
	"github.com/deriddl/deriddl/pkg/ledger"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func testLedger(t *testing.T) (*ledger.Ledger, *executor.DB) {
	t.Helper()

	d, err := dialect.NewRegistry().Get("sqlite")
	require.NoError(t, err)

	db, err := executor.Open(context.Background(), executor.Config{
		Driver:           d.Driver,
		DSN:              "file:" + filepath.Join(t.TempDir(), "ledger.db"),
		TransactionalDDL: d.TransactionalDDL,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return ledger.New(ledger.Config{Executor: db, Dialect: d}), db
}

func TestInit(t *testing.T) {
	ctx := context.Background()
	l, _ := testLedger(t)

	require.False(t, l.Initialized(ctx))
	require.NoError(t, l.Init(ctx))
	require.True(t, l.Initialized(ctx))

	// Idempotent.
	require.NoError(t, l.Init(ctx))
}

func TestLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("uninitialized yields empty set", func(t *testing.T) {
		l, _ := testLedger(t)

		set, err := l.Load(ctx)
		require.NoError(t, err)
		require.Zero(t, set.Count())
		require.Zero(t, set.Baseline())
	})

	t.Run("roundtrips records", func(t *testing.T) {
		l, _ := testLedger(t)
		require.NoError(t, l.Init(ctx))

		applied := time.Date(2026, 8, 29, 10, 30, 0, 0, time.UTC)
		require.NoError(t, l.Record(ctx, &ledger.Record{
			Identity:  "0001",
			Kind:      catalog.Versioned,
			Checksum:  "h1:abc",
			AppliedAt: applied,
			Success:   true,
			Duration:  1500 * time.Millisecond,
			RunCount:  1,
		}))
		require.NoError(t, l.Record(ctx, &ledger.Record{
			Identity:  "R__views",
			Kind:      catalog.Repeatable,
			Checksum:  "h1:def",
			AppliedAt: applied.Add(time.Second),
			Success:   false,
			RunCount:  2,
		}))

		set, err := l.Load(ctx)
		require.NoError(t, err)
		require.Equal(t, 2, set.Count())

		rec := set.Get("0001")
		require.NotNil(t, rec)
		require.Equal(t, catalog.Versioned, rec.Kind)
		require.Equal(t, "h1:abc", rec.Checksum)
		require.True(t, rec.Success)
		require.Equal(t, 1500*time.Millisecond, rec.Duration)
		require.Equal(t, 1, rec.RunCount)
		require.True(t, rec.AppliedAt.Equal(applied), "got %v", rec.AppliedAt)

		rep := set.Get("R__views")
		require.NotNil(t, rep)
		require.False(t, rep.Success)
		require.Equal(t, 2, rep.RunCount)

		require.Nil(t, set.Get("0002"))
		require.False(t, set.Has("0002"))
	})

	t.Run("replaces by identity", func(t *testing.T) {
		l, _ := testLedger(t)
		require.NoError(t, l.Init(ctx))

		rec := &ledger.Record{Identity: "0001", Kind: catalog.Versioned, Checksum: "h1:v1", AppliedAt: time.Now(), RunCount: 1}
		require.NoError(t, l.Record(ctx, rec))

		rec.Checksum = "h1:v2"
		rec.Success = true
		require.NoError(t, l.Record(ctx, rec))

		set, err := l.Load(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, set.Count())
		require.Equal(t, "h1:v2", set.Get("0001").Checksum)
		require.True(t, set.Get("0001").Success)
	})

	t.Run("keeps the previous row when the replacement write fails", func(t *testing.T) {
		d, err := dialect.NewRegistry().Get("sqlite")
		require.NoError(t, err)

		_, db := testLedger(t)
		exec := &insertFailer{DB: db}
		l := ledger.New(ledger.Config{Executor: exec, Dialect: d})
		require.NoError(t, l.Init(ctx))

		rec := &ledger.Record{Identity: "0001", Kind: catalog.Versioned, Checksum: "h1:v1", AppliedAt: time.Now(), Success: true, RunCount: 1}
		require.NoError(t, l.Record(ctx, rec))

		// The delete succeeds but the insert does not; the transaction must
		// roll back so the earlier outcome survives.
		exec.fail = true
		rec.Checksum = "h1:v2"
		err = l.Record(ctx, rec)
		require.Error(t, err)

		var writeErr *ledger.WriteError
		require.ErrorAs(t, err, &writeErr)

		set, err := l.Load(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, set.Count())
		require.Equal(t, "h1:v1", set.Get("0001").Checksum)
	})
}

// insertFailer passes everything through to the real database until fail is
// set, after which inserts inside a transaction are rejected.
type insertFailer struct {
	*executor.DB
	fail bool
}

func (f *insertFailer) Begin(ctx context.Context) (executor.Tx, error) {
	tx, err := f.DB.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &insertFailingTx{Tx: tx, parent: f}, nil
}

type insertFailingTx struct {
	executor.Tx
	parent *insertFailer
}

func (t *insertFailingTx) Exec(ctx context.Context, statement string, args ...any) (int64, error) {
	if t.parent.fail && strings.HasPrefix(statement, "INSERT") {
		return 0, errors.New("insert rejected")
	}
	return t.Tx.Exec(ctx, statement, args...)
}

func TestRecordErrors(t *testing.T) {
	ctx := context.Background()
	l, _ := testLedger(t)

	// No Init: the tracking table does not exist, so writes must surface as
	// *ledger.WriteError rather than a bare driver error.
	err := l.Record(ctx, &ledger.Record{Identity: "0001", Kind: catalog.Versioned, AppliedAt: time.Now()})
	require.Error(t, err)

	var writeErr *ledger.WriteError
	require.ErrorAs(t, err, &writeErr)
	require.Equal(t, "0001", writeErr.Identity)
}

func TestSetBaseline(t *testing.T) {
	ctx := context.Background()

	t.Run("records and loads the baseline", func(t *testing.T) {
		l, _ := testLedger(t)
		require.NoError(t, l.Init(ctx))

		require.NoError(t, l.SetBaseline(ctx, 42))

		set, err := l.Load(ctx)
		require.NoError(t, err)
		require.Equal(t, 42, set.Baseline())
		require.Zero(t, set.Count(), "the baseline row is not a migration record")
	})

	t.Run("rejected when later history exists", func(t *testing.T) {
		l, _ := testLedger(t)
		require.NoError(t, l.Init(ctx))

		require.NoError(t, l.Record(ctx, &ledger.Record{
			Identity:  "0005",
			Kind:      catalog.Versioned,
			Checksum:  "h1:x",
			AppliedAt: time.Now(),
			Success:   true,
			RunCount:  1,
		}))

		require.Error(t, l.SetBaseline(ctx, 5))
		require.Error(t, l.SetBaseline(ctx, 3))
		require.NoError(t, l.SetBaseline(ctx, 6))
	})
}

func TestNewSet(t *testing.T) {
	set := ledger.NewSet(3,
		&ledger.Record{Identity: "0001", Kind: catalog.Versioned},
		&ledger.Record{Identity: "R__views", Kind: catalog.Repeatable},
	)

	require.Equal(t, 3, set.Baseline())
	require.Equal(t, 2, set.Count())
	require.True(t, set.Has("0001"))
	require.Len(t, set.Records(), 2)
}
