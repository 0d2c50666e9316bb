package executor_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/deriddl/deriddl/pkg/executor"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *executor.DB {
	t.Helper()

	db, err := executor.Open(context.Background(), executor.Config{
		Driver:           "sqlite",
		DSN:              "file:" + filepath.Join(t.TempDir(), "test.db"),
		TransactionalDDL: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return db
}

func TestOpen(t *testing.T) {
	t.Run("connects and pings", func(t *testing.T) {
		db := openTestDB(t)
		require.NoError(t, db.Ping(context.Background()))
		require.True(t, db.SupportsTransactions())
	})

	t.Run("fails on unknown driver", func(t *testing.T) {
		_, err := executor.Open(context.Background(), executor.Config{Driver: "bogus", DSN: "x"})
		require.Error(t, err)
	})
}

func TestExec(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	t.Run("ddl", func(t *testing.T) {
		_, err := db.Exec(ctx, "CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT)")
		require.NoError(t, err)
	})

	t.Run("dml with args reports affected rows", func(t *testing.T) {
		affected, err := db.Exec(ctx, "INSERT INTO users (id, name) VALUES (?, ?)", 1, "ada")
		require.NoError(t, err)
		require.EqualValues(t, 1, affected)
	})

	t.Run("syntax error surfaces as executor error", func(t *testing.T) {
		_, err := db.Exec(ctx, "CREATE TABEL broken (id INTEGER)")
		require.Error(t, err)

		var execErr *executor.Error
		require.ErrorAs(t, err, &execErr)
		require.Contains(t, execErr.Statement, "CREATE TABEL")
	})
}

func TestQuery(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	_, err := db.Exec(ctx, "CREATE TABLE nums (n INTEGER)")
	require.NoError(t, err)
	for _, n := range []int{3, 1, 2} {
		_, err := db.Exec(ctx, "INSERT INTO nums (n) VALUES (?)", n)
		require.NoError(t, err)
	}

	rows, err := db.Query(ctx, "SELECT n FROM nums ORDER BY n")
	require.NoError(t, err)
	defer func() { _ = rows.Close() }()

	var got []int
	for rows.Next() {
		var n int
		require.NoError(t, rows.Scan(&n))
		got = append(got, n)
	}
	require.NoError(t, rows.Err())
	require.Equal(t, []int{1, 2, 3}, got)
}

func TestBegin(t *testing.T) {
	ctx := context.Background()

	t.Run("commit persists", func(t *testing.T) {
		db := openTestDB(t)

		tx, err := db.Begin(ctx)
		require.NoError(t, err)

		_, err = tx.Exec(ctx, "CREATE TABLE t (id INTEGER)")
		require.NoError(t, err)
		_, err = tx.Exec(ctx, "INSERT INTO t (id) VALUES (1)")
		require.NoError(t, err)
		require.NoError(t, tx.Commit())

		require.EqualValues(t, 1, countRows(t, db, "t"))
	})

	t.Run("rollback discards", func(t *testing.T) {
		db := openTestDB(t)

		tx, err := db.Begin(ctx)
		require.NoError(t, err)

		_, err = tx.Exec(ctx, "CREATE TABLE t (id INTEGER)")
		require.NoError(t, err)
		require.NoError(t, tx.Rollback())

		_, err = db.Query(ctx, "SELECT COUNT(*) FROM t")
		require.Error(t, err, "table should not exist after rollback")
	})

	t.Run("non-transactional backends pass through", func(t *testing.T) {
		db, err := executor.Open(ctx, executor.Config{
			Driver: "sqlite",
			DSN:    "file:" + filepath.Join(t.TempDir(), "nt.db"),
		})
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })
		require.False(t, db.SupportsTransactions())

		tx, err := db.Begin(ctx)
		require.NoError(t, err)

		_, err = tx.Exec(ctx, "CREATE TABLE t (id INTEGER)")
		require.NoError(t, err)

		// Rollback is a no-op; the table survives.
		require.NoError(t, tx.Rollback())
		require.EqualValues(t, 0, countRows(t, db, "t"))
	})
}

func countRows(t *testing.T, db *executor.DB, table string) int64 {
	t.Helper()

	rows, err := db.Query(context.Background(), "SELECT COUNT(*) FROM "+table)
	require.NoError(t, err)
	defer func() { _ = rows.Close() }()

	require.True(t, rows.Next())
	var n int64
	require.NoError(t, rows.Scan(&n))
	return n
}
