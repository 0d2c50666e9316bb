package catalog_test

import (
	"testing"
	"testing/fstest"

	"github.com/deriddl/deriddl/pkg/catalog"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("orders versioned numerically then repeatable by name", func(t *testing.T) {
		fsys := fstest.MapFS{
			"0003_add_index.sql":    sqlFile("CREATE INDEX idx ON users (name);"),
			"0001_create_users.sql": sqlFile("CREATE TABLE users (id INTEGER);"),
			"0002_add_email.sql":    sqlFile("ALTER TABLE users ADD COLUMN email TEXT;"),
			"R__views.sql":          sqlFile("CREATE VIEW v AS SELECT 1;"),
			"R__grants.sql":         sqlFile("SELECT 1;"),
		}

		cat, err := catalog.Load(fsys)
		require.NoError(t, err)
		require.Len(t, cat.Migrations, 5)

		var order []string
		for _, m := range cat.Migrations {
			order = append(order, m.Identity)
		}
		require.Equal(t, []string{"0001", "0002", "0003", "R__grants", "R__views"}, order)
	})

	t.Run("parses versioned filenames", func(t *testing.T) {
		fsys := fstest.MapFS{"00042_wider_ordinal.sql": sqlFile("SELECT 1;")}

		cat, err := catalog.Load(fsys)
		require.NoError(t, err)

		m := cat.Migrations[0]
		require.Equal(t, catalog.Versioned, m.Kind)
		require.Equal(t, 42, m.Version)
		require.Equal(t, "wider_ordinal", m.Name)
		require.Equal(t, "00042", m.Identity, "identity keeps the zero padding from the filename")
		require.Equal(t, "00042_wider_ordinal.sql", m.Filename())
	})

	t.Run("parses repeatable filenames", func(t *testing.T) {
		fsys := fstest.MapFS{"R__refresh_views.sql": sqlFile("SELECT 1;")}

		cat, err := catalog.Load(fsys)
		require.NoError(t, err)

		m := cat.Migrations[0]
		require.Equal(t, catalog.Repeatable, m.Kind)
		require.Equal(t, 0, m.Version)
		require.Equal(t, "refresh_views", m.Name)
		require.Equal(t, "R__refresh_views", m.Identity)
	})

	t.Run("rejects filenames outside the grammar", func(t *testing.T) {
		for _, name := range []string{
			"001_too_short.sql",
			"0001-dashes.sql",
			"0001_MixedCase.sql",
			"R_single_underscore.sql",
			"noversion.sql",
		} {
			t.Run(name, func(t *testing.T) {
				fsys := fstest.MapFS{name: sqlFile("SELECT 1;")}

				_, err := catalog.Load(fsys)
				require.Error(t, err)

				var catErr *catalog.Error
				require.ErrorAs(t, err, &catErr)
			})
		}
	})

	t.Run("rejects duplicate versions across padding widths", func(t *testing.T) {
		fsys := fstest.MapFS{
			"0001_first.sql":  sqlFile("SELECT 1;"),
			"00001_again.sql": sqlFile("SELECT 2;"),
		}

		_, err := catalog.Load(fsys)
		require.Error(t, err)
		require.Contains(t, err.Error(), "duplicate version 1")
	})

	t.Run("ignores non-sql files and subdirectories", func(t *testing.T) {
		fsys := fstest.MapFS{
			"0001_create.sql":    sqlFile("SELECT 1;"),
			"README.md":          sqlFile("# docs"),
			"archive/0002_x.sql": sqlFile("SELECT 2;"),
		}

		cat, err := catalog.Load(fsys)
		require.NoError(t, err)
		require.Len(t, cat.Migrations, 1)
	})

	t.Run("enforces the file size limit", func(t *testing.T) {
		fsys := fstest.MapFS{"0001_big.sql": sqlFile("SELECT '" + string(make([]byte, 128)) + "';")}

		_, err := catalog.LoadWithLimit(fsys, 16)
		require.Error(t, err)
		require.Contains(t, err.Error(), "limit is 16")
	})

	t.Run("empty directory yields empty catalog", func(t *testing.T) {
		cat, err := catalog.Load(fstest.MapFS{})
		require.NoError(t, err)
		require.Empty(t, cat.Migrations)
	})
}

func TestCatalogGaps(t *testing.T) {
	fsys := fstest.MapFS{
		"0001_a.sql": sqlFile("SELECT 1;"),
		"0002_b.sql": sqlFile("SELECT 2;"),
		"0005_c.sql": sqlFile("SELECT 3;"),
	}

	cat, err := catalog.Load(fsys)
	require.NoError(t, err)
	require.Equal(t, []int{3, 4}, cat.Gaps())

	contiguous, err := catalog.Load(fstest.MapFS{
		"0001_a.sql": sqlFile("SELECT 1;"),
		"0002_b.sql": sqlFile("SELECT 2;"),
	})
	require.NoError(t, err)
	require.Empty(t, contiguous.Gaps())
}

func TestChecksum(t *testing.T) {
	base := catalog.Checksum([]byte("CREATE TABLE t (id INTEGER);\n"))

	t.Run("format", func(t *testing.T) {
		require.Regexp(t, `^h1:[A-Za-z0-9+/]+=*$`, base)
	})

	t.Run("cosmetic changes do not alter the checksum", func(t *testing.T) {
		for name, content := range map[string]string{
			"crlf endings":         "CREATE TABLE t (id INTEGER);\r\n",
			"trailing spaces":      "CREATE TABLE t (id INTEGER);   \n",
			"trailing blank lines": "CREATE TABLE t (id INTEGER);\n\n\n",
			"missing final nl":     "CREATE TABLE t (id INTEGER);",
			"utf8 bom":             "\ufeffCREATE TABLE t (id INTEGER);\n",
		} {
			t.Run(name, func(t *testing.T) {
				require.Equal(t, base, catalog.Checksum([]byte(content)))
			})
		}
	})

	t.Run("content changes alter the checksum", func(t *testing.T) {
		for name, content := range map[string]string{
			"body change":         "CREATE TABLE t (id BIGINT);\n",
			"comment change":      "-- note\nCREATE TABLE t (id INTEGER);\n",
			"interior blank line": "CREATE TABLE t\n\n(id INTEGER);\n",
		} {
			t.Run(name, func(t *testing.T) {
				require.NotEqual(t, base, catalog.Checksum([]byte(content)))
			})
		}
	})
}

func sqlFile(content string) *fstest.MapFile {
	return &fstest.MapFile{Data: []byte(content)}
}
