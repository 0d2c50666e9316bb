package dialect

import (
	"fmt"
	"strings"
)

type (
	// Dialect describes one database backend's capabilities and DDL shapes.
	Dialect struct {
		// Name is the canonical dialect name, e.g. "postgres".
		Name string

		// Aliases are alternative names accepted by Registry.Get.
		Aliases []string

		// TransactionalDDL reports whether the backend supports DDL inside
		// transactions. Feeds Executor.SupportsTransactions and through it
		// the apply engine's execution strategy.
		TransactionalDDL bool

		// Driver is the database/sql driver name conventionally used for
		// this backend.
		Driver string

		dsnPatterns        []string
		timestampType      string
		booleanType        string
		identityType       string
		dollarPlaceholders bool
	}
)

// Placeholder returns the bind-parameter marker for the i-th (zero-based)
// argument of a statement: "?" on most backends, "$1"-style on postgres.
func (d *Dialect) Placeholder(i int) string {
	if d.dollarPlaceholders {
		return fmt.Sprintf("$%d", i+1)
	}
	return "?"
}

// Matches reports whether the connection string looks like this backend.
func (d *Dialect) Matches(dsn string) bool {
	lower := strings.ToLower(dsn)
	for _, p := range d.dsnPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// CreateTrackingTableSQL returns the idempotent DDL for the applied-migration
// ledger table.
func (d *Dialect) CreateTrackingTableSQL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	identity %s PRIMARY KEY,
	kind %s NOT NULL,
	checksum %s NOT NULL,
	applied_at %s NOT NULL,
	success %s NOT NULL,
	duration_ms BIGINT NOT NULL DEFAULT 0,
	run_count INTEGER NOT NULL DEFAULT 1
)`, table, d.identityType, d.identityType, d.identityType, d.timestampType, d.booleanType)
}

// CreateLockTableSQL returns the idempotent DDL for the single-row advisory
// lock table.
func (d *Dialect) CreateLockTableSQL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id INTEGER PRIMARY KEY,
	locked_by %s NOT NULL,
	locked_at %s NOT NULL
)`, table, d.identityType, d.timestampType)
}

func builtins() []*Dialect {
	return []*Dialect{
		{
			Name:               "postgres",
			Aliases:            []string{"postgresql", "pg", "redshift"},
			TransactionalDDL:   true,
			Driver:             "pgx",
			dsnPatterns:        []string{"postgres://", "postgresql://", "driver={postgresql", "port=5432"},
			timestampType:      "TIMESTAMPTZ",
			booleanType:        "BOOLEAN",
			identityType:       "TEXT",
			dollarPlaceholders: true,
		},
		{
			Name:             "mysql",
			Aliases:          []string{"mariadb"},
			TransactionalDDL: false, // implicit commit on DDL
			Driver:           "mysql",
			dsnPatterns:      []string{"mysql://", "driver={mysql", "@tcp(", "port=3306"},
			timestampType:    "DATETIME(3)",
			booleanType:      "TINYINT(1)",
			identityType:     "VARCHAR(255)",
		},
		{
			Name:             "sqlite",
			Aliases:          []string{"sqlite3"},
			TransactionalDDL: true,
			Driver:           "sqlite",
			dsnPatterns:      []string{"sqlite", "file:", ".db", ":memory:"},
			timestampType:    "TEXT",
			booleanType:      "INTEGER",
			identityType:     "TEXT",
		},
		{
			Name:             "generic",
			TransactionalDDL: false,
			Driver:           "odbc",
			timestampType:    "TIMESTAMP",
			booleanType:      "SMALLINT",
			identityType:     "VARCHAR(255)",
		},
	}
}
