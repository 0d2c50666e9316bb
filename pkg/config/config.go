// Package config loads the project configuration for deriddl.
package config

import (
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// DefaultFile is the configuration file name looked up in the working
// directory when no explicit path is given.
const DefaultFile = "deriddl.yaml"

const (
	// DefaultDir is the default migration directory.
	DefaultDir = "migrations"

	// DefaultStatementTimeout bounds each statement's execution time.
	DefaultStatementTimeout = 30 * time.Second

	// DefaultLockWait bounds how long apply waits for the advisory lock.
	DefaultLockWait = 10 * time.Second

	// DefaultMaxFileSize caps individual migration file size at 4 MiB.
	DefaultMaxFileSize = 4 << 20
)

type (
	// Database holds the connection settings for the target database.
	Database struct {
		// DSN is the connection string. Environment expansion is applied so
		// credentials can live outside the file, e.g. "${DATABASE_URL}".
		DSN string `yaml:"dsn"`

		// Dialect forces a specific dialect; when empty it is detected from
		// the DSN and falls back to "generic".
		Dialect string `yaml:"dialect,omitempty"`

		// StatementTimeout bounds each statement, default 30s.
		StatementTimeout time.Duration `yaml:"statement_timeout,omitempty"`
	}

	// Ledger holds the tracking-table settings.
	Ledger struct {
		// Table overrides the tracking table name (default
		// "schema_migrations").
		Table string `yaml:"table,omitempty"`

		// LockTable overrides the advisory lock table name (default
		// "schema_migrations_lock").
		LockTable string `yaml:"lock_table,omitempty"`

		// LockWait bounds lock acquisition, default 10s.
		LockWait time.Duration `yaml:"lock_wait,omitempty"`

		// AutoCreate creates the tracking tables on first apply when true.
		AutoCreate bool `yaml:"auto_create,omitempty"`
	}

	// Config represents the project configuration for migration management.
	Config struct {
		// Database contains the target connection settings.
		Database Database `yaml:"database"`

		// Ledger contains tracking-table settings.
		Ledger Ledger `yaml:"ledger"`

		// Dir specifies the directory where migration files are stored.
		Dir string `yaml:"dir"`

		// MaxFileSize caps individual migration file size in bytes.
		MaxFileSize int64 `yaml:"max_file_size,omitempty"`
	}
)

// LoadConfig parses a project configuration from the provided io.Reader.
//
// The data is YAML. Unset fields receive defaults, and the DSN is passed
// through os.ExpandEnv so connection strings can reference environment
// variables instead of embedding credentials.
func LoadConfig(r io.Reader) (*Config, error) {
	var cfg Config
	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// LoadConfigFile loads a project configuration from the specified file path.
// This is a convenience function that opens the file and calls LoadConfig.
func LoadConfigFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open file: %s", path)
	}
	defer func() { _ = f.Close() }()

	return LoadConfig(f)
}

// Default returns a configuration with every field at its default value.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	c.Database.DSN = os.ExpandEnv(c.Database.DSN)
	if c.Database.StatementTimeout <= 0 {
		c.Database.StatementTimeout = DefaultStatementTimeout
	}
	if c.Ledger.LockWait <= 0 {
		c.Ledger.LockWait = DefaultLockWait
	}
	if c.Dir == "" {
		c.Dir = DefaultDir
	}
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = DefaultMaxFileSize
	}
}
