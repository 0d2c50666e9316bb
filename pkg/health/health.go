// Package health runs preflight probes over the migration environment.
package health

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/deriddl/deriddl/pkg/catalog"
)

// Status is the outcome of one probe.
type Status string

const (
	Pass Status = "pass"
	Warn Status = "warn"
	Fail Status = "fail"
)

type (
	// Check is a finished probe result.
	Check struct {
		Name   string
		Status Status
		Detail string
	}

	// Probe is one named health check.
	Probe struct {
		Name string
		Run  func(ctx context.Context) (Status, string)
	}
)

// Failed reports whether any check failed. Warnings do not count.
func Failed(checks []Check) bool {
	for _, c := range checks {
		if c.Status == Fail {
			return true
		}
	}
	return false
}

// RunAll executes every probe in order and collects the results.
func RunAll(ctx context.Context, probes []*Probe) []Check {
	checks := make([]Check, 0, len(probes))
	for _, p := range probes {
		status, detail := p.Run(ctx)
		checks = append(checks, Check{Name: p.Name, Status: status, Detail: detail})
	}
	return checks
}

// DirProbe verifies the migration directory exists and is a directory.
func DirProbe(dir string) *Probe {
	return &Probe{
		Name: "migrations directory",
		Run: func(context.Context) (Status, string) {
			info, err := os.Stat(dir)
			if err != nil {
				return Fail, fmt.Sprintf("%s: %v", dir, err)
			}
			if !info.IsDir() {
				return Fail, fmt.Sprintf("%s is not a directory", dir)
			}
			return Pass, dir
		},
	}
}

// CatalogProbe verifies every migration file parses under the grammar and
// size limit.
func CatalogProbe(dir string, maxFileSize int64) *Probe {
	return &Probe{
		Name: "migration catalog",
		Run: func(context.Context) (Status, string) {
			cat, err := catalog.LoadWithLimit(os.DirFS(dir), maxFileSize)
			if err != nil {
				return Fail, err.Error()
			}
			return Pass, fmt.Sprintf("%d migration(s)", len(cat.Migrations))
		},
	}
}

// DatabaseProbe verifies the target database is reachable. The connect
// function owns the details so this package stays free of driver imports.
func DatabaseProbe(dialectName string, connect func(ctx context.Context) error) *Probe {
	return &Probe{
		Name: "database connectivity",
		Run: func(ctx context.Context) (Status, string) {
			if connect == nil {
				return Warn, "no dsn configured"
			}
			if err := connect(ctx); err != nil {
				return Fail, err.Error()
			}
			return Pass, fmt.Sprintf("connected (%s)", dialectName)
		},
	}
}

// LinterProbe reports whether sqlfluff is available on PATH. Linting is
// optional so absence is a warning, not a failure.
func LinterProbe() *Probe {
	return &Probe{
		Name: "sqlfluff",
		Run: func(context.Context) (Status, string) {
			path, err := exec.LookPath("sqlfluff")
			if err != nil {
				return Warn, "not found on PATH"
			}
			return Pass, path
		},
	}
}
