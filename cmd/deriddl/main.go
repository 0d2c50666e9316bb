package main

import (
	"context"
	"os"

	"github.com/deriddl/deriddl/pkg/cmd"
	"github.com/deriddl/deriddl/pkg/config"
	"go.uber.org/fx"

	// The bundled pure-Go driver; other backends register their own
	// database/sql drivers through build-time imports.
	_ "modernc.org/sqlite"
)

// NB: These are set by GoReleaser during a build.
var (
	version string
	commit  string
	date    string
)

func main() {
	app := fx.New(
		fx.NopLogger,
		fx.Provide(
			func() context.Context { return context.Background() },
			func() []string { return os.Args },
			func() *cmd.Version {
				return &cmd.Version{Version: version, Commit: commit, Timestamp: date}
			},
		),
		config.Module,
		cmd.Module,
	)

	app.Run()
}
