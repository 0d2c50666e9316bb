package config

import (
	"os"

	"go.uber.org/fx"
)

var Module = fx.Module("config", fx.Provide(
	// Loads deriddl.yaml from the working directory when present. Returns
	// nil if the file doesn't exist so commands that don't require config
	// (like validate against a --dir flag, help, version) still work.
	func() (*Config, error) {
		if _, err := os.Stat(DefaultFile); os.IsNotExist(err) {
			return nil, nil
		}

		return LoadConfigFile(DefaultFile)
	},
))
