package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix prefixes every environment variable the server reads.
const EnvPrefix = "TOKENKEEPER_"

// parseEnv overlays TOKENKEEPER_* variables onto config. Unset variables keep
// the value from the earlier sources. A nil environ reads the process
// environment.
func parseEnv(config *Config, environ map[string]string) error {
	opts := env.Options{
		Prefix:      EnvPrefix,
		Environment: environ,
	}
	if err := env.ParseWithOptions(config, opts); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
