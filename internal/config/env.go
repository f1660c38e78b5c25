package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// applyEnv overlays secrets and deployment knobs from the environment. Only
// fields tagged with `env` are touched, and only when the variable is set.
func applyEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
