// Package config provides YAML configuration loading for the agent
// simulator.
//
// It reads one directory tree (driven by an environment variable, with a
// flag override) containing one YAML file per configuration section —
// endpoints.yaml, contexts.yaml, v3_users.yaml, behaviors.yaml,
// counters.yaml, state_machines.yaml, restart.yaml, limits.yaml — and
// produces a models.Config value with documented defaults applied.
package config

import "os"

// Paths holds the directory location for the configuration tree.
type Paths struct {
	Root string // AGENTSIM_CONFIG_DIRECTORY_PATH
}

// PathsFromEnv reads the config directory from its environment variable,
// falling back to the documented default when unset or empty.
func PathsFromEnv() Paths {
	return Paths{
		Root: envOr("AGENTSIM_CONFIG_DIRECTORY_PATH", "/etc/agentsim/config"),
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
