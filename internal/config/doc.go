// Package config loads and validates the stagehand configuration from
// YAML, filling defaults for anything a partial config.yaml leaves out.
package config
