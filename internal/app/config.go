package app

import (
	"stagehand/internal/config"
)

// Config holds the application configuration
type Config struct {
	// Debug settings
	Debug bool

	// Custom configuration directory (optional). When empty, the per-user
	// configuration directory is used.
	ConfigPath string

	// WatchMode overrides the configured watch mode when set
	// (auto, kubernetes or filesystem).
	WatchMode string

	// WatchPath overrides the configured base directory for filesystem
	// mode when set.
	WatchPath string

	// Environment configuration, populated during bootstrap.
	StagehandConfig *config.StagehandConfig
}

// NewConfig creates a new application configuration
func NewConfig(debug bool, configPath, watchMode, watchPath string) *Config {
	return &Config{
		Debug:      debug,
		ConfigPath: configPath,
		WatchMode:  watchMode,
		WatchPath:  watchPath,
	}
}
