package config

import (
	"time"
)

// GetDefaultConfig returns the default configuration for stagehand.
func GetDefaultConfig() StagehandConfig {
	return StagehandConfig{
		Controller: ControllerConfig{
			Workers:          4,
			RetryBudget:      3,
			BackoffBase:      time.Second,
			BackoffCap:       5 * time.Minute,
			ReconcileTimeout: 2 * time.Minute,
			JobDeadline:      20 * time.Minute,
			ResyncInterval:   5 * time.Minute,
		},
		Watch: WatchConfig{
			Mode:     WatchModeAuto,
			Path:     ".",
			Debounce: 500 * time.Millisecond,
		},
	}
}

// applyDefaults fills zero fields after unmarshalling so a partial
// config.yaml only overrides what it names.
func applyDefaults(cfg *StagehandConfig) {
	defaults := GetDefaultConfig()

	if cfg.Controller.Workers <= 0 {
		cfg.Controller.Workers = defaults.Controller.Workers
	}
	if cfg.Controller.RetryBudget <= 0 {
		cfg.Controller.RetryBudget = defaults.Controller.RetryBudget
	}
	if cfg.Controller.BackoffBase <= 0 {
		cfg.Controller.BackoffBase = defaults.Controller.BackoffBase
	}
	if cfg.Controller.BackoffCap <= 0 {
		cfg.Controller.BackoffCap = defaults.Controller.BackoffCap
	}
	if cfg.Controller.ReconcileTimeout <= 0 {
		cfg.Controller.ReconcileTimeout = defaults.Controller.ReconcileTimeout
	}
	if cfg.Controller.JobDeadline <= 0 {
		cfg.Controller.JobDeadline = defaults.Controller.JobDeadline
	}
	if cfg.Controller.ResyncInterval <= 0 {
		cfg.Controller.ResyncInterval = defaults.Controller.ResyncInterval
	}
	if cfg.Watch.Mode == "" {
		cfg.Watch.Mode = defaults.Watch.Mode
	}
	if cfg.Watch.Path == "" {
		cfg.Watch.Path = defaults.Watch.Path
	}
	if cfg.Watch.Debounce <= 0 {
		cfg.Watch.Debounce = defaults.Watch.Debounce
	}
}
