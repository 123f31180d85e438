package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"stagehand/pkg/logging"
)

const (
	userConfigDir  = ".config/stagehand"
	configFileName = "config.yaml"
)

// GetDefaultConfigPathOrPanic returns the per-user configuration directory.
func GetDefaultConfigPathOrPanic() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		panic(fmt.Errorf("could not determine user config directory: %w", err))
	}

	return filepath.Join(homeDir, userConfigDir)
}

// LoadConfig loads configuration from the specified directory. The
// directory should contain config.yaml; a missing file yields defaults.
func LoadConfig(configPath string) (StagehandConfig, error) {
	configFilePath := filepath.Join(configPath, configFileName)
	config := GetDefaultConfig()

	data, err := os.ReadFile(configFilePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Info("ConfigLoader", "No config.yaml found at %s, using defaults", configFilePath)
			return config, nil
		}
		logging.Info("ConfigLoader", "Error loading config.yaml from %s: %s", configFilePath, err)
		return StagehandConfig{}, err
	}

	if err := yaml.Unmarshal(data, &config); err != nil {
		return StagehandConfig{}, fmt.Errorf("error loading config from %s: %w", configFilePath, err)
	}

	applyDefaults(&config)

	if err := validate(config); err != nil {
		return StagehandConfig{}, fmt.Errorf("invalid config in %s: %w", configFilePath, err)
	}

	logging.Info("ConfigLoader", "Loaded configuration from %s", configFilePath)
	return config, nil
}

// validate rejects configurations the controller cannot run with.
func validate(cfg StagehandConfig) error {
	switch cfg.Watch.Mode {
	case WatchModeAuto, WatchModeKubernetes, WatchModeFilesystem:
	default:
		return fmt.Errorf("unknown watch mode %q", cfg.Watch.Mode)
	}

	if cfg.Controller.BackoffBase > cfg.Controller.BackoffCap {
		return fmt.Errorf("backoffBase %s exceeds backoffCap %s",
			cfg.Controller.BackoffBase, cfg.Controller.BackoffCap)
	}

	return nil
}
