package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stagehand/internal/config"
)

func writeTestConfig(t *testing.T, watchPath string) string {
	t.Helper()

	configDir := t.TempDir()
	content := "watch:\n  mode: filesystem\n  path: " + watchPath + "\n"
	err := os.WriteFile(filepath.Join(configDir, "config.yaml"), []byte(content), 0o644)
	require.NoError(t, err)
	return configDir
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig(true, "/tmp/cfg", "filesystem", "/tmp/state")

	assert.True(t, cfg.Debug)
	assert.Equal(t, "/tmp/cfg", cfg.ConfigPath)
	assert.Equal(t, "filesystem", cfg.WatchMode)
	assert.Equal(t, "/tmp/state", cfg.WatchPath)
	assert.Nil(t, cfg.StagehandConfig)
}

func TestNewApplicationFilesystemMode(t *testing.T) {
	watchPath := t.TempDir()
	cfg := NewConfig(false, writeTestConfig(t, watchPath), "", "")

	application, err := NewApplication(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = application.services.Client.Close() })

	require.NotNil(t, cfg.StagehandConfig)
	assert.Equal(t, config.WatchModeFilesystem, cfg.StagehandConfig.Watch.Mode)

	s := application.services
	require.NotNil(t, s.Client)
	require.NotNil(t, s.Bus)
	require.NotNil(t, s.Tracker)
	require.NotNil(t, s.Manager)
	assert.False(t, s.Client.IsKubernetesMode())
	assert.False(t, s.Manager.IsRunning(), "services must not start during bootstrap")
}

func TestNewApplicationMissingConfigUsesDefaults(t *testing.T) {
	// An empty config directory yields defaults; the watch path flag still
	// forces filesystem mode into a temp directory.
	cfg := NewConfig(false, t.TempDir(), config.WatchModeFilesystem, t.TempDir())

	application, err := NewApplication(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = application.services.Client.Close() })

	require.NotNil(t, cfg.StagehandConfig)
	assert.Equal(t, 4, cfg.StagehandConfig.Controller.Workers)
	assert.False(t, application.services.Client.IsKubernetesMode())
}

func TestInitializeServicesOverrides(t *testing.T) {
	shCfg := config.GetDefaultConfig()
	cfg := NewConfig(false, "", config.WatchModeFilesystem, t.TempDir())
	cfg.StagehandConfig = &shCfg

	s, err := InitializeServices(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Client.Close() })

	assert.False(t, s.Client.IsKubernetesMode(), "filesystem override must win over the configured auto mode")
}
