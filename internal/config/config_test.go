package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "log:\n  level: debug\n"))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 22, cfg.SSH.Port)
	assert.Equal(t, 15*time.Second, cfg.SSH.ConnectTimeout)
	assert.Equal(t, 20*time.Second, cfg.SSH.ReadTimeout)
	assert.InDelta(t, 0.1, cfg.Operation.PacingFactor, 1e-9)
	assert.Equal(t, "flash:", cfg.Operation.DefaultFileSystem)
	assert.Empty(t, cfg.Database.SQLite.Path, "审计默认关闭")
	assert.False(t, cfg.Storage.Minio.Enabled)
	assert.Same(t, cfg, Get())
}

func TestLoadOverridesAndDeviceDefaults(t *testing.T) {
	body := `
ssh:
  timeout:
    dial_timeout: 1
    auth_timeout: 2
operation:
  pacing_factor: 2
device_defaults:
  cisco_nxos:
    save_cli: "copy running-config startup-config"
    boot_change: true
    error_hints: ["% Invalid command"]
`
	cfg, err := Load(writeConfig(t, body))
	require.NoError(t, err)

	assert.Equal(t, 3*time.Second, cfg.SSH.ConnectTimeout)
	assert.InDelta(t, 2.0, cfg.Operation.PacingFactor, 1e-9)

	nx, ok := cfg.DeviceDefaults["cisco_nxos"]
	require.True(t, ok)
	assert.Equal(t, "copy running-config startup-config", nx.SaveCLI)
	require.NotNil(t, nx.BootChange)
	assert.True(t, *nx.BootChange)
	assert.Equal(t, []string{"% Invalid command"}, nx.ErrorHints)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLocation(t *testing.T) {
	cfg := &Config{Log: LogConfig{Timezone: "UTC"}}
	assert.Equal(t, time.UTC, cfg.Location())

	cfg.Log.Timezone = "Not/AZone"
	assert.Equal(t, time.Local, cfg.Location())

	cfg.Log.Timezone = ""
	assert.Equal(t, time.Local, cfg.Location())
}
