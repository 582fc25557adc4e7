package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sshcollectorpro/flashops/internal/database"
	"github.com/sshcollectorpro/flashops/simulate"
)

func writeConfig(t *testing.T) string {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "log:\n  level: warn\n  timezone: UTC\noperation:\n  log_dir: " + filepath.Join(dir, "ops") + "\nssh:\n  settle_ms: 50\n  read_timeout: 5s\n  channel_retries: 1\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

type cliResult struct {
	Success     bool                   `json:"success"`
	Message     string                 `json:"message"`
	Payload     map[string]interface{} `json:"payload"`
	OperationID string                 `json:"operation_id"`
}

func run(t *testing.T, args ...string) (cliResult, error) {
	return runWith(t, writeConfig(t), args...)
}

func runWith(t *testing.T, configPath string, args ...string) (cliResult, error) {
	var out bytes.Buffer
	cmd := newRootCommand(&out)
	cmd.SetArgs(append(args, "--config", configPath))
	err := execute(context.Background(), cmd)

	var res cliResult
	if out.Len() > 0 {
		require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	}
	return res, err
}

func TestBootWithoutChangeDoesNotConnect(t *testing.T) {
	res, err := run(t, "boot", "--host", "192.0.2.1", "--image", "no")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "No change requirement", res.Message)
	assert.NotEmpty(t, res.OperationID)
}

func TestBootUnsupportedPlatformFails(t *testing.T) {
	res, err := run(t, "boot", "--host", "192.0.2.1", "--platform", "cisco_nxos", "--image", "nxos.bin")
	assert.ErrorIs(t, err, errOperationFailed)
	assert.False(t, res.Success)
	assert.Equal(t, "Platform cisco_nxos is not supported", res.Message)
}

func TestFailedOperationClosesAuditDB(t *testing.T) {
	path := writeConfig(t)
	dbPath := filepath.Join(filepath.Dir(path), "audit.db")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString("database:\n  sqlite:\n    path: " + dbPath + "\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	res, err := runWith(t, path, "boot", "--host", "192.0.2.1", "--platform", "cisco_nxos", "--image", "nxos.bin")
	assert.ErrorIs(t, err, errOperationFailed)
	assert.False(t, res.Success)
	assert.Nil(t, database.GetDB())
	assert.FileExists(t, dbPath)
}

func TestCopyWithoutSource(t *testing.T) {
	res, err := run(t, "copy", "--host", "192.0.2.1")
	require.NoError(t, err)
	assert.Equal(t, "No file to transfer", res.Message)
	assert.Equal(t, false, res.Payload["file_transferred"])
}

func TestHostIsRequired(t *testing.T) {
	_, err := run(t, "scan")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--host")
}

func TestInvalidChgLoader(t *testing.T) {
	_, err := run(t, "boot", "--host", "192.0.2.1", "--chg-loader", "{oops")
	require.Error(t, err)
	assert.NotErrorIs(t, err, errOperationFailed)
}

func TestVersion(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCommand(&out)
	cmd.SetArgs([]string{"version", "--config", writeConfig(t)})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "cisco_ios")
}

func TestScanAgainstSimulatedDevice(t *testing.T) {
	flash := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(flash, "c2960.bin"), []byte("image"), 0644))
	dev, err := simulate.NewDevice(simulate.DeviceConfig{Username: "admin", Password: "nova", EnableSecret: "cisco", FlashDir: flash})
	require.NoError(t, err)
	require.NoError(t, dev.Start("127.0.0.1:0"))
	t.Cleanup(dev.Stop)

	res, err := run(t, "scan", "--host", "127.0.0.1", "--port", strconv.Itoa(dev.Port()),
		"-u", "admin", "-p", "nova", "--enable-password", "cisco", "--search", "c2960.bin")
	require.NoError(t, err)
	assert.True(t, res.Success)
	search, ok := res.Payload["search"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, search["found"])
}
