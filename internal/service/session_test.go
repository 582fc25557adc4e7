package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sshcollectorpro/flashops/internal/config"
	"github.com/sshcollectorpro/flashops/internal/model"
)

func TestConnectAndEnable(t *testing.T) {
	dev := startDevice(t, nil)
	m := NewSessionManager(testConfig(t))

	s, ok, msg := m.Connect(context.Background(), targetFor(dev, "cisco_ios").params(), nil)
	require.True(t, ok, msg)
	assert.Equal(t, "Successful connection", msg)
	assert.True(t, s.Privileged())

	out, err := s.SendCommand(context.Background(), "show running-config")
	require.NoError(t, err)
	assert.Contains(t, out, "boot system flash:old.bin")

	_, err = s.SendCommand(context.Background(), "reload in 5")
	var ce *CommandError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, ce.Output, "% Invalid input")

	m.Disconnect(s)
	m.Disconnect(s)
	assert.Eventually(t, func() bool { return dev.Sessions() == 1 }, 5*time.Second, 20*time.Millisecond)
	assert.Contains(t, dev.Commands(), "terminal length 0")
}

func TestConnectWithoutEnableStaysUnprivileged(t *testing.T) {
	dev := startDevice(t, nil)
	m := NewSessionManager(testConfig(t))
	p := targetFor(dev, "cisco_ios").params()
	p.EnablePassword = ""

	s, ok, msg := m.Connect(context.Background(), p, nil)
	require.True(t, ok, msg)
	defer m.Disconnect(s)
	assert.False(t, s.Privileged())
	assert.NotContains(t, dev.Commands(), "enable")
}

func TestConnectUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	m := NewSessionManager(testConfig(t))
	s, ok, msg := m.Connect(context.Background(), ConnectParams{Platform: "cisco_ios", Address: "127.0.0.1", Port: port, User: "a", Password: "b"}, nil)
	assert.Nil(t, s)
	assert.False(t, ok)
	assert.Contains(t, msg, "connection error: ")
}

func TestConnectWithSSHConfigProfile(t *testing.T) {
	dev := startDevice(t, nil)
	profile := t.TempDir() + "/ssh_config"
	require.NoError(t, os.WriteFile(profile, []byte(fmt.Sprintf("Host lab-router\n  HostName 127.0.0.1\n  Port %d\n  User admin\n", dev.Port())), 0600))

	m := NewSessionManager(testConfig(t))
	s, ok, msg := m.Connect(context.Background(), ConnectParams{
		Platform: "cisco_ios",
		Address:  "lab-router",
		Password: "nova",
		Profile:  model.Some(profile),
	}, nil)
	require.True(t, ok, msg)
	m.Disconnect(s)
}

func TestSendConfigAgainstDevice(t *testing.T) {
	dev := startDevice(t, nil)
	m := NewSessionManager(testConfig(t))
	s, ok, msg := m.Connect(context.Background(), targetFor(dev, "cisco_ios").params(), nil)
	require.True(t, ok, msg)
	defer m.Disconnect(s)

	ok, msg = m.SendConfig(context.Background(), s, []string{"no boot system", "bogus line"})
	assert.False(t, ok)
	assert.Contains(t, msg, "% Invalid input")

	// 失败后已退出配置模式，后续命令仍在特权模式
	_, err := s.SendCommand(context.Background(), "dir")
	require.NoError(t, err)
	assert.True(t, s.shell.Privileged())

	ok, _ = m.Persist(context.Background(), s)
	assert.True(t, ok)
	assert.Empty(t, dev.StartupBoot())
}

func TestWithSessionDisconnectsOnce(t *testing.T) {
	dev := startDevice(t, nil)
	m := NewSessionManager(testConfig(t))

	calls := 0
	res, connected := m.WithSession(context.Background(), targetFor(dev, "cisco_ios").params(), nil, func(ctx context.Context, s DeviceSession) (interface{}, bool, string) {
		calls++
		return "payload", false, "act failed"
	})
	assert.True(t, connected)
	assert.Equal(t, 1, calls)
	assert.False(t, res.Success)
	assert.Equal(t, "act failed", res.Message)
	assert.Eventually(t, func() bool { return dev.Sessions() == 1 }, 5*time.Second, 20*time.Millisecond)
}

func TestDialectOverrides(t *testing.T) {
	enabled := true
	cfg := &config.Config{DeviceDefaults: map[string]config.PlatformDefaultsConfig{
		"cisco_nxos": {BootChange: &enabled, BootTemplate: "boot nxos bootflash:", SaveCLI: "copy run start"},
	}}
	d := Dialect(cfg, "CISCO_NXOS")
	assert.True(t, d.BootChange)
	assert.Equal(t, "boot nxos bootflash:", d.BootTemplate)
	assert.Equal(t, "copy run start", d.SaveCLI)
	assert.True(t, SupportsBootChange(cfg, "cisco_nxos"))
	assert.False(t, SupportsBootChange(nil, "cisco_nxos"))
	assert.True(t, SupportsBootChange(nil, "cisco_ios"))
}

func TestErrorTaxonomy(t *testing.T) {
	pe := &ParseError{Err: ErrNoFileRows}
	assert.ErrorIs(t, pe, ErrNoFileRows)

	ce := &CommandError{Command: "dir x:", Output: " %Error opening x:/ \n"}
	assert.Equal(t, "%Error opening x:/", failureDetail(fmt.Errorf("wrapped: %w", ce)))

	conn := &ConnectionError{Err: context.DeadlineExceeded}
	assert.True(t, isTimeout(conn))
	assert.True(t, errors.Is(conn, context.DeadlineExceeded))
	assert.Equal(t, "timeout: context deadline exceeded", describe(conn))
	assert.Equal(t, "dial: i/o timeout", describe(fmt.Errorf("dial: %w", os.ErrDeadlineExceeded)))
}

func TestArchiveObjectName(t *testing.T) {
	at := time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, "downloads/10.0.0.1/20240309/config.text", objectName("/downloads/", "10.0.0.1", at, "config.text"))
	assert.Equal(t, "unknown/20240309/a.bin", objectName("", "", at, "a.bin"))
	assert.Nil(t, NewArchiver(config.MinioConfig{Enabled: false}))
	assert.Nil(t, NewArchiver(config.MinioConfig{Enabled: true}))
}
