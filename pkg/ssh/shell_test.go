package ssh

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sshcollectorpro/flashops/simulate"
)

func TestSanitizeAndLastLine(t *testing.T) {
	s := sanitize("\x1b[2Jdir\r\nfile\r\n\x1b[0mRouter#")
	assert.Equal(t, "dir\nfile\nRouter#", s)
	assert.Equal(t, "Router#", lastLine("a\n\nRouter#\n  \n"))
	assert.Equal(t, "", lastLine("\n \n"))
}

func TestSplitPromptAndRegexp(t *testing.T) {
	sh := &Shell{suffixes: []string{">", "#"}}
	base, ok := sh.splitPrompt("Router(config-if)#")
	require.True(t, ok)
	assert.Equal(t, "Router", base)

	_, ok = sh.splitPrompt("Enter configuration commands, one per line.")
	assert.False(t, ok)
	_, ok = sh.splitPrompt("#")
	assert.False(t, ok)

	re := buildPromptRe("Router", sh.suffixes)
	assert.True(t, re.MatchString("Router>"))
	assert.True(t, re.MatchString("Router(config)#"))
	assert.False(t, re.MatchString("Switch#"))
}

func TestCleanOutput(t *testing.T) {
	sh := &Shell{config: DefaultConfig(), promptRe: buildPromptRe("Router", []string{">", "#"})}
	raw := []byte("dir flash:\r\nDirectory of flash:/\r\n\r\n1000 bytes total (900 bytes free)\r\n\r\nRouter#")
	assert.Equal(t, "Directory of flash:/\n\n1000 bytes total (900 bytes free)", sh.cleanOutput(raw, "dir flash:"))
}

func startDevice(t *testing.T) *simulate.Device {
	flash := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(flash, "vlan.dat"), []byte("vlan"), 0644))
	dev, err := simulate.NewDevice(simulate.DeviceConfig{Password: "nova", EnableSecret: "s3cret", FlashDir: flash})
	require.NoError(t, err)
	require.NoError(t, dev.Start("127.0.0.1:0"))
	t.Cleanup(dev.Stop)
	return dev
}

func testConfig() *Config {
	c := DefaultConfig()
	c.ReadTimeout = 5 * time.Second
	c.Settle = 50 * time.Millisecond
	c.ChannelRetries = 1
	return c
}

func TestShellAgainstDevice(t *testing.T) {
	dev := startDevice(t)
	client := NewClient(testConfig())
	require.NoError(t, client.Connect(context.Background(), &ConnectionInfo{Host: "127.0.0.1", Port: dev.Port(), Username: "admin", Password: "nova"}))
	defer client.Close()
	assert.True(t, client.IsConnected())

	sh, err := client.OpenShell(context.Background(), ShellOptions{})
	require.NoError(t, err)
	defer sh.Close()
	assert.Equal(t, "Router", sh.Base())
	assert.False(t, sh.Privileged())

	res, err := sh.Send(context.Background(), "enable", AutoInteraction{Expect: "password", Send: "s3cret", Once: true})
	require.NoError(t, err)
	assert.Equal(t, "Router#", res.Prompt)
	assert.True(t, sh.Privileged())

	res, err = sh.Send(context.Background(), "dir flash:")
	require.NoError(t, err)
	assert.Contains(t, res.Output, "vlan.dat")
	assert.Contains(t, res.Output, "bytes total")
	assert.NotContains(t, res.Output, "Router#")

	res, err = sh.Send(context.Background(), "configure terminal")
	require.NoError(t, err)
	assert.Equal(t, "Router(config)#", res.Prompt)
}

func TestSendTimesOutWithoutPrompt(t *testing.T) {
	dev := startDevice(t)
	cfg := testConfig()
	cfg.ReadTimeout = 500 * time.Millisecond
	client := NewClient(cfg)
	require.NoError(t, client.Connect(context.Background(), &ConnectionInfo{Host: "127.0.0.1", Port: dev.Port(), Username: "admin", Password: "nova"}))
	defer client.Close()

	sh, err := client.OpenShell(context.Background(), ShellOptions{})
	require.NoError(t, err)
	defer sh.Close()

	// enable 密码提示不会被应答，等不到提示符
	_, err = sh.Send(context.Background(), "enable")
	assert.ErrorIs(t, err, ErrPromptTimeout)
}

func TestConnectRejectsBadPassword(t *testing.T) {
	dev := startDevice(t)
	client := NewClient(testConfig())
	err := client.Connect(context.Background(), &ConnectionInfo{Host: "127.0.0.1", Port: dev.Port(), Username: "admin", Password: "bad"})
	assert.Error(t, err)
	assert.False(t, client.IsConnected())
}

func TestSFTPRoundTrip(t *testing.T) {
	dev := startDevice(t)
	client := NewClient(testConfig())
	require.NoError(t, client.Connect(context.Background(), &ConnectionInfo{Host: "127.0.0.1", Port: dev.Port(), Username: "admin", Password: "nova"}))
	defer client.Close()

	local := filepath.Join(t.TempDir(), "image.bin")
	require.NoError(t, os.WriteFile(local, []byte("firmware bytes"), 0644))

	n, err := client.Upload(context.Background(), local, "flash:image.bin")
	require.NoError(t, err)
	assert.EqualValues(t, len("firmware bytes"), n)
	data, err := os.ReadFile(filepath.Join(dev.FlashDir(), "image.bin"))
	require.NoError(t, err)
	assert.Equal(t, "firmware bytes", string(data))

	back := filepath.Join(t.TempDir(), "copy", "image.bin")
	_, err = client.Download(context.Background(), "flash:/image.bin", back)
	require.NoError(t, err)
	data, err = os.ReadFile(back)
	require.NoError(t, err)
	assert.Equal(t, "firmware bytes", string(data))

	_, err = client.Download(context.Background(), "flash:missing.bin", back+".2")
	assert.Error(t, err)
	_, statErr := os.Stat(back + ".2.part")
	assert.True(t, os.IsNotExist(statErr))
}

func TestSFTPRequiresConnection(t *testing.T) {
	local := filepath.Join(t.TempDir(), "x.bin")
	require.NoError(t, os.WriteFile(local, []byte("x"), 0644))
	_, err := NewClient(nil).Upload(context.Background(), local, "flash:x.bin")
	assert.ErrorIs(t, err, ErrNotConnected)
}
