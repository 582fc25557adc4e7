package service

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sshcollectorpro/flashops/internal/config"
	"github.com/sshcollectorpro/flashops/internal/database"
	"github.com/sshcollectorpro/flashops/internal/model"
	"github.com/sshcollectorpro/flashops/simulate"
)

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		SSH: config.SSHConfig{
			ConnectTimeout:  5 * time.Second,
			ReadTimeout:     5 * time.Second,
			SettleMS:        50,
			TransferTimeout: 30 * time.Second,
			ChannelRetries:  1,
			OutputEncoding:  "auto",
		},
		Operation: config.OperationConfig{
			PacingFactor:      0.1,
			DefaultFileSystem: "flash:",
			LogDir:            filepath.Join(t.TempDir(), "logs"),
		},
		Log: config.LogConfig{Level: "debug", Timezone: "UTC"},
	}
}

// startDevice 启动模拟设备，flash 中预置 image.bin 与 config.text
func startDevice(t *testing.T, mutate func(*simulate.DeviceConfig)) *simulate.Device {
	flash := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(flash, "image.bin"), []byte("ios image payload"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(flash, "config.text"), []byte("hostname Router\n"), 0644))

	cfg := simulate.DeviceConfig{
		Hostname:     "Router",
		Username:     "admin",
		Password:     "nova",
		EnableSecret: "cisco",
		FlashDir:     flash,
		BootLines:    []string{"boot system flash:old.bin"},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	dev, err := simulate.NewDevice(cfg)
	require.NoError(t, err)
	require.NoError(t, dev.Start("127.0.0.1:0"))
	t.Cleanup(dev.Stop)
	return dev
}

func targetFor(dev *simulate.Device, platform string) Target {
	return Target{
		Host:           "127.0.0.1",
		Port:           dev.Port(),
		Username:       "admin",
		Password:       "nova",
		EnablePassword: "cisco",
		Platform:       platform,
		SSHConfig:      model.None(),
	}
}

func TestScanAgainstDevice(t *testing.T) {
	dev := startDevice(t, nil)
	ops := NewOperations(testConfig(t), nil, nil)

	res := ops.Scan(context.Background(), ScanRequest{Target: targetFor(dev, "cisco_ios"), Search: model.SearchFor("image.bin")})
	require.True(t, res.Success, res.Message)
	assert.Equal(t, msgScanFound, res.Message)
	assert.NotEmpty(t, res.OperationID)

	report := res.Payload.(*model.FlashReport)
	assert.Equal(t, "255744000", report.Capacity)
	assert.Len(t, report.Files, 2)
	assert.Equal(t, "/", report.Directory)

	assert.Eventually(t, func() bool { return dev.Sessions() == 1 }, 5*time.Second, 20*time.Millisecond)
}

func TestScanConnectionFailure(t *testing.T) {
	dev := startDevice(t, nil)
	ops := NewOperations(testConfig(t), nil, nil)

	tgt := targetFor(dev, "cisco_ios")
	tgt.Password = "wrong"
	res := ops.Scan(context.Background(), ScanRequest{Target: tgt, Search: model.ParseSearchTarget("no")})
	assert.False(t, res.Success)
	assert.True(t, strings.HasPrefix(res.Message, "scanning flash failed. Error: connection error: "), res.Message)
	assert.Empty(t, dev.Commands())
}

func TestCopyPutProtocolAgainstDevice(t *testing.T) {
	dev := startDevice(t, nil)
	ops := NewOperations(testConfig(t), nil, nil)
	local := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(local, "new.bin"), []byte("new image v1"), 0644))

	req := CopyRequest{
		Target: targetFor(dev, "cisco_ios"),
		Spec:   model.TransferSpec{Direction: model.DirectionPut, LocalDir: model.Some(local), SourceFile: "new.bin"},
	}

	res := ops.Copy(context.Background(), req)
	require.True(t, res.Success, res.Message)
	assert.Equal(t, msgTransferDone, res.Message)
	r := res.Payload.(*model.TransferReport)
	assert.True(t, r.FileTransferred)
	assert.Equal(t, "flash:new.bin", r.DestPath)
	data, err := os.ReadFile(filepath.Join(dev.FlashDir(), "new.bin"))
	require.NoError(t, err)
	assert.Equal(t, "new image v1", string(data))

	// 已存在且 MD5 一致：不传输
	res = ops.Copy(context.Background(), req)
	require.True(t, res.Success, res.Message)
	assert.Equal(t, msgNotTransferred, res.Message)
	r = res.Payload.(*model.TransferReport)
	assert.Equal(t, model.IntegrityMatch, r.Integrity)
	assert.False(t, r.FileTransferred)

	// 内容不同：覆盖
	require.NoError(t, os.WriteFile(filepath.Join(local, "new.bin"), []byte("new image v2"), 0644))
	res = ops.Copy(context.Background(), req)
	require.True(t, res.Success, res.Message)
	r = res.Payload.(*model.TransferReport)
	assert.Equal(t, model.IntegrityMismatch, r.Integrity)
	assert.True(t, r.FileTransferred)
	data, err = os.ReadFile(filepath.Join(dev.FlashDir(), "new.bin"))
	require.NoError(t, err)
	assert.Equal(t, "new image v2", string(data))
}

func TestCopyPutExistingWithIntegrityDisabled(t *testing.T) {
	dev := startDevice(t, nil)
	ops := NewOperations(testConfig(t), nil, nil)
	local := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(local, "image.bin"), []byte("different"), 0644))

	res := ops.Copy(context.Background(), CopyRequest{
		Target: targetFor(dev, "cisco_ios"),
		Spec:   model.TransferSpec{Direction: model.DirectionPut, LocalDir: model.Some(local), SourceFile: "image.bin", DisableIntegrityCheck: true},
	})
	require.True(t, res.Success, res.Message)
	r := res.Payload.(*model.TransferReport)
	assert.True(t, r.FileExists)
	assert.False(t, r.FileTransferred)
	assert.False(t, r.FileVerified)
	for _, c := range dev.Commands() {
		assert.False(t, strings.HasPrefix(c, "verify"), c)
	}
}

func TestCopyGetAgainstDevice(t *testing.T) {
	dev := startDevice(t, nil)
	ops := NewOperations(testConfig(t), nil, nil)
	local := filepath.Join(t.TempDir(), "backups")

	res := ops.Copy(context.Background(), CopyRequest{
		Target: targetFor(dev, "cisco_ios"),
		Spec:   model.TransferSpec{Direction: model.DirectionGet, LocalDir: model.Some(local), SourceFile: "config.text", DestFile: model.Some("r1.cfg"), Log: true},
	})
	require.True(t, res.Success, res.Message)
	data, err := os.ReadFile(filepath.Join(local, "r1.cfg"))
	require.NoError(t, err)
	assert.Equal(t, "hostname Router\n", string(data))

	logs, err := os.ReadDir(ops.Config().Operation.LogDir)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.True(t, strings.HasPrefix(logs[0].Name(), "flashops_ssh_log@"))
}

func TestCopyWithoutSourceDoesNotConnect(t *testing.T) {
	dev := startDevice(t, nil)
	ops := NewOperations(testConfig(t), nil, nil)

	res := ops.Copy(context.Background(), CopyRequest{Target: targetFor(dev, "cisco_ios"), Spec: model.TransferSpec{Direction: model.DirectionPut}})
	assert.True(t, res.Success)
	assert.Equal(t, "No file to transfer", res.Message)
	assert.Zero(t, dev.Sessions())
}

func TestReloadAppliesToLaterOperations(t *testing.T) {
	ops := NewOperations(testConfig(t), nil, nil)
	req := CopyRequest{Target: Target{Host: "192.0.2.1", Platform: "cisco_ios"}, Spec: model.TransferSpec{Direction: model.DirectionPut}}

	res := ops.Copy(context.Background(), req)
	assert.Equal(t, "flash:", res.Payload.(*model.TransferReport).FileSystem)

	next := testConfig(t)
	next.Operation.DefaultFileSystem = "bootflash:"

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := ops.Copy(context.Background(), req)
			assert.True(t, r.Success)
		}()
	}
	ops.Reload(next)
	wg.Wait()

	assert.Same(t, next, ops.Config())
	res = ops.Copy(context.Background(), req)
	assert.Equal(t, "bootflash:", res.Payload.(*model.TransferReport).FileSystem)

	ops.Reload(nil)
	assert.NotNil(t, ops.Config())
}

func TestCopyConnectionFailure(t *testing.T) {
	dev := startDevice(t, nil)
	ops := NewOperations(testConfig(t), nil, nil)
	tgt := targetFor(dev, "cisco_ios")
	tgt.EnablePassword = "bad-secret"

	res := ops.Copy(context.Background(), CopyRequest{Target: tgt, Spec: model.TransferSpec{Direction: model.DirectionPut, SourceFile: "x.bin"}})
	assert.False(t, res.Success)
	assert.True(t, strings.HasPrefix(res.Message, "File Transfer Call has Failed, error connection error: "), res.Message)
}

func TestBootImageAgainstDevice(t *testing.T) {
	dev := startDevice(t, nil)
	ops := NewOperations(testConfig(t), nil, nil)

	res := ops.Boot(context.Background(), BootRequest{Target: targetFor(dev, "cisco_ios"), Boot: model.BootChangeRequest{Target: model.BootWith("image.bin")}})
	require.True(t, res.Success, res.Message)
	assert.Equal(t, "Boot loader changed", res.Message)
	assert.Equal(t, []string{"boot system flash:image.bin"}, dev.RunningBoot())
	assert.Equal(t, []string{"boot system flash:image.bin"}, dev.StartupBoot())
}

func TestBootCleanAgainstDevice(t *testing.T) {
	dev := startDevice(t, nil)
	ops := NewOperations(testConfig(t), nil, nil)

	res := ops.Boot(context.Background(), BootRequest{Target: targetFor(dev, "cisco_ios"), Boot: model.BootChangeRequest{Target: model.ParseBootTarget("clean")}})
	require.True(t, res.Success, res.Message)
	assert.Equal(t, "Boot loader register cleaned", res.Message)
	assert.Empty(t, dev.StartupBoot())

	negations := 0
	for _, c := range dev.Commands() {
		if c == "no boot system" {
			negations++
		}
	}
	assert.Equal(t, 1, negations)
}

func TestBootMissingImage(t *testing.T) {
	dev := startDevice(t, nil)
	ops := NewOperations(testConfig(t), nil, nil)

	res := ops.Boot(context.Background(), BootRequest{Target: targetFor(dev, "cisco_ios"), Boot: model.BootChangeRequest{Target: model.BootWith("absent.bin")}})
	assert.False(t, res.Success)
	assert.Equal(t, "Boot loader change has failed, image does not exist", res.Message)
	assert.Equal(t, []string{"boot system flash:old.bin"}, dev.StartupBoot())
	assert.NotContains(t, dev.Commands(), "no boot system")
}

func TestBootRejectedByDeviceIsNotSaved(t *testing.T) {
	dev := startDevice(t, func(c *simulate.DeviceConfig) { c.RejectBoot = true })
	ops := NewOperations(testConfig(t), nil, nil)

	res := ops.Boot(context.Background(), BootRequest{Target: targetFor(dev, "cisco_ios"), Boot: model.BootChangeRequest{Target: model.BootWith("image.bin")}})
	assert.False(t, res.Success)
	assert.True(t, strings.HasPrefix(res.Message, "Boot loader not changed: % Invalid input"), res.Message)
	assert.Equal(t, []string{"boot system flash:old.bin"}, dev.StartupBoot())
	assert.NotContains(t, dev.Commands(), "write memory")
}

func TestBootUnsupportedPlatformNeverConnects(t *testing.T) {
	dev := startDevice(t, nil)
	ops := NewOperations(testConfig(t), nil, nil)

	res := ops.Boot(context.Background(), BootRequest{Target: targetFor(dev, "cisco_nxos"), Boot: model.BootChangeRequest{Target: model.BootWith("image.bin")}})
	assert.False(t, res.Success)
	assert.Equal(t, "Platform cisco_nxos is not supported", res.Message)
	assert.Empty(t, dev.Commands())
	assert.Zero(t, dev.Sessions())
}

func TestBootNoChange(t *testing.T) {
	ops := NewOperations(testConfig(t), nil, nil)
	res := ops.Boot(context.Background(), BootRequest{Target: Target{Host: "192.0.2.1", Platform: "cisco_ios"}, Boot: model.BootChangeRequest{Target: model.ParseBootTarget("no")}})
	assert.True(t, res.Success)
	assert.Equal(t, "No change requirement", res.Message)
	assert.Equal(t, "Boot loader not changed", res.Payload.(*model.BootChangeReport).Loader)
}

func TestOperationsWriteAuditRecord(t *testing.T) {
	require.NoError(t, database.InitSQLite(config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "audit.db")}))
	t.Cleanup(func() { _ = database.Close() })

	ops := NewOperations(testConfig(t), NewAudit(database.GetDB()), nil)
	res := ops.Boot(context.Background(), BootRequest{Target: Target{Host: "192.0.2.1", Platform: "cisco_ios"}, Boot: model.BootChangeRequest{Target: model.ParseBootTarget("no")}})

	var rec model.OperationRecord
	require.NoError(t, database.GetDB().First(&rec, "id = ?", res.OperationID).Error)
	assert.Equal(t, model.OperationBoot, rec.Operation)
	assert.True(t, rec.Success)
	assert.Contains(t, rec.Payload, "Boot loader not changed")
}
