package service

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sshcollectorpro/flashops/internal/model"
)

// 传输结果消息
const (
	msgTransferDone     = "File Transfer done"
	msgNotTransferred   = "File not transferred"
	msgTransferFailed   = "File Transfer has Failed, error "
	msgTransferCallFail = "File Transfer Call has Failed, error "
	msgNoFile           = "No file to transfer"
)

// DefaultFileSystem 未指定文件系统时使用
const DefaultFileSystem = "flash:"

// ResolveTransfer 计算源与目标的完整路径
func ResolveTransfer(spec model.TransferSpec) model.ResolvedTransfer {
	fs := strings.TrimSpace(spec.FileSystem.OrElse(DefaultFileSystem))
	if fs == "" {
		fs = DefaultFileSystem
	}
	if !strings.Contains(fs, ":") {
		fs += ":"
	}

	deviceDir := fs
	if d, ok := spec.DeviceDir.Get(); ok {
		if d = strings.Trim(strings.TrimSpace(d), "/"); d != "" {
			deviceDir = fs + d + "/"
		}
	}
	localDir := spec.LocalDir.OrElse(".")

	source := strings.TrimSpace(spec.SourceFile)
	dest := strings.TrimSpace(spec.DestFile.OrElse(source))

	rt := model.ResolvedTransfer{
		Direction:  spec.Direction,
		FileSystem: fs,
		LocalPath:  localDir,
		DevicePath: deviceDir,
		SourceFile: source,
		DestFile:   dest,
	}
	if spec.Direction == model.DirectionGet {
		rt.SourcePath = deviceDir + source
		rt.DestPath = filepath.Join(localDir, dest)
	} else {
		rt.SourcePath = filepath.Join(localDir, source)
		rt.DestPath = deviceDir + dest
	}
	return rt
}

// FileTransfer 安全传输所需的基本操作，绑定到一次已解析的传输
type FileTransfer interface {
	VerifySpaceAvailable(ctx context.Context) (bool, error)
	CheckFileExists(ctx context.Context) (bool, error)
	// CompareChecksum 源与目标 MD5 是否一致
	CompareChecksum(ctx context.Context) (bool, error)
	Put(ctx context.Context) error
	Get(ctx context.Context) error
}

// Transfer 在会话上执行一次带安全检查的文件传输
func Transfer(ctx context.Context, s DeviceSession, spec model.TransferSpec) (*model.TransferReport, bool, string) {
	rt := ResolveTransfer(spec)
	if rt.SourceFile == "" {
		return &model.TransferReport{Device: s.Address(), Integrity: model.IntegritySkipped, ResolvedTransfer: rt}, true, msgNoFile
	}
	ft := NewDeviceFileTransfer(s, rt)
	return RunTransfer(ctx, ft, rt, s.Address(), spec.DisableIntegrityCheck)
}

// RunTransfer 安全协议：空间 -> 存在性 -> 校验和，任一步骤出错即失败
func RunTransfer(ctx context.Context, ft FileTransfer, rt model.ResolvedTransfer, device string, disableIntegrity bool) (*model.TransferReport, bool, string) {
	start := time.Now()
	report := &model.TransferReport{
		Device:           device,
		Integrity:        model.IntegritySkipped,
		ResolvedTransfer: rt,
	}
	fail := func(err error) (*model.TransferReport, bool, string) {
		report.DiskSpace = false
		report.FileExists = false
		report.FileTransferred = false
		report.FileVerified = false
		report.SetElapsed(time.Since(start))
		return report, false, msgTransferFailed + failureDetail(err)
	}
	copyFile := func() error {
		if rt.Direction == model.DirectionGet {
			return ft.Get(ctx)
		}
		return ft.Put(ctx)
	}

	enough, err := ft.VerifySpaceAvailable(ctx)
	if err != nil {
		return fail(err)
	}
	if !enough {
		report.SetElapsed(time.Since(start))
		return report, true, msgNotTransferred
	}
	report.DiskSpace = true

	exists, err := ft.CheckFileExists(ctx)
	if err != nil {
		return fail(err)
	}
	report.FileExists = exists

	msg := msgNotTransferred
	switch {
	case !exists:
		if err := copyFile(); err != nil {
			return fail(err)
		}
		report.FileTransferred = true
		report.FileVerified = !disableIntegrity
		msg = msgTransferDone
	case disableIntegrity:
		// 目标已存在且不校验：以目标为准
	default:
		match, err := ft.CompareChecksum(ctx)
		if err != nil {
			return fail(err)
		}
		report.FileVerified = true
		if match {
			report.Integrity = model.IntegrityMatch
			break
		}
		report.Integrity = model.IntegrityMismatch
		if err := copyFile(); err != nil {
			return fail(err)
		}
		report.FileTransferred = true
		msg = msgTransferDone
	}
	report.SetElapsed(time.Since(start))
	return report, true, msg
}

// safetyCheck 成功但因空间不足未传输时返回拦截原因，其余情况为 nil
func safetyCheck(r *model.TransferReport, ok bool) error {
	if r == nil || !ok || r.DiskSpace || r.SourceFile == "" {
		return nil
	}
	where := r.LocalPath
	if r.Direction == model.DirectionPut {
		where = r.FileSystem
	}
	return &SafetyCheckFailure{Reason: fmt.Sprintf("not enough free space on %s for %s", where, r.SourceFile)}
}

// deviceFileTransfer 基于 CLI（dir/verify）与 SFTP 的实现
type deviceFileTransfer struct {
	s  DeviceSession
	rt model.ResolvedTransfer
	// localFree 本地可用空间，测试中可替换
	localFree func(dir string) (uint64, error)
}

// NewDeviceFileTransfer 创建设备传输实现
func NewDeviceFileTransfer(s DeviceSession, rt model.ResolvedTransfer) FileTransfer {
	return &deviceFileTransfer{s: s, rt: rt, localFree: freeBytes}
}

func (t *deviceFileTransfer) localPath() string {
	if t.rt.Direction == model.DirectionGet {
		return t.rt.DestPath
	}
	return t.rt.SourcePath
}

func (t *deviceFileTransfer) devicePath() string {
	if t.rt.Direction == model.DirectionGet {
		return t.rt.SourcePath
	}
	return t.rt.DestPath
}

// listing 执行 dir 并解析；空目录等解析状态不视为错误，由调用方按需取字段。
// 同时返回原文，供方言自带的行格式兜底
func (t *deviceFileTransfer) listing(ctx context.Context, target string) (*model.FlashReport, string, error) {
	out, err := t.s.SendCommand(ctx, t.s.Dialect().ListCommand(target))
	if err != nil {
		return nil, out, err
	}
	report, _ := ParseListing(out, t.s.Address(), target, model.SearchTarget{Kind: model.SearchSkip})
	return report, out, nil
}

// fileSize 先按通用列布局查找，找不到再用方言的文件行格式
func (t *deviceFileTransfer) fileSize(report *model.FlashReport, out, name string) (string, bool) {
	if size, ok := report.SizeOf(name); ok {
		return size, true
	}
	return t.s.Dialect().FileSize(out, name)
}

func (t *deviceFileTransfer) VerifySpaceAvailable(ctx context.Context) (bool, error) {
	if t.rt.Direction == model.DirectionGet {
		report, out, err := t.listing(ctx, t.rt.SourcePath)
		if err != nil {
			return false, fmt.Errorf("source file %s not readable: %w", t.rt.SourcePath, err)
		}
		raw, ok := t.fileSize(report, out, path.Base(t.rt.SourceFile))
		if !ok {
			return false, fmt.Errorf("source file %s not found on device", t.rt.SourcePath)
		}
		need, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return false, fmt.Errorf("invalid remote file size %q", raw)
		}
		free, err := t.localFree(t.rt.LocalPath)
		if err != nil {
			return false, fmt.Errorf("failed to query local free space: %w", err)
		}
		return free >= need, nil
	}

	fi, err := os.Stat(t.rt.SourcePath)
	if err != nil {
		return false, fmt.Errorf("local source file: %w", err)
	}
	report, out, err := t.listing(ctx, t.rt.FileSystem)
	if err != nil {
		return false, err
	}
	rawFree := report.Free
	if rawFree == "" {
		rawFree, _ = t.s.Dialect().FreeBytes(out)
	}
	free, err := strconv.ParseUint(rawFree, 10, 64)
	if err != nil {
		return false, fmt.Errorf("device free space not reported for %s", t.rt.FileSystem)
	}
	return free >= uint64(fi.Size()), nil
}

func (t *deviceFileTransfer) CheckFileExists(ctx context.Context) (bool, error) {
	if t.rt.Direction == model.DirectionGet {
		_, err := os.Stat(t.rt.DestPath)
		if err == nil {
			return true, nil
		}
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}

	report, out, err := t.listing(ctx, t.rt.DestPath)
	if err != nil {
		var ce *CommandError
		if errors.As(err, &ce) && missingOnDevice(ce.Output) {
			return false, nil
		}
		return false, err
	}
	name := path.Base(t.rt.DestFile)
	if report.Contains(name) {
		return true, nil
	}
	_, ok := t.s.Dialect().FileSize(out, name)
	return ok, nil
}

func missingOnDevice(out string) bool {
	lower := strings.ToLower(out)
	return strings.Contains(lower, "%error opening") || strings.Contains(lower, "no such file")
}

func (t *deviceFileTransfer) CompareChecksum(ctx context.Context) (bool, error) {
	local, err := fileMD5(t.localPath())
	if err != nil {
		return false, err
	}
	cmd, err := t.s.Dialect().ChecksumCommand(t.devicePath())
	if err != nil {
		return false, fmt.Errorf("%s md5 checksum: %w", t.s.Platform(), ErrUnsupportedPlatform)
	}
	out, err := t.s.SendCommand(ctx, cmd)
	if err != nil {
		return false, err
	}
	digest, ok := t.s.Dialect().Digest(out)
	if !ok {
		return false, fmt.Errorf("no md5 digest in device output for %s", t.devicePath())
	}
	return strings.EqualFold(digest, local), nil
}

func (t *deviceFileTransfer) Put(ctx context.Context) error {
	_, err := t.s.Upload(ctx, t.rt.SourcePath, t.rt.DestPath)
	return err
}

func (t *deviceFileTransfer) Get(ctx context.Context) error {
	_, err := t.s.Download(ctx, t.rt.SourcePath, t.rt.DestPath)
	return err
}

func fileMD5(p string) (string, error) {
	f, err := os.Open(p)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", p, err)
	}
	defer f.Close()
	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", p, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// freeBytes 本地目录可用空间；目录尚未创建时取最近的已存在上级目录
func freeBytes(dir string) (uint64, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return 0, err
	}
	for {
		if _, err := os.Stat(abs); err == nil {
			return diskFree(abs)
		}
		parent := filepath.Dir(abs)
		if parent == abs {
			return 0, fmt.Errorf("no existing directory for %s", dir)
		}
		abs = parent
	}
}
