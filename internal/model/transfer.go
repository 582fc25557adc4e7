package model

import (
	"fmt"
	"strings"
	"time"
)

// Direction 传输方向
type Direction string

const (
	// DirectionPut 本地 -> 设备
	DirectionPut Direction = "put"
	// DirectionGet 设备 -> 本地
	DirectionGet Direction = "get"
)

// ParseDirection 解析传输方向
func ParseDirection(raw string) (Direction, error) {
	switch Direction(strings.ToLower(strings.TrimSpace(raw))) {
	case DirectionPut:
		return DirectionPut, nil
	case DirectionGet:
		return DirectionGet, nil
	}
	return "", fmt.Errorf("invalid direction %q, expected put or get", raw)
}

// Integrity 完整性校验结论
type Integrity string

const (
	IntegritySkipped  Integrity = "skipped"
	IntegrityMatch    Integrity = "match"
	IntegrityMismatch Integrity = "mismatch"
)

// TransferSpec 文件传输请求
type TransferSpec struct {
	Direction  Direction `json:"direction"`
	LocalDir   OptString `json:"local_path"`
	SourceFile string    `json:"source_file"`
	DeviceDir  OptString `json:"device_path"`
	DestFile   OptString `json:"dest_file"`
	FileSystem OptString `json:"file_system"`
	// DisableIntegrityCheck 为 true 时目标已存在即不传输、不比较 MD5
	DisableIntegrityCheck bool `json:"disable_md5"`
	// Log 为 true 时生成独立的操作日志文件
	Log bool `json:"log"`
}

// ResolvedTransfer 解析后的路径，原样回显给调用方
type ResolvedTransfer struct {
	Direction  Direction `json:"direction"`
	FileSystem string    `json:"file_system"`
	LocalPath  string    `json:"local_path"`
	DevicePath string    `json:"device_path"`
	SourceFile string    `json:"source_file"`
	DestFile   string    `json:"dest_file"`
	SourcePath string    `json:"source_path"`
	DestPath   string    `json:"dest_path"`
}

// TransferReport 传输结果
type TransferReport struct {
	Device          string        `json:"device"`
	DiskSpace       bool          `json:"disk_space"`
	FileExists      bool          `json:"file_exists"`
	FileTransferred bool          `json:"file_transferred"`
	FileVerified    bool          `json:"file_verified"`
	Integrity       Integrity     `json:"integrity"`
	Elapsed         time.Duration `json:"-"`
	Time            string        `json:"time"`
	ArchiveURI      string        `json:"archive_uri,omitempty"`
	ResolvedTransfer
}

// SetElapsed 记录耗时并生成可读文本
func (r *TransferReport) SetElapsed(d time.Duration) {
	r.Elapsed = d
	r.Time = d.Round(time.Millisecond).String()
}
