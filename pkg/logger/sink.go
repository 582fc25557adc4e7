package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogFilePrefix 操作日志文件名前缀
const LogFilePrefix = "flashops_ssh_log@"

// SinkConfig 单次操作的日志配置
type SinkConfig struct {
	// Enabled 为 true 时额外写入独立的操作日志文件
	Enabled  bool
	Dir      string
	Level    string
	Format   string
	Location *time.Location
	// Now 可注入时钟，默认 time.Now
	Now func() time.Time
}

// Sink 操作级日志出口，生命周期与单次操作一致
type Sink struct {
	entry *logrus.Entry
	file  *lumberjack.Logger
	path  string
}

// LogFileName 根据时间生成操作日志文件名
func LogFileName(t time.Time) string {
	return LogFilePrefix + t.Format("2006-01-02_15-04-05") + ".log"
}

// NewSink 创建操作日志出口
func NewSink(cfg SinkConfig, fields logrus.Fields) (*Sink, error) {
	l := logrus.New()
	configure(l, cfg.Level, cfg.Format)

	s := &Sink{}
	if !cfg.Enabled {
		l.SetOutput(GetLogger().Out)
		s.entry = l.WithFields(fields)
		return s, nil
	}

	now := time.Now
	if cfg.Now != nil {
		now = cfg.Now
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	dir := cfg.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log dir: %w", err)
	}

	s.path = filepath.Join(dir, LogFileName(now().In(loc)))
	s.file = &lumberjack.Logger{Filename: s.path}
	l.SetOutput(io.MultiWriter(s.file, GetLogger().Out))
	s.entry = l.WithFields(fields)
	return s, nil
}

// Nop 返回丢弃所有输出的日志出口（测试与无日志场景）
func Nop() *Sink {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return &Sink{entry: logrus.NewEntry(l)}
}

// Entry 返回带操作字段的日志条目
func (s *Sink) Entry() *logrus.Entry {
	return s.entry
}

// Path 返回日志文件路径，未启用文件时为空
func (s *Sink) Path() string {
	return s.path
}

// Close 结束操作日志
func (s *Sink) Close() error {
	if s == nil || s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
