package logger

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogFileName(t *testing.T) {
	ts := time.Date(2024, 3, 9, 7, 5, 1, 0, time.UTC)
	assert.Equal(t, "flashops_ssh_log@2024-03-09_07-05-01.log", LogFileName(ts))
}

func TestNewSinkWritesOperationFile(t *testing.T) {
	dir := t.TempDir()
	loc := time.FixedZone("ART", -3*3600)
	fixed := time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC)

	sink, err := NewSink(SinkConfig{
		Enabled:  true,
		Dir:      dir,
		Level:    "info",
		Location: loc,
		Now:      func() time.Time { return fixed },
	}, logrus.Fields{"device": "10.0.0.1"})
	require.NoError(t, err)

	// 文件名使用配置时区
	assert.Equal(t, filepath.Join(dir, "flashops_ssh_log@2024-01-02_12-04-05.log"), sink.Path())

	sink.Entry().Info("scan started")
	require.NoError(t, sink.Close())
	// 重复关闭无副作用
	require.NoError(t, sink.Close())

	data, err := os.ReadFile(sink.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), "scan started")
	assert.Contains(t, string(data), "device=10.0.0.1")
}

func TestNewSinkDisabledHasNoFile(t *testing.T) {
	sink, err := NewSink(SinkConfig{Enabled: false}, nil)
	require.NoError(t, err)
	assert.Empty(t, sink.Path())
	assert.NotNil(t, sink.Entry())
	assert.NoError(t, sink.Close())
}

func TestParseOutputLines(t *testing.T) {
	out := "a\r\n\r\nb\nc\rd\ne\nf"
	lines := ParseOutputLines(out, 2)
	assert.Equal(t, 6, lines.Total)
	assert.Equal(t, []string{"a", "b"}, lines.HeadLines)
	assert.Equal(t, []string{"e", "f"}, lines.TailLines)

	short := ParseOutputLines("only", 5)
	assert.Equal(t, []string{"only"}, short.HeadLines)
	assert.Empty(t, short.TailLines)
	assert.Equal(t, "head-lines: [only]", FormatOutputLines(short))

	assert.Zero(t, ParseOutputLines("\r\n  \n", 3).Total)
}
