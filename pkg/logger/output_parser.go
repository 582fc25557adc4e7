package logger

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// OutputLines 设备输出的头部和尾部行
type OutputLines struct {
	HeadLines []string `json:"head_lines"`
	TailLines []string `json:"tail_lines"`
	Total     int      `json:"total"`
}

// ParseOutputLines 提取设备输出的头尾各 maxLines 行，空行不计入
func ParseOutputLines(output string, maxLines int) OutputLines {
	if maxLines <= 0 {
		maxLines = 5
	}

	output = strings.ReplaceAll(output, "\r\n", "\n")
	output = strings.ReplaceAll(output, "\r", "\n")

	var lines []string
	for _, line := range strings.Split(output, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}

	res := OutputLines{Total: len(lines)}
	if len(lines) == 0 {
		return res
	}

	n := min(maxLines, len(lines))
	res.HeadLines = append([]string(nil), lines[:n]...)
	if len(lines) > maxLines {
		res.TailLines = append([]string(nil), lines[len(lines)-n:]...)
	}
	return res
}

// FormatOutputLines 格式化为单行日志文本
func FormatOutputLines(lines OutputLines) string {
	var parts []string
	if len(lines.HeadLines) > 0 {
		parts = append(parts, "head-lines: ["+strings.Join(lines.HeadLines, " ⟩ ")+"]")
	}
	// 总行数不超过 maxLines 时只有 head
	if len(lines.TailLines) > 0 {
		parts = append(parts, "tail-lines: ["+strings.Join(lines.TailLines, " ⟩ ")+"]")
	}
	return strings.Join(parts, ", ")
}

// DebugCommandOutput 在 debug 级别记录命令回显摘要
func DebugCommandOutput(entry *logrus.Entry, command string, output string, maxLines int) {
	if entry == nil || !entry.Logger.IsLevelEnabled(logrus.DebugLevel) {
		return
	}
	lines := ParseOutputLines(output, maxLines)
	if lines.Total == 0 {
		return
	}
	entry.WithField("lines", lines.Total).Debugf("command echo [%s]: %s", command, FormatOutputLines(lines))
}
