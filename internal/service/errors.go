package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// 目录列表解析错误
var (
	ErrEmptyListing     = errors.New("empty response from device")
	ErrNoFileRows       = errors.New("no file rows in listing")
	ErrMalformedListing = errors.New("malformed listing row")
)

// ErrUnsupportedPlatform 平台方言未提供该操作所需的命令
var ErrUnsupportedPlatform = errors.New("platform is not supported")

// ConnectionError 传输层错误（连接、认证、会话、超时）
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return e.Err.Error()
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// CommandError 设备拒绝命令，Output 为设备返回的原文
type CommandError struct {
	Command string
	Output  string
}

func (e *CommandError) Error() string {
	out := strings.TrimSpace(e.Output)
	if out == "" {
		return fmt.Sprintf("command %q rejected by device", e.Command)
	}
	return fmt.Sprintf("command %q rejected by device: %s", e.Command, out)
}

// ParseError 目录列表解析失败
type ParseError struct {
	Err    error
	Detail string
}

func (e *ParseError) Error() string {
	if e.Detail == "" {
		return e.Err.Error()
	}
	return e.Err.Error() + ": " + e.Detail
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// SafetyCheckFailure 安全检查拦截了传输（空间不足），属于预期结果而非故障
type SafetyCheckFailure struct {
	Reason string
}

func (e *SafetyCheckFailure) Error() string {
	return "safety check failed: " + e.Reason
}

// isTimeout 判断是否为典型超时错误
func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out")
}

// describe 生成返回给调用方的错误描述，超时单独标注
func describe(err error) string {
	msg := err.Error()
	if isTimeout(err) && !strings.Contains(strings.ToLower(msg), "time") {
		return "timeout: " + msg
	}
	return msg
}

// failureDetail 设备拒绝时取设备原文，否则取错误描述
func failureDetail(err error) string {
	var ce *CommandError
	if errors.As(err, &ce) && strings.TrimSpace(ce.Output) != "" {
		return strings.TrimSpace(ce.Output)
	}
	return describe(err)
}
