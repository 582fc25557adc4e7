package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/sshcollectorpro/flashops/internal/model"
)

// boot 修改消息
const (
	msgBootCleaned      = "Boot loader register cleaned"
	msgBootNotCleaned   = "Boot loader register not cleaned: "
	msgBootChanged      = "Boot loader changed"
	msgBootNotChanged   = "Boot loader not changed: "
	msgBootNotSaved     = "Boot loader changed but not saved: "
	msgBootNoChange     = "No change requirement"
	msgBootLoaderKept   = "Boot loader not changed"
	msgBootImageMissing = "Boot loader change has failed, image does not exist"
	msgBootScanFailed   = "Boot loader change has failed, "
)

// BootNegation 清除全部 boot system 的命令
const BootNegation = "no boot system"

// RenderBootCommand 模板包含 {image} 时替换，否则将镜像名接在模板后
func RenderBootCommand(template, image string) string {
	t := strings.TrimSpace(template)
	if strings.Contains(t, "{image}") {
		return strings.ReplaceAll(t, "{image}", image)
	}
	if t == "" || strings.HasSuffix(t, ":") || strings.HasSuffix(t, "/") {
		return t + image
	}
	return t + " " + image
}

func unsupportedMessage(platform string) string {
	return fmt.Sprintf("Platform %s is not supported", platform)
}

// ChangeBoot 修改或清空 boot system；镜像存在性由调用方先行确认
func ChangeBoot(ctx context.Context, s DeviceSession, platform string, target model.BootTarget, template string) (string, bool, *model.BootChangeReport) {
	report := &model.BootChangeReport{Device: s.Address()}
	done := func(msg string, ok bool) (string, bool, *model.BootChangeReport) {
		report.Success = ok
		report.Message = msg
		return msg, ok, report
	}

	switch target.Kind {
	case model.BootNoChange:
		report.Loader = msgBootLoaderKept
		return done(msgBootNoChange, true)

	case model.BootClear:
		report.Loader = BootNegation
		if ok, msg := s.SendConfig(ctx, []string{BootNegation}); !ok {
			return done(msgBootNotCleaned+msg, false)
		}
		if ok, msg := s.Persist(ctx); !ok {
			return done(msgBootNotCleaned+msg, false)
		}
		return done(msgBootCleaned, true)
	}

	dialect := s.Dialect()
	if !dialect.BootChange {
		report.Loader = msgBootLoaderKept
		return done(unsupportedMessage(platform), false)
	}
	if strings.TrimSpace(template) == "" {
		template = dialect.BootTemplate
	}
	line := RenderBootCommand(template, target.Image)
	report.Loader = line

	if ok, msg := s.SendConfig(ctx, []string{BootNegation, line}); !ok {
		return done(msgBootNotChanged+msg, false)
	}
	if ok, msg := s.Persist(ctx); !ok {
		return done(msgBootNotSaved+msg, false)
	}
	return done(msgBootChanged, true)
}
