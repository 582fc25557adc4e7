package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// BootChangeRequest boot 修改请求
type BootChangeRequest struct {
	Target BootTarget
	// Template boot 命令模板，包含 {image} 时替换，否则直接拼接镜像名
	Template string
}

// BootChangeReport boot 修改结果
type BootChangeReport struct {
	Device  string `json:"device"`
	Loader  string `json:"loader"`
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ChgLoader 兼容 chg_loader JSON 形式的 boot 参数
type ChgLoader struct {
	BootImage     string `json:"boot_image"`
	BootSystemCmd string `json:"boot_system_cmd"`
}

// ParseChgLoader 解析 chg_loader；空串或哨兵值视为不修改
func ParseChgLoader(raw string) (BootChangeRequest, error) {
	if isUnset(raw) {
		return BootChangeRequest{Target: BootTarget{Kind: BootNoChange}}, nil
	}
	var cl ChgLoader
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &cl); err != nil {
		return BootChangeRequest{}, fmt.Errorf("invalid chg_loader: %w", err)
	}
	return cl.Request(), nil
}

// Request 转换为 BootChangeRequest
func (c ChgLoader) Request() BootChangeRequest {
	return BootChangeRequest{
		Target:   ParseBootTarget(c.BootImage),
		Template: strings.TrimSpace(c.BootSystemCmd),
	}
}

// ResolveBootChange chg_loader 有值时优先，否则使用 image 与 boot_cmd
func ResolveBootChange(image, bootCmd, chgLoader string) (BootChangeRequest, error) {
	if !isUnset(chgLoader) {
		return ParseChgLoader(chgLoader)
	}
	return ChgLoader{BootImage: image, BootSystemCmd: bootCmd}.Request(), nil
}
