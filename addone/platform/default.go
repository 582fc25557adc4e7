package platform

import (
	"fmt"
	"regexp"
	"strings"
)

// defaultChecksumPattern IOS 风格 `verify /md5 (path) = <digest>`
const defaultChecksumPattern = `=\s*([0-9a-fA-F]{32})`

// AutoInteraction 输出包含 Expect（大小写不敏感）时自动发送 Send
type AutoInteraction struct {
	Expect string
	Send   string
}

// Defaults 平台 CLI 方言默认值
type Defaults struct {
	PromptSuffixes []string
	// SessionPrep 登录后立即执行（关闭分页等）
	SessionPrep []string
	EnableCLI   string
	// EnablePrompt 提权密码提示
	EnablePrompt  string
	ConfigModeCLI string
	ConfigExitCLI string
	SaveCLI       string
	ExitCLI       string
	// ListCLI 目录列表命令，参数为文件系统或路径
	ListCLI string
	// ChecksumCLI 设备端 MD5 命令模板，%s 为设备路径；为空表示不支持
	ChecksumCLI string
	// ChecksumPattern 从校验输出中提取摘要，第 1 组为 MD5
	ChecksumPattern string
	// FreePattern 可用空间单独成行的方言使用，第 1 组为字节数
	FreePattern string
	// FileRowPattern 列布局与 IOS 不同的方言使用，需含 size 与 name 命名组
	FileRowPattern   string
	ErrorHints       []string
	AutoInteractions []AutoInteraction
	// BootChange 是否支持修改 boot system
	BootChange   bool
	BootTemplate string
}

// ChecksumCommand 生成设备端 MD5 命令
func (d Defaults) ChecksumCommand(path string) (string, error) {
	if strings.TrimSpace(d.ChecksumCLI) == "" {
		return "", fmt.Errorf("checksum command not available")
	}
	return fmt.Sprintf(d.ChecksumCLI, path), nil
}

// Digest 从校验命令输出中提取 MD5
func (d Defaults) Digest(out string) (string, bool) {
	pattern := d.ChecksumPattern
	if strings.TrimSpace(pattern) == "" {
		pattern = defaultChecksumPattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return "", false
	}
	m := re.FindStringSubmatch(out)
	if len(m) < 2 {
		return "", false
	}
	return m[1], true
}

// FreeBytes 按 FreePattern 从目录列表中取可用字节数
func (d Defaults) FreeBytes(out string) (string, bool) {
	if strings.TrimSpace(d.FreePattern) == "" {
		return "", false
	}
	re, err := regexp.Compile(d.FreePattern)
	if err != nil {
		return "", false
	}
	m := re.FindStringSubmatch(out)
	if len(m) < 2 {
		return "", false
	}
	return m[1], true
}

// FileSize 按 FileRowPattern 查找文件大小，首个同名行为准
func (d Defaults) FileSize(out, name string) (string, bool) {
	if strings.TrimSpace(d.FileRowPattern) == "" {
		return "", false
	}
	re, err := regexp.Compile(d.FileRowPattern)
	if err != nil {
		return "", false
	}
	sizeIdx, nameIdx := re.SubexpIndex("size"), re.SubexpIndex("name")
	if sizeIdx < 0 || nameIdx < 0 {
		return "", false
	}
	for _, m := range re.FindAllStringSubmatch(strings.ReplaceAll(out, "\r", ""), -1) {
		if m[nameIdx] == name {
			return m[sizeIdx], true
		}
	}
	return "", false
}

// ListCommand 生成目录列表命令
func (d Defaults) ListCommand(target string) string {
	cli := d.ListCLI
	if cli == "" {
		cli = "dir"
	}
	if strings.TrimSpace(target) == "" {
		return cli
	}
	return cli + " " + target
}

// Plugin 方言插件接口
type Plugin interface {
	// Name 插件名称（如：default、cisco_ios）
	Name() string
	// Defaults 返回方言默认值（每次返回新副本）
	Defaults() Defaults
}

// DefaultPlugin 未知平台使用的通用方言，不支持 boot 修改
type DefaultPlugin struct{}

func (p *DefaultPlugin) Name() string { return "default" }

func (p *DefaultPlugin) Defaults() Defaults {
	return Defaults{
		PromptSuffixes:  []string{">", "#"},
		SessionPrep:     []string{"terminal length 0"},
		EnableCLI:       "enable",
		EnablePrompt:    "password",
		ConfigModeCLI:   "configure terminal",
		ConfigExitCLI:   "end",
		SaveCLI:         "write memory",
		ExitCLI:         "exit",
		ListCLI:         "dir",
		ChecksumPattern: defaultChecksumPattern,
		ErrorHints:      []string{"% invalid input", "% incomplete command", "% ambiguous command", "%error"},
		AutoInteractions: []AutoInteraction{
			{Expect: "--more--", Send: " "},
			{Expect: "[confirm]", Send: ""},
		},
	}
}
