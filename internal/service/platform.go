package service

import (
	"strings"

	"github.com/sshcollectorpro/flashops/addone/platform"
	"github.com/sshcollectorpro/flashops/internal/config"
)

// Dialect 取平台方言默认值，并叠加 device_defaults 中的覆盖项
func Dialect(cfg *config.Config, name string) platform.Defaults {
	key := strings.ToLower(strings.TrimSpace(name))
	d := platform.Get(key).Defaults()
	if cfg == nil {
		return d
	}
	o, ok := cfg.DeviceDefaults[key]
	if !ok {
		return d
	}

	if len(o.PromptSuffixes) > 0 {
		d.PromptSuffixes = append([]string(nil), o.PromptSuffixes...)
	}
	if len(o.SessionPrep) > 0 {
		d.SessionPrep = append([]string(nil), o.SessionPrep...)
	}
	if len(o.ErrorHints) > 0 {
		d.ErrorHints = append([]string(nil), o.ErrorHints...)
	}
	setIf(&d.EnableCLI, o.EnableCLI)
	setIf(&d.ConfigModeCLI, o.ConfigModeCLI)
	setIf(&d.ConfigExitCLI, o.ConfigExitCLI)
	setIf(&d.SaveCLI, o.SaveCLI)
	setIf(&d.ListCLI, o.ListCLI)
	setIf(&d.ChecksumCLI, o.ChecksumCLI)
	setIf(&d.ChecksumPattern, o.ChecksumPattern)
	setIf(&d.FreePattern, o.FreePattern)
	setIf(&d.FileRowPattern, o.FileRowPattern)
	setIf(&d.BootTemplate, o.BootTemplate)
	if o.BootChange != nil {
		d.BootChange = *o.BootChange
	}
	return d
}

func setIf(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

// SupportsBootChange 平台是否允许修改 boot system
func SupportsBootChange(cfg *config.Config, name string) bool {
	return Dialect(cfg, name).BootChange
}
