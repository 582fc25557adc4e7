package cisco_nxos

import "github.com/sshcollectorpro/flashops/addone/platform"

// NX-OS dir 输出：文件行只有 大小/日期/名称 列，可用空间单独一行（"7654321 bytes free"），
// show file md5sum 只输出摘要本身
const (
	checksumPattern = `(?m)^\s*([0-9a-fA-F]{32})\s*$`
	freePattern     = `(?mi)^\s*(\d+)\s+bytes\s+free\s*$`
	fileRowPattern  = `(?m)^\s*(?P<size>\d+)\s+[A-Z][a-z]{2}\s+\d{1,2}\s+\d{2}:\d{2}:\d{2}\s+\d{4}\s+(?P<name>\S+)\s*$`
)

// Plugin 为 cisco_nxos 平台方言；传输检查使用本方言的行格式，boot 修改未支持
type Plugin struct{}

func (p *Plugin) Name() string { return "cisco_nxos" }

func (p *Plugin) Defaults() platform.Defaults {
	d := (&platform.DefaultPlugin{}).Defaults()
	d.PromptSuffixes = []string{"#"}
	d.SessionPrep = []string{"terminal length 0", "terminal width 511"}
	d.SaveCLI = "copy running-config startup-config"
	d.ChecksumCLI = "show file %s md5sum"
	d.ChecksumPattern = checksumPattern
	d.FreePattern = freePattern
	d.FileRowPattern = fileRowPattern
	d.ErrorHints = append(d.ErrorHints, "% invalid command", "% permission denied")
	return d
}

func init() {
	platform.Register("cisco_nxos", &Plugin{})
}
