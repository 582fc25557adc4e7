package cisco_ios

import "github.com/sshcollectorpro/flashops/addone/platform"

// Plugin 为 cisco_ios 平台方言
type Plugin struct{}

func (p *Plugin) Name() string { return "cisco_ios" }

func (p *Plugin) Defaults() platform.Defaults {
	d := (&platform.DefaultPlugin{}).Defaults()
	d.SessionPrep = []string{"terminal length 0", "terminal width 511"}
	d.ChecksumCLI = "verify /md5 %s"
	d.ErrorHints = append(d.ErrorHints, "% bad ip address", "% unknown command")
	d.AutoInteractions = append(d.AutoInteractions,
		platform.AutoInteraction{Expect: "destination filename [", Send: ""},
	)
	d.BootChange = true
	d.BootTemplate = "boot system flash:"
	return d
}

func init() {
	platform.Register("cisco_ios", &Plugin{})
}
