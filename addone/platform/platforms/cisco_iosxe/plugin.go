package cisco_iosxe

import (
	"github.com/sshcollectorpro/flashops/addone/platform"
	"github.com/sshcollectorpro/flashops/addone/platform/platforms/cisco_ios"
)

// Plugin 为 cisco_iosxe 平台方言，在 IOS 基础上默认使用 bootflash
type Plugin struct{}

func (p *Plugin) Name() string { return "cisco_iosxe" }

func (p *Plugin) Defaults() platform.Defaults {
	d := (&cisco_ios.Plugin{}).Defaults()
	d.BootTemplate = "boot system bootflash:"
	return d
}

func init() {
	platform.Register("cisco_iosxe", &Plugin{})
	// netmiko 风格别名
	platform.Register("cisco_xe", &Plugin{})
}
