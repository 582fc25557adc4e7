package main

// 引入平台方言插件，触发各平台的 init() 完成注册
import (
	_ "github.com/sshcollectorpro/flashops/addone/platform/platforms/cisco_ios"
	_ "github.com/sshcollectorpro/flashops/addone/platform/platforms/cisco_iosxe"
	_ "github.com/sshcollectorpro/flashops/addone/platform/platforms/cisco_nxos"
)
