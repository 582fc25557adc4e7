package ssh

import "time"

// Pacing 响应节奏因子：慢设备或大文件传输需要更大的值
type Pacing float64

// DefaultPacing 默认节奏因子，对应 1 倍等待
const DefaultPacing Pacing = 0.1

// Scale 按节奏因子放大等待时长；不大于默认值时不缩短
func (p Pacing) Scale(d time.Duration) time.Duration {
	if p <= DefaultPacing {
		return d
	}
	return time.Duration(float64(d) * float64(p/DefaultPacing))
}
