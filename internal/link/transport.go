package link

import (
	"context"
	"strings"
)

// Device 扫描发现的设备
type Device struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	RSSI    int16  `json:"rssi"`
}

// Filter 设备过滤：配置了地址时按地址精确匹配，否则按名称前缀匹配
type Filter struct {
	Address    string
	NamePrefix string
}

// Match 判断设备是否为目标
func (f Filter) Match(d Device) bool {
	if f.Address != "" {
		return strings.EqualFold(f.Address, d.Address)
	}
	if f.NamePrefix != "" {
		return strings.HasPrefix(d.Name, f.NamePrefix)
	}
	return true
}

// Transport 无线链路的最小抽象：发现设备、打开会话
type Transport interface {
	// Scan 持续上报发现的设备，found 返回 true 时停止；ctx 结束时返回
	Scan(ctx context.Context, found func(Device) bool) error
	// Connect 打开到设备的会话
	Connect(ctx context.Context, dev Device) (Conn, error)
}

// Conn 只写会话，设备不提供任何回读
type Conn interface {
	Write(frame []byte) error
	Close() error
}
