package mecca

import (
	"encoding/hex"
	"strings"
)

// 帧格式：payload(18) + checksum(2)，checksum 为 payload 字节无符号累加和，大端序
const (
	PayloadSize  = 18
	ChecksumSize = 2
	FrameSize    = PayloadSize + ChecksumSize
)

// 命令字节（payload[0]）
const (
	CmdWheels      byte = 0x0D // 轮子，握手帧同样使用该命令字
	CmdEyeColor    byte = 0x11
	CmdSound       byte = 0x19
	CmdServos      byte = 0x08
	CmdServoLights byte = 0x0C
	CmdChestLights byte = 0x1C
)

// BLE 服务与写特征值
const (
	ServiceUUID        = "0000ffe5-0000-1000-8000-00805f9b34fb"
	CharacteristicUUID = "0000ffe9-0000-1000-8000-00805f9b34fb"
)

// Frame 一个完整的20字节下行帧
type Frame [FrameSize]byte

// Payload 返回18字节载荷
func (f Frame) Payload() []byte {
	return f[:PayloadSize]
}

// Checksum 返回帧尾携带的校验和
func (f Frame) Checksum() uint16 {
	return uint16(f[PayloadSize])<<8 | uint16(f[PayloadSize+1])
}

// Cmd 返回命令字节
func (f Frame) Cmd() byte {
	return f[0]
}

// Bytes 返回帧的拷贝，可直接写入特征值
func (f Frame) Bytes() []byte {
	b := make([]byte, FrameSize)
	copy(b, f[:])
	return b
}

// String 大写十六进制表示，便于日志对照抓包
func (f Frame) String() string {
	return strings.ToUpper(hex.EncodeToString(f[:]))
}

// buildFrame 由载荷生成完整帧
func buildFrame(p [PayloadSize]byte) Frame {
	var f Frame
	copy(f[:], p[:])
	sum := CalculateChecksum(p[:])
	f[PayloadSize] = byte(sum >> 8)
	f[PayloadSize+1] = byte(sum & 0xFF)
	return f
}

// CmdName 命令字节的可读名称，用作日志字段与指标标签
func CmdName(cmd byte) string {
	switch cmd {
	case CmdWheels:
		return "wheels"
	case CmdEyeColor:
		return "eye_color"
	case CmdSound:
		return "sound"
	case CmdServos:
		return "servos"
	case CmdServoLights:
		return "servo_lights"
	case CmdChestLights:
		return "chest_lights"
	default:
		return "unknown"
	}
}
