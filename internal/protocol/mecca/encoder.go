package mecca

import "fmt"

// Encode 校验字段后生成20字节帧
// 校验失败返回 ValidationError，此时不产生任何字节
func Encode(cmd Command) (Frame, error) {
	if cmd == nil {
		return Frame{}, fmt.Errorf("encode: nil command")
	}
	switch cmd.(type) {
	case Handshake, EyeColor, Sound, Servos, ServoLights, ChestLights, Wheels:
	default:
		return Frame{}, fmt.Errorf("encode: unsupported command %T", cmd)
	}
	if err := cmd.validate(); err != nil {
		return Frame{}, err
	}
	return buildFrame(cmd.payload()), nil
}

// MustEncode 仅用于常量命令（握手等），失败直接 panic
func MustEncode(cmd Command) Frame {
	f, err := Encode(cmd)
	if err != nil {
		panic(err)
	}
	return f
}

// HandshakeFrame 预先编码的握手帧
var HandshakeFrame = MustEncode(Handshake{})
