package mecca

import (
	"errors"
	"fmt"
)

// ErrUnknownCommand 未知命令字节
var ErrUnknownCommand = errors.New("unknown command byte")

// Decode 将20字节帧还原为命令
// 设备没有上行通道，本函数只用于自检与模拟传输，不读取硬件遥测
func Decode(b []byte) (Command, error) {
	if err := VerifyChecksum(b); err != nil {
		return nil, err
	}
	p := b[:PayloadSize]
	switch p[0] {
	case CmdWheels:
		return decodeWheels(p)
	case CmdEyeColor:
		return decodeEyeColor(p)
	case CmdSound:
		if err := zeroPadding(p, 2); err != nil {
			return nil, err
		}
		return Sound{Code: p[1]}, nil
	case CmdServos:
		var s Servos
		copy(s.Positions[:], p[1:9])
		copy(s.LEDModes[:], p[9:17])
		s.FootLEDs = p[17]
		return s, nil
	case CmdServoLights:
		return decodeServoLights(p)
	case CmdChestLights:
		return decodeChestLights(p)
	default:
		return nil, fmt.Errorf("%w: 0x%02X", ErrUnknownCommand, p[0])
	}
}

func decodeWheels(p []byte) (Command, error) {
	if p[5] != 0xFF || p[6] != 0xFF {
		return nil, &ValidationError{Field: "wheels.marker", Value: int(p[5])<<8 | int(p[6]), Reason: "bytes 5-6 must be 0xFF"}
	}
	if err := zeroPadding(p, 7); err != nil {
		return nil, err
	}
	w := Wheels{LeftDir: Direction(p[1]), RightDir: Direction(p[2]), LeftSpeed: p[3], RightSpeed: p[4]}
	if err := w.validate(); err != nil {
		return nil, err
	}
	if w.IsHandshake() {
		return Handshake{}, nil
	}
	return w, nil
}

func decodeEyeColor(p []byte) (Command, error) {
	if p[1] != 0 || p[2] != 0 {
		return nil, &ValidationError{Field: "eye.reserved", Value: int(p[1])<<8 | int(p[2]), Reason: "must be zero"}
	}
	if p[3]>>6 != 0 {
		return nil, &ValidationError{Field: "eye.gr", Value: int(p[3]), Reason: "bits 6-7 must be zero"}
	}
	c := EyeColor{R: p[3] & 0x07, G: p[3] >> 3 & 0x07, B: p[4]}
	if err := c.validate(); err != nil {
		return nil, err
	}
	if err := zeroPadding(p, 5); err != nil {
		return nil, err
	}
	return c, nil
}

func decodeServoLights(p []byte) (Command, error) {
	var l ServoLights
	for i := 0; i < ServoCount; i++ {
		l.Colors[i] = LEDColor(p[1+i])
	}
	copy(l.Modes[:], p[9:17])
	if err := l.validate(); err != nil {
		return nil, err
	}
	if p[17] != 0 {
		return nil, &ValidationError{Field: "servo_light.tail", Value: int(p[17]), Reason: "must be zero"}
	}
	return l, nil
}

func decodeChestLights(p []byte) (Command, error) {
	var c ChestLights
	for i := 0; i < ChestLightCount; i++ {
		switch p[1+i] {
		case 0:
		case 1:
			c.On[i] = true
		default:
			return nil, &ValidationError{Field: fmt.Sprintf("chest[%d]", i), Value: int(p[1+i]), Reason: "must be 0 or 1"}
		}
	}
	if err := zeroPadding(p, 1+ChestLightCount); err != nil {
		return nil, err
	}
	return c, nil
}

// zeroPadding 布局之外的字节必须为0
func zeroPadding(p []byte, from int) error {
	for i := from; i < PayloadSize; i++ {
		if p[i] != 0 {
			return &ValidationError{Field: fmt.Sprintf("payload[%d]", i), Value: int(p[i]), Reason: "padding must be zero"}
		}
	}
	return nil
}
