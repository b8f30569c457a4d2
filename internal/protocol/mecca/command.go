package mecca

import (
	"fmt"
	"strings"
)

// Kind 命令类型
type Kind int

const (
	KindHandshake Kind = iota
	KindEyeColor
	KindSound
	KindServos
	KindServoLights
	KindChestLights
	KindWheels
)

func (k Kind) String() string {
	switch k {
	case KindHandshake:
		return "handshake"
	case KindEyeColor:
		return "eye_color"
	case KindSound:
		return "sound"
	case KindServos:
		return "servos"
	case KindServoLights:
		return "servo_lights"
	case KindChestLights:
		return "chest_lights"
	case KindWheels:
		return "wheels"
	default:
		return "unknown"
	}
}

// Command 下行命令（封闭的变体集合，仅本包类型实现）
type Command interface {
	Kind() Kind
	validate() error
	payload() [PayloadSize]byte
}

const (
	ServoCount      = 8
	ChestLightCount = 4
	MaxColorLevel   = 7 // 眼睛 RGB 分量与舵机灯颜色均为 0-7

	DefaultServoLEDMode byte = 0x04
	DefaultFootLEDs     byte = 0x01
)

// LEDColor 舵机灯颜色枚举
type LEDColor uint8

const (
	LEDOff LEDColor = iota
	LEDRed
	LEDGreen
	LEDYellow
	LEDBlue
	LEDMagenta
	LEDCyan
	LEDWhite
)

var ledColorNames = [...]string{"off", "red", "green", "yellow", "blue", "magenta", "cyan", "white"}

func (c LEDColor) String() string {
	if int(c) < len(ledColorNames) {
		return ledColorNames[c]
	}
	return fmt.Sprintf("LEDColor(%d)", uint8(c))
}

// ParseLEDColor 按名称解析颜色
func ParseLEDColor(name string) (LEDColor, error) {
	for i, n := range ledColorNames {
		if strings.EqualFold(n, name) {
			return LEDColor(i), nil
		}
	}
	return 0, fmt.Errorf("unknown led color %q", name)
}

// Direction 轮子方向
type Direction uint8

const (
	DirStop Direction = iota
	DirForward
	DirBackward
)

// Handshake 唤醒/握手帧，连接后必须最先发送
type Handshake struct{}

func (Handshake) Kind() Kind      { return KindHandshake }
func (Handshake) validate() error { return nil }
func (Handshake) payload() [PayloadSize]byte {
	return Wheels{}.payload()
}

// EyeColor 眼睛颜色，RGB 分量 0-7
type EyeColor struct {
	R, G, B uint8
}

func (EyeColor) Kind() Kind { return KindEyeColor }

func (c EyeColor) validate() error {
	if err := checkRange("eye.r", int(c.R), 0, MaxColorLevel); err != nil {
		return err
	}
	if err := checkRange("eye.g", int(c.G), 0, MaxColorLevel); err != nil {
		return err
	}
	return checkRange("eye.b", int(c.B), 0, MaxColorLevel)
}

func (c EyeColor) payload() [PayloadSize]byte {
	var p [PayloadSize]byte
	p[0] = CmdEyeColor
	p[3] = c.G<<3 | c.R
	p[4] = c.B
	return p
}

// NewEyeColor 由整数分量构造，越界返回 ValidationError
func NewEyeColor(r, g, b int) (EyeColor, error) {
	for _, ch := range []struct {
		name string
		v    int
	}{{"eye.r", r}, {"eye.g", g}, {"eye.b", b}} {
		if err := checkRange(ch.name, ch.v, 0, MaxColorLevel); err != nil {
			return EyeColor{}, err
		}
	}
	return EyeColor{R: uint8(r), G: uint8(g), B: uint8(b)}, nil
}

// 常用眼睛颜色
var namedEyeColors = map[string]EyeColor{
	"off":     {0, 0, 0},
	"red":     {7, 0, 0},
	"green":   {0, 7, 0},
	"blue":    {0, 0, 7},
	"yellow":  {7, 7, 0},
	"cyan":    {0, 7, 7},
	"magenta": {7, 0, 7},
	"white":   {7, 7, 7},
}

// EyeColorByName 按名称查找眼睛颜色
func EyeColorByName(name string) (EyeColor, bool) {
	c, ok := namedEyeColors[strings.ToLower(name)]
	return c, ok
}

// Sound 播放内置音效
type Sound struct {
	Code uint8
}

func (Sound) Kind() Kind      { return KindSound }
func (Sound) validate() error { return nil }
func (s Sound) payload() [PayloadSize]byte {
	var p [PayloadSize]byte
	p[0] = CmdSound
	p[1] = s.Code
	return p
}

// Servos 全部舵机位置 + 舵机灯模式 + 脚灯，一帧更新全部8路
type Servos struct {
	Positions [ServoCount]uint8
	LEDModes  [ServoCount]uint8
	FootLEDs  uint8
}

func (Servos) Kind() Kind      { return KindServos }
func (Servos) validate() error { return nil }
func (s Servos) payload() [PayloadSize]byte {
	var p [PayloadSize]byte
	p[0] = CmdServos
	copy(p[1:9], s.Positions[:])
	copy(p[9:17], s.LEDModes[:])
	p[17] = s.FootLEDs
	return p
}

// NewServos 由整数位置构造，位置必须在 0-255
func NewServos(positions []int, modes [ServoCount]uint8, foot uint8) (Servos, error) {
	if len(positions) != ServoCount {
		return Servos{}, &ValidationError{Field: "servos.len", Value: len(positions), Reason: "want 8 positions"}
	}
	s := Servos{LEDModes: modes, FootLEDs: foot}
	for i, v := range positions {
		if err := checkRange(fmt.Sprintf("servo[%d]", i), v, 0, 255); err != nil {
			return Servos{}, err
		}
		s.Positions[i] = uint8(v)
	}
	return s, nil
}

// ServoLights 全部舵机灯颜色 + 模式
type ServoLights struct {
	Colors [ServoCount]LEDColor
	Modes  [ServoCount]uint8
}

func (ServoLights) Kind() Kind { return KindServoLights }

func (l ServoLights) validate() error {
	for i, c := range l.Colors {
		if err := checkRange(fmt.Sprintf("servo_light[%d].color", i), int(c), 0, MaxColorLevel); err != nil {
			return err
		}
	}
	return nil
}

func (l ServoLights) payload() [PayloadSize]byte {
	var p [PayloadSize]byte
	p[0] = CmdServoLights
	for i, c := range l.Colors {
		p[1+i] = byte(c)
	}
	copy(p[9:17], l.Modes[:])
	return p
}

// ChestLights 胸口4颗LED开关
type ChestLights struct {
	On [ChestLightCount]bool
}

func (ChestLights) Kind() Kind      { return KindChestLights }
func (ChestLights) validate() error { return nil }
func (c ChestLights) payload() [PayloadSize]byte {
	var p [PayloadSize]byte
	p[0] = CmdChestLights
	for i, on := range c.On {
		if on {
			p[1+i] = 1
		}
	}
	return p
}

// Wheels 左右轮方向与速度
type Wheels struct {
	LeftDir    Direction
	RightDir   Direction
	LeftSpeed  uint8
	RightSpeed uint8
}

func (Wheels) Kind() Kind { return KindWheels }

func (w Wheels) validate() error {
	if err := checkRange("wheels.left_dir", int(w.LeftDir), int(DirStop), int(DirBackward)); err != nil {
		return err
	}
	return checkRange("wheels.right_dir", int(w.RightDir), int(DirStop), int(DirBackward))
}

func (w Wheels) payload() [PayloadSize]byte {
	var p [PayloadSize]byte
	p[0] = CmdWheels
	p[1] = byte(w.LeftDir)
	p[2] = byte(w.RightDir)
	p[3] = w.LeftSpeed
	p[4] = w.RightSpeed
	p[5] = 0xFF
	p[6] = 0xFF
	return p
}

// IsHandshake 零速且停止的轮子帧与握手帧字节完全相同
func (w Wheels) IsHandshake() bool {
	return w == Wheels{}
}
