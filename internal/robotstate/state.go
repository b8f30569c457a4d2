package robotstate

import (
	"github.com/taoyao-code/meccanoid-ctl/internal/calibration"
	"github.com/taoyao-code/meccanoid-ctl/internal/pose"
	"github.com/taoyao-code/meccanoid-ctl/internal/protocol/mecca"
)

// State 最近一次成功下发的通道值快照
// 设备没有回读通道，这里只记录发出去的内容，不推测实际位置
type State struct {
	Servos      [mecca.ServoCount]uint8          `json:"servos"`
	LightColors [mecca.ServoCount]mecca.LEDColor `json:"light_colors"`
	LightModes  [mecca.ServoCount]uint8          `json:"light_modes"`
	FootLEDs    uint8                            `json:"foot_leds"`
	Chest       [mecca.ChestLightCount]bool      `json:"chest"`
	Eyes        mecca.EyeColor                   `json:"eyes"`
	LastSound   *uint8                           `json:"last_sound,omitempty"`
}

// Neutral 连接建立后的初始状态：舵机在校准中位，灯全灭，模式取默认值
func Neutral(table *calibration.Table) State {
	s := State{
		Servos:   table.Neutral(),
		FootLEDs: mecca.DefaultFootLEDs,
	}
	for i := range s.LightModes {
		s.LightModes[i] = mecca.DefaultServoLEDMode
	}
	return s
}

// Apply 将已解析姿态合并到快照上，返回新快照
// 纯函数：不修改接收者，未指定的通道保留原值
func (s State) Apply(r *pose.Resolved) State {
	next := s
	if r == nil {
		return next
	}
	for id, raw := range r.Servos {
		next.Servos[id] = raw
	}
	for id, c := range r.LightColors {
		next.LightColors[id] = c
	}
	for id, m := range r.LightModes {
		next.LightModes[id] = m
	}
	for idx, on := range r.Chest {
		next.Chest[idx] = on
	}
	if r.Eyes != nil {
		next.Eyes = *r.Eyes
	}
	if r.FootLEDs != nil {
		next.FootLEDs = *r.FootLEDs
	}
	if r.Sound != nil {
		v := *r.Sound
		next.LastSound = &v
	}
	return next
}

// ServosCommand 舵机帧
func (s State) ServosCommand() mecca.Servos {
	return mecca.Servos{Positions: s.Servos, LEDModes: s.LightModes, FootLEDs: s.FootLEDs}
}

// ServoLightsCommand 舵机灯帧
func (s State) ServoLightsCommand() mecca.ServoLights {
	return mecca.ServoLights{Colors: s.LightColors, Modes: s.LightModes}
}

// ChestCommand 胸灯帧
func (s State) ChestCommand() mecca.ChestLights {
	return mecca.ChestLights{On: s.Chest}
}

// Commands 完整状态对应的命令序列，用于重连后的全量重放与看门狗刷新
// 不包含音效：音效是一次性事件，不属于可重放的状态
func (s State) Commands() []mecca.Command {
	return []mecca.Command{s.ServosCommand(), s.ServoLightsCommand(), s.ChestCommand(), s.Eyes}
}

// Diff 从 s 变到 next 需要下发的最小命令集
// 舵机帧总是下发；其余通道仅在变化时下发；姿态带音效时追加音效帧
func Diff(s, next State, sound *uint8) []mecca.Command {
	cmds := []mecca.Command{next.ServosCommand()}
	if s.LightColors != next.LightColors || s.LightModes != next.LightModes {
		cmds = append(cmds, next.ServoLightsCommand())
	}
	if s.Chest != next.Chest {
		cmds = append(cmds, next.ChestCommand())
	}
	if s.Eyes != next.Eyes {
		cmds = append(cmds, next.Eyes)
	}
	if sound != nil {
		cmds = append(cmds, mecca.Sound{Code: *sound})
	}
	return cmds
}

// Commit 仅把一条已成功下发的命令对应的通道写入快照
func (s State) Commit(cmd mecca.Command) State {
	next := s
	switch c := cmd.(type) {
	case mecca.Servos:
		next.Servos = c.Positions
		next.LightModes = c.LEDModes
		next.FootLEDs = c.FootLEDs
	case mecca.ServoLights:
		next.LightColors = c.Colors
		next.LightModes = c.Modes
	case mecca.ChestLights:
		next.Chest = c.On
	case mecca.EyeColor:
		next.Eyes = c
	case mecca.Sound:
		code := c.Code
		next.LastSound = &code
	}
	return next
}
