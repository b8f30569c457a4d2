package pose

import (
	"fmt"

	"github.com/taoyao-code/meccanoid-ctl/internal/calibration"
	"github.com/taoyao-code/meccanoid-ctl/internal/protocol/mecca"
)

// Resolve 通过校准表把语义姿态转换为原始字节
// 引用未配置舵机返回 CalibrationError，目标越界返回 ValidationError
func (p *Pose) Resolve(table *calibration.Table) (*Resolved, error) {
	r := &Resolved{
		Name:        p.Name,
		Hold:        p.Hold,
		Servos:      make(map[int]uint8, len(p.Servos)),
		LightColors: make(map[int]mecca.LEDColor, len(p.ServoLights)),
		LightModes:  make(map[int]uint8),
		Chest:       make(map[int]bool, len(p.Chest)),
	}
	for ref, target := range p.Servos {
		id, err := table.Lookup(ref)
		if err != nil {
			return nil, fmt.Errorf("pose %s: %w", p.Name, err)
		}
		raw, err := table.Resolve(id, target)
		if err != nil {
			return nil, fmt.Errorf("pose %s: %w", p.Name, err)
		}
		r.Servos[id] = raw
	}
	for ref, light := range p.ServoLights {
		id, err := table.Lookup(ref)
		if err != nil {
			return nil, fmt.Errorf("pose %s: %w", p.Name, err)
		}
		if light.Color > mecca.MaxColorLevel {
			return nil, &mecca.ValidationError{Field: fmt.Sprintf("servo_light[%d].color", id), Value: int(light.Color), Reason: "out of range [0,7]"}
		}
		r.LightColors[id] = light.Color
		if light.Mode != nil {
			r.LightModes[id] = *light.Mode
		}
	}
	for idx, on := range p.Chest {
		if idx < 0 || idx >= mecca.ChestLightCount {
			return nil, &mecca.ValidationError{Field: "chest.index", Value: idx, Reason: "out of range [0,3]"}
		}
		r.Chest[idx] = on
	}
	if p.Eyes != nil {
		if _, err := mecca.NewEyeColor(int(p.Eyes.R), int(p.Eyes.G), int(p.Eyes.B)); err != nil {
			return nil, fmt.Errorf("pose %s: %w", p.Name, err)
		}
		c := *p.Eyes
		r.Eyes = &c
	}
	if p.FootLEDs != nil {
		v := *p.FootLEDs
		r.FootLEDs = &v
	}
	if p.Sound != nil {
		v := *p.Sound
		r.Sound = &v
	}
	return r, nil
}
