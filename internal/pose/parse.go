package pose

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/taoyao-code/meccanoid-ctl/internal/calibration"
	"github.com/taoyao-code/meccanoid-ctl/internal/protocol/mecca"
)

type lightDoc struct {
	Color string `yaml:"color"`
	Mode  *uint8 `yaml:"mode"`
}

// eyesDoc 既可以是颜色名，也可以是 {r, g, b}
type eyesDoc struct {
	color *mecca.EyeColor
}

func (e *eyesDoc) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		c, ok := mecca.EyeColorByName(value.Value)
		if !ok {
			return fmt.Errorf("line %d: unknown eye color %q", value.Line, value.Value)
		}
		e.color = &c
		return nil
	case yaml.MappingNode:
		var rgb struct {
			R int `yaml:"r"`
			G int `yaml:"g"`
			B int `yaml:"b"`
		}
		if err := value.Decode(&rgb); err != nil {
			return err
		}
		c, err := mecca.NewEyeColor(rgb.R, rgb.G, rgb.B)
		if err != nil {
			return fmt.Errorf("line %d: %w", value.Line, err)
		}
		e.color = &c
		return nil
	default:
		return fmt.Errorf("line %d: eyes must be a color name or {r,g,b}", value.Line)
	}
}

type poseDoc struct {
	Hold        string                        `yaml:"hold"`
	Servos      map[string]calibration.Target `yaml:"servos"`
	ServoLights map[string]lightDoc           `yaml:"servo_lights"`
	Chest       map[int]bool                  `yaml:"chest"`
	Eyes        *eyesDoc                      `yaml:"eyes"`
	FootLEDs    *uint8                        `yaml:"foot_leds"`
	Sound       *uint8                        `yaml:"sound"`
}

type stepDoc struct {
	poseDoc `yaml:",inline"`
	Pose    string `yaml:"pose"`
	Repeat  int    `yaml:"repeat"`
}

type animationDoc struct {
	Loops int       `yaml:"loops"`
	Steps []stepDoc `yaml:"steps"`
}

type libraryDoc struct {
	Poses      map[string]poseDoc      `yaml:"poses"`
	Animations map[string]animationDoc `yaml:"animations"`
}

// Parse 解析 YAML 姿态目录
func Parse(data []byte) (*Library, error) {
	var doc libraryDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse pose library: %w", err)
	}
	lib := NewLibrary()
	for name, pd := range doc.Poses {
		p, err := pd.toPose(name)
		if err != nil {
			return nil, err
		}
		lib.AddPose(p)
	}
	for name, ad := range doc.Animations {
		a := &Animation{Name: name, Loops: ad.Loops}
		for i, sd := range ad.Steps {
			step := Step{PoseName: sd.Pose, Repeat: sd.Repeat}
			hold, err := parseHold(sd.Hold)
			if err != nil {
				return nil, fmt.Errorf("animation %s step %d: %w", name, i+1, err)
			}
			step.Hold = hold
			if sd.hasChannels() {
				if sd.Pose != "" {
					return nil, fmt.Errorf("animation %s step %d: pose and inline channels are exclusive", name, i+1)
				}
				inline, err := sd.poseDoc.toPose(fmt.Sprintf("%s#%d", name, i+1))
				if err != nil {
					return nil, err
				}
				step.Inline = inline
			}
			a.Steps = append(a.Steps, step)
		}
		lib.AddAnimation(a)
	}
	return lib, nil
}

func (d poseDoc) hasChannels() bool {
	return len(d.Servos) > 0 || len(d.ServoLights) > 0 || len(d.Chest) > 0 ||
		d.Eyes != nil || d.FootLEDs != nil || d.Sound != nil
}

func (d poseDoc) toPose(name string) (*Pose, error) {
	hold, err := parseHold(d.Hold)
	if err != nil {
		return nil, fmt.Errorf("pose %s: %w", name, err)
	}
	p := &Pose{
		Name:     name,
		Hold:     hold,
		Servos:   d.Servos,
		Chest:    d.Chest,
		FootLEDs: d.FootLEDs,
		Sound:    d.Sound,
	}
	if d.Eyes != nil {
		p.Eyes = d.Eyes.color
	}
	if len(d.ServoLights) > 0 {
		p.ServoLights = make(map[string]Light, len(d.ServoLights))
		for ref, ld := range d.ServoLights {
			c, err := mecca.ParseLEDColor(ld.Color)
			if err != nil {
				return nil, fmt.Errorf("pose %s servo light %s: %w", name, ref, err)
			}
			p.ServoLights[ref] = Light{Color: c, Mode: ld.Mode}
		}
	}
	return p, nil
}

func parseHold(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("hold %q: %w", s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("hold %q: negative", s)
	}
	return d, nil
}
