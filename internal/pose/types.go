package pose

import (
	"time"

	"github.com/taoyao-code/meccanoid-ctl/internal/calibration"
	"github.com/taoyao-code/meccanoid-ctl/internal/protocol/mecca"
)

// Light 单个舵机灯设置，Mode 为空时保留原模式
type Light struct {
	Color mecca.LEDColor
	Mode  *uint8
}

// Pose 命名姿态：只描述需要改变的通道，未描述的通道保持原值
// 舵机以语义名称（或数字ID）引用，与具体机器的装配方向无关
type Pose struct {
	Name        string
	Hold        time.Duration
	Servos      map[string]calibration.Target
	ServoLights map[string]Light
	Chest       map[int]bool
	Eyes        *mecca.EyeColor
	FootLEDs    *uint8
	Sound       *uint8
}

// Resolved 经过校准表解析后的姿态，键为舵机ID，值为原始字节
type Resolved struct {
	Name        string
	Hold        time.Duration
	Servos      map[int]uint8
	LightColors map[int]mecca.LEDColor
	LightModes  map[int]uint8
	Chest       map[int]bool
	Eyes        *mecca.EyeColor
	FootLEDs    *uint8
	Sound       *uint8
}

// Step 动画中的一步：引用命名姿态或内联增量姿态
type Step struct {
	PoseName string
	Inline   *Pose
	Hold     time.Duration
	Repeat   int

	resolved *Resolved
}

// Resolved 返回绑定后的姿态，Bind 之前为 nil
func (s Step) Resolved() *Resolved { return s.resolved }

// Label 用于日志与状态展示
func (s Step) Label() string {
	if s.PoseName != "" {
		return s.PoseName
	}
	if s.Inline != nil && s.Inline.Name != "" {
		return s.Inline.Name
	}
	return "inline"
}

// Animation 有序的步骤序列；Loops 为整段重复次数
type Animation struct {
	Name  string
	Steps []Step
	Loops int
}

// Unroll 展开步骤重复与整段循环，得到可直接调度的扁平序列
func (a *Animation) Unroll() []Step {
	loops := a.Loops
	if loops < 1 {
		loops = 1
	}
	var out []Step
	for l := 0; l < loops; l++ {
		for _, s := range a.Steps {
			n := s.Repeat
			if n < 1 {
				n = 1
			}
			for i := 0; i < n; i++ {
				out = append(out, s)
			}
		}
	}
	return out
}
