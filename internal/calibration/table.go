package calibration

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/taoyao-code/meccanoid-ctl/internal/protocol/mecca"
)

// Record 单个舵机的校准记录
// 装配差异会导致方向与中位偏移因机而异，因此记录来自外部配置
type Record struct {
	ID     int    `yaml:"id" toml:"id"`
	Name   string `yaml:"name" toml:"name"`
	Min    int    `yaml:"min" toml:"min"`
	Center int    `yaml:"center" toml:"center"`
	Max    int    `yaml:"max" toml:"max"`
	Invert bool   `yaml:"invert" toml:"invert"`
}

func (r Record) validate() error {
	id := strconv.Itoa(r.ID)
	if r.ID < 0 || r.ID >= mecca.ServoCount {
		return &CalibrationError{Servo: id, Reason: "id out of range 0-7"}
	}
	if r.Min < 0 || r.Max > 255 {
		return &CalibrationError{Servo: id, Reason: fmt.Sprintf("range [%d,%d] outside 0-255", r.Min, r.Max)}
	}
	if !(r.Min <= r.Center && r.Center <= r.Max) {
		return &CalibrationError{Servo: id, Reason: fmt.Sprintf("need min<=center<=max, got %d/%d/%d", r.Min, r.Center, r.Max)}
	}
	return nil
}

// Table 每台机器一份的校准表
type Table struct {
	unit    string
	records map[int]Record
	byName  map[string]int
}

// NewTable 校验并构建校准表
func NewTable(unit string, records []Record) (*Table, error) {
	t := &Table{unit: unit, records: make(map[int]Record, len(records)), byName: make(map[string]int, len(records))}
	for _, r := range records {
		if err := r.validate(); err != nil {
			return nil, err
		}
		if _, dup := t.records[r.ID]; dup {
			return nil, &CalibrationError{Servo: strconv.Itoa(r.ID), Reason: "duplicate id"}
		}
		r.Name = strings.ToLower(strings.TrimSpace(r.Name))
		if r.Name != "" {
			if _, dup := t.byName[r.Name]; dup {
				return nil, &CalibrationError{Servo: r.Name, Reason: "duplicate name"}
			}
			t.byName[r.Name] = r.ID
		}
		t.records[r.ID] = r
	}
	return t, nil
}

// DefaultNames 文档中观察到的舵机用途
var DefaultNames = [mecca.ServoCount]string{
	"head_pan", "right_elbow", "right_shoulder", "left_shoulder", "left_elbow", "aux_5", "aux_6", "aux_7",
}

// Default 0x40/0x80/0xC0 且无反向的校准表，仅用于模拟与测试
func Default() *Table {
	records := make([]Record, 0, mecca.ServoCount)
	for i, name := range DefaultNames {
		records = append(records, Record{ID: i, Name: name, Min: 0x40, Center: 0x80, Max: 0xC0})
	}
	t, _ := NewTable("default", records)
	return t
}

// Unit 机器标识
func (t *Table) Unit() string { return t.unit }

// Record 按舵机ID取校准记录
func (t *Table) Record(id int) (Record, bool) {
	r, ok := t.records[id]
	return r, ok
}

// IDs 已配置的舵机ID（升序）
func (t *Table) IDs() []int {
	ids := make([]int, 0, len(t.records))
	for id := range t.records {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Lookup 将语义名称或数字ID解析为舵机ID
func (t *Table) Lookup(ref string) (int, error) {
	key := strings.ToLower(strings.TrimSpace(ref))
	if id, ok := t.byName[key]; ok {
		return id, nil
	}
	if id, err := strconv.Atoi(key); err == nil {
		if _, ok := t.records[id]; ok {
			return id, nil
		}
	}
	return 0, &CalibrationError{Servo: ref, Reason: "not configured"}
}

// Resolve 将语义目标转换为原始字节
// 比例目标按 min-center、center-max 两段插值，0.5 恰好落在真实中位
func (t *Table) Resolve(id int, target Target) (uint8, error) {
	r, ok := t.records[id]
	if !ok {
		return 0, &CalibrationError{Servo: strconv.Itoa(id), Reason: "not configured"}
	}
	lo, hi := r.Min, r.Max
	if r.Invert {
		lo, hi = hi, lo
	}
	switch target.Kind {
	case TargetMin:
		return uint8(lo), nil
	case TargetMax:
		return uint8(hi), nil
	case TargetCenter:
		return uint8(r.Center), nil
	case TargetFraction:
		f := target.Fraction
		if math.IsNaN(f) {
			return 0, &mecca.ValidationError{Field: fmt.Sprintf("servo[%d].fraction", id), Value: -1, Reason: "fraction is NaN"}
		}
		if f < 0 || f > 1 {
			// 先截断再转 int，±Inf 和极大值的转换结果未定义
			pct := math.Max(math.MinInt32, math.Min(math.MaxInt32, math.Round(f*100)))
			return 0, &mecca.ValidationError{Field: fmt.Sprintf("servo[%d].fraction", id), Value: int(pct), Reason: "fraction (in %) outside [0,100]"}
		}
		var v float64
		if f <= 0.5 {
			v = float64(lo) + (float64(r.Center)-float64(lo))*(f/0.5)
		} else {
			v = float64(r.Center) + (float64(hi)-float64(r.Center))*((f-0.5)/0.5)
		}
		return uint8(math.Round(v)), nil
	case TargetRaw:
		if err := t.CheckRaw(id, target.Raw); err != nil {
			return 0, err
		}
		return uint8(target.Raw), nil
	default:
		return 0, fmt.Errorf("servo %d: unknown target kind %d", id, target.Kind)
	}
}

// CheckRaw 原始字节必须落在 [min,max]，超出直接拒绝，不做截断
func (t *Table) CheckRaw(id int, raw int) error {
	r, ok := t.records[id]
	if !ok {
		return &CalibrationError{Servo: strconv.Itoa(id), Reason: "not configured"}
	}
	if raw < r.Min || raw > r.Max {
		return &mecca.ValidationError{
			Field:  fmt.Sprintf("servo[%d]", id),
			Value:  raw,
			Reason: fmt.Sprintf("outside calibration range [%d,%d]", r.Min, r.Max),
		}
	}
	return nil
}

// Neutral 所有已配置舵机的中位；未配置舵机取 0x80
func (t *Table) Neutral() [mecca.ServoCount]uint8 {
	var pos [mecca.ServoCount]uint8
	for i := range pos {
		pos[i] = 0x80
		if r, ok := t.records[i]; ok {
			pos[i] = uint8(r.Center)
		}
	}
	return pos
}
