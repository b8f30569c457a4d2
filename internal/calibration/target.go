package calibration

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// TargetKind 语义目标类型
type TargetKind int

const (
	TargetCenter TargetKind = iota
	TargetMin
	TargetMax
	TargetFraction // 0=语义最小，0.5=真实中位，1=语义最大
	TargetRaw      // 物理字节，不做反向处理
)

// Target 与硬件朝向无关的舵机目标
type Target struct {
	Kind     TargetKind
	Fraction float64
	Raw      int
}

var (
	Min    = Target{Kind: TargetMin}
	Center = Target{Kind: TargetCenter}
	Max    = Target{Kind: TargetMax}
)

// Fraction 构造比例目标
func Fraction(f float64) Target { return Target{Kind: TargetFraction, Fraction: f} }

// Raw 构造原始字节目标
func Raw(b int) Target { return Target{Kind: TargetRaw, Raw: b} }

func (t Target) String() string {
	switch t.Kind {
	case TargetMin:
		return "min"
	case TargetMax:
		return "max"
	case TargetCenter:
		return "center"
	case TargetFraction:
		return strconv.FormatFloat(t.Fraction, 'f', -1, 64)
	case TargetRaw:
		return fmt.Sprintf("raw:%d", t.Raw)
	default:
		return "unknown"
	}
}

// ParseTarget 解析文本目标：min | center | max | 0.0-1.0 | raw:N（N 可为 0x 前缀）
func ParseTarget(s string) (Target, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	switch s {
	case "min":
		return Min, nil
	case "center", "centre", "mid":
		return Center, nil
	case "max":
		return Max, nil
	}
	if rest, ok := strings.CutPrefix(s, "raw:"); ok {
		v, err := strconv.ParseInt(strings.TrimSpace(rest), 0, 32)
		if err != nil {
			return Target{}, fmt.Errorf("parse raw target %q: %w", s, err)
		}
		return Raw(int(v)), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Target{}, fmt.Errorf("parse target %q: want min|center|max|fraction|raw:N", s)
	}
	return Fraction(f), nil
}

// UnmarshalYAML 支持 `left_elbow: max`、`left_elbow: 0.25`、`left_elbow: raw:0x90`
func (t *Target) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: servo target must be a scalar", value.Line)
	}
	parsed, err := ParseTarget(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*t = parsed
	return nil
}

// MarshalYAML 输出与 ParseTarget 对称的文本
func (t Target) MarshalYAML() (interface{}, error) {
	return t.String(), nil
}
