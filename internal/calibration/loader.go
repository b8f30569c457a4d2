package calibration

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// fileFormat 校准文件结构
//
//	unit: "5C:F8:21:EF:ED:D1"
//	servos:
//	  - {id: 1, name: right_elbow, min: 0x40, center: 0x80, max: 0xC0, invert: true}
type fileFormat struct {
	Unit   string   `yaml:"unit" toml:"unit"`
	Servos []Record `yaml:"servos" toml:"servos"`
}

// Load 按扩展名加载 YAML 或 TOML 校准文件
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read calibration file: %w", err)
	}
	var ff fileFormat
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), &ff); err != nil {
			return nil, fmt.Errorf("parse calibration toml: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &ff); err != nil {
			return nil, fmt.Errorf("parse calibration yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("calibration file %s: unsupported extension", path)
	}
	if len(ff.Servos) == 0 {
		return nil, &CalibrationError{Servo: "*", Reason: "no servos in " + path}
	}
	return NewTable(ff.Unit, ff.Servos)
}
