package calibration

import (
	"errors"
	"fmt"
)

// ErrCalibration 姿态引用了未配置的舵机，或校准记录本身不合法
var ErrCalibration = errors.New("calibration error")

// CalibrationError 校准错误，加载阶段发现，不会进入发送路径
type CalibrationError struct {
	Servo  string
	Reason string
}

func (e *CalibrationError) Error() string {
	return fmt.Sprintf("calibration error: servo %s: %s", e.Servo, e.Reason)
}

func (e *CalibrationError) Is(target error) bool {
	return target == ErrCalibration
}
