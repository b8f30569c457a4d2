package mecca

import (
	"errors"
	"fmt"
)

// ErrValidation 字段超出协议定义范围
var ErrValidation = errors.New("validation error")

// ValidationError 字段校验失败，在任何字节发出之前返回
type ValidationError struct {
	Field  string
	Value  int
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s=%d %s", e.Field, e.Value, e.Reason)
}

// Is 使 errors.Is(err, ErrValidation) 成立
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func checkRange(field string, v, lo, hi int) error {
	if v < lo || v > hi {
		return &ValidationError{Field: field, Value: v, Reason: fmt.Sprintf("out of range [%d,%d]", lo, hi)}
	}
	return nil
}
