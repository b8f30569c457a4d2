package link

import (
	"errors"
	"fmt"
)

var (
	// ErrLink 传输层写入/连接失败，稳态下可由自动重连恢复
	ErrLink = errors.New("link error")
	// ErrNotFound 扫描超时仍未发现目标设备
	ErrNotFound = errors.New("device not found")
	// ErrConnectionFailed 重试耗尽仍无法建立连接
	ErrConnectionFailed = errors.New("connection failed")
	// ErrProtocolTimeout 扫描/连接/握手超过截止时间，本次连接尝试失败
	ErrProtocolTimeout = errors.New("protocol timeout")
	// ErrDisconnected 重连预算耗尽后的终态，需要显式 Connect 才能恢复
	ErrDisconnected = errors.New("disconnected")
	// ErrNotReady 尚未完成首次连接
	ErrNotReady = errors.New("link not ready")
)

// LinkError 携带失败操作的链路错误
type LinkError struct {
	Op  string
	Err error
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("link %s: %v", e.Op, e.Err)
}

func (e *LinkError) Unwrap() error { return e.Err }

func (e *LinkError) Is(target error) bool { return target == ErrLink }
