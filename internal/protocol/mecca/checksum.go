package mecca

import (
	"errors"
	"fmt"
)

var (
	// ErrChecksumMismatch checksum校验失败
	ErrChecksumMismatch = errors.New("checksum mismatch")
)

// CalculateChecksum 计算载荷校验和
// 对18字节载荷逐字节无符号累加，最大 18*255=4590，不会超过16位，不存在回绕
func CalculateChecksum(payload []byte) uint16 {
	var sum uint16
	for _, b := range payload {
		sum += uint16(b)
	}
	return sum
}

// VerifyChecksum 校验完整20字节帧
func VerifyChecksum(frame []byte) error {
	if len(frame) != FrameSize {
		return fmt.Errorf("frame length %d, want %d", len(frame), FrameSize)
	}
	want := CalculateChecksum(frame[:PayloadSize])
	got := uint16(frame[PayloadSize])<<8 | uint16(frame[PayloadSize+1])
	if got != want {
		return fmt.Errorf("%w: got 0x%04X want 0x%04X", ErrChecksumMismatch, got, want)
	}
	return nil
}
