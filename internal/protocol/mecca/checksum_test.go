package mecca

import (
	"errors"
	"testing"
)

func TestCalculateChecksum(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected uint16
	}{
		{
			name:     "空载荷",
			data:     make([]byte, PayloadSize),
			expected: 0x0000,
		},
		{
			name:     "红色眼睛",
			data:     []byte{0x11, 0, 0, 0x07, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0},
			expected: 0x0018,
		},
		{
			name:     "握手帧",
			data:     []byte{0x0D, 0, 0, 0, 0, 0xFF, 0xFF, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0},
			expected: 0x020B, // 0x0D + 0xFF + 0xFF
		},
		{
			name:     "全0xFF不回绕",
			data:     []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF},
			expected: 4590,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CalculateChecksum(tt.data)
			if result != tt.expected {
				t.Errorf("CalculateChecksum() = 0x%04X, expected 0x%04X", result, tt.expected)
			}
		})
	}
}

func TestVerifyChecksum(t *testing.T) {
	good := HandshakeFrame.Bytes()

	bad := HandshakeFrame.Bytes()
	bad[FrameSize-1] ^= 0x01

	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{name: "正确的校验和", data: good},
		{name: "错误的校验和", data: bad, wantErr: ErrChecksumMismatch},
		{name: "长度不足", data: good[:19]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifyChecksum(tt.data)
			if tt.name == "长度不足" {
				if err == nil {
					t.Fatal("expected length error")
				}
				return
			}
			if tt.wantErr == nil && err != nil {
				t.Fatalf("VerifyChecksum() unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("VerifyChecksum() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
