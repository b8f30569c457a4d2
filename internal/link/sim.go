package link

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/meccanoid-ctl/internal/protocol/mecca"
)

// ErrInjected 模拟传输注入的故障
var ErrInjected = errors.New("injected fault")

// SimTransport 内存模拟设备，用于无硬件运行与测试
// 记录每一帧写入内容及时间，可注入连接/写入失败
type SimTransport struct {
	logger  *zap.Logger
	devices []Device

	mu              sync.Mutex
	frames          []SentFrame
	connects        int
	failConnects    int
	failAllConnects bool
	failWrites      int
	writeDelay      time.Duration
	active          *simConn
}

// SentFrame 模拟设备收到的一帧
type SentFrame struct {
	Frame mecca.Frame
	At    time.Time
}

// NewSimTransport 创建模拟传输；devices 为空时提供一台默认设备
func NewSimTransport(logger *zap.Logger, devices ...Device) *SimTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(devices) == 0 {
		devices = []Device{{Address: "5C:F8:21:EF:ED:D1", Name: "MECCANOID-SIM", RSSI: -42}}
	}
	return &SimTransport{logger: logger, devices: devices}
}

// FailConnects 接下来 n 次连接失败
func (s *SimTransport) FailConnects(n int) {
	s.mu.Lock()
	s.failConnects = n
	s.mu.Unlock()
}

// FailAllConnects 所有连接失败，直到关闭开关
func (s *SimTransport) FailAllConnects(on bool) {
	s.mu.Lock()
	s.failAllConnects = on
	s.mu.Unlock()
}

// FailWrites 接下来 n 次写入失败
func (s *SimTransport) FailWrites(n int) {
	s.mu.Lock()
	s.failWrites = n
	s.mu.Unlock()
}

// SetWriteDelay 每次写入的模拟耗时
func (s *SimTransport) SetWriteDelay(d time.Duration) {
	s.mu.Lock()
	s.writeDelay = d
	s.mu.Unlock()
}

// Drop 模拟设备掉线：当前连接的后续写入全部失败
func (s *SimTransport) Drop() {
	s.mu.Lock()
	if s.active != nil {
		s.active.dropped = true
	}
	s.mu.Unlock()
}

// Connects 累计连接次数（含失败）
func (s *SimTransport) Connects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connects
}

// Frames 已成功写入的帧
func (s *SimTransport) Frames() []SentFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SentFrame(nil), s.frames...)
}

// Commands 已写入帧解码后的命令
func (s *SimTransport) Commands() []mecca.Command {
	frames := s.Frames()
	out := make([]mecca.Command, 0, len(frames))
	for _, f := range frames {
		cmd, err := mecca.Decode(f.Frame.Bytes())
		if err != nil {
			continue
		}
		out = append(out, cmd)
	}
	return out
}

// Reset 清空帧记录
func (s *SimTransport) Reset() {
	s.mu.Lock()
	s.frames = nil
	s.mu.Unlock()
}

// Scan 依次上报设备，ctx 结束前保持扫描
func (s *SimTransport) Scan(ctx context.Context, found func(Device) bool) error {
	s.mu.Lock()
	devices := append([]Device(nil), s.devices...)
	s.mu.Unlock()
	for _, d := range devices {
		if found(d) {
			return nil
		}
	}
	<-ctx.Done()
	return ctx.Err()
}

// Connect 打开模拟会话
func (s *SimTransport) Connect(ctx context.Context, dev Device) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connects++
	if s.failAllConnects {
		return nil, ErrInjected
	}
	if s.failConnects > 0 {
		s.failConnects--
		return nil, ErrInjected
	}
	c := &simConn{sim: s, dev: dev}
	s.active = c
	s.logger.Debug("sim connected", zap.String("address", dev.Address))
	return c, nil
}

type simConn struct {
	sim     *SimTransport
	dev     Device
	dropped bool
	closed  bool
}

func (c *simConn) Write(frame []byte) error {
	s := c.sim
	s.mu.Lock()
	delay := s.writeDelay
	s.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if c.closed || c.dropped {
		return ErrInjected
	}
	if s.failWrites > 0 {
		s.failWrites--
		return ErrInjected
	}
	var f mecca.Frame
	if len(frame) != mecca.FrameSize {
		return errors.New("sim: bad frame size")
	}
	copy(f[:], frame)
	s.frames = append(s.frames, SentFrame{Frame: f, At: time.Now()})
	if cmd, err := mecca.Decode(frame); err == nil {
		s.logger.Debug("sim frame", zap.Stringer("kind", cmd.Kind()), zap.String("frame", f.String()))
	} else {
		s.logger.Warn("sim frame rejected", zap.String("frame", f.String()), zap.Error(err))
	}
	return nil
}

func (c *simConn) Close() error {
	c.sim.mu.Lock()
	c.closed = true
	if c.sim.active == c {
		c.sim.active = nil
	}
	c.sim.mu.Unlock()
	return nil
}
