package link

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/meccanoid-ctl/internal/metrics"
	"github.com/taoyao-code/meccanoid-ctl/internal/protocol/mecca"
)

// Config 链路参数，全部来自外部配置
type Config struct {
	Filter           Filter
	ScanTimeout      time.Duration
	ConnectTimeout   time.Duration
	ConnectAttempts  int
	HandshakeTimeout time.Duration
	HandshakeSettle  time.Duration // 握手后等待设备就绪
	FrameInterval    time.Duration
	SendTimeout      time.Duration
	ReconnectBudget  int
	Backoff          BackoffConfig
	WatchdogInterval time.Duration // 0 表示关闭看门狗
}

func (c *Config) applyDefaults() {
	if c.ScanTimeout <= 0 {
		c.ScanTimeout = 10 * time.Second
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 20 * time.Second
	}
	if c.ConnectAttempts <= 0 {
		c.ConnectAttempts = 3
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 2 * time.Second
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = time.Second
	}
	if c.ReconnectBudget < 0 {
		c.ReconnectBudget = 0
	}
}

// Manager 链路管理器：连接生命周期、单写者串行发送、自动重连
// 所有出站帧都经过 Send，同一时刻只有一帧在传输中
type Manager struct {
	cfg       Config
	transport Transport
	logger    *zap.Logger
	metrics   *metrics.AppMetrics
	pacer     *Pacer
	rng       *rand.Rand

	// 写者令牌（容量为1），连接/重连期间同样持有，调用方在此排队
	writer chan struct{}

	mu        sync.RWMutex
	state     State
	conn      Conn
	device    Device
	terminal  bool
	listeners []func(from, to State)

	replay  func() []mecca.Frame
	onReady func(reconnected bool)
}

// NewManager 创建链路管理器
func NewManager(cfg Config, transport Transport, logger *zap.Logger, m *metrics.AppMetrics) *Manager {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		cfg:       cfg,
		transport: transport,
		logger:    logger,
		metrics:   m,
		pacer:     NewPacer(cfg.FrameInterval),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		writer:    make(chan struct{}, 1),
	}
}

// SetReplay 设置全量状态帧来源，用于连接就绪、重连恢复与看门狗
func (m *Manager) SetReplay(fn func() []mecca.Frame) {
	m.mu.Lock()
	m.replay = fn
	m.mu.Unlock()
}

// SetOnReady 就绪回调，在重放完成、释放写者之前调用
func (m *Manager) SetOnReady(fn func(reconnected bool)) {
	m.mu.Lock()
	m.onReady = fn
	m.mu.Unlock()
}

// OnStateChange 注册状态变化监听
func (m *Manager) OnStateChange(fn func(from, to State)) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

// State 当前状态
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Device 当前（或最近一次）连接的设备
func (m *Manager) Device() Device {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.device
}

// PacerStats 帧间隔统计
func (m *Manager) PacerStats() PacerStats {
	return m.pacer.Stats()
}

func (m *Manager) setState(to State) {
	m.mu.Lock()
	from := m.state
	m.state = to
	listeners := append([]func(from, to State){}, m.listeners...)
	m.mu.Unlock()
	if from == to {
		return
	}
	if m.metrics != nil {
		m.metrics.LinkState.Set(float64(to))
	}
	m.logger.Info("link state", zap.Stringer("from", from), zap.Stringer("to", to))
	for _, fn := range listeners {
		fn(from, to)
	}
}

func (m *Manager) acquire(ctx context.Context) error {
	select {
	case m.writer <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) release() {
	<-m.writer
}

// Scan 在超时时间内查找第一个匹配的设备
func (m *Manager) Scan(ctx context.Context, filter Filter, timeout time.Duration) (Device, error) {
	if timeout <= 0 {
		timeout = m.cfg.ScanTimeout
	}
	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		mu    sync.Mutex
		found Device
		ok    bool
	)
	// 传输层停止扫描之前可能还会回调，只保留第一个匹配
	err := m.transport.Scan(sctx, func(d Device) bool {
		mu.Lock()
		defer mu.Unlock()
		if ok {
			return true
		}
		m.logger.Debug("scan result", zap.String("address", d.Address), zap.String("name", d.Name), zap.Int16("rssi", d.RSSI))
		if filter.Match(d) {
			found, ok = d, true
			return true
		}
		return false
	})
	mu.Lock()
	defer mu.Unlock()
	if ok {
		return found, nil
	}
	if ctx.Err() != nil {
		return Device{}, ctx.Err()
	}
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return Device{}, &LinkError{Op: "scan", Err: err}
	}
	return Device{}, fmt.Errorf("%w within %s: %w", ErrNotFound, timeout, ErrProtocolTimeout)
}

// Connect 扫描、连接、握手并重放状态，成功后进入 Ready
// 显式调用会清除此前的终态 Disconnected
func (m *Manager) Connect(ctx context.Context) error {
	if err := m.acquire(ctx); err != nil {
		return err
	}
	defer m.release()

	m.mu.Lock()
	m.terminal = false
	m.mu.Unlock()
	m.closeConn()

	m.setState(StateScanning)
	dev, err := m.Scan(ctx, m.cfg.Filter, m.cfg.ScanTimeout)
	if err != nil {
		m.setState(StateDisconnected)
		m.logger.Warn("scan failed", zap.Error(err))
		return err
	}
	m.logger.Info("device found", zap.String("address", dev.Address), zap.String("name", dev.Name))

	_, err = m.establish(ctx, dev, m.cfg.ConnectAttempts, false)
	return err
}

// establish 在 attempts 次内完成 连接→握手→重放；每次失败都完整回到 Disconnected
// 返回实际消耗的连接次数
func (m *Manager) establish(ctx context.Context, dev Device, attempts int, reconnect bool) (int, error) {
	var lastErr error
	used := 0
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			delay := NextBackoffDelay(m.cfg.Backoff, attempt-1, m.rng)
			if err := sleepCtx(ctx, delay); err != nil {
				m.setState(StateDisconnected)
				return used, err
			}
		}
		used++
		err := m.attempt(ctx, dev, reconnect)
		if err == nil {
			return used, nil
		}
		lastErr = err
		m.closeConn()
		m.setState(StateDisconnected)
		m.logger.Warn("connect attempt failed",
			zap.String("address", dev.Address),
			zap.Int("attempt", attempt),
			zap.Int("max", attempts),
			zap.Bool("reconnect", reconnect),
			zap.Error(err))
		if ctx.Err() != nil {
			return used, ctx.Err()
		}
	}
	if lastErr == nil {
		lastErr = errors.New("no attempts allowed")
	}
	return used, fmt.Errorf("%w after %d attempts: %w", ErrConnectionFailed, used, lastErr)
}

func (m *Manager) attempt(ctx context.Context, dev Device, reconnect bool) error {
	m.setState(StateConnecting)
	cctx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	conn, err := m.transport.Connect(cctx, dev)
	cancel()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("connect: %w", ErrProtocolTimeout)
		}
		return &LinkError{Op: "connect", Err: err}
	}
	m.mu.Lock()
	m.conn = conn
	m.device = dev
	m.mu.Unlock()

	// 连接后第一帧必须是握手帧
	m.setState(StateHandshaking)
	if err := m.writeTimed(conn, mecca.HandshakeFrame, m.cfg.HandshakeTimeout); err != nil {
		if errors.Is(err, ErrProtocolTimeout) {
			return fmt.Errorf("handshake: %w", err)
		}
		return &LinkError{Op: "handshake", Err: err}
	}
	m.countSent(mecca.HandshakeFrame, "handshake")
	if err := sleepCtx(ctx, m.cfg.HandshakeSettle); err != nil {
		return err
	}

	m.mu.RLock()
	replay, onReady := m.replay, m.onReady
	m.mu.RUnlock()
	if replay != nil {
		for _, f := range replay() {
			if err := m.pacer.Wait(ctx); err != nil {
				return err
			}
			if err := m.writeTimed(conn, f, m.cfg.SendTimeout); err != nil {
				return &LinkError{Op: "replay", Err: err}
			}
			m.countSent(f, "")
		}
	}
	if onReady != nil {
		onReady(reconnect)
	}
	m.setState(StateReady)
	return nil
}

// Send 唯一的出站入口
// 调用方在写者令牌上排队；稳态下写失败会在持有令牌的情况下自动重连、重放全量状态后重发本帧
func (m *Manager) Send(ctx context.Context, f mecca.Frame) error {
	return m.SendCommit(ctx, f, nil)
}

// SendCommit 发送成功后在释放写者令牌之前执行 commit
// 状态写入顺序因此与帧的发出顺序一致，重连重放也不会读到半提交的状态
func (m *Manager) SendCommit(ctx context.Context, f mecca.Frame, commit func()) error {
	if err := m.acquire(ctx); err != nil {
		return err
	}
	defer m.release()
	if err := m.sendLocked(ctx, f); err != nil {
		return err
	}
	if commit != nil {
		commit()
	}
	return nil
}

// SendAll 在一次令牌持有期内连续发送多帧，帧之间不会插入其他调用方的帧
func (m *Manager) SendAll(ctx context.Context, frames []mecca.Frame) error {
	if err := m.acquire(ctx); err != nil {
		return err
	}
	defer m.release()
	for _, f := range frames {
		if err := m.sendLocked(ctx, f); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) readyErr() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state == StateReady && m.conn != nil {
		return nil
	}
	if m.terminal {
		return ErrDisconnected
	}
	return fmt.Errorf("%w (state %s)", ErrNotReady, m.state)
}

// sendLocked 一次发送内所有自动重连共享 ReconnectBudget 次连接尝试
func (m *Manager) sendLocked(ctx context.Context, f mecca.Frame) error {
	remaining := m.cfg.ReconnectBudget
	for {
		if err := m.readyErr(); err != nil {
			return err
		}
		if err := m.pacer.Wait(ctx); err != nil {
			return err
		}
		m.mu.RLock()
		conn := m.conn
		m.mu.RUnlock()

		err := m.writeTimed(conn, f, m.cfg.SendTimeout)
		if err == nil {
			m.countSent(f, "")
			return nil
		}
		if m.metrics != nil {
			m.metrics.SendErrors.WithLabelValues(mecca.CmdName(f.Cmd())).Inc()
		}
		lerr := &LinkError{Op: "write", Err: err}
		m.logger.Warn("frame write failed", zap.String("frame", f.String()), zap.Error(err))

		used, rerr := m.recoverLocked(ctx, lerr, remaining)
		remaining -= used
		if rerr != nil {
			return rerr
		}
	}
}

// recoverLocked 最多 budget 次自动重连，返回消耗的连接次数；失败即进入终态 Disconnected
// 重连不受调用方取消影响，只受重连预算约束
func (m *Manager) recoverLocked(ctx context.Context, cause error, budget int) (int, error) {
	dev := m.Device()
	m.closeConn()
	m.setState(StateDisconnected)
	if budget <= 0 {
		if m.metrics != nil && m.cfg.ReconnectBudget > 0 {
			m.metrics.ReconnectTotal.WithLabelValues("exhausted").Inc()
		}
		m.fail(cause)
		return 0, fmt.Errorf("%w: %w", ErrDisconnected, cause)
	}
	m.logger.Warn("link lost, reconnecting", zap.String("address", dev.Address), zap.Int("budget", budget), zap.Error(cause))

	rctx := context.WithoutCancel(ctx)
	used, err := m.establish(rctx, dev, budget, true)
	if err != nil {
		if m.metrics != nil {
			m.metrics.ReconnectTotal.WithLabelValues("exhausted").Inc()
		}
		m.fail(err)
		return used, fmt.Errorf("%w: %w", ErrDisconnected, err)
	}
	if m.metrics != nil {
		m.metrics.ReconnectTotal.WithLabelValues("ok").Inc()
	}
	m.logger.Info("link recovered", zap.String("address", dev.Address), zap.Int("attempts", used))
	return used, nil
}

func (m *Manager) fail(cause error) {
	m.closeConn()
	m.mu.Lock()
	m.terminal = true
	m.mu.Unlock()
	m.setState(StateDisconnected)
	m.logger.Error("link disconnected, reconnect budget exhausted", zap.Error(cause))
}

// writeTimed 写入一帧；超时不会打断已经交给传输层的写操作，只是不再等待
func (m *Manager) writeTimed(conn Conn, f mecca.Frame, timeout time.Duration) error {
	if conn == nil {
		return errors.New("no connection")
	}
	done := make(chan error, 1)
	go func() { done <- conn.Write(f.Bytes()) }()

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case err := <-done:
		if err == nil {
			m.logger.Debug("frame sent", zap.String("cmd", mecca.CmdName(f.Cmd())), zap.String("frame", f.String()))
		}
		return err
	case <-t.C:
		return fmt.Errorf("write after %s: %w", timeout, ErrProtocolTimeout)
	}
}

func (m *Manager) countSent(f mecca.Frame, label string) {
	if m.metrics == nil {
		return
	}
	if label == "" {
		label = mecca.CmdName(f.Cmd())
	}
	m.metrics.FramesSent.WithLabelValues(label).Inc()
}

func (m *Manager) closeConn() {
	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()
	if conn != nil {
		if err := conn.Close(); err != nil {
			m.logger.Debug("close conn", zap.Error(err))
		}
	}
}

// Close 主动断开；之后的 Send 返回 ErrNotReady，直到再次 Connect
func (m *Manager) Close(ctx context.Context) error {
	if err := m.acquire(ctx); err != nil {
		return err
	}
	defer m.release()
	m.closeConn()
	m.setState(StateDisconnected)
	return nil
}

// RunWatchdog 周期性重发全量状态，弥补设备无应答通道时偶发的丢帧
// 阻塞直到 ctx 结束；间隔为0时直接返回
func (m *Manager) RunWatchdog(ctx context.Context) {
	if m.cfg.WatchdogInterval <= 0 {
		return
	}
	ticker := time.NewTicker(m.cfg.WatchdogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.refresh(ctx)
		}
	}
}

func (m *Manager) refresh(ctx context.Context) {
	if m.State() != StateReady {
		return
	}
	m.mu.RLock()
	replay := m.replay
	m.mu.RUnlock()
	if replay == nil {
		return
	}
	// 一组状态帧要么完整发出，要么因链路失败中止
	if err := m.SendAll(context.WithoutCancel(ctx), replay()); err != nil {
		m.logger.Warn("watchdog refresh failed", zap.Error(err))
		return
	}
	if m.metrics != nil {
		m.metrics.WatchdogRefresh.Inc()
	}
}
