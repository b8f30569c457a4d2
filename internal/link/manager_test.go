package link

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/meccanoid-ctl/internal/metrics"
	"github.com/taoyao-code/meccanoid-ctl/internal/protocol/mecca"
)

var (
	replayEye   = mecca.MustEncode(mecca.EyeColor{R: 1, G: 2, B: 3})
	replayChest = mecca.MustEncode(mecca.ChestLights{On: [4]bool{true, false, true, false}})
	userFrame   = mecca.MustEncode(mecca.Sound{Code: 5})
)

func testConfig() Config {
	return Config{
		Filter:           Filter{NamePrefix: "MECCANOID"},
		ScanTimeout:      200 * time.Millisecond,
		ConnectTimeout:   200 * time.Millisecond,
		ConnectAttempts:  3,
		HandshakeTimeout: 200 * time.Millisecond,
		FrameInterval:    5 * time.Millisecond,
		SendTimeout:      200 * time.Millisecond,
		ReconnectBudget:  2,
	}
}

func newTestManager(t *testing.T, cfg Config) (*Manager, *SimTransport, *metrics.AppMetrics) {
	t.Helper()
	sim := NewSimTransport(nil)
	m := metrics.NewAppMetrics(prometheus.NewRegistry())
	mgr := NewManager(cfg, sim, nil, m)
	mgr.SetReplay(func() []mecca.Frame { return []mecca.Frame{replayEye, replayChest} })
	return mgr, sim, m
}

func frameList(sent []SentFrame) []mecca.Frame {
	out := make([]mecca.Frame, len(sent))
	for i, s := range sent {
		out[i] = s.Frame
	}
	return out
}

func TestManager_ConnectHandshakeFirst(t *testing.T) {
	mgr, sim, m := newTestManager(t, testConfig())

	var readyCalls []bool
	mgr.SetOnReady(func(reconnected bool) { readyCalls = append(readyCalls, reconnected) })

	require.NoError(t, mgr.Connect(context.Background()))
	assert.Equal(t, StateReady, mgr.State())
	assert.Equal(t, "MECCANOID-SIM", mgr.Device().Name)

	got := frameList(sim.Frames())
	require.Len(t, got, 3)
	assert.Equal(t, mecca.HandshakeFrame, got[0], "第一帧必须是握手帧")
	assert.Equal(t, replayEye, got[1])
	assert.Equal(t, replayChest, got[2])
	assert.Equal(t, []bool{false}, readyCalls)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.FramesSent.WithLabelValues("handshake")))
	assert.Equal(t, float64(StateReady), testutil.ToFloat64(m.LinkState))
}

func TestManager_SendBeforeConnect(t *testing.T) {
	mgr, sim, _ := newTestManager(t, testConfig())

	err := mgr.Send(context.Background(), userFrame)
	assert.ErrorIs(t, err, ErrNotReady)
	assert.Empty(t, sim.Frames())
}

func TestManager_ScanNotFound(t *testing.T) {
	cfg := testConfig()
	cfg.ScanTimeout = 30 * time.Millisecond
	cfg.Filter = Filter{Address: "00:00:00:00:00:00"}
	mgr, sim, _ := newTestManager(t, cfg)

	err := mgr.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, ErrProtocolTimeout)
	assert.Equal(t, StateDisconnected, mgr.State())
	assert.Equal(t, 0, sim.Connects())
}

func TestManager_ConnectRetries(t *testing.T) {
	t.Run("重试后成功", func(t *testing.T) {
		mgr, sim, _ := newTestManager(t, testConfig())
		sim.FailConnects(2)

		require.NoError(t, mgr.Connect(context.Background()))
		assert.Equal(t, 3, sim.Connects())
		assert.Equal(t, StateReady, mgr.State())
	})

	t.Run("重试耗尽", func(t *testing.T) {
		mgr, sim, _ := newTestManager(t, testConfig())
		sim.FailAllConnects(true)

		err := mgr.Connect(context.Background())
		assert.ErrorIs(t, err, ErrConnectionFailed)
		assert.ErrorIs(t, err, ErrLink)
		assert.Equal(t, 3, sim.Connects())
		assert.Equal(t, StateDisconnected, mgr.State())
		assert.Empty(t, sim.Frames())
	})
}

func TestManager_FrameSpacing(t *testing.T) {
	cfg := testConfig()
	cfg.FrameInterval = 15 * time.Millisecond
	mgr, sim, _ := newTestManager(t, cfg)
	require.NoError(t, mgr.Connect(context.Background()))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, mgr.Send(context.Background(), userFrame))
		}()
	}
	wg.Wait()

	sent := sim.Frames()
	require.Len(t, sent, 3+8)
	// 握手帧之后的所有帧都经过间隔控制
	for i := 2; i < len(sent); i++ {
		gap := sent[i].At.Sub(sent[i-1].At)
		assert.GreaterOrEqual(t, gap, cfg.FrameInterval-3*time.Millisecond, "frame %d gap %s", i, gap)
	}
}

func TestManager_CallerCancelDoesNotAbortWrite(t *testing.T) {
	mgr, sim, _ := newTestManager(t, testConfig())
	require.NoError(t, mgr.Connect(context.Background()))
	sim.Reset()
	sim.SetWriteDelay(40 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.NoError(t, mgr.Send(ctx, userFrame))
	assert.Equal(t, []mecca.Frame{userFrame}, frameList(sim.Frames()))
}

func TestManager_ReconnectReplaysBeforeNewCommand(t *testing.T) {
	mgr, sim, m := newTestManager(t, testConfig())

	var readyCalls []bool
	mgr.SetOnReady(func(reconnected bool) { readyCalls = append(readyCalls, reconnected) })
	require.NoError(t, mgr.Connect(context.Background()))
	sim.Reset()

	sim.Drop()
	require.NoError(t, mgr.Send(context.Background(), userFrame))

	got := frameList(sim.Frames())
	assert.Equal(t, []mecca.Frame{mecca.HandshakeFrame, replayEye, replayChest, userFrame}, got,
		"重连后先握手、重放全量状态，再发送新命令")
	assert.Equal(t, []bool{false, true}, readyCalls)
	assert.Equal(t, StateReady, mgr.State())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReconnectTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SendErrors.WithLabelValues("sound")))
}

func TestManager_ReconnectBudgetExhausted(t *testing.T) {
	cfg := testConfig()
	cfg.ReconnectBudget = 2
	mgr, sim, m := newTestManager(t, cfg)
	require.NoError(t, mgr.Connect(context.Background()))
	connectsBefore := sim.Connects()

	sim.Drop()
	sim.FailAllConnects(true)
	err := mgr.Send(context.Background(), userFrame)
	assert.ErrorIs(t, err, ErrDisconnected)
	assert.Equal(t, connectsBefore+2, sim.Connects(), "自动重连次数不超过预算")
	assert.Equal(t, StateDisconnected, mgr.State())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReconnectTotal.WithLabelValues("exhausted")))

	// 终态后所有调用立即失败，不再尝试连接
	err = mgr.Send(context.Background(), userFrame)
	assert.ErrorIs(t, err, ErrDisconnected)
	assert.Equal(t, connectsBefore+2, sim.Connects())

	// 显式 Connect 可恢复
	sim.FailAllConnects(false)
	require.NoError(t, mgr.Connect(context.Background()))
	assert.NoError(t, mgr.Send(context.Background(), userFrame))
}

// flakyTransport 重连时交替失败，且用户帧永远写不出去
type flakyTransport struct {
	*SimTransport
	mu       sync.Mutex
	connects int
}

func (f *flakyTransport) Connect(ctx context.Context, dev Device) (Conn, error) {
	f.mu.Lock()
	f.connects++
	n := f.connects
	f.mu.Unlock()
	if n > 1 && n%2 == 0 {
		return nil, ErrInjected
	}
	c, err := f.SimTransport.Connect(ctx, dev)
	if err != nil {
		return nil, err
	}
	return &rejectUserConn{Conn: c}, nil
}

func (f *flakyTransport) reconnects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects - 1
}

type rejectUserConn struct {
	Conn
}

func (c *rejectUserConn) Write(frame []byte) error {
	if bytes.Equal(frame, userFrame.Bytes()) {
		return ErrInjected
	}
	return c.Conn.Write(frame)
}

// chattyTransport 忽略 found 的返回值，把所有广播都上报完
type chattyTransport struct {
	*SimTransport
	devices []Device
}

func (c *chattyTransport) Scan(ctx context.Context, found func(Device) bool) error {
	for _, d := range c.devices {
		found(d)
	}
	return nil
}

func TestManager_ScanKeepsFirstMatch(t *testing.T) {
	t.Run("停止扫描前的后续广播不覆盖结果", func(t *testing.T) {
		ct := &chattyTransport{
			SimTransport: NewSimTransport(nil),
			devices: []Device{
				{Address: "aa", Name: "SPHERO"},
				{Address: "bb", Name: "MECCANOID-1"},
				{Address: "cc", Name: "MECCANOID-2"},
			},
		}
		mgr := NewManager(testConfig(), ct, nil, nil)
		dev, err := mgr.Scan(context.Background(), Filter{NamePrefix: "MECCANOID"}, 50*time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, "bb", dev.Address)
	})
}

func TestManager_ReconnectBudgetSharedPerSend(t *testing.T) {
	t.Run("交替失败的重连总次数不超过预算", func(t *testing.T) {
		cfg := testConfig()
		cfg.ReconnectBudget = 2
		ft := &flakyTransport{SimTransport: NewSimTransport(nil)}
		m := metrics.NewAppMetrics(prometheus.NewRegistry())
		mgr := NewManager(cfg, ft, nil, m)
		mgr.SetReplay(func() []mecca.Frame { return []mecca.Frame{replayEye, replayChest} })
		require.NoError(t, mgr.Connect(context.Background()))

		err := mgr.Send(context.Background(), userFrame)
		assert.ErrorIs(t, err, ErrDisconnected)
		assert.Equal(t, 2, ft.reconnects(), "一次发送内所有重连共享预算")
		assert.Equal(t, StateDisconnected, mgr.State())
		assert.Equal(t, 1.0, testutil.ToFloat64(m.ReconnectTotal.WithLabelValues("ok")))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.ReconnectTotal.WithLabelValues("exhausted")))
	})

	t.Run("预算为一时只重连一次", func(t *testing.T) {
		cfg := testConfig()
		cfg.ReconnectBudget = 1
		ft := &flakyTransport{SimTransport: NewSimTransport(nil)}
		mgr := NewManager(cfg, ft, nil, nil)
		require.NoError(t, mgr.Connect(context.Background()))

		assert.ErrorIs(t, mgr.Send(context.Background(), userFrame), ErrDisconnected)
		assert.Equal(t, 1, ft.reconnects())
	})
}

func TestManager_SendTimeoutTriggersReconnect(t *testing.T) {
	cfg := testConfig()
	cfg.SendTimeout = 30 * time.Millisecond
	cfg.HandshakeTimeout = 200 * time.Millisecond
	mgr, sim, m := newTestManager(t, cfg)
	require.NoError(t, mgr.Connect(context.Background()))
	connects := sim.Connects()
	sim.Reset()

	t.Run("写超时后重连重放再重发", func(t *testing.T) {
		sim.SetWriteDelay(60 * time.Millisecond)
		go func() {
			time.Sleep(45 * time.Millisecond)
			sim.SetWriteDelay(0)
		}()

		require.NoError(t, mgr.Send(context.Background(), userFrame))
		assert.Equal(t, connects+1, sim.Connects())
		assert.Equal(t, []mecca.Frame{mecca.HandshakeFrame, replayEye, replayChest, userFrame}, frameList(sim.Frames()),
			"超时的那次写不计入，重连后按顺序重放")
		assert.Equal(t, StateReady, mgr.State())
		assert.Equal(t, 1.0, testutil.ToFloat64(m.ReconnectTotal.WithLabelValues("ok")))
	})
}

func TestManager_SendCommitOrder(t *testing.T) {
	mgr, sim, _ := newTestManager(t, testConfig())
	require.NoError(t, mgr.Connect(context.Background()))
	sim.Reset()

	t.Run("提交顺序与发帧顺序一致", func(t *testing.T) {
		var (
			mu        sync.Mutex
			committed []mecca.Frame
			wg        sync.WaitGroup
		)
		for i := 0; i < 8; i++ {
			f := mecca.MustEncode(mecca.Sound{Code: uint8(10 + i)})
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := mgr.SendCommit(context.Background(), f, func() {
					mu.Lock()
					committed = append(committed, f)
					mu.Unlock()
				})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		mu.Lock()
		defer mu.Unlock()
		require.Len(t, committed, 8)
		assert.Equal(t, frameList(sim.Frames()), committed)
	})

	t.Run("发送失败不提交", func(t *testing.T) {
		require.NoError(t, mgr.Close(context.Background()))
		called := false
		err := mgr.SendCommit(context.Background(), userFrame, func() { called = true })
		assert.ErrorIs(t, err, ErrNotReady)
		assert.False(t, called)
	})
}

func TestManager_ZeroBudgetGoesTerminal(t *testing.T) {
	cfg := testConfig()
	cfg.ReconnectBudget = 0
	mgr, sim, _ := newTestManager(t, cfg)
	require.NoError(t, mgr.Connect(context.Background()))
	connects := sim.Connects()

	sim.Drop()
	err := mgr.Send(context.Background(), userFrame)
	assert.ErrorIs(t, err, ErrDisconnected)
	assert.Equal(t, connects, sim.Connects())
}

func TestManager_StateListeners(t *testing.T) {
	mgr, _, _ := newTestManager(t, testConfig())

	var (
		mu    sync.Mutex
		trail []State
	)
	mgr.OnStateChange(func(_, to State) {
		mu.Lock()
		trail = append(trail, to)
		mu.Unlock()
	})
	require.NoError(t, mgr.Connect(context.Background()))
	require.NoError(t, mgr.Close(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{StateScanning, StateConnecting, StateHandshaking, StateReady, StateDisconnected}, trail)
	assert.ErrorIs(t, mgr.Send(context.Background(), userFrame), ErrNotReady)
}

func TestManager_Watchdog(t *testing.T) {
	cfg := testConfig()
	cfg.WatchdogInterval = 20 * time.Millisecond
	mgr, sim, m := newTestManager(t, cfg)
	require.NoError(t, mgr.Connect(context.Background()))
	sim.Reset()

	ctx, cancel := context.WithTimeout(context.Background(), 110*time.Millisecond)
	defer cancel()
	mgr.RunWatchdog(ctx)

	got := frameList(sim.Frames())
	require.GreaterOrEqual(t, len(got), 4)
	assert.Zero(t, len(got)%2, "每次刷新发送完整的状态帧组")
	for i := 0; i+1 < len(got); i += 2 {
		assert.Equal(t, replayEye, got[i])
		assert.Equal(t, replayChest, got[i+1])
	}
	assert.GreaterOrEqual(t, testutil.ToFloat64(m.WatchdogRefresh), 2.0)
}

func TestManager_WatchdogDisabled(t *testing.T) {
	mgr, _, _ := newTestManager(t, testConfig())
	done := make(chan struct{})
	go func() {
		mgr.RunWatchdog(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("间隔为0时看门狗应立即返回")
	}
}

func TestBackoffDelay(t *testing.T) {
	cfg := BackoffConfig{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{5, time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NextBackoffDelay(cfg, tt.attempt, nil))
	}
	assert.Zero(t, NextBackoffDelay(BackoffConfig{}, 3, nil))
}

func TestFilterMatch(t *testing.T) {
	d := Device{Address: "5C:F8:21:EF:ED:D1", Name: "MECCANOID G15"}
	assert.True(t, Filter{Address: "5c:f8:21:ef:ed:d1"}.Match(d))
	assert.False(t, Filter{Address: "00:00:00:00:00:00", NamePrefix: "MECCANOID"}.Match(d))
	assert.True(t, Filter{NamePrefix: "MECCANOID"}.Match(d))
	assert.False(t, Filter{NamePrefix: "SPHERO"}.Match(d))
	assert.True(t, Filter{}.Match(d))
	assert.True(t, errors.Is(&LinkError{Op: "write", Err: ErrInjected}, ErrLink))
}
