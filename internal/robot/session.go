// Package robot 单台机器人的会话：链路、状态模型与动作调度的组合
package robot

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taoyao-code/meccanoid-ctl/internal/calibration"
	"github.com/taoyao-code/meccanoid-ctl/internal/link"
	"github.com/taoyao-code/meccanoid-ctl/internal/metrics"
	"github.com/taoyao-code/meccanoid-ctl/internal/pose"
	"github.com/taoyao-code/meccanoid-ctl/internal/protocol/mecca"
	"github.com/taoyao-code/meccanoid-ctl/internal/robotstate"
	"github.com/taoyao-code/meccanoid-ctl/internal/sequencer"
)

// Options 会话参数
type Options struct {
	Link        link.Config
	DefaultHold time.Duration
}

// Session 一台机器人的控制会话
// 所有出站帧（动作调度与单条调试命令）都经过同一个链路管理器串行发送
type Session struct {
	ID string

	table   *calibration.Table
	library *pose.Library
	link    *link.Manager
	model   *robotstate.Model
	seq     *sequencer.Sequencer
	events  *EventBus
	logger  *zap.Logger
}

// NewSession 组装会话；library 必须已绑定到 table
func NewSession(opts Options, transport link.Transport, table *calibration.Table, library *pose.Library, logger *zap.Logger, m *metrics.AppMetrics) (*Session, error) {
	if table == nil {
		return nil, fmt.Errorf("calibration table is required")
	}
	if library == nil || !library.Bound() {
		return nil, fmt.Errorf("pose library must be bound to the calibration table")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.NewString()
	logger = logger.With(zap.String("session", id))

	s := &Session{
		ID:      id,
		table:   table,
		library: library,
		model:   robotstate.NewModel(),
		events:  NewEventBus(),
		logger:  logger,
	}
	s.link = link.NewManager(opts.Link, transport, logger.Named("link"), m)
	s.link.SetReplay(s.replayFrames)
	s.link.SetOnReady(s.onReady)
	s.link.OnStateChange(func(from, to link.State) {
		s.events.Publish(Event{Type: EventLinkState, From: from.String(), To: to.String()})
	})

	s.seq = sequencer.New(s.link, s.model, library, opts.DefaultHold, logger.Named("sequencer"), m)
	s.seq.OnProgress(func(r sequencer.Result) {
		s.events.Publish(Event{Type: EventExecution, Execution: &r})
	})
	return s, nil
}

// replayFrames 全量状态帧；模型尚未初始化时使用中位状态
func (s *Session) replayFrames() []mecca.Frame {
	state, ok := s.model.Snapshot()
	if !ok {
		state = robotstate.Neutral(s.table)
	}
	cmds := state.Commands()
	frames := make([]mecca.Frame, 0, len(cmds))
	for _, c := range cmds {
		f, err := mecca.Encode(c)
		if err != nil {
			s.logger.Error("encode replay frame", zap.Stringer("kind", c.Kind()), zap.Error(err))
			continue
		}
		frames = append(frames, f)
	}
	return frames
}

func (s *Session) onReady(reconnected bool) {
	if _, ok := s.model.Snapshot(); !ok {
		s.model.Seed(robotstate.Neutral(s.table))
	}
	s.logger.Info("robot ready", zap.Bool("reconnected", reconnected), zap.String("unit", s.table.Unit()))
}

// Connect 显式连接：状态模型重置为中位，连接后下发中位状态
func (s *Session) Connect(ctx context.Context) error {
	s.seq.Cancel()
	s.model.Reset()
	return s.link.Connect(ctx)
}

// Disconnect 取消执行中的动作并断开链路
func (s *Session) Disconnect(ctx context.Context) error {
	s.seq.Cancel()
	return s.link.Close(ctx)
}

// Run 运行后台任务（看门狗），阻塞到 ctx 结束
func (s *Session) Run(ctx context.Context) {
	s.link.RunWatchdog(ctx)
}

// Close 关闭会话
func (s *Session) Close(ctx context.Context) error {
	return s.Disconnect(ctx)
}

// Events 事件总线
func (s *Session) Events() *EventBus { return s.events }

// Library 姿态库
func (s *Session) Library() *pose.Library { return s.library }

// Table 校准表
func (s *Session) Table() *calibration.Table { return s.table }

// LinkState 链路状态
func (s *Session) LinkState() link.State { return s.link.State() }

// Snapshot 对外展示的状态视图
type Snapshot struct {
	SessionID string            `json:"session_id"`
	Unit      string            `json:"unit"`
	Link      string            `json:"link"`
	Device    link.Device       `json:"device"`
	Seeded    bool              `json:"seeded"`
	State     robotstate.State  `json:"state"`
	Pacer     link.PacerStats   `json:"pacer"`
	Execution *sequencer.Result `json:"execution,omitempty"`
}

// Snapshot 当前状态快照
func (s *Session) Snapshot() Snapshot {
	state, seeded := s.model.Snapshot()
	snap := Snapshot{
		SessionID: s.ID,
		Unit:      s.table.Unit(),
		Link:      s.link.State().String(),
		Device:    s.link.Device(),
		Seeded:    seeded,
		State:     state,
		Pacer:     s.link.PacerStats(),
	}
	if r, ok := s.seq.Status(); ok {
		snap.Execution = &r
	}
	return snap
}

// ExecutePose 执行姿态
func (s *Session) ExecutePose(ctx context.Context, name string, opts sequencer.Options) (sequencer.Result, error) {
	return s.seq.ExecutePose(ctx, name, opts)
}

// ExecuteAnimation 执行动画，阻塞到结束
func (s *Session) ExecuteAnimation(ctx context.Context, name string) (sequencer.Result, error) {
	return s.seq.ExecuteAnimation(ctx, name)
}

// SubmitPose 异步执行姿态
func (s *Session) SubmitPose(name string, opts sequencer.Options) (sequencer.Result, error) {
	return s.seq.SubmitPose(name, opts)
}

// SubmitAnimation 异步执行动画
func (s *Session) SubmitAnimation(name string) (sequencer.Result, error) {
	return s.seq.SubmitAnimation(name)
}

// Cancel 取消当前执行
func (s *Session) Cancel() bool { return s.seq.Cancel() }

// Status 当前或最近一次执行
func (s *Session) Status() (sequencer.Result, bool) { return s.seq.Status() }

// send 编码、下发，成功后写入状态模型
func (s *Session) send(ctx context.Context, cmd mecca.Command) error {
	f, err := mecca.Encode(cmd)
	if err != nil {
		return err
	}
	if err := s.link.SendCommit(ctx, f, func() { s.model.Commit(cmd) }); err != nil {
		return err
	}
	s.events.Publish(Event{Type: EventCommand, Command: cmd.Kind().String()})
	return nil
}

func (s *Session) current() (robotstate.State, error) {
	state, ok := s.model.Snapshot()
	if !ok {
		return robotstate.State{}, link.ErrNotReady
	}
	return state, nil
}

// SetEyeColor 设置眼睛颜色
func (s *Session) SetEyeColor(ctx context.Context, c mecca.EyeColor) error {
	return s.send(ctx, c)
}

// SetChestLight 设置单个胸灯，其余胸灯保持当前值
func (s *Session) SetChestLight(ctx context.Context, index int, on bool) error {
	if index < 0 || index >= mecca.ChestLightCount {
		return &mecca.ValidationError{Field: "chest.index", Value: index, Reason: fmt.Sprintf("must be 0..%d", mecca.ChestLightCount-1)}
	}
	state, err := s.current()
	if err != nil {
		return err
	}
	cmd := state.ChestCommand()
	cmd.On[index] = on
	return s.send(ctx, cmd)
}

// SetServoLight 设置单个舵机灯颜色；mode 为空时保留当前模式
func (s *Session) SetServoLight(ctx context.Context, servo int, color mecca.LEDColor, mode *uint8) error {
	if _, ok := s.table.Record(servo); !ok {
		return &calibration.CalibrationError{Servo: fmt.Sprint(servo), Reason: "not in calibration table"}
	}
	state, err := s.current()
	if err != nil {
		return err
	}
	cmd := state.ServoLightsCommand()
	cmd.Colors[servo] = color
	if mode != nil {
		cmd.Modes[servo] = *mode
	}
	return s.send(ctx, cmd)
}

// PlaySound 播放内置音效
func (s *Session) PlaySound(ctx context.Context, code uint8) error {
	return s.send(ctx, mecca.Sound{Code: code})
}

// MoveWheels 轮子速度与方向，不属于可重放状态
func (s *Session) MoveWheels(ctx context.Context, w mecca.Wheels) error {
	return s.send(ctx, w)
}

// SetServosRaw 直接设置舵机原始字节（标定用），仍按校准范围校验
func (s *Session) SetServosRaw(ctx context.Context, positions map[int]int) error {
	for id, raw := range positions {
		if err := s.table.CheckRaw(id, raw); err != nil {
			return err
		}
	}
	state, err := s.current()
	if err != nil {
		return err
	}
	cmd := state.ServosCommand()
	for id, raw := range positions {
		cmd.Positions[id] = uint8(raw)
	}
	return s.send(ctx, cmd)
}
