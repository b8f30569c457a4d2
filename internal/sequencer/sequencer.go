// Package sequencer 把命名姿态与动画解析为按时间排列的帧序列，经链路逐帧下发
package sequencer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taoyao-code/meccanoid-ctl/internal/metrics"
	"github.com/taoyao-code/meccanoid-ctl/internal/pose"
	"github.com/taoyao-code/meccanoid-ctl/internal/protocol/mecca"
	"github.com/taoyao-code/meccanoid-ctl/internal/robotstate"
)

// DefaultHold 姿态与步骤均未指定保持时间时使用
const DefaultHold = time.Second

// step 调度单元
type step struct {
	label    string
	resolved *pose.Resolved
	hold     time.Duration
}

// execution 一次进行中的执行
type execution struct {
	result Result
	steps  []step
	noHold bool

	interrupted bool // 保持时间被取消打断

	cancelOnce sync.Once
	cancelCh   chan struct{}
	preempted  bool // 受 Sequencer.mu 保护
}

func (e *execution) cancel() {
	e.cancelOnce.Do(func() { close(e.cancelCh) })
}

func (e *execution) cancelled() bool {
	select {
	case <-e.cancelCh:
		return true
	default:
		return false
	}
}

// Sequencer 每台机器人同一时刻只有一个执行；新请求在当前执行的下一个步骤边界抢占它
type Sequencer struct {
	sender      Sender
	store       StateStore
	catalog     Catalog
	logger      *zap.Logger
	metrics     *metrics.AppMetrics
	defaultHold time.Duration

	runMu sync.Mutex // 持有者即正在执行者

	mu        sync.Mutex
	current   *execution
	pending   *execution
	last      *Result
	listeners []func(Result)
}

// New 创建调度器；defaultHold<=0 时取 DefaultHold
func New(sender Sender, store StateStore, catalog Catalog, defaultHold time.Duration, logger *zap.Logger, m *metrics.AppMetrics) *Sequencer {
	if defaultHold <= 0 {
		defaultHold = DefaultHold
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sequencer{
		sender:      sender,
		store:       store,
		catalog:     catalog,
		logger:      logger,
		metrics:     m,
		defaultHold: defaultHold,
	}
}

// OnProgress 注册进度监听：开始、每步完成、结束时回调
func (s *Sequencer) OnProgress(fn func(Result)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// ExecutePose 执行单个姿态；阻塞到保持时间结束，NonBlocking 时帧发出即返回
func (s *Sequencer) ExecutePose(ctx context.Context, name string, opts Options) (Result, error) {
	exec, err := s.preparePose(name, opts)
	if err != nil {
		return Result{}, err
	}
	return s.run(ctx, exec)
}

// ExecuteAnimation 按顺序执行动画的全部步骤（重复已展开）
func (s *Sequencer) ExecuteAnimation(ctx context.Context, name string) (Result, error) {
	exec, err := s.prepareAnimation(name)
	if err != nil {
		return Result{}, err
	}
	return s.run(ctx, exec)
}

// SubmitPose 异步执行姿态，返回执行ID
func (s *Sequencer) SubmitPose(name string, opts Options) (Result, error) {
	exec, err := s.preparePose(name, opts)
	if err != nil {
		return Result{}, err
	}
	return s.submit(exec), nil
}

// SubmitAnimation 异步执行动画，返回执行ID
func (s *Sequencer) SubmitAnimation(name string) (Result, error) {
	exec, err := s.prepareAnimation(name)
	if err != nil {
		return Result{}, err
	}
	return s.submit(exec), nil
}

func (s *Sequencer) submit(exec *execution) Result {
	snapshot := exec.result
	s.enqueue(exec)
	go func() {
		if _, err := s.runQueued(context.Background(), exec); err != nil {
			s.logger.Warn("async execution failed", zap.String("id", exec.result.ID), zap.Error(err))
		}
	}()
	return snapshot
}

// Cancel 协作式取消当前执行（以及排队中的执行），在下一个步骤边界生效
func (s *Sequencer) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	found := false
	if s.current != nil {
		s.current.cancel()
		found = true
	}
	if s.pending != nil {
		s.pending.cancel()
		found = true
	}
	return found
}

// Status 当前执行的实时进度；空闲时返回最近一次执行结果
func (s *Sequencer) Status() (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		return s.current.result, true
	}
	if s.last != nil {
		return *s.last, true
	}
	return Result{}, false
}

func (s *Sequencer) preparePose(name string, opts Options) (*execution, error) {
	r, err := s.catalog.Resolved(name)
	if err != nil {
		return nil, err
	}
	hold := r.Hold
	if hold <= 0 {
		hold = s.defaultHold
	}
	exec := newExecution(KindPose, r.Name, []step{{label: r.Name, resolved: r, hold: hold}})
	exec.noHold = opts.NonBlocking
	return exec, nil
}

func (s *Sequencer) prepareAnimation(name string) (*execution, error) {
	anim, err := s.catalog.Animation(name)
	if err != nil {
		return nil, err
	}
	unrolled := anim.Unroll()
	if len(unrolled) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyAnimation, anim.Name)
	}
	steps := make([]step, 0, len(unrolled))
	for _, st := range unrolled {
		r := st.Resolved()
		if r == nil {
			return nil, fmt.Errorf("animation %s: step %s not resolved", anim.Name, st.Label())
		}
		// 优先级：步骤 > 姿态 > 默认
		hold := st.Hold
		if hold <= 0 {
			hold = r.Hold
		}
		if hold <= 0 {
			hold = s.defaultHold
		}
		steps = append(steps, step{label: st.Label(), resolved: r, hold: hold})
	}
	return newExecution(KindAnimation, anim.Name, steps), nil
}

func newExecution(kind Kind, name string, steps []step) *execution {
	return &execution{
		result: Result{
			ID:         uuid.NewString(),
			Name:       name,
			Kind:       kind,
			State:      StatePending,
			TotalSteps: len(steps),
		},
		steps:    steps,
		cancelCh: make(chan struct{}),
	}
}

func (s *Sequencer) run(ctx context.Context, exec *execution) (Result, error) {
	s.enqueue(exec)
	return s.runQueued(ctx, exec)
}

// enqueue 抢占当前执行与此前排队的执行
func (s *Sequencer) enqueue(exec *execution) {
	s.mu.Lock()
	if s.current != nil {
		s.current.preempted = true
		s.current.cancel()
	}
	if s.pending != nil {
		s.pending.preempted = true
		s.pending.cancel()
	}
	s.pending = exec
	s.mu.Unlock()
}

func (s *Sequencer) runQueued(ctx context.Context, exec *execution) (Result, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	s.mu.Lock()
	if s.pending == exec {
		s.pending = nil
	}
	s.current = exec
	exec.result.State = StateRunning
	exec.result.StartedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("execution started",
		zap.String("id", exec.result.ID),
		zap.String("kind", string(exec.result.Kind)),
		zap.String("name", exec.result.Name),
		zap.Int("steps", exec.result.TotalSteps))
	s.notify(exec)

	err := s.execute(ctx, exec)
	return s.finish(exec, err)
}

func (s *Sequencer) execute(ctx context.Context, exec *execution) error {
	if _, ok := s.store.Snapshot(); !ok {
		return ErrStateUnavailable
	}
	for i, st := range exec.steps {
		// 步骤边界：只在这里观察取消
		if exec.cancelled() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		s.setStep(exec, st.label)
		if err := s.applyStep(ctx, st.resolved); err != nil {
			return err
		}
		s.completeStep(exec, i+1)

		if exec.noHold {
			continue
		}
		if !s.hold(ctx, exec, st.hold) {
			exec.interrupted = true
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return nil
		}
	}
	return nil
}

// applyStep 合并姿态并下发变化的通道；每帧发送成功后才写入状态
// 发送使用脱离调用方取消的 ctx，步骤一旦开始就完整执行
func (s *Sequencer) applyStep(ctx context.Context, r *pose.Resolved) error {
	cur, ok := s.store.Snapshot()
	if !ok {
		return ErrStateUnavailable
	}
	next := cur.Apply(r)
	sendCtx := context.WithoutCancel(ctx)
	for _, cmd := range robotstate.Diff(cur, next, r.Sound) {
		f, err := mecca.Encode(cmd)
		if err != nil {
			return err
		}
		if err := s.sender.SendCommit(sendCtx, f, func() { s.store.Commit(cmd) }); err != nil {
			return err
		}
	}
	return nil
}

// hold 等待保持时间；被取消或 ctx 结束时返回 false
func (s *Sequencer) hold(ctx context.Context, exec *execution, d time.Duration) bool {
	if d <= 0 {
		return !exec.cancelled()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-exec.cancelCh:
		return false
	case <-ctx.Done():
		return false
	}
}

func (s *Sequencer) setStep(exec *execution, label string) {
	s.mu.Lock()
	exec.result.Step = label
	s.mu.Unlock()
}

func (s *Sequencer) completeStep(exec *execution, n int) {
	s.mu.Lock()
	exec.result.LastCompletedStep = n
	s.mu.Unlock()
	if s.metrics != nil && exec.result.Kind == KindAnimation {
		s.metrics.StepsApplied.Inc()
	}
	s.logger.Debug("step applied",
		zap.String("id", exec.result.ID),
		zap.String("step", exec.result.Step),
		zap.Int("index", n),
		zap.Int("total", exec.result.TotalSteps))
	s.notify(exec)
}

func (s *Sequencer) finish(exec *execution, err error) (Result, error) {
	s.mu.Lock()
	switch {
	case err != nil:
		exec.result.State = StateFailed
		exec.result.Error = err.Error()
	case exec.cancelled() && (exec.interrupted || exec.result.LastCompletedStep < exec.result.TotalSteps):
		if exec.preempted {
			exec.result.State = StatePreempted
		} else {
			exec.result.State = StateCancelled
		}
	default:
		exec.result.State = StateCompleted
	}
	exec.result.FinishedAt = time.Now()
	res := exec.result
	s.last = &res
	if s.current == exec {
		s.current = nil
	}
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.ExecutionTotal.WithLabelValues(string(res.Kind), string(res.State)).Inc()
	}
	fields := []zap.Field{
		zap.String("id", res.ID),
		zap.String("name", res.Name),
		zap.String("state", string(res.State)),
		zap.Int("last_completed_step", res.LastCompletedStep),
	}
	if err != nil {
		s.logger.Warn("execution failed", append(fields, zap.Error(err))...)
	} else {
		s.logger.Info("execution finished", fields...)
	}
	s.notify(exec)

	if err != nil {
		return res, &ExecutionError{Name: res.Name, LastCompletedStep: res.LastCompletedStep, Err: err}
	}
	return res, nil
}

func (s *Sequencer) notify(exec *execution) {
	s.mu.Lock()
	res := exec.result
	listeners := append([]func(Result){}, s.listeners...)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(res)
	}
}
