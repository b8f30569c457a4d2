package sequencer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/taoyao-code/meccanoid-ctl/internal/pose"
	"github.com/taoyao-code/meccanoid-ctl/internal/protocol/mecca"
	"github.com/taoyao-code/meccanoid-ctl/internal/robotstate"
)

// Sender 出站帧的唯一入口（链路管理器）
// commit 仅在帧成功写出后、释放写者令牌之前调用
type Sender interface {
	SendCommit(ctx context.Context, f mecca.Frame, commit func()) error
}

// StateStore 机器人状态模型
type StateStore interface {
	Snapshot() (robotstate.State, bool)
	Commit(cmd mecca.Command)
}

// Catalog 已绑定校准表的姿态库
type Catalog interface {
	Resolved(name string) (*pose.Resolved, error)
	Animation(name string) (*pose.Animation, error)
}

var (
	// ErrStateUnavailable 状态模型尚未初始化（从未连接成功）
	ErrStateUnavailable = errors.New("robot state not initialized")
	// ErrEmptyAnimation 动画展开后没有任何步骤
	ErrEmptyAnimation = errors.New("animation has no steps")
)

// ExecutionError 执行失败，携带最后一个完整应用的步骤序号（从1开始，0 表示没有）
type ExecutionError struct {
	Name              string
	LastCompletedStep int
	Err               error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execute %s: failed after step %d: %v", e.Name, e.LastCompletedStep, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Kind 执行类型
type Kind string

const (
	KindPose      Kind = "pose"
	KindAnimation Kind = "animation"
)

// RunState 执行状态
type RunState string

const (
	StatePending   RunState = "pending"
	StateRunning   RunState = "running"
	StateCompleted RunState = "completed"
	StateCancelled RunState = "cancelled"
	StatePreempted RunState = "preempted"
	StateFailed    RunState = "failed"
)

// Done 是否为终止状态
func (s RunState) Done() bool {
	switch s {
	case StateCompleted, StateCancelled, StatePreempted, StateFailed:
		return true
	}
	return false
}

// Options 执行选项
type Options struct {
	// NonBlocking 帧发出后立即返回，不等待保持时间
	NonBlocking bool
}

// Result 一次执行的进度或结果
type Result struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Kind              Kind      `json:"kind"`
	State             RunState  `json:"state"`
	Step              string    `json:"step,omitempty"`
	TotalSteps        int       `json:"total_steps"`
	LastCompletedStep int       `json:"last_completed_step"`
	Error             string    `json:"error,omitempty"`
	StartedAt         time.Time `json:"started_at"`
	FinishedAt        time.Time `json:"finished_at,omitempty"`
}
