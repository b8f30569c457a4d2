package robotstate

import (
	"sync"

	"github.com/taoyao-code/meccanoid-ctl/internal/protocol/mecca"
)

// Model 内存中的权威状态，随进程结束而丢弃
type Model struct {
	mu     sync.RWMutex
	state  State
	seeded bool
}

// NewModel 创建未初始化的模型，连接就绪后再 Seed
func NewModel() *Model {
	return &Model{}
}

// Seed 以给定状态（通常是 Neutral）初始化
func (m *Model) Seed(s State) {
	m.mu.Lock()
	m.state = s
	m.seeded = true
	m.mu.Unlock()
}

// Reset 丢弃状态，下次连接重新以中位初始化
func (m *Model) Reset() {
	m.mu.Lock()
	m.state = State{}
	m.seeded = false
	m.mu.Unlock()
}

// Snapshot 只读快照；ok=false 表示尚未初始化
func (m *Model) Snapshot() (State, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.state
	if s.LastSound != nil {
		v := *s.LastSound
		s.LastSound = &v
	}
	return s, m.seeded
}

// Commit 记录一条已成功下发的命令
// 只写该命令覆盖的通道，并发的单命令调用与动画不会互相覆盖
func (m *Model) Commit(cmd mecca.Command) {
	m.mu.Lock()
	m.state = m.state.Commit(cmd)
	m.mu.Unlock()
}
