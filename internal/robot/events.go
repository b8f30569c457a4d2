package robot

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/taoyao-code/meccanoid-ctl/internal/sequencer"
)

// 事件类型
const (
	EventLinkState = "link_state"
	EventExecution = "execution"
	EventCommand   = "command"
)

// Event 推送给外部展示层的事件
type Event struct {
	Type      string            `json:"type"`
	Time      time.Time         `json:"time"`
	From      string            `json:"from,omitempty"`
	To        string            `json:"to,omitempty"`
	Execution *sequencer.Result `json:"execution,omitempty"`
	Command   string            `json:"command,omitempty"`
}

// EventBus 进程内扇出；订阅者处理不及时时丢弃事件，不阻塞链路与调度
type EventBus struct {
	mu      sync.RWMutex
	subs    map[int]chan Event
	nextID  int
	dropped atomic.Int64
}

// NewEventBus 创建事件总线
func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[int]chan Event)}
}

// Subscribe 订阅事件，返回只读通道与取消函数
func (b *EventBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 32
	}
	ch := make(chan Event, buffer)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Publish 非阻塞投递
func (b *EventBus) Publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped 因订阅者积压而丢弃的事件数
func (b *EventBus) Dropped() int64 { return b.dropped.Load() }

// Subscribers 当前订阅者数量
func (b *EventBus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
