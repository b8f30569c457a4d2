package health

import (
	"context"
	"sync"
)

// EventSource 事件总线统计
type EventSource interface {
	Dropped() int64
	Subscribers() int
}

// EventsChecker 两次检查之间出现丢弃事件时降级（订阅方消费过慢）
type EventsChecker struct {
	source EventSource

	mu       sync.Mutex
	lastSeen int64
}

// NewEventsChecker 创建事件推送检查器
func NewEventsChecker(source EventSource) *EventsChecker {
	return &EventsChecker{source: source, lastSeen: source.Dropped()}
}

func (c *EventsChecker) Name() string { return "events" }

func (c *EventsChecker) Check(ctx context.Context) CheckResult {
	dropped := c.source.Dropped()
	c.mu.Lock()
	delta := dropped - c.lastSeen
	c.lastSeen = dropped
	c.mu.Unlock()

	res := CheckResult{
		Status: StatusHealthy,
		Details: map[string]interface{}{
			"subscribers":   c.source.Subscribers(),
			"dropped_total": dropped,
		},
	}
	if delta > 0 {
		res.Status = StatusDegraded
		res.Message = "slow event subscribers"
		res.Details["dropped_since_last_check"] = delta
	}
	return res
}
