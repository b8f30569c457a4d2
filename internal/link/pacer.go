package link

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Pacer 帧间最小间隔控制（突发容量为1的令牌桶）
type Pacer struct {
	limiter     *rate.Limiter
	interval    time.Duration
	passedCount atomic.Int64
	abortCount  atomic.Int64
}

// NewPacer 创建帧间隔控制器；interval<=0 表示不限速
func NewPacer(interval time.Duration) *Pacer {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Pacer{
		limiter:  rate.NewLimiter(limit, 1),
		interval: interval,
	}
}

// Wait 阻塞直到允许发送下一帧
func (p *Pacer) Wait(ctx context.Context) error {
	if err := p.limiter.Wait(ctx); err != nil {
		p.abortCount.Add(1)
		return err
	}
	p.passedCount.Add(1)
	return nil
}

// Stats 获取统计信息
func (p *Pacer) Stats() PacerStats {
	return PacerStats{
		Interval: p.interval,
		Passed:   p.passedCount.Load(),
		Aborted:  p.abortCount.Load(),
	}
}

// PacerStats 帧间隔统计
type PacerStats struct {
	Interval time.Duration `json:"interval"`
	Passed   int64         `json:"passed"`
	Aborted  int64         `json:"aborted"`
}
