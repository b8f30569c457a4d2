package health

import (
	"context"

	"github.com/taoyao-code/meccanoid-ctl/internal/link"
)

// LinkSource 提供链路状态
type LinkSource interface {
	LinkState() link.State
}

// LinkChecker 链路检查：Ready 健康，建立中降级，Disconnected 不健康
type LinkChecker struct {
	source LinkSource
}

// NewLinkChecker 创建链路检查器
func NewLinkChecker(source LinkSource) *LinkChecker {
	return &LinkChecker{source: source}
}

func (c *LinkChecker) Name() string { return "link" }

func (c *LinkChecker) Check(ctx context.Context) CheckResult {
	st := c.source.LinkState()
	res := CheckResult{Details: map[string]interface{}{"state": st.String()}}
	switch st {
	case link.StateReady:
		res.Status = StatusHealthy
	case link.StateDisconnected:
		res.Status = StatusUnhealthy
		res.Message = "robot not connected"
	default:
		res.Status = StatusDegraded
		res.Message = "link is being established"
	}
	return res
}
