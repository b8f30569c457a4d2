package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry 创建自定义 Prometheus Registry，并注册常用采集器
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler 返回 Prometheus 指标 HTTP 处理器
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// AppMetrics 链路与动画指标
type AppMetrics struct {
	FramesSent      *prometheus.CounterVec // labels: cmd
	SendErrors      *prometheus.CounterVec // labels: cmd
	ReconnectTotal  *prometheus.CounterVec // labels: result=ok|failed|exhausted
	LinkState       prometheus.Gauge       // 0=disconnected ... 4=ready
	WatchdogRefresh prometheus.Counter
	ExecutionTotal  *prometheus.CounterVec // labels: kind=pose|animation, result
	StepsApplied    prometheus.Counter
}

// NewAppMetrics 注册并返回业务指标
func NewAppMetrics(reg prometheus.Registerer) *AppMetrics {
	m := &AppMetrics{
		FramesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mecca_frames_sent_total",
			Help: "Frames written to the command characteristic.",
		}, []string{"cmd"}),
		SendErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mecca_send_errors_total",
			Help: "Frame writes that failed or timed out.",
		}, []string{"cmd"}),
		ReconnectTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mecca_reconnect_total",
			Help: "Automatic reconnect attempts by result.",
		}, []string{"result"}),
		LinkState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mecca_link_state",
			Help: "Link state: 0=disconnected 1=scanning 2=connecting 3=handshaking 4=ready.",
		}),
		WatchdogRefresh: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mecca_watchdog_refresh_total",
			Help: "Full-state refreshes sent by the watchdog.",
		}),
		ExecutionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mecca_execution_total",
			Help: "Pose and animation executions by result.",
		}, []string{"kind", "result"}),
		StepsApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mecca_animation_steps_total",
			Help: "Animation steps fully applied.",
		}),
	}
	reg.MustRegister(m.FramesSent, m.SendErrors, m.ReconnectTotal, m.LinkState, m.WatchdogRefresh, m.ExecutionTotal, m.StepsApplied)
	return m
}
