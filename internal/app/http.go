package app

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/meccanoid-ctl/internal/api"
	"github.com/taoyao-code/meccanoid-ctl/internal/api/middleware"
	cfgpkg "github.com/taoyao-code/meccanoid-ctl/internal/config"
	"github.com/taoyao-code/meccanoid-ctl/internal/health"
	"github.com/taoyao-code/meccanoid-ctl/internal/httpserver"
	"github.com/taoyao-code/meccanoid-ctl/internal/link"
	"github.com/taoyao-code/meccanoid-ctl/internal/robot"
)

// NewHTTPServer 根据配置创建 HTTP 服务器，/readyz 以链路就绪为准
func NewHTTPServer(cfg *cfgpkg.Config, metricsHandler http.Handler, session *robot.Session, logger *zap.Logger) *httpserver.Server {
	if !cfg.Metrics.Enable {
		metricsHandler = nil
	}
	readyFn := func() bool { return session.LinkState() == link.StateReady }
	authCfg := middleware.AuthConfig{
		APIKeys: cfg.API.Auth.APIKeys,
		Enabled: cfg.API.Auth.Enabled,
	}
	agg := NewHealthAggregator(session)
	return httpserver.New(cfg.HTTP, cfg.Metrics.Path, metricsHandler, readyFn, logger.Named("http"),
		func(r *gin.Engine) {
			api.RegisterRoutes(r, session, authCfg, logger.Named("api"))
			health.RegisterHTTPRoutes(r, agg)
		})
}

// NewHealthAggregator 链路与事件推送检查
func NewHealthAggregator(session *robot.Session) *health.Aggregator {
	return health.NewAggregator(
		health.NewLinkChecker(session),
		health.NewEventsChecker(session.Events()),
	)
}
