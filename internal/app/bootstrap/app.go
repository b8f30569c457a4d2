package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/meccanoid-ctl/internal/app"
	cfgpkg "github.com/taoyao-code/meccanoid-ctl/internal/config"
	"github.com/taoyao-code/meccanoid-ctl/internal/metrics"
)

// Run 统一启动流程
// 链路连接失败不影响 HTTP 服务，可稍后通过 /api/robot/connect 重试
func Run(cfg *cfgpkg.Config, log *zap.Logger) error {
	log.Info("starting meccanoid controller",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("transport", cfg.Robot.Transport))

	// ========== 阶段1: 初始化基础组件 ==========
	reg, appm := app.NewMetrics()
	metricsHandler := metrics.Handler(reg)

	// ========== 阶段2: 校准表、姿态库与会话（配置错误直接返回）==========
	session, err := app.NewSession(cfg, log, appm)
	if err != nil {
		log.Error("session initialization failed", zap.Error(err))
		return err
	}
	log.Info("session initialized", zap.String("session", session.ID))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ========== 阶段3: 启动HTTP服务（非阻塞）==========
	httpSrv := app.NewHTTPServer(cfg, metricsHandler, session, log)
	go func() {
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", zap.Error(err))
		}
	}()
	log.Info("http server started", zap.String("addr", cfg.HTTP.Addr))

	// ========== 阶段4: 连接机器人 ==========
	if cfg.Robot.AutoConnect {
		go func() {
			if err := session.Connect(ctx); err != nil {
				log.Warn("auto connect failed, waiting for explicit connect", zap.Error(err))
				return
			}
			log.Info("robot connected", zap.String("address", session.Snapshot().Device.Address))
		}()
	}

	// 看门狗：按间隔重发完整状态
	go session.Run(ctx)

	// ========== 阶段5: 等待关闭信号 ==========
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("received shutdown signal, gracefully shutting down...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = httpSrv.Shutdown(shutdownCtx)
	log.Info("http server stopped")

	if err := session.Close(shutdownCtx); err != nil {
		log.Warn("close session", zap.Error(err))
	}
	log.Info("robot link closed")

	log.Info("shutdown complete")
	return nil
}
