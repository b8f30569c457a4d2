package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/meccanoid-ctl/internal/api/middleware"
	"github.com/taoyao-code/meccanoid-ctl/internal/robot"
)

// RegisterRoutes 注册机器人控制路由与事件推送
func RegisterRoutes(r *gin.Engine, session *robot.Session, authCfg middleware.AuthConfig, logger *zap.Logger) {
	if r == nil || session == nil {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	handler := NewRobotHandler(session, logger)
	events := NewEventsHandler(session.Events(), logger)

	r.Use(middleware.CORS())
	auth := middleware.APIKeyAuth(authCfg, logger)
	if authCfg.Enabled {
		logger.Info("api authentication enabled", zap.Int("api_keys_count", len(authCfg.APIKeys)))
	} else {
		logger.Warn("api authentication disabled - only for development!")
	}

	api := r.Group("/api", auth)
	api.GET("/poses", handler.ListPoses)
	api.GET("/animations", handler.ListAnimations)

	rb := api.Group("/robot")
	rb.GET("/state", handler.GetState)
	rb.GET("/status", handler.GetStatus)
	rb.POST("/poses/:name", handler.ExecutePose)
	rb.POST("/animations/:name", handler.ExecuteAnimation)
	rb.POST("/cancel", handler.Cancel)
	rb.POST("/eyes", handler.SetEyes)
	rb.POST("/chest", handler.SetChest)
	rb.POST("/servo-lights", handler.SetServoLight)
	rb.POST("/servos", handler.SetServos)
	rb.POST("/sound", handler.PlaySound)
	rb.POST("/wheels", handler.MoveWheels)
	rb.POST("/connect", handler.Connect)
	rb.POST("/disconnect", handler.Disconnect)

	r.GET("/ws/events", auth, events.Stream)

	logger.Info("robot routes registered", zap.Int("endpoints", 16))
}
