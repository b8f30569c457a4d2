package main

import (
	"flag"

	"go.uber.org/zap"

	"github.com/taoyao-code/meccanoid-ctl/internal/app/bootstrap"
	cfgpkg "github.com/taoyao-code/meccanoid-ctl/internal/config"
	"github.com/taoyao-code/meccanoid-ctl/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径（默认读取 MECCA_CONFIG 或 configs/example.yaml）")
	flag.Parse()

	// 1) 加载配置
	cfg, err := cfgpkg.Load(*configPath)
	if err != nil {
		panic(err)
	}

	// 2) 初始化日志
	logger, err := logging.InitLogger(cfg.Logging)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	// 3) 启动
	if err := bootstrap.Run(cfg, zap.L()); err != nil {
		zap.L().Fatal("server exited", zap.Error(err))
	}
}
