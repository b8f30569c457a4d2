package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/meccanoid-ctl/internal/app"
	cfgpkg "github.com/taoyao-code/meccanoid-ctl/internal/config"
	"github.com/taoyao-code/meccanoid-ctl/internal/logging"
	"github.com/taoyao-code/meccanoid-ctl/internal/repl"
)

func main() {
	var (
		configPath = flag.String("config", "", "配置文件路径")
		transport  = flag.String("transport", "", "覆盖 robot.transport（ble|serial|sim）")
		address    = flag.String("address", "", "覆盖 robot.address")
		logLevel   = flag.String("log-level", "warn", "日志级别")
	)
	flag.Parse()

	cfg, err := cfgpkg.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	if *transport != "" {
		cfg.Robot.Transport = *transport
	}
	if *address != "" {
		cfg.Robot.Address = *address
	}
	logger := logging.Console(*logLevel)
	defer func() { _ = logger.Sync() }()

	session, err := app.NewSession(cfg, logger, nil)
	if err != nil {
		logger.Fatal("create session", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("connecting via %s...\n", cfg.Robot.Transport)
	if err := session.Connect(ctx); err != nil {
		// 连接失败不退出，可在命令行中 connect 重试
		fmt.Fprintln(os.Stderr, "connect failed:", err)
	} else {
		fmt.Println("connected:", session.Snapshot().Device.Address)
	}
	go session.Run(ctx)

	err = repl.New(session, os.Stdout, logger).Run(ctx, os.Stdin)

	closeCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = session.Close(closeCtx)
	if err != nil && ctx.Err() == nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
