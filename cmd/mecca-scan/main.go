package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/meccanoid-ctl/internal/app"
	cfgpkg "github.com/taoyao-code/meccanoid-ctl/internal/config"
	"github.com/taoyao-code/meccanoid-ctl/internal/link"
	"github.com/taoyao-code/meccanoid-ctl/internal/logging"
)

func main() {
	var (
		configPath = flag.String("config", "", "配置文件路径")
		transport  = flag.String("transport", "", "覆盖 robot.transport（ble|serial|sim）")
		timeout    = flag.Duration("timeout", 5*time.Second, "扫描时长")
		all        = flag.Bool("all", false, "列出所有设备，不按 robot.namePrefix 过滤")
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
	logger := logging.Console(*logLevel)
	defer func() { _ = logger.Sync() }()

	t, err := app.NewTransport(cfg, logger)
	if err != nil {
		logger.Fatal("create transport", zap.Error(err))
	}

	filter := app.LinkConfig(cfg).Filter
	filter.Address = ""
	if *all {
		filter = link.Filter{}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	var (
		mu   sync.Mutex
		seen = make(map[string]link.Device)
	)
	err = t.Scan(ctx, func(d link.Device) bool {
		if !filter.Match(d) {
			return false
		}
		mu.Lock()
		prev, ok := seen[d.Address]
		if !ok || d.RSSI > prev.RSSI {
			seen[d.Address] = d
		}
		mu.Unlock()
		return false
	})
	if err != nil && ctx.Err() == nil {
		logger.Fatal("scan", zap.Error(err))
	}

	devices := make([]link.Device, 0, len(seen))
	for _, d := range seen {
		devices = append(devices, d)
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].RSSI > devices[j].RSSI })

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ADDRESS\tNAME\tRSSI")
	for _, d := range devices {
		fmt.Fprintf(w, "%s\t%s\t%d\n", d.Address, d.Name, d.RSSI)
	}
	_ = w.Flush()
	if len(devices) == 0 {
		fmt.Fprintf(os.Stderr, "no devices found within %s\n", *timeout)
		os.Exit(2)
	}
}
