package app

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/taoyao-code/meccanoid-ctl/internal/calibration"
	cfgpkg "github.com/taoyao-code/meccanoid-ctl/internal/config"
	"github.com/taoyao-code/meccanoid-ctl/internal/link"
	"github.com/taoyao-code/meccanoid-ctl/internal/link/ble"
	"github.com/taoyao-code/meccanoid-ctl/internal/link/serialport"
	"github.com/taoyao-code/meccanoid-ctl/internal/metrics"
	"github.com/taoyao-code/meccanoid-ctl/internal/pose"
	"github.com/taoyao-code/meccanoid-ctl/internal/robot"
)

// LinkConfig 配置到链路参数的映射
func LinkConfig(cfg *cfgpkg.Config) link.Config {
	filter := link.Filter{Address: cfg.Robot.Address, NamePrefix: cfg.Robot.NamePrefix}
	if cfg.Robot.Transport == cfgpkg.TransportSerial && cfg.Robot.Serial.Port != "" {
		filter = link.Filter{Address: cfg.Robot.Serial.Port}
	}
	l := cfg.Link
	return link.Config{
		Filter:           filter,
		ScanTimeout:      l.ScanTimeout,
		ConnectTimeout:   l.ConnectTimeout,
		ConnectAttempts:  l.ConnectAttempts,
		HandshakeTimeout: l.HandshakeTimeout,
		HandshakeSettle:  l.HandshakeSettle,
		FrameInterval:    l.FrameInterval,
		SendTimeout:      l.SendTimeout,
		ReconnectBudget:  l.ReconnectBudget,
		Backoff: link.BackoffConfig{
			InitialDelay: l.Backoff.Initial,
			MaxDelay:     l.Backoff.Max,
			Multiplier:   l.Backoff.Multiplier,
			Jitter:       l.Backoff.Jitter,
		},
		WatchdogInterval: l.WatchdogInterval,
	}
}

// NewTransport 按 robot.transport 创建传输
func NewTransport(cfg *cfgpkg.Config, logger *zap.Logger) (link.Transport, error) {
	switch cfg.Robot.Transport {
	case cfgpkg.TransportBLE:
		return ble.New(logger.Named("ble"))
	case cfgpkg.TransportSerial:
		return serialport.New(serialport.Config{
			Port:     cfg.Robot.Serial.Port,
			BaudRate: cfg.Robot.Serial.BaudRate,
		}, logger.Named("serial")), nil
	case cfgpkg.TransportSim:
		var devs []link.Device
		if cfg.Robot.Address != "" {
			devs = append(devs, link.Device{Address: cfg.Robot.Address, Name: cfg.Robot.NamePrefix + "-SIM"})
		}
		return link.NewSimTransport(logger.Named("sim"), devs...), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Robot.Transport)
	}
}

// LoadCalibration 加载本机校准表；未配置路径时使用默认表
func LoadCalibration(cfg *cfgpkg.Config, logger *zap.Logger) (*calibration.Table, error) {
	if cfg.Calibration.Path == "" {
		logger.Warn("calibration.path empty, using default table (no inversion)")
		return calibration.Default(), nil
	}
	table, err := calibration.Load(cfg.Calibration.Path)
	if err != nil {
		return nil, err
	}
	logger.Info("calibration loaded", zap.String("path", cfg.Calibration.Path), zap.String("unit", table.Unit()), zap.Ints("servos", table.IDs()))
	return table, nil
}

// LoadLibrary 内置姿态目录叠加外部文件，并绑定校准表
// 引用未配置舵机的姿态在这里失败，而不是在发送时
func LoadLibrary(cfg *cfgpkg.Config, table *calibration.Table, logger *zap.Logger) (*pose.Library, error) {
	var (
		lib *pose.Library
		err error
	)
	if cfg.Poses.Path != "" {
		lib, err = pose.LoadFile(cfg.Poses.Path)
	} else {
		lib, err = pose.Builtin()
	}
	if err != nil {
		return nil, err
	}
	if err := lib.Bind(table); err != nil {
		return nil, err
	}
	logger.Info("pose library loaded",
		zap.String("path", cfg.Poses.Path),
		zap.Int("poses", len(lib.PoseNames())),
		zap.Int("animations", len(lib.AnimationNames())))
	return lib, nil
}

// NewSession 组装机器人会话
func NewSession(cfg *cfgpkg.Config, logger *zap.Logger, m *metrics.AppMetrics) (*robot.Session, error) {
	table, err := LoadCalibration(cfg, logger)
	if err != nil {
		return nil, err
	}
	lib, err := LoadLibrary(cfg, table, logger)
	if err != nil {
		return nil, err
	}
	transport, err := NewTransport(cfg, logger)
	if err != nil {
		return nil, err
	}
	return robot.NewSession(robot.Options{
		Link:        LinkConfig(cfg),
		DefaultHold: cfg.Sequencer.DefaultHold,
	}, transport, table, lib, logger, m)
}
