// Package serialport 串口桥接链路：BLE-UART 透传模块或台架测试夹具
// 每帧20字节原样写入串口，由桥接端转发到设备写特征值
package serialport

import (
	"context"
	"fmt"
	"io"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"github.com/taoyao-code/meccanoid-ctl/internal/link"
)

// DefaultBaudRate 常见 BLE-UART 透传模块默认波特率
const DefaultBaudRate = 9600

// Config 串口参数
type Config struct {
	Port     string // 为空时扫描全部串口
	BaudRate int
}

// Transport 串口传输
type Transport struct {
	cfg    Config
	logger *zap.Logger

	// 便于测试替换
	listPorts func() ([]string, error)
	openPort  func(name string, mode *serial.Mode) (serial.Port, error)
}

// New 创建串口传输
func New(cfg Config, logger *zap.Logger) *Transport {
	if cfg.BaudRate <= 0 {
		cfg.BaudRate = DefaultBaudRate
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transport{
		cfg:       cfg,
		logger:    logger,
		listPorts: serial.GetPortsList,
		openPort:  serial.Open,
	}
}

// Scan 以串口路径作为设备地址上报
func (t *Transport) Scan(ctx context.Context, found func(link.Device) bool) error {
	ports, err := t.listPorts()
	if err != nil {
		return fmt.Errorf("list serial ports: %w", err)
	}
	for _, p := range ports {
		if t.cfg.Port != "" && p != t.cfg.Port {
			continue
		}
		if found(link.Device{Address: p, Name: p}) {
			return nil
		}
	}
	<-ctx.Done()
	return ctx.Err()
}

// Connect 打开串口
func (t *Transport) Connect(ctx context.Context, dev link.Device) (link.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mode := &serial.Mode{
		BaudRate: t.cfg.BaudRate,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	}
	port, err := t.openPort(dev.Address, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dev.Address, err)
	}
	t.logger.Info("serial opened", zap.String("port", dev.Address), zap.Int("baud", t.cfg.BaudRate))
	return &conn{port: port}, nil
}

type conn struct {
	port serial.Port
}

func (c *conn) Write(frame []byte) error {
	for written := 0; written < len(frame); {
		n, err := c.port.Write(frame[written:])
		if err != nil {
			return err
		}
		if n <= 0 {
			return io.ErrShortWrite
		}
		written += n
	}
	return c.port.Drain()
}

func (c *conn) Close() error {
	return c.port.Close()
}
