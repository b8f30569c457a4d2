// Package ble 基于 tinygo bluetooth 的无线链路实现
// 设备只暴露一个可写特征值（ffe5/ffe9），所有帧以无应答写入发送
package ble

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"
	"tinygo.org/x/bluetooth"

	"github.com/taoyao-code/meccanoid-ctl/internal/link"
	"github.com/taoyao-code/meccanoid-ctl/internal/protocol/mecca"
)

// ErrUnknownDevice 连接的地址不在最近一次扫描结果中
var ErrUnknownDevice = errors.New("device not seen in scan")

// Transport BLE 传输
type Transport struct {
	adapter *bluetooth.Adapter
	logger  *zap.Logger

	service bluetooth.UUID
	char    bluetooth.UUID

	enableOnce sync.Once
	enableErr  error

	mu   sync.Mutex
	seen map[string]bluetooth.Address
}

// New 使用系统默认适配器
func New(logger *zap.Logger) (*Transport, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	service, err := bluetooth.ParseUUID(mecca.ServiceUUID)
	if err != nil {
		return nil, fmt.Errorf("parse service uuid: %w", err)
	}
	char, err := bluetooth.ParseUUID(mecca.CharacteristicUUID)
	if err != nil {
		return nil, fmt.Errorf("parse characteristic uuid: %w", err)
	}
	return &Transport{
		adapter: bluetooth.DefaultAdapter,
		logger:  logger,
		service: service,
		char:    char,
		seen:    make(map[string]bluetooth.Address),
	}, nil
}

func (t *Transport) enable() error {
	t.enableOnce.Do(func() {
		t.enableErr = t.adapter.Enable()
	})
	return t.enableErr
}

// Scan 扫描广播，found 返回 true 或 ctx 结束时停止
func (t *Transport) Scan(ctx context.Context, found func(link.Device) bool) error {
	if err := t.enable(); err != nil {
		return fmt.Errorf("enable adapter: %w", err)
	}

	match := firstMatch(found)
	done := make(chan error, 1)
	go func() {
		done <- t.adapter.Scan(func(a *bluetooth.Adapter, r bluetooth.ScanResult) {
			dev := link.Device{
				Address: r.Address.String(),
				Name:    r.LocalName(),
				RSSI:    r.RSSI,
			}
			t.mu.Lock()
			t.seen[dev.Address] = r.Address
			t.mu.Unlock()
			if match(dev) {
				if err := a.StopScan(); err != nil {
					t.logger.Debug("stop scan", zap.Error(err))
				}
			}
		})
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if err := t.adapter.StopScan(); err != nil {
			t.logger.Debug("stop scan", zap.Error(err))
		}
		<-done
		return ctx.Err()
	}
}

// firstMatch 适配器在 StopScan 生效前仍可能投递结果，命中之后的结果不再交给 found
func firstMatch(found func(link.Device) bool) func(link.Device) bool {
	var (
		mu   sync.Mutex
		done bool
	)
	return func(d link.Device) bool {
		mu.Lock()
		defer mu.Unlock()
		if done {
			return false
		}
		done = found(d)
		return done
	}
}

// Connect 连接设备并定位写特征值
func (t *Transport) Connect(ctx context.Context, dev link.Device) (link.Conn, error) {
	if err := t.enable(); err != nil {
		return nil, fmt.Errorf("enable adapter: %w", err)
	}
	t.mu.Lock()
	addr, ok := t.seen[dev.Address]
	t.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, dev.Address)
	}

	type result struct {
		conn *conn
		err  error
	}
	done := make(chan result, 1)
	go func() {
		c, err := t.open(addr)
		done <- result{c, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		return r.conn, nil
	case <-ctx.Done():
		// 连接仍在进行，完成后立即断开
		go func() {
			if r := <-done; r.conn != nil {
				_ = r.conn.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

func (t *Transport) open(addr bluetooth.Address) (*conn, error) {
	device, err := t.adapter.Connect(addr, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", addr.String(), err)
	}
	services, err := device.DiscoverServices([]bluetooth.UUID{t.service})
	if err != nil || len(services) == 0 {
		_ = device.Disconnect()
		return nil, fmt.Errorf("discover service %s: %w", t.service.String(), orMissing(err))
	}
	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{t.char})
	if err != nil || len(chars) == 0 {
		_ = device.Disconnect()
		return nil, fmt.Errorf("discover characteristic %s: %w", t.char.String(), orMissing(err))
	}
	t.logger.Info("ble connected", zap.String("address", addr.String()))
	return &conn{device: device, char: chars[0]}, nil
}

func orMissing(err error) error {
	if err != nil {
		return err
	}
	return errors.New("not found")
}

type conn struct {
	device bluetooth.Device
	char   bluetooth.DeviceCharacteristic
}

func (c *conn) Write(frame []byte) error {
	n, err := c.char.WriteWithoutResponse(frame)
	if err != nil {
		return err
	}
	if n != len(frame) {
		return fmt.Errorf("%w: %d/%d", io.ErrShortWrite, n, len(frame))
	}
	return nil
}

func (c *conn) Close() error {
	return c.device.Disconnect()
}
