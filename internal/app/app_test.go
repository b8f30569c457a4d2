package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/meccanoid-ctl/internal/config"
	"github.com/taoyao-code/meccanoid-ctl/internal/link"
	"github.com/taoyao-code/meccanoid-ctl/internal/metrics"
)

func testConfig() *cfgpkg.Config {
	cfg := &cfgpkg.Config{}
	cfg.Robot.Transport = cfgpkg.TransportSim
	cfg.Robot.NamePrefix = "MECCANOID"
	cfg.Link.ScanTimeout = 200 * time.Millisecond
	cfg.Link.ConnectAttempts = 1
	cfg.Link.FrameInterval = time.Millisecond
	cfg.Link.ReconnectBudget = 2
	cfg.Link.Backoff.Initial = 10 * time.Millisecond
	cfg.Link.Backoff.Max = 50 * time.Millisecond
	cfg.Link.Backoff.Multiplier = 2
	cfg.Sequencer.DefaultHold = time.Millisecond
	cfg.Metrics.Enable = true
	cfg.Metrics.Path = "/metrics"
	return cfg
}

func TestLinkConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Robot.Address = "5C:F8:21:EF:ED:D1"
	lc := LinkConfig(cfg)
	assert.Equal(t, link.Filter{Address: "5C:F8:21:EF:ED:D1", NamePrefix: "MECCANOID"}, lc.Filter)
	assert.Equal(t, 2, lc.ReconnectBudget)
	assert.Equal(t, 10*time.Millisecond, lc.Backoff.InitialDelay)

	t.Run("串口以端口为地址", func(t *testing.T) {
		cfg.Robot.Transport = cfgpkg.TransportSerial
		cfg.Robot.Serial.Port = "/dev/ttyUSB0"
		assert.Equal(t, link.Filter{Address: "/dev/ttyUSB0"}, LinkConfig(cfg).Filter)
	})
}

func TestNewTransport(t *testing.T) {
	cfg := testConfig()
	tr, err := NewTransport(cfg, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &link.SimTransport{}, tr)

	cfg.Robot.Transport = "carrier-pigeon"
	_, err = NewTransport(cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestNewSession_LoadsAndConnects(t *testing.T) {
	cfg := testConfig()
	_, appm := NewMetrics()
	s, err := NewSession(cfg, zap.NewNop(), appm)
	require.NoError(t, err)
	assert.Contains(t, s.Library().PoseNames(), "Neutral")

	require.NoError(t, s.Connect(context.Background()))
	assert.Equal(t, link.StateReady, s.LinkState())

	t.Run("缺失的校准文件", func(t *testing.T) {
		cfg := testConfig()
		cfg.Calibration.Path = "does-not-exist.yaml"
		_, err := NewSession(cfg, zap.NewNop(), nil)
		assert.Error(t, err)
	})
}

func TestNewHTTPServer_Probes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testConfig()
	reg, appm := NewMetrics()
	s, err := NewSession(cfg, zap.NewNop(), appm)
	require.NoError(t, err)
	h := NewHTTPServer(cfg, metrics.Handler(reg), s, zap.NewNop()).Handler()

	get := func(path string) int {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		return rr.Code
	}
	assert.Equal(t, http.StatusServiceUnavailable, get("/readyz"))
	assert.Equal(t, http.StatusServiceUnavailable, get("/health"))

	require.NoError(t, s.Connect(context.Background()))
	assert.Equal(t, http.StatusOK, get("/readyz"))
	assert.Equal(t, http.StatusOK, get("/health"))
	assert.Equal(t, http.StatusOK, get("/metrics"))
	assert.Equal(t, http.StatusOK, get("/api/poses"))
}
