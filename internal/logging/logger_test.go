package logging

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfgpkg "github.com/taoyao-code/meccanoid-ctl/internal/config"
)

func TestInitLogger(t *testing.T) {
	tests := []struct {
		name string
		cfg  cfgpkg.LoggingConfig
	}{
		{name: "仅控制台", cfg: cfgpkg.LoggingConfig{Level: "debug", Format: "console"}},
		{name: "控制台加文件", cfg: cfgpkg.LoggingConfig{
			Level:  "warn",
			Format: "json",
			File:   cfgpkg.LumberjackConfig{Filename: filepath.Join(t.TempDir(), "app.log"), MaxSizeMB: 1},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := InitLogger(tt.cfg)
			require.NoError(t, err)
			require.NotNil(t, logger)
			logger.Info("hello")
		})
	}
}

func TestConsoleLevel(t *testing.T) {
	assert.True(t, Console("debug").Core().Enabled(-1))
	assert.False(t, Console("bogus").Core().Enabled(0), "未知级别回退为 warn")
}

func TestInitLoggerCaller(t *testing.T) {
	t.Run("caller 指向实际调用处", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "caller.log")
		logger, err := InitLogger(cfgpkg.LoggingConfig{
			Level:  "info",
			Format: "json",
			File:   cfgpkg.LumberjackConfig{Filename: path, MaxSizeMB: 1},
		})
		require.NoError(t, err)
		logger.Info("where")
		_ = logger.Sync()

		f, err := os.Open(path)
		require.NoError(t, err)
		defer f.Close()
		sc := bufio.NewScanner(f)
		require.True(t, sc.Scan())

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(sc.Bytes(), &entry))
		caller, _ := entry["caller"].(string)
		assert.True(t, strings.HasPrefix(caller, "logging/logger_test.go:"), "caller=%q", caller)
	})
}
