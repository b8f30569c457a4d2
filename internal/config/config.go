package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AppConfig 应用基础信息
type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

// HTTPConfig HTTP 服务配置
type HTTPConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
}

// LumberjackConfig 日志滚动（lumberjack）配置
type LumberjackConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAge"`
	Compress   bool   `mapstructure:"compress"`
}

// LoggingConfig 日志级别与输出配置
type LoggingConfig struct {
	Level  string           `mapstructure:"level"`
	Format string           `mapstructure:"format"`
	File   LumberjackConfig `mapstructure:"file"`
}

// MetricsConfig Prometheus 指标暴露配置
type MetricsConfig struct {
	Enable bool   `mapstructure:"enable"`
	Path   string `mapstructure:"path"`
}

// AuthConfig 控制接口鉴权
type AuthConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	APIKeys []string `mapstructure:"apiKeys"`
}

// APIConfig 控制接口配置
type APIConfig struct {
	Auth AuthConfig `mapstructure:"auth"`
}

// SerialConfig 串口桥接参数
type SerialConfig struct {
	Port     string `mapstructure:"port"`
	BaudRate int    `mapstructure:"baudRate"`
}

// 传输类型
const (
	TransportBLE    = "ble"
	TransportSerial = "serial"
	TransportSim    = "sim"
)

// RobotConfig 目标设备
type RobotConfig struct {
	Transport  string       `mapstructure:"transport"`
	Address    string       `mapstructure:"address"`
	NamePrefix string       `mapstructure:"namePrefix"`
	Serial     SerialConfig `mapstructure:"serial"`
	// AutoConnect 启动时立即连接
	AutoConnect bool `mapstructure:"autoConnect"`
}

// BackoffConfig 重连退避
type BackoffConfig struct {
	Initial    time.Duration `mapstructure:"initial"`
	Max        time.Duration `mapstructure:"max"`
	Multiplier float64       `mapstructure:"multiplier"`
	Jitter     bool          `mapstructure:"jitter"`
}

// LinkConfig 链路时序参数
type LinkConfig struct {
	ScanTimeout      time.Duration `mapstructure:"scanTimeout"`
	ConnectTimeout   time.Duration `mapstructure:"connectTimeout"`
	ConnectAttempts  int           `mapstructure:"connectAttempts"`
	HandshakeTimeout time.Duration `mapstructure:"handshakeTimeout"`
	HandshakeSettle  time.Duration `mapstructure:"handshakeSettle"`
	FrameInterval    time.Duration `mapstructure:"frameInterval"`
	SendTimeout      time.Duration `mapstructure:"sendTimeout"`
	ReconnectBudget  int           `mapstructure:"reconnectBudget"`
	Backoff          BackoffConfig `mapstructure:"backoff"`
	WatchdogInterval time.Duration `mapstructure:"watchdogInterval"`
}

// PathConfig 外部文件路径
type PathConfig struct {
	Path string `mapstructure:"path"`
}

// SequencerConfig 动作调度
type SequencerConfig struct {
	DefaultHold time.Duration `mapstructure:"defaultHold"`
}

// Config 顶层配置结构
type Config struct {
	App         AppConfig       `mapstructure:"app"`
	HTTP        HTTPConfig      `mapstructure:"http"`
	Logging     LoggingConfig   `mapstructure:"logging"`
	Metrics     MetricsConfig   `mapstructure:"metrics"`
	API         APIConfig       `mapstructure:"api"`
	Robot       RobotConfig     `mapstructure:"robot"`
	Link        LinkConfig      `mapstructure:"link"`
	Calibration PathConfig      `mapstructure:"calibration"`
	Poses       PathConfig      `mapstructure:"poses"`
	Sequencer   SequencerConfig `mapstructure:"sequencer"`
}

// Load 从 YAML/TOML/JSON 文件与环境变量加载配置。
// 若 path 为空，则尝试从环境变量 MECCA_CONFIG 读取；否则回退到 configs/example.yaml。
func Load(path string) (*Config, error) {
	v := viper.New()

	if path == "" {
		path = os.Getenv("MECCA_CONFIG")
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.SetConfigName("example")
		v.SetConfigType("yaml")
	}

	// 默认值
	setDefaults(v)

	// 环境变量覆盖：前缀 MECCA_，并将点号替换为下划线
	v.SetEnvPrefix("MECCA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// 首次运行允许缺少配置文件，依赖默认值与环境变量
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 检查取值范围
func (c *Config) Validate() error {
	switch c.Robot.Transport {
	case TransportBLE, TransportSerial, TransportSim:
	default:
		return fmt.Errorf("robot.transport: unknown transport %q (want ble|serial|sim)", c.Robot.Transport)
	}
	if c.Link.FrameInterval < 0 {
		return fmt.Errorf("link.frameInterval: must not be negative")
	}
	if c.Link.ConnectAttempts < 1 {
		return fmt.Errorf("link.connectAttempts: must be at least 1")
	}
	if c.Link.ReconnectBudget < 0 {
		return fmt.Errorf("link.reconnectBudget: must not be negative")
	}
	if c.API.Auth.Enabled && len(c.API.Auth.APIKeys) == 0 {
		return fmt.Errorf("api.auth: enabled without apiKeys")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "meccanoid-ctl")
	v.SetDefault("app.env", "dev")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.readTimeout", "5s")
	v.SetDefault("http.writeTimeout", "60s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file.filename", "logs/meccanoid-ctl.log")
	v.SetDefault("logging.file.maxSize", 100)
	v.SetDefault("logging.file.maxBackups", 7)
	v.SetDefault("logging.file.maxAge", 30)
	v.SetDefault("logging.file.compress", true)

	v.SetDefault("metrics.enable", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("api.auth.enabled", false)

	v.SetDefault("robot.transport", TransportBLE)
	v.SetDefault("robot.namePrefix", "MECCANOID")
	v.SetDefault("robot.serial.baudRate", 9600)
	v.SetDefault("robot.autoConnect", true)

	v.SetDefault("link.scanTimeout", "10s")
	v.SetDefault("link.connectTimeout", "20s")
	v.SetDefault("link.connectAttempts", 3)
	v.SetDefault("link.handshakeTimeout", "2s")
	v.SetDefault("link.handshakeSettle", "300ms")
	v.SetDefault("link.frameInterval", "50ms")
	v.SetDefault("link.sendTimeout", "1s")
	v.SetDefault("link.reconnectBudget", 3)
	v.SetDefault("link.backoff.initial", "500ms")
	v.SetDefault("link.backoff.max", "5s")
	v.SetDefault("link.backoff.multiplier", 2.0)
	v.SetDefault("link.backoff.jitter", true)
	v.SetDefault("link.watchdogInterval", "0s")

	v.SetDefault("calibration.path", "configs/calibration.yaml")
	v.SetDefault("poses.path", "")
	v.SetDefault("sequencer.defaultHold", "1s")
}
