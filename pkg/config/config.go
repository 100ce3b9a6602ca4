// Package config provides configuration management for tgbridge.
// It uses Viper for loading with support for:
// - JSON files with auto-created defaults
// - Environment variables (TGBRIDGE_ prefix)
// - Hot-reload
package config

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Config represents the complete tgbridge configuration.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" json:"logger"`
	Backend   BackendConfig   `mapstructure:"backend" json:"backend"`
	BotAPI    BotAPIConfig    `mapstructure:"bot_api" json:"bot_api"`
	WebClient WebClientConfig `mapstructure:"web_client" json:"web_client"`
	Browser   BrowserConfig   `mapstructure:"browser" json:"browser"`
	Transport TransportConfig `mapstructure:"transport" json:"transport"`
	Workflow  WorkflowConfig  `mapstructure:"workflow" json:"workflow"`
	State     StateConfig     `mapstructure:"state" json:"state"`
	Redis     RedisConfig     `mapstructure:"redis" json:"redis"`
	Events    EventsConfig    `mapstructure:"events" json:"events"`
	Monitor   MonitorConfig   `mapstructure:"monitor" json:"monitor"`
	Gateway   GatewayConfig   `mapstructure:"gateway" json:"gateway"`
	mu        sync.RWMutex
}

// LoggerConfig configures logging.
type LoggerConfig struct {
	Level       string `mapstructure:"level" json:"level"`
	OutputPath  string `mapstructure:"output_path" json:"output_path"`
	MaxSize     int    `mapstructure:"max_size" json:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" json:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" json:"max_age"`
	Compress    bool   `mapstructure:"compress" json:"compress"`
	Development bool   `mapstructure:"development" json:"development"`
}

// BackendConfig points at the application backend that issues session tokens.
type BackendConfig struct {
	BaseURL        string `mapstructure:"base_url" json:"base_url"`
	LoginPath      string `mapstructure:"login_path" json:"login_path"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" json:"timeout_seconds"`
}

// BotAPIConfig configures the official Telegram Bot API client.
// Token only seeds the persisted bot credential; the token store is authoritative.
type BotAPIConfig struct {
	Token          string `mapstructure:"token" json:"token"`
	Endpoint       string `mapstructure:"endpoint" json:"endpoint"`
	Proxy          string `mapstructure:"proxy" json:"proxy"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" json:"timeout_seconds"`
}

// WebClientConfig selects the embedded web client and how the host reaches it.
type WebClientConfig struct {
	URL string `mapstructure:"url" json:"url"`
	// Link is "cdp" (drive a browser page) or "websocket" (a WebView shell attaches).
	Link string `mapstructure:"link" json:"link"`
	// Locale selects the language of host-generated texts, e.g. "en" or "zh-CN".
	Locale string `mapstructure:"locale" json:"locale"`
}

// BrowserConfig configures the Chrome DevTools link.
type BrowserConfig struct {
	ChromePath string `mapstructure:"chrome_path" json:"chrome_path"`
	// DebugURL attaches to an already running browser instead of launching one.
	DebugURL  string `mapstructure:"debug_url" json:"debug_url"`
	DebugPort int    `mapstructure:"debug_port" json:"debug_port"`
	Headless  bool   `mapstructure:"headless" json:"headless"`
	UserData  string `mapstructure:"user_data" json:"user_data"`
}

// TransportConfig configures the message transport.
type TransportConfig struct {
	RoundTripTimeoutSeconds int `mapstructure:"round_trip_timeout_seconds" json:"round_trip_timeout_seconds"`
	QueueSize               int `mapstructure:"queue_size" json:"queue_size"`
}

// WorkflowConfig configures retries and settle delays of channel workflows.
type WorkflowConfig struct {
	MaxRetries   int `mapstructure:"max_retries" json:"max_retries"`
	BaseDelayMS  int `mapstructure:"base_delay_ms" json:"base_delay_ms"`
	JoinSettleMS int `mapstructure:"join_settle_ms" json:"join_settle_ms"`
	LinkSettleMS int `mapstructure:"link_settle_ms" json:"link_settle_ms"`
}

// StateConfig configures the persistent key-value store.
type StateConfig struct {
	Backend  string `mapstructure:"backend" json:"backend"` // file, redis, memory
	FilePath string `mapstructure:"file_path" json:"file_path"`
	Prefix   string `mapstructure:"prefix" json:"prefix"`
}

// RedisConfig is shared by the redis state and event backends.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" json:"addr"`
	Password string `mapstructure:"password" json:"password"`
	DB       int    `mapstructure:"db" json:"db"`
}

// EventsConfig configures the outcome event bus.
type EventsConfig struct {
	Backend      string `mapstructure:"backend" json:"backend"` // local, redis, amqp
	Prefix       string `mapstructure:"prefix" json:"prefix"`
	AMQPURL      string `mapstructure:"amqp_url" json:"amqp_url"`
	AMQPExchange string `mapstructure:"amqp_exchange" json:"amqp_exchange"`
}

// MonitorConfig configures periodic probes against the embedded client.
type MonitorConfig struct {
	Enabled  bool   `mapstructure:"enabled" json:"enabled"`
	Schedule string `mapstructure:"schedule" json:"schedule"`
}

// GatewayConfig configures the HTTP/WebSocket gateway.
type GatewayConfig struct {
	Enabled   bool   `mapstructure:"enabled" json:"enabled"`
	Host      string `mapstructure:"host" json:"host"`
	Port      int    `mapstructure:"port" json:"port"`
	JWTSecret string `mapstructure:"jwt_secret" json:"jwt_secret"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	home := configHomeOrDot()

	return &Config{
		Logger: LoggerConfig{
			Level:      "info",
			OutputPath: filepath.Join(home, "logs", "tgbridge.log"),
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     7,
			Compress:   true,
		},
		Backend: BackendConfig{
			BaseURL:        "http://localhost:8080",
			LoginPath:      "/communal/tgLogin",
			TimeoutSeconds: 15,
		},
		BotAPI: BotAPIConfig{
			Endpoint:       "https://api.telegram.org/bot%s/%s",
			TimeoutSeconds: 15,
		},
		WebClient: WebClientConfig{
			URL:    "https://web.telegram.org/a/",
			Link:   "cdp",
			Locale: "en",
		},
		Browser: BrowserConfig{
			DebugPort: 9222,
			Headless:  true,
			UserData:  filepath.Join(home, "chrome-profile"),
		},
		Transport: TransportConfig{
			RoundTripTimeoutSeconds: 15,
			QueueSize:               64,
		},
		Workflow: WorkflowConfig{
			MaxRetries:   3,
			BaseDelayMS:  2000,
			JoinSettleMS: 2000,
			LinkSettleMS: 3000,
		},
		State: StateConfig{
			Backend:  "file",
			FilePath: filepath.Join(home, "state.json"),
			Prefix:   "tgbridge:",
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Events: EventsConfig{
			Backend:      "local",
			Prefix:       "tgbridge:events:",
			AMQPExchange: "tgbridge.events",
		},
		Monitor: MonitorConfig{
			Enabled:  true,
			Schedule: "@every 30s",
		},
		Gateway: GatewayConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    18791,
		},
	}
}

// RoundTripTimeout returns the transport round-trip bound.
func (c *Config) RoundTripTimeout() time.Duration {
	return time.Duration(c.Transport.RoundTripTimeoutSeconds) * time.Second
}

// StateFilePath returns the state file path with ~ expanded.
func (c *Config) StateFilePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return expandPath(c.State.FilePath)
}

func configHomeOrDot() string {
	home, err := GetConfigHome()
	if err != nil {
		return ".tgbridge"
	}
	return home
}

func expandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}
