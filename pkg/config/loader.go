package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// ConfigPathEnv overrides the config file location.
const ConfigPathEnv = "TGBRIDGE_CONFIG_FILE"

// Loader handles configuration loading with Viper.
type Loader struct {
	viper *viper.Viper
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("json")

	if home, err := GetConfigHome(); err == nil {
		v.AddConfigPath(home)
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix("TGBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindEnvKeys(v)

	return &Loader{viper: v}
}

// bindEnvKeys registers every known key so AutomaticEnv applies to
// Unmarshal even when the file does not mention the key.
func bindEnvKeys(v *viper.Viper) {
	for _, key := range []string{
		"logger.level", "logger.output_path", "logger.development",
		"backend.base_url", "backend.login_path", "backend.timeout_seconds",
		"bot_api.token", "bot_api.endpoint", "bot_api.proxy", "bot_api.timeout_seconds",
		"web_client.url", "web_client.link", "web_client.locale",
		"browser.chrome_path", "browser.debug_url", "browser.debug_port", "browser.headless",
		"transport.round_trip_timeout_seconds", "transport.queue_size",
		"workflow.max_retries", "workflow.base_delay_ms", "workflow.join_settle_ms", "workflow.link_settle_ms",
		"state.backend", "state.file_path", "state.prefix",
		"redis.addr", "redis.password", "redis.db",
		"events.backend", "events.amqp_url", "events.amqp_exchange",
		"monitor.enabled", "monitor.schedule",
		"gateway.enabled", "gateway.host", "gateway.port", "gateway.jwt_secret",
	} {
		_ = v.BindEnv(key)
	}
}

// Load loads configuration from file and environment variables.
// An empty configPath falls back to TGBRIDGE_CONFIG_FILE, then the default
// search paths. A missing file is created with defaults.
func (l *Loader) Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if strings.TrimSpace(configPath) == "" {
		configPath = strings.TrimSpace(os.Getenv(ConfigPathEnv))
	}
	explicit := configPath != ""

	resolved, err := resolveConfigPath(configPath)
	if err != nil {
		return nil, err
	}
	if explicit {
		l.viper.SetConfigFile(resolved)
	}

	if err := l.viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || os.IsNotExist(err) {
			if err := SaveToFile(cfg, resolved); err != nil {
				return nil, fmt.Errorf("creating config file: %w", err)
			}
			// Environment still applies on first run.
			if err := l.viper.Unmarshal(cfg); err != nil {
				return nil, fmt.Errorf("unmarshaling config: %w", err)
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := l.viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to path. The format follows the extension.
func (l *Loader) Save(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	format := "json"
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		format = "yaml"
	case ".toml":
		format = "toml"
	}

	v := viper.New()
	v.SetConfigType(format)
	v.Set("logger", cfg.Logger)
	v.Set("backend", cfg.Backend)
	v.Set("bot_api", cfg.BotAPI)
	v.Set("web_client", cfg.WebClient)
	v.Set("browser", cfg.Browser)
	v.Set("transport", cfg.Transport)
	v.Set("workflow", cfg.Workflow)
	v.Set("state", cfg.State)
	v.Set("redis", cfg.Redis)
	v.Set("events", cfg.Events)
	v.Set("monitor", cfg.Monitor)
	v.Set("gateway", cfg.Gateway)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// SaveToFile saves cfg without an existing Loader.
func SaveToFile(cfg *Config, path string) error {
	return NewLoader().Save(path, cfg)
}

// GetConfigHome returns the default config directory.
func GetConfigHome() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".tgbridge"), nil
}

// GetConfigPath returns the path of the loaded config file.
func (l *Loader) GetConfigPath() string {
	return l.viper.ConfigFileUsed()
}

func resolveConfigPath(configPath string) (string, error) {
	path := expandPath(strings.TrimSpace(configPath))
	if path == "" {
		home, err := GetConfigHome()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, "config.json")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve config path: %w", err)
	}
	return abs, nil
}
