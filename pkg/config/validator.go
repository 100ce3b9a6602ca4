package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
)

// MaxWorkflowRetries is the hard cap on workflow retries (four attempts in total).
const MaxWorkflowRetries = 3

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for _, err := range e {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validator validates configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{errors: make(ValidationErrors, 0)}
}

// Validate validates the entire configuration.
func (v *Validator) Validate(cfg *Config) error {
	v.errors = make(ValidationErrors, 0)

	v.validateLogger(&cfg.Logger)
	v.validateBackend(&cfg.Backend)
	v.validateBotAPI(&cfg.BotAPI)
	v.validateWebClient(&cfg.WebClient, &cfg.Browser)
	v.validateTransport(&cfg.Transport)
	v.validateWorkflow(&cfg.Workflow)
	v.validateState(&cfg.State, &cfg.Redis)
	v.validateEvents(&cfg.Events, &cfg.Redis)
	v.validateMonitor(&cfg.Monitor)
	v.validateGateway(&cfg.Gateway)

	if len(v.errors) > 0 {
		return v.errors
	}
	return nil
}

func (v *Validator) validateLogger(cfg *LoggerConfig) {
	switch strings.ToLower(strings.TrimSpace(cfg.Level)) {
	case "", "debug", "info", "warn", "error", "fatal":
	default:
		v.addError("logger.level", "level must be one of: debug, info, warn, error, fatal")
	}
}

func (v *Validator) validateBackend(cfg *BackendConfig) {
	v.requireHTTPURL("backend.base_url", cfg.BaseURL)
	if !strings.HasPrefix(cfg.LoginPath, "/") {
		v.addError("backend.login_path", "login_path must start with /")
	}
	if cfg.TimeoutSeconds < 1 {
		v.addError("backend.timeout_seconds", "timeout must be at least 1 second")
	}
}

func (v *Validator) validateBotAPI(cfg *BotAPIConfig) {
	if strings.Count(cfg.Endpoint, "%s") != 2 {
		v.addError("bot_api.endpoint", "endpoint must contain two %s placeholders (token, method)")
	}
	if cfg.Proxy != "" {
		if _, err := url.Parse(cfg.Proxy); err != nil {
			v.addError("bot_api.proxy", fmt.Sprintf("invalid proxy URL: %v", err))
		}
	}
	if cfg.TimeoutSeconds < 1 {
		v.addError("bot_api.timeout_seconds", "timeout must be at least 1 second")
	}
}

func (v *Validator) validateWebClient(cfg *WebClientConfig, browser *BrowserConfig) {
	v.requireHTTPURL("web_client.url", cfg.URL)
	switch cfg.Link {
	case "cdp":
		if browser.DebugURL == "" && (browser.DebugPort < 1 || browser.DebugPort > 65535) {
			v.addError("browser.debug_port", "debug_port must be between 1 and 65535")
		}
	case "websocket":
	default:
		v.addError("web_client.link", "link must be one of: cdp, websocket")
	}
}

func (v *Validator) validateTransport(cfg *TransportConfig) {
	if cfg.RoundTripTimeoutSeconds < 1 {
		v.addError("transport.round_trip_timeout_seconds", "timeout must be at least 1 second")
	}
	if cfg.QueueSize < 1 {
		v.addError("transport.queue_size", "queue_size must be at least 1")
	}
}

func (v *Validator) validateWorkflow(cfg *WorkflowConfig) {
	if cfg.MaxRetries < 0 || cfg.MaxRetries > MaxWorkflowRetries {
		v.addError("workflow.max_retries", fmt.Sprintf("max_retries must be between 0 and %d", MaxWorkflowRetries))
	}
	if cfg.BaseDelayMS <= 0 {
		v.addError("workflow.base_delay_ms", "base_delay_ms must be positive")
	}
	if cfg.JoinSettleMS < 0 || cfg.LinkSettleMS < 0 {
		v.addError("workflow", "settle delays cannot be negative")
	}
}

func (v *Validator) validateState(cfg *StateConfig, redis *RedisConfig) {
	switch cfg.Backend {
	case "file":
		if strings.TrimSpace(cfg.FilePath) == "" {
			v.addError("state.file_path", "file_path is required for the file backend")
		}
	case "redis":
		if redis.Addr == "" {
			v.addError("redis.addr", "addr is required for the redis state backend")
		}
	case "memory":
	default:
		v.addError("state.backend", "backend must be one of: file, redis, memory")
	}
}

func (v *Validator) validateEvents(cfg *EventsConfig, redis *RedisConfig) {
	switch cfg.Backend {
	case "local":
	case "redis":
		if redis.Addr == "" {
			v.addError("redis.addr", "addr is required for the redis event backend")
		}
	case "amqp":
		if cfg.AMQPURL == "" {
			v.addError("events.amqp_url", "amqp_url is required for the amqp event backend")
		}
		if cfg.AMQPExchange == "" {
			v.addError("events.amqp_exchange", "amqp_exchange is required for the amqp event backend")
		}
	default:
		v.addError("events.backend", "backend must be one of: local, redis, amqp")
	}
}

func (v *Validator) validateMonitor(cfg *MonitorConfig) {
	if !cfg.Enabled {
		return
	}
	if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
		v.addError("monitor.schedule", fmt.Sprintf("invalid schedule: %v", err))
	}
}

func (v *Validator) validateGateway(cfg *GatewayConfig) {
	if !cfg.Enabled {
		return
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		v.addError("gateway.port", "port must be between 1 and 65535")
	}
	if cfg.Host != "127.0.0.1" && cfg.Host != "localhost" && cfg.JWTSecret == "" {
		v.addError("gateway.jwt_secret", "jwt_secret is required when the gateway listens beyond loopback")
	}
}

func (v *Validator) requireHTTPURL(field, raw string) {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		v.addError(field, "must be an absolute http(s) URL")
	}
}

// addError adds a validation error.
func (v *Validator) addError(field, message string) {
	v.errors = append(v.errors, ValidationError{Field: field, Message: message})
}

// ValidateConfig is a convenience function to validate a configuration.
func ValidateConfig(cfg *Config) error {
	return NewValidator().Validate(cfg)
}
