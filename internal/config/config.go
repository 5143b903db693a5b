package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Transport kinds.
const (
	TransportWebhook = "webhook"
	TransportOpenAI  = "openai"
)

// Storage scopes.
const (
	ScopeSession = "session"
	ScopeDurable = "durable"
)

// Config holds the application configuration
type Config struct {
	Transport TransportConfig `mapstructure:"transport"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Widget    WidgetConfig    `mapstructure:"widget"`
	Log       LogConfig       `mapstructure:"log"`
	Server    ServerConfig    `mapstructure:"server"`
	DevHook   DevHookConfig   `mapstructure:"devhook"`
	MCP       MCPConfig       `mapstructure:"mcp"`
}

// TransportConfig selects and tunes the outbound call.
type TransportConfig struct {
	Kind         string        `mapstructure:"kind"`
	WebhookURL   string        `mapstructure:"webhook_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes"`
}

// LLMConfig holds the OpenAI-compatible endpoint used by the openai transport
type LLMConfig struct {
	BaseURL      string `mapstructure:"base_url"`
	APIKey       string `mapstructure:"api_key"`
	Model        string `mapstructure:"model"`
	SystemPrompt string `mapstructure:"system_prompt"`
}

// StorageConfig holds where the history is persisted
type StorageConfig struct {
	Scope      string `mapstructure:"scope"`
	Path       string `mapstructure:"path"`
	Key        string `mapstructure:"key"`
	QuotaBytes int    `mapstructure:"quota_bytes"`
}

// WidgetConfig holds the conversation controller settings
type WidgetConfig struct {
	HistoryWindow  int    `mapstructure:"history_window"`
	Timezone       string `mapstructure:"timezone"`
	FallbackText   string `mapstructure:"fallback_text"`
	ApologyText    string `mapstructure:"apology_text"`
	NoResponseText string `mapstructure:"no_response_text"`
	// RequestTimeout is copied from TransportConfig.Timeout by Load.
	RequestTimeout time.Duration `mapstructure:"-"`
}

// LogConfig holds the logger settings
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// ServerConfig holds the dev webhook listen address
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
}

// DevHookConfig holds the dev webhook behaviour
type DevHookConfig struct {
	Shape          string   `mapstructure:"shape"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// MCPConfig holds the MCP server identity
type MCPConfig struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
}

// Defaults applied before the config file and environment.
const (
	DefaultApologyText    = "Lo siento, no pude conectarme con el asistente en este momento. Por favor, inténtalo de nuevo más tarde."
	DefaultNoResponseText = "El asistente no generó ninguna respuesta."
	DefaultFallbackText   = "No se recibió una respuesta válida."
	DefaultHistoryWindow  = 10
	DefaultTimeout        = 30 * time.Second
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("transport.kind", TransportWebhook)
	v.SetDefault("transport.webhook_url", "")
	v.SetDefault("transport.timeout", DefaultTimeout)
	v.SetDefault("transport.max_body_bytes", 1<<20)
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.system_prompt", "")
	v.SetDefault("storage.scope", ScopeDurable)
	v.SetDefault("storage.path", "history.db")
	v.SetDefault("storage.key", "chatHistory")
	v.SetDefault("storage.quota_bytes", 5<<20)
	v.SetDefault("widget.history_window", DefaultHistoryWindow)
	v.SetDefault("widget.timezone", "Local")
	v.SetDefault("widget.fallback_text", DefaultFallbackText)
	v.SetDefault("widget.apology_text", DefaultApologyText)
	v.SetDefault("widget.no_response_text", DefaultNoResponseText)
	v.SetDefault("log.level", "info")
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", "8080")
	v.SetDefault("devhook.shape", "reply")
	v.SetDefault("devhook.allowed_origins", []string{"http://localhost:3000", "http://127.0.0.1:3000", "http://localhost:5173", "http://127.0.0.1:5173"})
	v.SetDefault("mcp.name", "chatrelay")
	v.SetDefault("mcp.version", "0.1.0")
}

// Load reads config.yaml from the working directory, or the file named by
// CONFIG_PATH, then applies CHATRELAY_* environment overrides. A .env file is
// loaded first when present. A missing config file is not an error; call
// Validate before using the client settings.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("chatrelay")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	config.Widget.RequestTimeout = config.Transport.Timeout
	return &config, nil
}

// Validate rejects client configurations the chatrelay binary cannot run with.
func (c *Config) Validate() error {
	switch c.Transport.Kind {
	case TransportWebhook:
		if strings.TrimSpace(c.Transport.WebhookURL) == "" {
			return errors.New("transport.webhook_url is required for the webhook transport")
		}
	case TransportOpenAI:
		if strings.TrimSpace(c.LLM.Model) == "" {
			return errors.New("llm.model is required for the openai transport")
		}
	default:
		return fmt.Errorf("unknown transport.kind %q (want %q or %q)", c.Transport.Kind, TransportWebhook, TransportOpenAI)
	}
	switch c.Storage.Scope {
	case ScopeSession, ScopeDurable:
	default:
		return fmt.Errorf("unknown storage.scope %q (want %q or %q)", c.Storage.Scope, ScopeSession, ScopeDurable)
	}
	if c.Transport.Timeout <= 0 {
		return errors.New("transport.timeout must be positive")
	}
	if strings.TrimSpace(c.Storage.Key) == "" {
		return errors.New("storage.key must not be empty")
	}
	if _, err := c.Widget.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves the time zone used for date grouping.
func (w WidgetConfig) Location() (*time.Location, error) {
	if w.Timezone == "" || strings.EqualFold(w.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(w.Timezone)
	if err != nil {
		return nil, fmt.Errorf("widget.timezone: %w", err)
	}
	return loc, nil
}
