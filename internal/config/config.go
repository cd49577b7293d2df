// Package config loads server settings from built-in defaults, an optional
// YAML file and the environment, in that order.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/example/mission-control/internal/providers/llm"
)

type LLMConfig struct {
	Provider        string `yaml:"provider"`
	Model           string `yaml:"model"`
	OpenAIKey       string `yaml:"openai_api_key"`
	OpenAIBase      string `yaml:"openai_api_base"`
	AnthropicKey    string `yaml:"anthropic_api_key"`
	AnthropicURL    string `yaml:"anthropic_api_url"`
	GoogleKey       string `yaml:"google_api_key"`
	GeminiURL       string `yaml:"gemini_api_url"`
	GeminiTransport string `yaml:"gemini_transport"`
	HTTPTimeoutMs   int    `yaml:"http_timeout_ms"`
	MaxTokens       int    `yaml:"max_tokens"`
}

type MissionConfig struct {
	MaxParallel int           `yaml:"max_parallel"`
	TaskTimeout time.Duration `yaml:"task_timeout"`
	// LogContextEntries is how many recent log entries an executing task sees.
	LogContextEntries int `yaml:"log_context_entries"`
}

type StoreConfig struct {
	Driver string `yaml:"driver"` // sqlite|memory
	Path   string `yaml:"path"`
}

type ReferencesConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxRefs     int           `yaml:"max_refs"`
	MaxParallel int           `yaml:"max_parallel"`
	MaxBytes    int64         `yaml:"max_bytes"`
	MaxChars    int           `yaml:"max_chars"`
	MaxPages    int           `yaml:"max_pages"`
	Timeout     time.Duration `yaml:"timeout"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text|json
}

type Config struct {
	Port       string           `yaml:"port"`
	LLM        LLMConfig        `yaml:"llm"`
	Mission    MissionConfig    `yaml:"mission"`
	Store      StoreConfig      `yaml:"store"`
	References ReferencesConfig `yaml:"references"`
	Log        LogConfig        `yaml:"log"`
}

func Default() Config {
	return Config{
		Port: "8080",
		LLM:  LLMConfig{HTTPTimeoutMs: 60000},
		Mission: MissionConfig{
			LogContextEntries: 5,
		},
		Store: StoreConfig{Driver: "sqlite", Path: "data/mission.db"},
		References: ReferencesConfig{
			Enabled:     true,
			MaxRefs:     3,
			MaxParallel: 3,
			MaxBytes:    2 << 20,
			MaxChars:    4000,
			MaxPages:    10,
			Timeout:     15 * time.Second,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load builds the configuration. A missing file at path is not an error;
// an empty path skips the file entirely.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	if err := applyEnv(&cfg, os.Getenv); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	str("PORT", &cfg.Port)
	str("LLM_PROVIDER", &cfg.LLM.Provider)
	str("LLM_MODEL", &cfg.LLM.Model)
	str("OPENAI_API_KEY", &cfg.LLM.OpenAIKey)
	str("OPENAI_API_BASE", &cfg.LLM.OpenAIBase)
	str("ANTHROPIC_API_KEY", &cfg.LLM.AnthropicKey)
	str("ANTHROPIC_API_URL", &cfg.LLM.AnthropicURL)
	str("GOOGLE_API_KEY", &cfg.LLM.GoogleKey)
	str("GEMINI_API_URL", &cfg.LLM.GeminiURL)
	str("GEMINI_TRANSPORT", &cfg.LLM.GeminiTransport)
	str("MISSION_STORE", &cfg.Store.Driver)
	str("MISSION_STORE_PATH", &cfg.Store.Path)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)

	if v := strings.TrimSpace(getenv("LLM_HTTP_TIMEOUT_MS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("LLM_HTTP_TIMEOUT_MS: %w", err)
		}
		cfg.LLM.HTTPTimeoutMs = n
	}
	if v := strings.TrimSpace(getenv("LLM_MAX_TOKENS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("LLM_MAX_TOKENS: %w", err)
		}
		cfg.LLM.MaxTokens = n
	}
	if v := strings.TrimSpace(getenv("MISSION_MAX_PARALLEL")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MISSION_MAX_PARALLEL: %w", err)
		}
		cfg.Mission.MaxParallel = n
	}
	if v := strings.TrimSpace(getenv("MISSION_TASK_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("MISSION_TASK_TIMEOUT: %w", err)
		}
		cfg.Mission.TaskTimeout = d
	}
	return nil
}

func (c Config) Validate() error {
	if c.LLM.MaxTokens < 0 {
		return fmt.Errorf("llm.max_tokens must be >= 0, got %d", c.LLM.MaxTokens)
	}
	if c.Mission.MaxParallel < 0 {
		return fmt.Errorf("mission.max_parallel must be >= 0, got %d", c.Mission.MaxParallel)
	}
	if c.Mission.TaskTimeout < 0 {
		return fmt.Errorf("mission.task_timeout must be >= 0, got %s", c.Mission.TaskTimeout)
	}
	switch c.Store.Driver {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("unsupported store driver %q", c.Store.Driver)
	}
	if _, _, err := ParseLogLevel(c.Log.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("unsupported log format %q", c.Log.Format)
	}
	return nil
}

// LLMSettings translates the llm section for the provider factory.
func (c Config) LLMSettings() llm.Settings {
	return llm.Settings{
		Provider:        c.LLM.Provider,
		Model:           c.LLM.Model,
		OpenAIKey:       c.LLM.OpenAIKey,
		OpenAIBase:      c.LLM.OpenAIBase,
		AnthropicKey:    c.LLM.AnthropicKey,
		AnthropicURL:    c.LLM.AnthropicURL,
		GoogleKey:       c.LLM.GoogleKey,
		GeminiURL:       c.LLM.GeminiURL,
		GeminiTransport: c.LLM.GeminiTransport,
		HTTPTimeoutMs:   c.LLM.HTTPTimeoutMs,
		MaxTokens:       c.LLM.MaxTokens,
	}
}

func ParseLogLevel(input string) (slog.Level, string, error) {
	level := strings.ToLower(strings.TrimSpace(input))
	switch level {
	case "", "info":
		return slog.LevelInfo, "info", nil
	case "debug":
		return slog.LevelDebug, "debug", nil
	case "warn", "warning":
		return slog.LevelWarn, "warn", nil
	case "error", "err":
		return slog.LevelError, "error", nil
	default:
		return slog.LevelInfo, "", fmt.Errorf("unsupported log level %q", input)
	}
}

// NewLogger builds the process logger described by the log section.
func (c Config) NewLogger(w io.Writer) *slog.Logger {
	level, _, _ := ParseLogLevel(c.Log.Level)
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
