package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override. Nesting levels are separated
// by a double underscore: AIWIRE_OPENAI__API_KEY sets openai.api_key.
const EnvPrefix = "AIWIRE_"

// DefaultPath is the config file read when no path is given.
const DefaultPath = "config.yaml"

type Config struct {
	OpenAI    OpenAIConfig    `koanf:"openai"`
	Log       LogConfig       `koanf:"log"`
	Storage   StorageConfig   `koanf:"storage"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Server    ServerConfig    `koanf:"server"`
}

type OpenAIConfig struct {
	APIKey       string        `koanf:"api_key"`
	BaseURL      string        `koanf:"base_url"`
	RealtimeURL  string        `koanf:"realtime_url"`
	Organization string        `koanf:"organization"`
	Model        string        `koanf:"model"`
	Timeout      time.Duration `koanf:"timeout"`
	MaxFrameSize int           `koanf:"max_frame_size"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // text or json
}

type StorageConfig struct {
	Type   string       `koanf:"type"` // sqlite, memory, none
	SQLite SQLiteConfig `koanf:"sqlite"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

type TelemetryConfig struct {
	Tracing bool `koanf:"tracing"`
	Metrics bool `koanf:"metrics"`
}

// ServerConfig configures the mock upstream server.
type ServerConfig struct {
	Port int `koanf:"port"`
}

var defaults = map[string]any{
	"openai.base_url":       "https://api.openai.com/v1",
	"openai.realtime_url":   "wss://api.openai.com/v1/realtime",
	"openai.model":          "gpt-4o-mini",
	"openai.timeout":        "120s",
	"openai.max_frame_size": 1 << 20,
	"log.level":             "info",
	"log.format":            "text",
	"storage.type":          "none",
	"storage.sqlite.path":   "aiwire.db",
	"server.port":           8080,
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads path (DefaultPath when empty), applies AIWIRE_ environment
// overrides and fills defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	for key, value := range defaults {
		if !k.Exists(key) {
			k.Set(key, value)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	cfg.OpenAI.APIKey = substituteEnvVars(cfg.OpenAI.APIKey)
	cfg.OpenAI.Organization = substituteEnvVars(cfg.OpenAI.Organization)

	if cfg.OpenAI.MaxFrameSize <= 0 {
		return nil, fmt.Errorf("openai.max_frame_size must be positive, got %d", cfg.OpenAI.MaxFrameSize)
	}
	if cfg.OpenAI.Timeout < 0 {
		return nil, fmt.Errorf("openai.timeout must not be negative, got %s", cfg.OpenAI.Timeout)
	}

	return &cfg, nil
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
