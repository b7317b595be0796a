package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"ragnotebook/internal/domain"
)

// BackendConfig holds connection details for the RAG backend API.
type BackendConfig struct {
	URL               string `yaml:"url" validate:"required,url"`
	TimeoutSecs       int    `yaml:"timeout_secs" validate:"gte=0"`
	RequestsPerSecond int    `yaml:"requests_per_second" validate:"gte=0"`
}

// SessionConfig seeds the editable configuration at session start.
type SessionConfig struct {
	LLMEndpoint     string `yaml:"llm_endpoint"`
	VectorStoreHost string `yaml:"vector_store_host"`
	EmbeddingModel  string `yaml:"embedding_model"`
}

// ProbeConfig bounds connectivity checks.
type ProbeConfig struct {
	TimeoutSecs int `yaml:"timeout_secs" validate:"gte=0"`
}

// ChatConfig configures query execution.
type ChatConfig struct {
	TopK int `yaml:"top_k" validate:"gte=1,lte=100"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level      string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `yaml:"max_backups" validate:"gte=0"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Backend BackendConfig `yaml:"backend"`
	Session SessionConfig `yaml:"session"`
	Probe   ProbeConfig   `yaml:"probe"`
	Chat    ChatConfig    `yaml:"chat"`
	Logging LoggingConfig `yaml:"logging"`
}

// Environment variables that override file values.
const (
	EnvBackendURL      = "RAGNB_BACKEND_URL"
	EnvLLMEndpoint     = "RAGNB_LLM_ENDPOINT"
	EnvVectorStoreHost = "RAGNB_VECTOR_STORE_HOST"
	EnvEmbeddingModel  = "RAGNB_EMBEDDING_MODEL"
	EnvLogLevel        = "RAGNB_LOG_LEVEL"
	EnvTopK            = "RAGNB_TOP_K"
)

const DefaultEmbeddingModel = "sentence-transformers/all-MiniLM-L6-v2"

var validate = validator.New()

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := defaultConfig()
			applyEnvOverrides(cfg)
			return cfg, validateConfig(cfg)
		}
		return nil, err
	}
	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyConfigDefaults(cfg)
	applyEnvOverrides(cfg)
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/ragnotebook/config.yaml,
// and falls back to built-in defaults. It never writes a file.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := DefaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	cfg, err := Load(userPath)
	return cfg, userPath, err
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Default returns the built-in configuration.
func Default() *AppConfig { return defaultConfig() }

// DefaultUserConfigPath is ~/.config/ragnotebook/config.yaml.
func DefaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "ragnotebook", "config.yaml"), nil
}

// Configuration returns the initial editable configuration.
func (c *AppConfig) Configuration() domain.Configuration {
	return domain.Configuration{
		LLMEndpoint:     c.Session.LLMEndpoint,
		VectorStoreHost: c.Session.VectorStoreHost,
		EmbeddingModel:  c.Session.EmbeddingModel,
	}
}

func defaultConfig() *AppConfig {
	return &AppConfig{
		Backend: BackendConfig{URL: "http://localhost:8000", TimeoutSecs: 120},
		Session: SessionConfig{
			LLMEndpoint:     "http://localhost:8000/v1",
			VectorStoreHost: "localhost:19530",
			EmbeddingModel:  DefaultEmbeddingModel,
		},
		Probe:   ProbeConfig{TimeoutSecs: 5},
		Chat:    ChatConfig{TopK: 5},
		Logging: LoggingConfig{Level: "info", File: "ragnotebook.log", MaxSizeMB: 10, MaxBackups: 5},
	}
}

// applyConfigDefaults fills zero values that a partial file may leave behind.
func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Backend.TimeoutSecs == 0 {
		cfg.Backend.TimeoutSecs = 120
	}
	if cfg.Probe.TimeoutSecs == 0 {
		cfg.Probe.TimeoutSecs = 5
	}
	if cfg.Chat.TopK == 0 {
		cfg.Chat.TopK = 5
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := os.Getenv(EnvBackendURL); v != "" {
		cfg.Backend.URL = v
	}
	if v := os.Getenv(EnvLLMEndpoint); v != "" {
		cfg.Session.LLMEndpoint = v
	}
	if v := os.Getenv(EnvVectorStoreHost); v != "" {
		cfg.Session.VectorStoreHost = v
	}
	if v := os.Getenv(EnvEmbeddingModel); v != "" {
		cfg.Session.EmbeddingModel = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv(EnvTopK); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Chat.TopK = n
		}
	}
}

func validateConfig(cfg *AppConfig) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
