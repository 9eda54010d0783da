// internal/config/config.go
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"mcp-calorie-analyzer/internal/vision"
)

// Config holds everything the server needs at startup. Values are layered:
// defaults, then the YAML file, then the environment, then command line flags.
type Config struct {
	Transport string `yaml:"transport"`
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	// DBPath enables analysis history when non-empty.
	DBPath   string `yaml:"db_path"`
	LogLevel string `yaml:"log_level"`

	Vision VisionConfig `yaml:"vision"`
}

type VisionConfig struct {
	Provider  string        `yaml:"provider"`
	Model     string        `yaml:"model"`
	APIKey    string        `yaml:"api_key"`
	BaseURL   string        `yaml:"base_url"`
	MaxTokens int           `yaml:"max_tokens"`
	Timeout   time.Duration `yaml:"timeout"`

	// keyProvider is the provider APIKey was issued for. A key never
	// follows a provider switch.
	keyProvider string
}

func Default() *Config {
	return &Config{
		Transport: "http",
		Host:      "0.0.0.0",
		Port:      8012,
		LogLevel:  "info",
		Vision: VisionConfig{
			Provider:  vision.ProviderAnthropic,
			MaxTokens: 1000,
			Timeout:   60 * time.Second,
		},
	}
}

// Load builds a Config from defaults, the optional YAML file at path and the
// environment read through getenv. Flags are applied by the caller afterwards.
func Load(path string, getenv func(string) string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		if cfg.Vision.APIKey != "" {
			cfg.Vision.keyProvider = normalizeProvider(cfg.Vision.Provider)
		}
	}

	if getenv == nil {
		getenv = os.Getenv
	}
	cfg.applyEnv(getenv)
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("VISION_PROVIDER"); v != "" {
		c.Vision.Provider = v
	}
	if v := getenv("VISION_MODEL"); v != "" {
		c.Vision.Model = v
	}
	if v := getenv("VISION_BASE_URL"); v != "" {
		c.Vision.BaseURL = v
	}
	c.ResolveAPIKey(getenv)
}

// ResolveAPIKey reads the key variable of the selected provider. A key that
// belongs to another provider is dropped when the environment has none for
// this one. Call it again after changing the provider.
func (c *Config) ResolveAPIKey(getenv func(string) string) {
	provider := normalizeProvider(c.Vision.Provider)
	if name := apiKeyEnv(provider); name != "" && getenv(name) != "" {
		c.Vision.APIKey = getenv(name)
		c.Vision.keyProvider = provider
		return
	}
	if c.Vision.keyProvider != provider {
		c.Vision.APIKey = ""
		c.Vision.keyProvider = ""
	}
}

func normalizeProvider(provider string) string {
	p := strings.ToLower(strings.TrimSpace(provider))
	if p == "" {
		return vision.ProviderAnthropic
	}
	return p
}

func apiKeyEnv(provider string) string {
	switch strings.ToLower(provider) {
	case vision.ProviderGemini:
		return "GEMINI_API_KEY"
	case vision.ProviderOpenAI:
		return "OPENAI_API_KEY"
	case vision.ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	default:
		return ""
	}
}

// Validate rejects settings the server cannot start with. A missing API key
// is allowed; analyze calls report it instead.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.Transport != "http" {
		return fmt.Errorf("unsupported transport: %s", c.Transport)
	}
	switch strings.ToLower(c.Vision.Provider) {
	case vision.ProviderAnthropic, vision.ProviderGemini, vision.ProviderOpenAI:
	default:
		return fmt.Errorf("unsupported vision provider: %q", c.Vision.Provider)
	}
	if c.Vision.MaxTokens < 0 {
		return fmt.Errorf("invalid max tokens: %d", c.Vision.MaxTokens)
	}
	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported log level: %s", c.LogLevel)
	}
	return nil
}

// SlogLevel maps LogLevel to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// VisionProvider converts the vision section for vision.New.
func (c *Config) VisionProvider() vision.Config {
	return vision.Config{
		Provider: c.Vision.Provider,
		Model:    c.Vision.Model,
		APIKey:   c.Vision.APIKey,
		BaseURL:  c.Vision.BaseURL,
		Timeout:  c.Vision.Timeout,
	}
}
