package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("", envMap(nil))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Vision.Provider != "anthropic" {
		t.Errorf("got provider %q, want anthropic", cfg.Vision.Provider)
	}
	if cfg.Vision.MaxTokens != 1000 {
		t.Errorf("got max tokens %d, want 1000", cfg.Vision.MaxTokens)
	}
	if cfg.DBPath != "" {
		t.Errorf("history should be off by default, got db path %q", cfg.DBPath)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
port: 9000
db_path: /tmp/analyses.db
vision:
  provider: gemini
  model: gemini-1.5-pro
  api_key: from-file
  timeout: 30s
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path, envMap(map[string]string{
		"GEMINI_API_KEY":    "from-env",
		"ANTHROPIC_API_KEY": "ignored",
		"VISION_MODEL":      "gemini-2.5-flash",
	}))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Port != 9000 || cfg.DBPath != "/tmp/analyses.db" {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Host != "0.0.0.0" {
		t.Errorf("default host lost, got %q", cfg.Host)
	}
	if cfg.Vision.APIKey != "from-env" {
		t.Errorf("got api key %q, want from-env", cfg.Vision.APIKey)
	}
	if cfg.Vision.Model != "gemini-2.5-flash" {
		t.Errorf("got model %q", cfg.Vision.Model)
	}
	if cfg.Vision.Timeout != 30*time.Second {
		t.Errorf("got timeout %v, want 30s", cfg.Vision.Timeout)
	}

	vc := cfg.VisionProvider()
	if vc.Provider != "gemini" || vc.APIKey != "from-env" {
		t.Errorf("unexpected vision config: %+v", vc)
	}
}

func TestLoadEnvProviderSelectsKey(t *testing.T) {
	t.Parallel()

	cfg, err := Load("", envMap(map[string]string{
		"VISION_PROVIDER":   "openai",
		"OPENAI_API_KEY":    "sk-test",
		"ANTHROPIC_API_KEY": "not-this-one",
		"VISION_BASE_URL":   "http://localhost:1234/v1",
	}))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Vision.APIKey != "sk-test" {
		t.Errorf("got api key %q, want sk-test", cfg.Vision.APIKey)
	}
	if cfg.Vision.BaseURL != "http://localhost:1234/v1" {
		t.Errorf("got base url %q", cfg.Vision.BaseURL)
	}
}

func TestLoadErrors(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), envMap(nil)); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("port: [nope"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path, envMap(nil)); err == nil {
		t.Error("expected error for malformed yaml")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "ok", mutate: func(*Config) {}},
		{name: "zero port", mutate: func(c *Config) { c.Port = 0 }, wantErr: "invalid port"},
		{name: "stdio transport", mutate: func(c *Config) { c.Transport = "stdio" }, wantErr: "unsupported transport"},
		{name: "unknown provider", mutate: func(c *Config) { c.Vision.Provider = "llama" }, wantErr: "unsupported vision provider"},
		{name: "negative tokens", mutate: func(c *Config) { c.Vision.MaxTokens = -1 }, wantErr: "invalid max tokens"},
		{name: "bad log level", mutate: func(c *Config) { c.LogLevel = "loud" }, wantErr: "unsupported log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("got %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestSlogLevel(t *testing.T) {
	t.Parallel()

	tests := map[string]slog.Level{
		"":      slog.LevelInfo,
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for in, want := range tests {
		cfg := &Config{LogLevel: in}
		if got := cfg.SlogLevel(); got != want {
			t.Errorf("SlogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestResolveAPIKeyAfterProviderSwitch(t *testing.T) {
	t.Parallel()

	filePath := filepath.Join(t.TempDir(), "config.yaml")
	fileData := "vision:\n  provider: gemini\n  api_key: gemini-from-file\n"
	if err := os.WriteFile(filePath, []byte(fileData), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		path     string
		env      map[string]string
		switchTo string
		wantKey  string
	}{
		{
			name:     "env key of old provider is dropped",
			env:      map[string]string{"ANTHROPIC_API_KEY": "sk-ant-secret"},
			switchTo: "openai",
			wantKey:  "",
		},
		{
			name:     "env key of new provider is used",
			env:      map[string]string{"ANTHROPIC_API_KEY": "sk-ant-secret", "OPENAI_API_KEY": "sk-openai"},
			switchTo: "openai",
			wantKey:  "sk-openai",
		},
		{
			name:     "file key of old provider is dropped",
			path:     filePath,
			switchTo: "anthropic",
			wantKey:  "",
		},
		{
			name:     "file key kept for its own provider",
			path:     filePath,
			switchTo: "gemini",
			wantKey:  "gemini-from-file",
		},
		{
			name:     "unknown provider gets no key",
			env:      map[string]string{"ANTHROPIC_API_KEY": "sk-ant-secret"},
			switchTo: "llama",
			wantKey:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			getenv := envMap(tt.env)
			cfg, err := Load(tt.path, getenv)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			cfg.Vision.Provider = tt.switchTo
			cfg.ResolveAPIKey(getenv)
			if cfg.Vision.APIKey != tt.wantKey {
				t.Errorf("provider %s: got api key %q, want %q", tt.switchTo, cfg.Vision.APIKey, tt.wantKey)
			}
		})
	}
}

func TestLoadEnvProviderDropsFileKey(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("vision:\n  api_key: sk-ant-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path, envMap(map[string]string{"VISION_PROVIDER": "gemini"}))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Vision.APIKey != "" {
		t.Errorf("anthropic key from file followed the switch to gemini: %q", cfg.Vision.APIKey)
	}
}
