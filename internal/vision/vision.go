// internal/vision/vision.go
package vision

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderOpenAI    = "openai"

	defaultTimeout = 60 * time.Second
)

var (
	ErrMissingAPIKey = errors.New("API key not configured")
	ErrEmptyResponse = errors.New("empty response from vision model")
)

// Request is a single-turn vision request: one user turn carrying an image
// followed by a text instruction, plus a system instruction.
type Request struct {
	System    string
	Prompt    string
	ImageType string // MIME type, e.g. image/jpeg
	ImageData string // base64 payload
	MaxTokens int
}

// Provider sends a Request to a vision-capable model and returns the first
// text segment of its reply.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (string, error)
}

// APIError is a non-success reply from a provider.
type APIError struct {
	Provider   string
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("%s API error (status %d, %s): %s", e.Provider, e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("%s API error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// RateLimited reports whether the provider rejected the call for quota reasons.
func (e *APIError) RateLimited() bool {
	return e.StatusCode == 429 || strings.Contains(e.Type, "rate_limit")
}

type Config struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
	Timeout  time.Duration
}

// DefaultModel returns the model used when none is configured.
func DefaultModel(provider string) string {
	switch provider {
	case ProviderGemini:
		return "gemini-2.5-flash"
	case ProviderOpenAI:
		return "gpt-4o-mini"
	default:
		return "claude-3-5-sonnet-20241022"
	}
}

// New creates the provider named by cfg.Provider. A missing API key is not an
// error here; calls fail with ErrMissingAPIKey instead.
func New(cfg Config) (Provider, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if name == "" {
		name = ProviderAnthropic
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel(name)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	switch name {
	case ProviderAnthropic:
		return NewAnthropicProvider(cfg), nil
	case ProviderGemini:
		return NewGeminiProvider(cfg), nil
	case ProviderOpenAI:
		return NewOpenAIProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported vision provider: %s", cfg.Provider)
	}
}
