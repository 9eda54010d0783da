// internal/vision/gemini.go
package vision

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GeminiProvider calls the Gemini API through the generative-ai-go client.
type GeminiProvider struct {
	apiKey  string
	model   string
	baseURL string
}

func NewGeminiProvider(cfg Config) *GeminiProvider {
	return &GeminiProvider{
		apiKey:  strings.TrimSpace(cfg.APIKey),
		model:   strings.TrimSpace(cfg.Model),
		baseURL: cfg.BaseURL,
	}
}

func (p *GeminiProvider) Name() string { return ProviderGemini }

func (p *GeminiProvider) Complete(ctx context.Context, req Request) (string, error) {
	if p.apiKey == "" {
		return "", fmt.Errorf("gemini: %w", ErrMissingAPIKey)
	}

	// Gemini takes raw bytes rather than the base64 text.
	imgBytes, err := base64.StdEncoding.DecodeString(req.ImageData)
	if err != nil {
		return "", fmt.Errorf("gemini: bad base64 image: %w", err)
	}

	opts := []option.ClientOption{option.WithAPIKey(p.apiKey)}
	if p.baseURL != "" {
		opts = append(opts, option.WithEndpoint(p.baseURL))
	}
	cl, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return "", fmt.Errorf("gemini: failed to create client: %w", err)
	}
	defer cl.Close()

	m := cl.GenerativeModel(p.model)
	m.SetMaxOutputTokens(int32(req.MaxTokens))
	m.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(req.System)},
	}

	resp, err := m.GenerateContent(ctx,
		&genai.Blob{MIMEType: req.ImageType, Data: imgBytes},
		genai.Text(req.Prompt),
	)
	if err != nil {
		return "", geminiError(err)
	}

	txt := firstText(resp)
	if txt == "" {
		return "", ErrEmptyResponse
	}
	return txt, nil
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, c := range resp.Candidates {
		if c == nil || c.Content == nil {
			continue
		}
		for _, part := range c.Content.Parts {
			if t, ok := part.(genai.Text); ok && t != "" {
				return string(t)
			}
		}
	}
	return ""
}

// geminiError turns an HTTP failure reported by the Gemini API into an
// APIError. Anything else (network, context) is wrapped as is.
func geminiError(err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return fmt.Errorf("gemini: generate content: %w", err)
	}
	apiErr := &APIError{
		Provider:   ProviderGemini,
		StatusCode: gerr.Code,
		Message:    gerr.Message,
	}
	if len(gerr.Errors) > 0 {
		apiErr.Type = gerr.Errors[0].Reason
	}
	if apiErr.Message == "" {
		apiErr.Message = gerr.Error()
	}
	return apiErr
}
