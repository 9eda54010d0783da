// internal/analyzer/invoke.go
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"mcp-calorie-analyzer/internal/models"
	"mcp-calorie-analyzer/internal/vision"
)

// DefaultMaxTokens is sized for one compact JSON object.
const DefaultMaxTokens = 1000

// Invoker makes the single vision model call of an analysis. It never retries.
type Invoker struct {
	provider  vision.Provider
	maxTokens int
}

func NewInvoker(provider vision.Provider, maxTokens int) *Invoker {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &Invoker{provider: provider, maxTokens: maxTokens}
}

// Invoke sends the image and prompts as one user turn and returns the raw
// text reply.
func (i *Invoker) Invoke(ctx context.Context, systemPrompt, userPrompt string, sub models.ImageSubmission) (string, *models.AnalysisError) {
	if i.provider == nil {
		return "", &models.AnalysisError{
			Message: "Vision provider not configured",
			Code:    models.CodeAPIError,
		}
	}

	text, err := i.provider.Complete(ctx, vision.Request{
		System:    systemPrompt,
		Prompt:    userPrompt,
		ImageType: string(sub.ImageType),
		ImageData: sub.ImageData,
		MaxTokens: i.maxTokens,
	})
	if err != nil {
		return "", providerError(err)
	}
	if strings.TrimSpace(text) == "" {
		return "", providerError(vision.ErrEmptyResponse)
	}
	return text, nil
}

// providerError maps a provider failure to API_ERROR, keeping the kind of
// failure visible in the message.
func providerError(err error) *models.AnalysisError {
	aerr := &models.AnalysisError{Code: models.CodeAPIError, Details: err.Error()}

	var apiErr *vision.APIError
	switch {
	case errors.Is(err, vision.ErrMissingAPIKey):
		aerr.Message = "Vision provider API key not configured"
	case errors.Is(err, vision.ErrEmptyResponse):
		aerr.Message = "Empty response from vision model"
	case errors.As(err, &apiErr) && apiErr.RateLimited():
		aerr.Message = fmt.Sprintf("Vision model rate limited the request (status %d)", apiErr.StatusCode)
	case errors.As(err, &apiErr):
		aerr.Message = fmt.Sprintf("Vision model request failed with status %d", apiErr.StatusCode)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		aerr.Message = "Vision model request was cancelled or timed out"
	default:
		aerr.Message = "Vision model request failed"
	}
	return aerr
}
