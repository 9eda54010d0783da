// internal/analyzer/analyzer.go
package analyzer

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"mcp-calorie-analyzer/internal/models"
	"mcp-calorie-analyzer/internal/vision"
)

// Analyzer runs the analyze_food_image pipeline: validate, prompt, invoke,
// parse. It holds no per-call state and is safe for concurrent use.
type Analyzer struct {
	invoker *Invoker
	parser  *Parser
	now     Clock
	logger  *slog.Logger
}

type Option func(*Analyzer)

// WithClock replaces time.Now for prompt and result timestamps.
func WithClock(now Clock) Option {
	return func(a *Analyzer) { a.now = now }
}

func WithMaxTokens(n int) Option {
	return func(a *Analyzer) { a.invoker = NewInvoker(a.invoker.provider, n) }
}

func WithLogger(l *slog.Logger) Option {
	return func(a *Analyzer) { a.logger = l }
}

func New(provider vision.Provider, opts ...Option) *Analyzer {
	a := &Analyzer{
		invoker: NewInvoker(provider, DefaultMaxTokens),
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.parser = NewParser(a.now)
	return a
}

// AnalyzeFoodImage never fails: every outcome is a ToolResult with a summary
// and either an analysis or an error.
func (a *Analyzer) AnalyzeFoodImage(ctx context.Context, sub models.ImageSubmission) *models.ToolResult {
	if sub.DetailLevel == "" {
		sub.DetailLevel = models.DetailBasic
	}
	a.logger.Info("analyze_food_image called",
		"image_data_length", len(sub.ImageData),
		"image_type", sub.ImageType,
		"detail_level", sub.DetailLevel)

	if aerr := Validate(sub); aerr != nil {
		a.logger.Warn("image submission rejected", "code", aerr.Code, "details", aerr.Details)
		return &models.ToolResult{Summary: errorSummary(aerr), Error: aerr}
	}

	systemPrompt := BuildSystemPrompt(a.now())
	userPrompt := BuildUserPrompt(sub.DetailLevel)

	raw, aerr := a.invoker.Invoke(ctx, systemPrompt, userPrompt, sub)
	if aerr != nil {
		a.logger.Error("vision model call failed", "code", aerr.Code, "details", aerr.Details)
		return &models.ToolResult{
			Summary: fmt.Sprintf("Failed to analyze food image: %s", aerr.Message),
			Error:   aerr,
		}
	}

	analysis, aerr := a.parser.Parse(raw)
	if aerr != nil {
		a.logger.Error("failed to parse vision model response", "code", aerr.Code)
		a.logger.Debug("raw vision model response", "raw", raw)
		return &models.ToolResult{
			Summary:     fmt.Sprintf("Error: %s. The AI response could not be parsed as valid JSON.", aerr.Message),
			Error:       aerr,
			RawResponse: raw,
		}
	}

	a.logger.Info("analysis completed", "food_items", len(analysis.FoodItems))
	return &models.ToolResult{Summary: Summarize(analysis), Analysis: analysis}
}

// Summarize renders the one-line success summary.
func Summarize(a *models.NutritionalAnalysis) string {
	if len(a.FoodItems) == 1 {
		item := a.FoodItems[0]
		return fmt.Sprintf("Analyzed \"%s\": %s calories, %sg fat, %sg protein. Confidence: %d%%",
			item.Name,
			formatNumber(item.Nutrition.Calories),
			formatNumber(item.Nutrition.FatGrams),
			formatNumber(item.Nutrition.ProteinGrams),
			percent(item.Confidence))
	}
	return fmt.Sprintf("Analyzed %d food items with total %s calories. Overall confidence: %d%%",
		len(a.FoodItems), formatNumber(a.TotalCalories()), percent(a.AnalysisConfidence))
}

func errorSummary(e *models.AnalysisError) string {
	if e.Details == "" {
		return fmt.Sprintf("Error: %s.", e.Message)
	}
	return fmt.Sprintf("Error: %s. %s", e.Message, e.Details)
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// percent converts a 0-1 confidence to a whole percentage, clamped to 0-100
// since the model's value is not range-checked.
func percent(confidence float64) int {
	if math.IsNaN(confidence) {
		return 0
	}
	p := math.Round(confidence * 100)
	return int(math.Max(0, math.Min(100, p)))
}
