// internal/server/tools.go
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThinkInAIXYZ/go-mcp/protocol"
	"github.com/google/uuid"

	"mcp-calorie-analyzer/internal/models"
)

const (
	toolAnalyzeFoodImage = "analyze_food_image"
	toolGetAnalyses      = "get_analyses"

	defaultHistoryLimit = 20
)

var toolOrder = []string{toolAnalyzeFoodImage, toolGetAnalyses}

type AnalyzeFoodImageParams struct {
	ImageData   string `json:"image_data" description:"Base64-encoded image data"`
	ImageType   string `json:"image_type" description:"MIME type of the image"`
	DetailLevel string `json:"detail_level,omitempty" description:"Level of nutritional detail (basic or detailed)"`
}

type GetAnalysesParams struct {
	StartDate string `json:"start_date,omitempty" description:"Start date for analysis query (YYYY-MM-DD)"`
	EndDate   string `json:"end_date,omitempty" description:"End date for analysis query (YYYY-MM-DD)"`
	Limit     int    `json:"limit,omitempty" description:"Maximum number of analyses to return"`
}

type toolHandler func(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error)

type toolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
	handler     toolHandler
}

// paramsError marks a malformed tool call, as opposed to a tool failure.
type paramsError struct {
	err error
}

func (e *paramsError) Error() string { return "invalid parameters: " + e.err.Error() }
func (e *paramsError) Unwrap() error { return e.err }

// extractParams safely extracts parameters from the request arguments
func extractParams(req *protocol.CallToolRequest, target interface{}) error {
	jsonBytes, err := json.Marshal(req.Arguments)
	if err != nil {
		return &paramsError{fmt.Errorf("failed to marshal arguments: %w", err)}
	}

	if err := json.Unmarshal(jsonBytes, target); err != nil {
		return &paramsError{fmt.Errorf("failed to unmarshal parameters: %w", err)}
	}

	return nil
}

func (s *AnalyzerServer) registerTools() {
	s.tools = map[string]toolDefinition{
		toolAnalyzeFoodImage: {
			Name: toolAnalyzeFoodImage,
			Description: "Analyze a food image and estimate its nutritional content: calories, " +
				"macronutrients and serving size for every food item detected.",
			InputSchema: analyzeFoodImageSchema(),
			handler:     s.handleAnalyzeFoodImage,
		},
		toolGetAnalyses: {
			Name:        toolGetAnalyses,
			Description: "List previously stored food image analyses, newest first.",
			InputSchema: getAnalysesSchema(),
			handler:     s.handleGetAnalyses,
		},
	}

	for _, name := range toolOrder {
		s.logger.Debug("registered tool", "name", name)
	}
}

func (s *AnalyzerServer) toolList() []toolDefinition {
	tools := make([]toolDefinition, 0, len(s.tools))
	for _, name := range toolOrder {
		if tool, ok := s.tools[name]; ok {
			tools = append(tools, tool)
		}
	}
	return tools
}

func analyzeFoodImageSchema() map[string]interface{} {
	imageTypes := make([]string, 0, len(models.SupportedImageTypes))
	for _, t := range models.SupportedImageTypes {
		imageTypes = append(imageTypes, string(t))
	}

	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"image_data": map[string]interface{}{
				"type":        "string",
				"description": "Base64-encoded image data",
			},
			"image_type": map[string]interface{}{
				"type":        "string",
				"enum":        imageTypes,
				"description": "MIME type of the image",
			},
			"detail_level": map[string]interface{}{
				"type":        "string",
				"enum":        []string{string(models.DetailBasic), string(models.DetailDetailed)},
				"default":     string(models.DetailBasic),
				"description": "Level of nutritional detail to provide",
			},
		},
		"required": []string{"image_data", "image_type"},
	}
}

func getAnalysesSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"start_date": map[string]interface{}{
				"type":        "string",
				"description": "Start date (YYYY-MM-DD), inclusive",
			},
			"end_date": map[string]interface{}{
				"type":        "string",
				"description": "End date (YYYY-MM-DD), inclusive",
			},
			"limit": map[string]interface{}{
				"type":        "integer",
				"minimum":     1,
				"default":     defaultHistoryLimit,
				"description": "Maximum number of analyses to return",
			},
		},
	}
}

// handleAnalyzeFoodImage runs the analyzer. Analysis failures are reported
// inside the tool result, never as a Go error.
func (s *AnalyzerServer) handleAnalyzeFoodImage(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params AnalyzeFoodImageParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}

	result := s.analyze(ctx, params.submission())
	return s.createJSONResponse(result.Summary, result)
}

func (p AnalyzeFoodImageParams) submission() models.ImageSubmission {
	return models.ImageSubmission{
		ImageData:   p.ImageData,
		ImageType:   models.ImageType(p.ImageType),
		DetailLevel: models.DetailLevel(p.DetailLevel),
	}
}

// analyze is shared by the HTTP and websocket transports.
func (s *AnalyzerServer) analyze(ctx context.Context, sub models.ImageSubmission) *models.ToolResult {
	result := s.analyzer.AnalyzeFoodImage(ctx, sub)
	if result.Analysis != nil {
		s.recordAnalysis(ctx, sub, result)
	}
	return result
}

// recordAnalysis stores a successful result. Failures are logged only.
func (s *AnalyzerServer) recordAnalysis(ctx context.Context, sub models.ImageSubmission, result *models.ToolResult) {
	if s.storage == nil {
		return
	}

	level := sub.DetailLevel
	if level == "" {
		level = models.DetailBasic
	}
	rec := &models.AnalysisRecord{
		ID:                 uuid.New().String(),
		CreatedAt:          s.now(),
		ImageType:          sub.ImageType,
		DetailLevel:        level,
		ItemCount:          len(result.Analysis.FoodItems),
		TotalCalories:      result.Analysis.TotalCalories(),
		AnalysisConfidence: result.Analysis.AnalysisConfidence,
		Summary:            result.Summary,
		Analysis:           result.Analysis,
	}

	if err := s.storage.SaveAnalysis(context.WithoutCancel(ctx), rec); err != nil {
		s.logger.Warn("failed to record analysis", "id", rec.ID, "error", err)
		return
	}
	s.logger.Debug("recorded analysis", "id", rec.ID, "items", rec.ItemCount)
}

// handleGetAnalyses retrieves analyses from storage
func (s *AnalyzerServer) handleGetAnalyses(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params GetAnalysesParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}

	records, err := s.history(ctx, params)
	if err != nil {
		return nil, err
	}
	if s.storage == nil {
		return s.createJSONResponse("Analysis history is not enabled", records)
	}
	return s.createJSONResponse(fmt.Sprintf("Found %d stored analyses", len(records)), records)
}

func (s *AnalyzerServer) history(ctx context.Context, params GetAnalysesParams) ([]*models.AnalysisRecord, error) {
	for _, d := range []string{params.StartDate, params.EndDate} {
		if d == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", d); err != nil {
			return nil, &paramsError{fmt.Errorf("invalid date %q, expected YYYY-MM-DD", d)}
		}
	}
	if params.Limit <= 0 {
		params.Limit = defaultHistoryLimit
	}

	if s.storage == nil {
		return []*models.AnalysisRecord{}, nil
	}

	records, err := s.storage.GetAnalyses(ctx, params.StartDate, params.EndDate, params.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve analyses: %w", err)
	}
	if records == nil {
		records = []*models.AnalysisRecord{}
	}
	return records, nil
}
