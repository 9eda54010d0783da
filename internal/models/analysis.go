// internal/models/analysis.go
package models

import (
	"fmt"
	"time"
)

// MaxImageBytes is the largest decoded image the vision provider accepts.
const MaxImageBytes = 5 * 1024 * 1024

type ImageType string

const (
	ImageJPEG ImageType = "image/jpeg"
	ImagePNG  ImageType = "image/png"
	ImageWebP ImageType = "image/webp"
	ImageGIF  ImageType = "image/gif"
)

// SupportedImageTypes lists the declared formats accepted by analyze_food_image.
var SupportedImageTypes = []ImageType{ImageJPEG, ImagePNG, ImageWebP, ImageGIF}

func (t ImageType) Valid() bool {
	for _, s := range SupportedImageTypes {
		if t == s {
			return true
		}
	}
	return false
}

type DetailLevel string

const (
	DetailBasic    DetailLevel = "basic"
	DetailDetailed DetailLevel = "detailed"
)

func (d DetailLevel) Valid() bool {
	return d == DetailBasic || d == DetailDetailed
}

// ImageSubmission is one request to analyze_food_image. ImageData is the raw
// base64 payload without a data URI prefix.
type ImageSubmission struct {
	ImageData   string      `json:"image_data"`
	ImageType   ImageType   `json:"image_type"`
	DetailLevel DetailLevel `json:"detail_level,omitempty"`
}

type NutritionalInfo struct {
	Calories     float64  `json:"calories"`
	FatGrams     float64  `json:"fat_grams"`
	ProteinGrams float64  `json:"protein_grams"`
	CarbsGrams   *float64 `json:"carbs_grams,omitempty"`
	FiberGrams   *float64 `json:"fiber_grams,omitempty"`
	SodiumMg     *float64 `json:"sodium_mg,omitempty"`
	SugarGrams   *float64 `json:"sugar_grams,omitempty"`
}

type ServingSize struct {
	Description string   `json:"description"`
	WeightGrams *float64 `json:"weight_grams,omitempty"`
	VolumeMl    *float64 `json:"volume_ml,omitempty"`
}

// FoodItem is one detected food. Confidence is reported by the model on a 0-1
// scale and is not range-checked.
type FoodItem struct {
	Name        string          `json:"name"`
	Confidence  float64         `json:"confidence"`
	Nutrition   NutritionalInfo `json:"nutrition"`
	ServingSize ServingSize     `json:"serving_size"`
}

type NutritionalAnalysis struct {
	FoodItems          []FoodItem       `json:"food_items"`
	AnalysisConfidence float64          `json:"analysis_confidence"`
	TotalNutrition     *NutritionalInfo `json:"total_nutrition,omitempty"`
	Notes              string           `json:"notes,omitempty"`
	Timestamp          string           `json:"timestamp"`
}

// TotalCalories returns the total calorie figure, summing the items when no
// total is present.
func (a *NutritionalAnalysis) TotalCalories() float64 {
	if a.TotalNutrition != nil {
		return a.TotalNutrition.Calories
	}
	var sum float64
	for _, item := range a.FoodItems {
		sum += item.Nutrition.Calories
	}
	return sum
}

type ErrorCode string

const (
	CodeInvalidImage    ErrorCode = "INVALID_IMAGE"
	CodeImageTooLarge   ErrorCode = "IMAGE_TOO_LARGE"
	CodeAPIError        ErrorCode = "API_ERROR"
	CodeParseError      ErrorCode = "PARSE_ERROR"
	CodeValidationError ErrorCode = "VALIDATION_ERROR"
)

// AnalysisError is the structured failure returned by every stage of the
// analysis pipeline.
type AnalysisError struct {
	Message string    `json:"error"`
	Code    ErrorCode `json:"code"`
	Details string    `json:"details,omitempty"`
}

func (e *AnalysisError) Error() string {
	if e.Details == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
}

// ToolResult is the envelope returned by analyze_food_image. Exactly one of
// Analysis and Error is set.
type ToolResult struct {
	Summary     string               `json:"summary"`
	Analysis    *NutritionalAnalysis `json:"analysis,omitempty"`
	Error       *AnalysisError       `json:"error,omitempty"`
	RawResponse string               `json:"raw_response,omitempty"`
}

// AnalysisRecord is a stored analyze_food_image result.
type AnalysisRecord struct {
	ID                 string               `json:"id"`
	CreatedAt          time.Time            `json:"created_at"`
	ImageType          ImageType            `json:"image_type"`
	DetailLevel        DetailLevel          `json:"detail_level"`
	ItemCount          int                  `json:"item_count"`
	TotalCalories      float64              `json:"total_calories"`
	AnalysisConfidence float64              `json:"analysis_confidence"`
	Summary            string               `json:"summary"`
	Analysis           *NutritionalAnalysis `json:"analysis"`
}
