// internal/analyzer/parse.go
package analyzer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"mcp-calorie-analyzer/internal/models"
)

// Clock supplies the time used for timestamps the model left out.
type Clock func() time.Time

const parseErrorMessage = "Failed to parse nutritional analysis from AI response"

// Parser turns raw model output into a validated NutritionalAnalysis.
type Parser struct {
	now Clock
}

func NewParser(now Clock) *Parser {
	if now == nil {
		now = time.Now
	}
	return &Parser{now: now}
}

// wire shapes keep required fields as pointers so absence can be told apart
// from zero.
type wireNutrition struct {
	Calories     *float64 `json:"calories"`
	FatGrams     *float64 `json:"fat_grams"`
	ProteinGrams *float64 `json:"protein_grams"`
	CarbsGrams   *float64 `json:"carbs_grams"`
	FiberGrams   *float64 `json:"fiber_grams"`
	SodiumMg     *float64 `json:"sodium_mg"`
	SugarGrams   *float64 `json:"sugar_grams"`
}

type wireFoodItem struct {
	Name        *string            `json:"name"`
	Confidence  float64            `json:"confidence"`
	Nutrition   *wireNutrition     `json:"nutrition"`
	ServingSize models.ServingSize `json:"serving_size"`
}

type wireAnalysis struct {
	FoodItems          []wireFoodItem  `json:"food_items"`
	AnalysisConfidence float64         `json:"analysis_confidence"`
	TotalNutrition     *wireNutrition  `json:"total_nutrition"`
	Notes              string          `json:"notes"`
	Timestamp          json.RawMessage `json:"timestamp"`
}

// Parse strips an optional code fence, decodes the JSON, checks its shape and
// fills the timestamp and totals when the model left them out. Any failure is
// a PARSE_ERROR whose details carry the raw text unchanged.
func (p *Parser) Parse(raw string) (*models.NutritionalAnalysis, *models.AnalysisError) {
	cleaned := StripCodeFence(raw)

	var top map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &top); err != nil {
		return nil, parseError(err, raw)
	}

	items, ok := top["food_items"]
	if !ok || !bytes.HasPrefix(bytes.TrimSpace(items), []byte("[")) {
		return nil, parseError(errors.New("invalid response format: missing or invalid food_items"), raw)
	}

	var wire wireAnalysis
	if err := json.Unmarshal([]byte(cleaned), &wire); err != nil {
		return nil, parseError(err, raw)
	}
	if len(wire.FoodItems) == 0 {
		return nil, parseError(errors.New("invalid response format: food_items is empty"), raw)
	}

	analysis := &models.NutritionalAnalysis{
		FoodItems:          make([]models.FoodItem, 0, len(wire.FoodItems)),
		AnalysisConfidence: wire.AnalysisConfidence,
		Notes:              wire.Notes,
	}
	for i, w := range wire.FoodItems {
		item, err := w.toModel()
		if err != nil {
			return nil, parseError(fmt.Errorf("invalid food_items[%d]: %w", i, err), raw)
		}
		analysis.FoodItems = append(analysis.FoodItems, item)
	}

	// A timestamp that is not a non-empty string is replaced, not rejected.
	var ts string
	if err := json.Unmarshal(wire.Timestamp, &ts); err == nil && ts != "" {
		analysis.Timestamp = ts
	} else {
		analysis.Timestamp = formatTimestamp(p.now())
	}

	switch {
	case wire.TotalNutrition == nil:
		analysis.TotalNutrition = deriveTotals(analysis.FoodItems)
	default:
		total := wire.TotalNutrition.toModel()
		if wire.TotalNutrition.Calories == nil {
			total.Calories = sumCalories(analysis.FoodItems)
		}
		analysis.TotalNutrition = &total
	}

	return analysis, nil
}

// StripCodeFence trims whitespace and a surrounding ```json ... ``` fence.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func parseError(err error, raw string) *models.AnalysisError {
	return &models.AnalysisError{
		Message: parseErrorMessage,
		Code:    models.CodeParseError,
		Details: fmt.Sprintf("Parse error: %v. Raw response: %s", err, raw),
	}
}

func (w wireFoodItem) toModel() (models.FoodItem, error) {
	if w.Name == nil {
		return models.FoodItem{}, errors.New("missing name")
	}
	if w.Nutrition == nil {
		return models.FoodItem{}, errors.New("missing nutrition")
	}
	switch {
	case w.Nutrition.Calories == nil:
		return models.FoodItem{}, errors.New("missing nutrition.calories")
	case w.Nutrition.FatGrams == nil:
		return models.FoodItem{}, errors.New("missing nutrition.fat_grams")
	case w.Nutrition.ProteinGrams == nil:
		return models.FoodItem{}, errors.New("missing nutrition.protein_grams")
	}
	return models.FoodItem{
		Name:        *w.Name,
		Confidence:  w.Confidence,
		Nutrition:   w.Nutrition.toModel(),
		ServingSize: w.ServingSize,
	}, nil
}

func (w wireNutrition) toModel() models.NutritionalInfo {
	return models.NutritionalInfo{
		Calories:     deref(w.Calories),
		FatGrams:     deref(w.FatGrams),
		ProteinGrams: deref(w.ProteinGrams),
		CarbsGrams:   w.CarbsGrams,
		FiberGrams:   w.FiberGrams,
		SodiumMg:     w.SodiumMg,
		SugarGrams:   w.SugarGrams,
	}
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

func sumCalories(items []models.FoodItem) float64 {
	var sum float64
	for _, item := range items {
		sum += item.Nutrition.Calories
	}
	return sum
}

// deriveTotals sums the required nutrients in item order. An optional
// nutrient is summed only when every item reports it.
func deriveTotals(items []models.FoodItem) *models.NutritionalInfo {
	total := &models.NutritionalInfo{Calories: sumCalories(items)}
	for _, item := range items {
		total.FatGrams += item.Nutrition.FatGrams
		total.ProteinGrams += item.Nutrition.ProteinGrams
	}
	total.CarbsGrams = sumOptional(items, func(n models.NutritionalInfo) *float64 { return n.CarbsGrams })
	total.FiberGrams = sumOptional(items, func(n models.NutritionalInfo) *float64 { return n.FiberGrams })
	total.SodiumMg = sumOptional(items, func(n models.NutritionalInfo) *float64 { return n.SodiumMg })
	total.SugarGrams = sumOptional(items, func(n models.NutritionalInfo) *float64 { return n.SugarGrams })
	return total
}

func sumOptional(items []models.FoodItem, field func(models.NutritionalInfo) *float64) *float64 {
	var sum float64
	for _, item := range items {
		v := field(item.Nutrition)
		if v == nil {
			return nil
		}
		sum += *v
	}
	return &sum
}
