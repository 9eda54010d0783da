package analyzer

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"mcp-calorie-analyzer/internal/models"
)

const appleJSON = `{"food_items":[{"name":"Apple","confidence":0.9,"nutrition":{"calories":80,"fat_grams":0.3,"protein_grams":0.4},"serving_size":{"description":"1 medium"}}],"analysis_confidence":0.85}`

func fixedClock() time.Time {
	return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
}

func TestParseSingleItem(t *testing.T) {
	t.Parallel()

	got, aerr := NewParser(fixedClock).Parse(appleJSON)
	if aerr != nil {
		t.Fatalf("unexpected error: %v", aerr)
	}
	if len(got.FoodItems) != 1 {
		t.Fatalf("got %d items, want 1", len(got.FoodItems))
	}
	item := got.FoodItems[0]
	if item.Name != "Apple" || item.Confidence != 0.9 {
		t.Errorf("unexpected item: %+v", item)
	}
	if item.Nutrition.Calories != 80 || item.Nutrition.FatGrams != 0.3 || item.Nutrition.ProteinGrams != 0.4 {
		t.Errorf("unexpected nutrition: %+v", item.Nutrition)
	}
	if item.Nutrition.CarbsGrams != nil {
		t.Errorf("expected carbs to be absent, got %v", *item.Nutrition.CarbsGrams)
	}
	if item.ServingSize.Description != "1 medium" {
		t.Errorf("got serving %q", item.ServingSize.Description)
	}
	if got.AnalysisConfidence != 0.85 {
		t.Errorf("got analysis confidence %v", got.AnalysisConfidence)
	}
	if got.Timestamp != "2025-01-02T03:04:05.000Z" {
		t.Errorf("got timestamp %q", got.Timestamp)
	}
}

func TestParseStripsCodeFence(t *testing.T) {
	t.Parallel()

	p := NewParser(fixedClock)
	plain, aerr := p.Parse(appleJSON)
	if aerr != nil {
		t.Fatalf("plain: %v", aerr)
	}

	for _, raw := range []string{
		"```json\n" + appleJSON + "\n```",
		"  ```json" + appleJSON + "```  \n",
		"```\n" + appleJSON + "\n```",
	} {
		fenced, aerr := p.Parse(raw)
		if aerr != nil {
			t.Fatalf("fenced %q: %v", raw, aerr)
		}
		if !reflect.DeepEqual(plain, fenced) {
			t.Errorf("fenced result differs:\n got %+v\nwant %+v", fenced, plain)
		}
	}
}

func TestParseNotJSON(t *testing.T) {
	t.Parallel()

	raw := "not json at all"
	_, aerr := NewParser(fixedClock).Parse(raw)
	if aerr == nil {
		t.Fatal("expected error")
	}
	if aerr.Code != models.CodeParseError {
		t.Errorf("got code %s, want PARSE_ERROR", aerr.Code)
	}
	if !strings.Contains(aerr.Details, raw) {
		t.Errorf("details %q do not contain the raw text", aerr.Details)
	}
	if !strings.Contains(aerr.Details, "invalid character") {
		t.Errorf("details %q do not contain a parser diagnostic", aerr.Details)
	}
}

func TestParseKeepsRawTextVerbatim(t *testing.T) {
	t.Parallel()

	raw := "  ```json\n{\"food_items\": oops}\n```\t"
	_, aerr := NewParser(fixedClock).Parse(raw)
	if aerr == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(aerr.Details, raw) {
		t.Errorf("details do not contain the unstripped raw text: %q", aerr.Details)
	}
}

func TestParseShapeErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
	}{
		{"missing food_items", `{"analysis_confidence":0.5}`},
		{"food_items is an object", `{"food_items":{"name":"Apple"}}`},
		{"food_items is a string", `{"food_items":"Apple"}`},
		{"food_items is null", `{"food_items":null}`},
		{"empty food_items", `{"food_items":[]}`},
		{"top level array", `[{"name":"Apple"}]`},
		{"top level null", `null`},
		{"item is a number", `{"food_items":[1]}`},
		{"item missing name", `{"food_items":[{"nutrition":{"calories":1,"fat_grams":1,"protein_grams":1}}]}`},
		{"item missing nutrition", `{"food_items":[{"name":"Apple"}]}`},
		{"item missing calories", `{"food_items":[{"name":"Apple","nutrition":{"fat_grams":1,"protein_grams":1}}]}`},
		{"item missing fat", `{"food_items":[{"name":"Apple","nutrition":{"calories":1,"protein_grams":1}}]}`},
		{"item missing protein", `{"food_items":[{"name":"Apple","nutrition":{"calories":1,"fat_grams":1}}]}`},
		{"calories is a string", `{"food_items":[{"name":"Apple","nutrition":{"calories":"80","fat_grams":1,"protein_grams":1}}]}`},
	}

	p := NewParser(fixedClock)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, aerr := p.Parse(tt.raw)
			if aerr == nil {
				t.Fatal("expected error")
			}
			if aerr.Code != models.CodeParseError {
				t.Errorf("got code %s, want PARSE_ERROR", aerr.Code)
			}
			if !strings.Contains(aerr.Details, tt.raw) {
				t.Errorf("details %q do not contain raw text", aerr.Details)
			}
		})
	}
}

func TestParseDerivesTotals(t *testing.T) {
	t.Parallel()

	raw := `{"food_items":[
		{"name":"Toast","confidence":0.8,"nutrition":{"calories":150,"fat_grams":2,"protein_grams":5,"carbs_grams":28},"serving_size":{"description":"2 slices"}},
		{"name":"Eggs","confidence":0.7,"nutrition":{"calories":200,"fat_grams":14,"protein_grams":12.5},"serving_size":{"description":"2 eggs"}}
	],"analysis_confidence":0.75}`

	got, aerr := NewParser(fixedClock).Parse(raw)
	if aerr != nil {
		t.Fatalf("unexpected error: %v", aerr)
	}
	if got.TotalNutrition == nil {
		t.Fatal("expected derived total_nutrition")
	}
	if got.TotalNutrition.Calories != 350 {
		t.Errorf("got total calories %v, want 350", got.TotalNutrition.Calories)
	}
	if got.TotalNutrition.FatGrams != 16 || got.TotalNutrition.ProteinGrams != 17.5 {
		t.Errorf("unexpected totals: %+v", got.TotalNutrition)
	}
	if got.TotalNutrition.CarbsGrams != nil {
		t.Errorf("carbs reported by only one item should not be totalled, got %v", *got.TotalNutrition.CarbsGrams)
	}
	if got.TotalCalories() != 350 {
		t.Errorf("got TotalCalories() %v, want 350", got.TotalCalories())
	}
}

func TestParseDerivedTotalIsOrderedSum(t *testing.T) {
	t.Parallel()

	cals := []string{"0.1", "0.2", "0.3", "1e2"}
	var b strings.Builder
	b.WriteString(`{"food_items":[`)
	for i, c := range cals {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(`{"name":"x","nutrition":{"calories":` + c + `,"fat_grams":0,"protein_grams":0}}`)
	}
	b.WriteString(`]}`)

	got, aerr := NewParser(fixedClock).Parse(b.String())
	if aerr != nil {
		t.Fatalf("unexpected error: %v", aerr)
	}
	var want float64
	for _, v := range []float64{0.1, 0.2, 0.3, 100} {
		want += v
	}
	if got.TotalNutrition.Calories != want {
		t.Errorf("got %v, want %v", got.TotalNutrition.Calories, want)
	}
}

func TestParseKeepsProvidedTotal(t *testing.T) {
	t.Parallel()

	raw := `{"food_items":[
		{"name":"A","nutrition":{"calories":100,"fat_grams":1,"protein_grams":1}},
		{"name":"B","nutrition":{"calories":100,"fat_grams":1,"protein_grams":1}}
	],"total_nutrition":{"calories":180,"fat_grams":2,"protein_grams":2,"sodium_mg":40}}`

	got, aerr := NewParser(fixedClock).Parse(raw)
	if aerr != nil {
		t.Fatalf("unexpected error: %v", aerr)
	}
	if got.TotalNutrition.Calories != 180 {
		t.Errorf("got %v, want model-provided 180", got.TotalNutrition.Calories)
	}
	if got.TotalNutrition.SodiumMg == nil || *got.TotalNutrition.SodiumMg != 40 {
		t.Errorf("expected sodium 40, got %v", got.TotalNutrition.SodiumMg)
	}
}

func TestParseFillsMissingTotalCalories(t *testing.T) {
	t.Parallel()

	raw := `{"food_items":[
		{"name":"A","nutrition":{"calories":150,"fat_grams":1,"protein_grams":1}},
		{"name":"B","nutrition":{"calories":200,"fat_grams":1,"protein_grams":1}}
	],"total_nutrition":{"fat_grams":2,"protein_grams":2}}`

	got, aerr := NewParser(fixedClock).Parse(raw)
	if aerr != nil {
		t.Fatalf("unexpected error: %v", aerr)
	}
	if got.TotalNutrition.Calories != 350 {
		t.Errorf("got %v, want 350", got.TotalNutrition.Calories)
	}
	if got.TotalNutrition.FatGrams != 2 {
		t.Errorf("got fat %v, want 2", got.TotalNutrition.FatGrams)
	}
}

func TestParseKeepsModelTimestamp(t *testing.T) {
	t.Parallel()

	raw := `{"food_items":[{"name":"A","nutrition":{"calories":1,"fat_grams":1,"protein_grams":1}}],"timestamp":"2024-06-01T12:00:00Z","notes":"blurry"}`
	got, aerr := NewParser(fixedClock).Parse(raw)
	if aerr != nil {
		t.Fatalf("unexpected error: %v", aerr)
	}
	if got.Timestamp != "2024-06-01T12:00:00Z" {
		t.Errorf("got timestamp %q", got.Timestamp)
	}
	if got.Notes != "blurry" {
		t.Errorf("got notes %q", got.Notes)
	}
}

func TestParseReplacesNonStringTimestamp(t *testing.T) {
	t.Parallel()

	for _, ts := range []string{`1700000000`, `null`, `""`, `{"unix":1}`} {
		raw := `{"food_items":[{"name":"A","nutrition":{"calories":1,"fat_grams":1,"protein_grams":1}}],"timestamp":` + ts + `}`
		got, aerr := NewParser(fixedClock).Parse(raw)
		if aerr != nil {
			t.Fatalf("timestamp %s: unexpected error: %v", ts, aerr)
		}
		if got.Timestamp != "2025-01-02T03:04:05.000Z" {
			t.Errorf("timestamp %s: got %q, want the clock time", ts, got.Timestamp)
		}
	}
}

func TestParseIsIdempotentApartFromTimestamp(t *testing.T) {
	t.Parallel()

	tick := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	p := NewParser(func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	})

	first, aerr := p.Parse(appleJSON)
	if aerr != nil {
		t.Fatalf("first: %v", aerr)
	}
	second, aerr := p.Parse(appleJSON)
	if aerr != nil {
		t.Fatalf("second: %v", aerr)
	}
	if first.Timestamp == second.Timestamp {
		t.Errorf("expected fresh timestamps, both %q", first.Timestamp)
	}
	second.Timestamp = first.Timestamp
	if !reflect.DeepEqual(first, second) {
		t.Errorf("results differ:\n%+v\n%+v", first, second)
	}
}

func TestParsePassesThroughOutOfRangeValues(t *testing.T) {
	t.Parallel()

	raw := `{"food_items":[{"name":"A","confidence":1.7,"nutrition":{"calories":-5,"fat_grams":1,"protein_grams":1}}],"analysis_confidence":-0.2}`
	got, aerr := NewParser(fixedClock).Parse(raw)
	if aerr != nil {
		t.Fatalf("unexpected error: %v", aerr)
	}
	if got.FoodItems[0].Confidence != 1.7 || got.FoodItems[0].Nutrition.Calories != -5 || got.AnalysisConfidence != -0.2 {
		t.Errorf("values were altered: %+v", got)
	}
}

func TestStripCodeFence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"  {\"a\":1}\n", `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```json {\"a\":1} ```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{"{\"a\":1}\n```", `{"a":1}`},
	}
	for _, tt := range tests {
		if got := StripCodeFence(tt.in); got != tt.want {
			t.Errorf("StripCodeFence(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
