// internal/storage/sqlite.go
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"mcp-calorie-analyzer/internal/models"
)

// timeLayout sorts lexically and is understood by SQLite's DATE().
const timeLayout = "2006-01-02T15:04:05.000Z"

type SQLiteStorage struct {
	db *sql.DB
}

func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	storage := &SQLiteStorage{db: db}
	if err := storage.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func (s *SQLiteStorage) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS analyses (
        id TEXT PRIMARY KEY,
        created_at TEXT NOT NULL,
        image_type TEXT NOT NULL,
        detail_level TEXT NOT NULL,
        item_count INTEGER NOT NULL,
        total_calories REAL NOT NULL,
        analysis_confidence REAL NOT NULL,
        summary TEXT NOT NULL,
        notes TEXT NOT NULL DEFAULT '',
        analysis_timestamp TEXT NOT NULL DEFAULT '',
        total_nutrition TEXT
    );

    CREATE TABLE IF NOT EXISTS analysis_items (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        analysis_id TEXT NOT NULL,
        name TEXT NOT NULL,
        confidence REAL NOT NULL,
        calories REAL NOT NULL,
        fat_grams REAL NOT NULL,
        protein_grams REAL NOT NULL,
        carbs_grams REAL,
        fiber_grams REAL,
        sodium_mg REAL,
        sugar_grams REAL,
        serving_description TEXT NOT NULL,
        serving_weight_grams REAL,
        serving_volume_ml REAL,
        FOREIGN KEY (analysis_id) REFERENCES analyses(id) ON DELETE CASCADE
    );

    CREATE INDEX IF NOT EXISTS idx_analyses_created_at ON analyses(created_at);
    CREATE INDEX IF NOT EXISTS idx_analysis_items_analysis_id ON analysis_items(analysis_id);
    `

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// SaveAnalysis stores a record and its food items in one transaction.
func (s *SQLiteStorage) SaveAnalysis(ctx context.Context, rec *models.AnalysisRecord) error {
	if rec.Analysis == nil {
		return fmt.Errorf("analysis record %s has no analysis", rec.ID)
	}

	var total sql.NullString
	if rec.Analysis.TotalNutrition != nil {
		b, err := json.Marshal(rec.Analysis.TotalNutrition)
		if err != nil {
			return fmt.Errorf("failed to encode total nutrition: %w", err)
		}
		total = sql.NullString{String: string(b), Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	analysisQuery := `
        INSERT INTO analyses (id, created_at, image_type, detail_level, item_count, total_calories,
            analysis_confidence, summary, notes, analysis_timestamp, total_nutrition)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `
	_, err = tx.ExecContext(ctx, analysisQuery,
		rec.ID, rec.CreatedAt.UTC().Format(timeLayout), string(rec.ImageType), string(rec.DetailLevel),
		rec.ItemCount, rec.TotalCalories, rec.AnalysisConfidence, rec.Summary,
		rec.Analysis.Notes, rec.Analysis.Timestamp, total)
	if err != nil {
		return fmt.Errorf("failed to insert analysis: %w", err)
	}

	itemQuery := `
        INSERT INTO analysis_items (analysis_id, name, confidence, calories, fat_grams, protein_grams,
            carbs_grams, fiber_grams, sodium_mg, sugar_grams,
            serving_description, serving_weight_grams, serving_volume_ml)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `
	for _, item := range rec.Analysis.FoodItems {
		n := item.Nutrition
		_, err = tx.ExecContext(ctx, itemQuery,
			rec.ID, item.Name, item.Confidence, n.Calories, n.FatGrams, n.ProteinGrams,
			nullable(n.CarbsGrams), nullable(n.FiberGrams), nullable(n.SodiumMg), nullable(n.SugarGrams),
			item.ServingSize.Description, nullable(item.ServingSize.WeightGrams), nullable(item.ServingSize.VolumeMl))
		if err != nil {
			return fmt.Errorf("failed to insert food item: %w", err)
		}
	}

	return tx.Commit()
}

// GetAnalyses returns stored analyses newest first. startDate and endDate are
// inclusive YYYY-MM-DD bounds on the creation date and may be empty.
func (s *SQLiteStorage) GetAnalyses(ctx context.Context, startDate, endDate string, limit int) ([]*models.AnalysisRecord, error) {
	query := `
        SELECT id, created_at, image_type, detail_level, item_count, total_calories,
            analysis_confidence, summary, notes, analysis_timestamp, total_nutrition
        FROM analyses
        WHERE 1=1
    `
	args := []interface{}{}

	if startDate != "" {
		query += " AND DATE(created_at) >= ?"
		args = append(args, startDate)
	}
	if endDate != "" {
		query += " AND DATE(created_at) <= ?"
		args = append(args, endDate)
	}

	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query analyses: %w", err)
	}

	var records []*models.AnalysisRecord
	for rows.Next() {
		rec := &models.AnalysisRecord{Analysis: &models.NutritionalAnalysis{}}
		var createdAtStr, imageType, detailLevel string
		var total sql.NullString

		err := rows.Scan(
			&rec.ID, &createdAtStr, &imageType, &detailLevel, &rec.ItemCount, &rec.TotalCalories,
			&rec.AnalysisConfidence, &rec.Summary, &rec.Analysis.Notes, &rec.Analysis.Timestamp, &total)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan analysis: %w", err)
		}

		if rec.CreatedAt, err = time.Parse(timeLayout, createdAtStr); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		rec.ImageType = models.ImageType(imageType)
		rec.DetailLevel = models.DetailLevel(detailLevel)
		rec.Analysis.AnalysisConfidence = rec.AnalysisConfidence

		if total.Valid {
			rec.Analysis.TotalNutrition = &models.NutritionalInfo{}
			if err := json.Unmarshal([]byte(total.String), rec.Analysis.TotalNutrition); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to decode total nutrition for %s: %w", rec.ID, err)
			}
		}

		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to read analyses: %w", err)
	}
	rows.Close()

	// Items are loaded after the outer rows are closed; SQLite connections
	// are not shared between open result sets.
	for _, rec := range records {
		if err := s.loadItemsForAnalysis(ctx, rec); err != nil {
			return nil, fmt.Errorf("failed to load items for analysis %s: %w", rec.ID, err)
		}
	}

	return records, nil
}

func (s *SQLiteStorage) loadItemsForAnalysis(ctx context.Context, rec *models.AnalysisRecord) error {
	query := `
        SELECT name, confidence, calories, fat_grams, protein_grams,
            carbs_grams, fiber_grams, sodium_mg, sugar_grams,
            serving_description, serving_weight_grams, serving_volume_ml
        FROM analysis_items
        WHERE analysis_id = ?
        ORDER BY id
    `

	rows, err := s.db.QueryContext(ctx, query, rec.ID)
	if err != nil {
		return fmt.Errorf("failed to query food items: %w", err)
	}
	defer rows.Close()

	items := []models.FoodItem{}
	for rows.Next() {
		var item models.FoodItem
		var carbs, fiber, sodium, sugar, weight, volume sql.NullFloat64

		err := rows.Scan(
			&item.Name, &item.Confidence, &item.Nutrition.Calories, &item.Nutrition.FatGrams,
			&item.Nutrition.ProteinGrams, &carbs, &fiber, &sodium, &sugar,
			&item.ServingSize.Description, &weight, &volume)
		if err != nil {
			return fmt.Errorf("failed to scan food item: %w", err)
		}

		item.Nutrition.CarbsGrams = ptr(carbs)
		item.Nutrition.FiberGrams = ptr(fiber)
		item.Nutrition.SodiumMg = ptr(sodium)
		item.Nutrition.SugarGrams = ptr(sugar)
		item.ServingSize.WeightGrams = ptr(weight)
		item.ServingSize.VolumeMl = ptr(volume)
		items = append(items, item)
	}

	rec.Analysis.FoodItems = items
	return rows.Err()
}

func nullable(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func ptr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}
