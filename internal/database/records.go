package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/maltedev/catalog-scraper/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS catalog_products (
	id                UUID PRIMARY KEY,
	run_id            UUID NOT NULL,
	position          INTEGER NOT NULL,
	url               TEXT NOT NULL,
	breadcrumb        TEXT NOT NULL,
	image_url         TEXT NOT NULL,
	category          TEXT NOT NULL,
	title             TEXT NOT NULL,
	price             TEXT NOT NULL,
	sizes             JSONB NOT NULL,
	size_chart        JSONB NOT NULL,
	description_title TEXT,
	description       TEXT,
	itemization       TEXT,
	rating            TEXT,
	review_count      INTEGER NOT NULL DEFAULT 0,
	reviews           JSONB NOT NULL,
	coordinated_items JSONB NOT NULL,
	scraped_at        TIMESTAMPTZ NOT NULL,
	UNIQUE (run_id, position)
);
CREATE INDEX IF NOT EXISTS idx_catalog_products_url ON catalog_products (url);
`

const insertRecord = `
	INSERT INTO catalog_products (
		id, run_id, position, url, breadcrumb, image_url, category, title, price,
		sizes, size_chart, description_title, description, itemization,
		rating, review_count, reviews, coordinated_items, scraped_at
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19
	)`

// RecordStore writes the records of one run to PostgreSQL.
type RecordStore struct {
	db     *DB
	runID  uuid.UUID
	logger *slog.Logger
}

func NewRecordStore(db *DB, runID uuid.UUID, logger *slog.Logger) *RecordStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecordStore{
		db:     db,
		runID:  runID,
		logger: logger.With("component", "record_store"),
	}
}

func (s *RecordStore) Name() string { return "postgres" }

// EnsureSchema creates the products table if it does not exist.
func (s *RecordStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Write inserts every record in one transaction; either all rows of the run
// land or none do.
func (s *RecordStore) Write(ctx context.Context, records []*models.ProductRecord) error {
	if len(records) == 0 {
		return nil
	}

	err := s.db.Transaction(ctx, func(tx pgx.Tx) error {
		for i, rec := range records {
			args, err := recordArgs(s.runID, i, rec)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, insertRecord, args...); err != nil {
				return fmt.Errorf("failed to insert %s: %w", rec.URL, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("records stored", "run_id", s.runID, "count", len(records))
	return nil
}

// CountRun returns the number of rows stored for the run.
func (s *RecordStore) CountRun(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM catalog_products WHERE run_id = $1`, s.runID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return n, nil
}

func recordArgs(runID uuid.UUID, position int, rec *models.ProductRecord) ([]any, error) {
	nested := []any{rec.Sizes, rec.SizeChart, rec.Reviews, rec.CoordinatedItems}
	encoded := make([][]byte, len(nested))
	for i, v := range nested {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s: %w", rec.URL, err)
		}
		encoded[i] = data
	}

	return []any{
		uuid.New(), runID, position, rec.URL, rec.Breadcrumb, rec.ImageURL,
		rec.Category, rec.Title, rec.Price,
		encoded[0], encoded[1], rec.DescriptionTitle, rec.Description, rec.Itemization,
		rec.Rating, rec.ReviewCount, encoded[2], encoded[3], rec.ScrapedAt,
	}, nil
}
