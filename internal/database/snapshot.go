package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/maltedev/surtiapp-scraper/internal/models"
)

var productRecordColumns = []string{
	"snapshot_id", "product_url", "category", "subcategory", "sku", "price",
	"discount_percentage", "discount_price", "product_name", "available_quantity",
	"primary_image", "stock_status", "brand", "date_scrape", "country",
	"category_url", "scraped_at",
}

// SnapshotSummary is a stored snapshot without its rows.
type SnapshotSummary struct {
	ID          uuid.UUID `json:"id"`
	RunDate     time.Time `json:"run_date"`
	RecordCount int       `json:"record_count"`
	CreatedAt   time.Time `json:"created_at"`
}

type SnapshotRepository struct {
	db *DB
}

func NewSnapshotRepository(db *DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

func (r *SnapshotRepository) InsertSnapshotWithTx(ctx context.Context, tx pgx.Tx, snap *models.Snapshot) error {
	query := `
		INSERT INTO catalog_snapshot (id, run_date, record_count, created_at)
		VALUES ($1, $2, $3, $4)`

	_, err := tx.Exec(ctx, query, snap.ID, snap.RunDate, snap.Len(), time.Now())
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return nil
}

// InsertRecordsWithTx bulk-loads the rows of a snapshot with COPY.
func (r *SnapshotRepository) InsertRecordsWithTx(ctx context.Context, tx pgx.Tx, snapshotID uuid.UUID, records []models.ProductRecord) (int64, error) {
	rows := make([][]any, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []any{
			snapshotID, rec.ProductURL, rec.Category, rec.Subcategory, rec.SKU, rec.Price,
			rec.DiscountPercentage, rec.DiscountPrice, rec.ProductName, rec.AvailableQuantity,
			rec.PrimaryImage, string(rec.StockStatus), rec.Brand, scrapeDate(rec), rec.Country,
			rec.CategoryURL, rec.ScrapedAt,
		})
	}

	n, err := tx.CopyFrom(ctx, pgx.Identifier{"product_record"}, productRecordColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, fmt.Errorf("failed to copy product records: %w", err)
	}
	return n, nil
}

// KnownURLsWithTx returns which of urls already appear in an earlier snapshot.
func (r *SnapshotRepository) KnownURLsWithTx(ctx context.Context, tx pgx.Tx, urls []string) (map[string]bool, error) {
	known := make(map[string]bool)
	if len(urls) == 0 {
		return known, nil
	}

	rows, err := tx.Query(ctx,
		`SELECT DISTINCT product_url FROM product_record WHERE product_url = ANY($1)`, urls)
	if err != nil {
		return nil, fmt.Errorf("failed to query known products: %w", err)
	}

	found, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan known products: %w", err)
	}
	for _, u := range found {
		known[u] = true
	}
	return known, nil
}

// Recent lists the latest snapshots, newest first.
func (r *SnapshotRepository) Recent(ctx context.Context, limit int) ([]SnapshotSummary, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT id, run_date, record_count, created_at
		FROM catalog_snapshot
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (SnapshotSummary, error) {
		var s SnapshotSummary
		err := row.Scan(&s.ID, &s.RunDate, &s.RecordCount, &s.CreatedAt)
		return s, err
	})
}

// scrapeDate converts the record's calendar date for the date column,
// falling back to the capture timestamp.
func scrapeDate(rec models.ProductRecord) time.Time {
	if d, err := time.Parse(models.DateLayout, rec.DateScrape); err == nil {
		return d
	}
	return rec.ScrapedAt
}
