package database

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS catalog_snapshot (
		id           UUID PRIMARY KEY,
		run_date     DATE NOT NULL,
		record_count INTEGER NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS product_record (
		id                  BIGSERIAL PRIMARY KEY,
		snapshot_id         UUID NOT NULL REFERENCES catalog_snapshot(id) ON DELETE CASCADE,
		product_url         TEXT NOT NULL,
		category            TEXT,
		subcategory         TEXT,
		sku                 TEXT,
		price               DOUBLE PRECISION,
		discount_percentage DOUBLE PRECISION,
		discount_price      DOUBLE PRECISION,
		product_name        TEXT,
		available_quantity  INTEGER,
		primary_image       TEXT,
		stock_status        TEXT NOT NULL,
		brand               TEXT,
		date_scrape         DATE NOT NULL,
		country             TEXT NOT NULL,
		category_url        TEXT NOT NULL,
		scraped_at          TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_product_record_url ON product_record (product_url)`,
	`CREATE INDEX IF NOT EXISTS idx_product_record_snapshot ON product_record (snapshot_id)`,
	`CREATE TABLE IF NOT EXISTS outbox_event (
		id             UUID PRIMARY KEY,
		aggregate_type TEXT NOT NULL,
		aggregate_id   TEXT NOT NULL,
		event_type     TEXT NOT NULL,
		payload        JSONB NOT NULL,
		target_stream  TEXT NOT NULL,
		status         TEXT NOT NULL DEFAULT 'pending',
		retry_count    INTEGER NOT NULL DEFAULT 0,
		error_message  TEXT,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
		processed_at   TIMESTAMPTZ,
		next_retry_at  TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_outbox_event_pending ON outbox_event (status, next_retry_at)`,
}

// Migrate creates the tables used by the scraper when they do not exist.
func (db *DB) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
