package database

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/surtiapp-scraper/internal/models"
)

func TestScrapeDate(t *testing.T) {
	ts := time.Date(2025, 3, 14, 23, 0, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2025, 3, 13, 0, 0, 0, 0, time.UTC),
		scrapeDate(models.ProductRecord{DateScrape: "2025-03-13", ScrapedAt: ts}))
	assert.Equal(t, ts, scrapeDate(models.ProductRecord{DateScrape: "garbage", ScrapedAt: ts}))
}

func TestSnapshotRepository_Integration(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewSnapshotRepository(db)

	name := "Escoba"
	qty := 3
	url := "https://shop.test/p/" + uuid.NewString()

	snap := models.NewSnapshot(time.Now())
	require.NoError(t, snap.Append(models.ProductRecord{
		ProductURL:        url,
		ProductName:       &name,
		AvailableQuantity: &qty,
		StockStatus:       models.StockInStock,
		DateScrape:        time.Now().Format(models.DateLayout),
		Country:           models.CountryCode,
		CategoryURL:       "https://shop.test/c",
		ScrapedAt:         time.Now().UTC(),
	}))
	snap.Seal()

	var known map[string]bool
	err := db.Transaction(ctx, func(tx pgx.Tx) error {
		var err error
		known, err = repo.KnownURLsWithTx(ctx, tx, []string{url})
		if err != nil {
			return err
		}
		if err := repo.InsertSnapshotWithTx(ctx, tx, snap); err != nil {
			return err
		}
		n, err := repo.InsertRecordsWithTx(ctx, tx, snap.ID, snap.Records())
		assert.Equal(t, int64(1), n)
		return err
	})
	require.NoError(t, err)
	assert.False(t, known[url])

	require.NoError(t, db.Transaction(ctx, func(tx pgx.Tx) error {
		known, err = repo.KnownURLsWithTx(ctx, tx, []string{url, "https://shop.test/p/never"})
		return err
	}))
	assert.True(t, known[url])
	assert.False(t, known["https://shop.test/p/never"])

	recent, err := repo.Recent(ctx, 5)
	require.NoError(t, err)
	require.NotEmpty(t, recent)
}
