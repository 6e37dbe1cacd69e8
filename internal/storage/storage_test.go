package storage

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/surtiapp-scraper/internal/models"
)

func strPtr(s string) *string     { return &s }
func floatPtr(f float64) *float64 { return &f }
func intPtr(i int) *int           { return &i }

func sampleRecord(url string) models.ProductRecord {
	return models.ProductRecord{
		ProductURL:         url,
		Category:           strPtr("Aseo"),
		Subcategory:        strPtr("Insecticidas, aerosol"),
		SKU:                strPtr("7702"),
		Price:              floatPtr(12500),
		DiscountPercentage: floatPtr(12.5),
		DiscountPrice:      floatPtr(10937.5),
		ProductName:        strPtr(`Raid "Max" 400ml`),
		AvailableQuantity:  intPtr(24),
		PrimaryImage:       strPtr("https://img.test/raid.png"),
		StockStatus:        models.StockInStock,
		Brand:              strPtr("SC Johnson"),
		DateScrape:         "2025-03-14",
		Country:            models.CountryCode,
		CategoryURL:        "https://shop.test/SearchByCategoryResults/Insecticidas/1",
		ScrapedAt:          time.Date(2025, 3, 14, 14, 30, 0, 123456000, time.UTC),
	}
}

func sparseRecord(url string) models.ProductRecord {
	return models.ProductRecord{
		ProductURL:  url,
		StockStatus: models.StockOutOfStock,
		DateScrape:  "2025-03-14",
		Country:     models.CountryCode,
		CategoryURL: "https://shop.test/c",
		ScrapedAt:   time.Date(2025, 3, 14, 14, 30, 0, 0, time.UTC),
	}
}

func TestWriteRecordsFormat(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteRecords(&buf, []models.ProductRecord{sampleRecord("https://shop.test/p/1"), sparseRecord("https://shop.test/p/2")}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)

	assert.Equal(t, strings.Join(Header, ","), lines[0])
	assert.Contains(t, lines[1], `"Insecticidas, aerosol"`)
	assert.Contains(t, lines[1], ",12500,12.5,10937.5,")
	assert.True(t, strings.HasSuffix(lines[1], ",2025-03-14 14:30:00.123456 UTC"))
	assert.Equal(t,
		"https://shop.test/p/2,N/A,N/A,N/A,N/A,N/A,N/A,N/A,N/A,N/A,Out of Stock,N/A,2025-03-14,co,https://shop.test/c,2025-03-14 14:30:00.000000 UTC",
		lines[2])
}

func TestReadRecordsRoundTrip(t *testing.T) {
	in := []models.ProductRecord{sampleRecord("https://shop.test/p/1"), sparseRecord("https://shop.test/p/2")}

	var buf bytes.Buffer
	require.NoError(t, WriteRecords(&buf, in))

	out, err := ReadRecords(&buf)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestReadRecordsCoercesBadNumbers(t *testing.T) {
	data := "product_name,price,available_quantity,product_URL\n" +
		"Jabon,abc,12.0,https://shop.test/p/1\n" +
		"Escoba,,N/A,https://shop.test/p/2\n"

	records, err := ReadRecords(strings.NewReader(data))
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Nil(t, records[0].Price)
	require.NotNil(t, records[0].AvailableQuantity)
	assert.Equal(t, 12, *records[0].AvailableQuantity)
	assert.Nil(t, records[1].AvailableQuantity)
	assert.Equal(t, "https://shop.test/p/2", records[1].ProductURL)
}

func TestReadRecordsRequiresURLColumn(t *testing.T) {
	_, err := ReadRecords(strings.NewReader("name,price\nx,1\n"))
	assert.ErrorIs(t, err, ErrMissingColumn)
}

func TestWriteSnapshot(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	store := NewSnapshotStore(dir, "surtiapp_dataset_", nil)

	snap := models.NewSnapshot(time.Date(2025, 3, 14, 10, 0, 0, 0, time.Local))
	require.NoError(t, snap.Append(sampleRecord("https://shop.test/p/1")))

	require.NoError(t, store.WriteSnapshot(context.Background(), snap))

	path := filepath.Join(dir, "surtiapp_dataset_2025-03-14.csv")
	assert.Equal(t, path, store.Path("2025-03-14"))
	records, err := ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, records, 1)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestCombine(t *testing.T) {
	dir := t.TempDir()
	store := NewSnapshotStore(dir, "surtiapp_dataset_", nil)

	for i, date := range []string{"2025-03-07", "2025-03-14"} {
		records := []models.ProductRecord{sampleRecord("https://shop.test/p/a"), sparseRecord("https://shop.test/p/b")}
		require.NoError(t, store.save(store.Path(date), records[:i+1]))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.csv"), []byte("x\n"), 0o644))

	n, err := store.Combine()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// A second run replaces the combined file instead of folding it in.
	n, err = store.Combine()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	combined, err := ReadFile(store.RecentPath())
	require.NoError(t, err)
	assert.Len(t, combined, 3)

	files, err := store.List()
	require.NoError(t, err)
	assert.Equal(t, []string{store.Path("2025-03-07"), store.Path("2025-03-14")}, files)
}

func TestCombineWithoutSnapshots(t *testing.T) {
	store := NewSnapshotStore(filepath.Join(t.TempDir(), "missing"), "surtiapp_dataset_", nil)

	n, err := store.Combine()
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = os.Stat(store.RecentPath())
	assert.True(t, os.IsNotExist(err))
}
