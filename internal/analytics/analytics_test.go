package analytics

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/surtiapp-scraper/internal/models"
)

func strPtr(s string) *string     { return &s }
func floatPtr(f float64) *float64 { return &f }
func intPtr(i int) *int           { return &i }

type recOpt func(*models.ProductRecord)

func withPrice(p float64) recOpt { return func(r *models.ProductRecord) { r.Price = floatPtr(p) } }
func withQty(q int) recOpt       { return func(r *models.ProductRecord) { r.AvailableQuantity = intPtr(q) } }
func withSub(s string) recOpt    { return func(r *models.ProductRecord) { r.Subcategory = strPtr(s) } }
func withName(n string) recOpt   { return func(r *models.ProductRecord) { r.ProductName = strPtr(n) } }

func record(url, date string, opts ...recOpt) models.ProductRecord {
	r := models.ProductRecord{ProductURL: url, DateScrape: date, Country: models.CountryCode}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

func day(s string) time.Time {
	t, err := time.Parse(models.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestPriceVariability(t *testing.T) {
	records := []models.ProductRecord{
		record("u1", "2025-03-10", withSub("Aseo"), withPrice(10)),
		record("u2", "2025-03-11", withSub("Aseo"), withPrice(20)),
		record("u3", "2025-02-01", withSub("Aseo"), withPrice(1000)),
		record("u4", "2025-03-10", withSub("Bebidas"), withPrice(5)),
		record("u5", "2025-03-10", withSub("Bebidas"), withPrice(6)),
		record("u6", "2025-03-10", withSub("Bebidas"), withPrice(7)),
		record("u7", "2025-03-10", withSub("Bebidas")),
		record("u8", "2025-03-10", withSub("Solo"), withPrice(3)),
		record("u9", "2025-03-10", withPrice(99)),
		record("u10", "not a date", withSub("Aseo"), withPrice(500)),
	}

	got := PriceVariability(records, day("2025-03-01"))
	require.Len(t, got, 3)

	assert.Equal(t, "Aseo", got[0].Subcategory)
	require.NotNil(t, got[0].StdDev)
	assert.InDelta(t, 7.0710678, *got[0].StdDev, 1e-6)

	assert.Equal(t, "Bebidas", got[1].Subcategory)
	require.NotNil(t, got[1].StdDev)
	assert.InDelta(t, 1.0, *got[1].StdDev, 1e-9)
	assert.Equal(t, 3, got[1].Prices)

	assert.Equal(t, "Solo", got[2].Subcategory)
	assert.Nil(t, got[2].StdDev)
}

func TestStockPriceCorrelation(t *testing.T) {
	older := []models.ProductRecord{
		record("u1", "2025-03-01", withPrice(100)),
		record("u2", "2025-03-01", withPrice(50)),
		record("u3", "2025-03-01", withPrice(10)),
	}
	newer := []models.ProductRecord{
		record("u1", "2025-03-10", withPrice(110), withQty(1), withName("Arroz")),
		record("u1", "2025-03-11", withPrice(120), withQty(2), withName("Arroz")),
		record("u2", "2025-03-10", withPrice(40), withQty(10)),
		record("u3", "2025-03-10", withQty(5)),
		record("u4", "2025-03-10", withPrice(1), withQty(1)),
	}

	got := StockPriceCorrelation(older, newer)
	require.Len(t, got.Rows, 3)
	assert.Equal(t, PriceChange{ProductURL: "u1", ProductName: strPtr("Arroz"), PriceDiff: 10, AvailableQuantityNew: 1}, got.Rows[0])
	assert.Equal(t, 20.0, got.Rows[1].PriceDiff)
	assert.Equal(t, -10.0, got.Rows[2].PriceDiff)
	assert.Nil(t, got.Rows[2].ProductName)

	require.NotNil(t, got.Coefficient)
	assert.InDelta(t, -0.9069, *got.Coefficient, 1e-3)
}

func TestStockPriceCorrelationUndefined(t *testing.T) {
	older := []models.ProductRecord{record("u1", "2025-03-01", withPrice(100))}
	newer := []models.ProductRecord{record("u1", "2025-03-10", withPrice(90), withQty(3))}

	got := StockPriceCorrelation(older, newer)
	assert.Len(t, got.Rows, 1)
	assert.Nil(t, got.Coefficient)

	assert.Nil(t, StockPriceCorrelation(nil, newer).Coefficient)
}

func TestNewProducts(t *testing.T) {
	older := []models.ProductRecord{record("u1", "2025-03-01")}
	newer := []models.ProductRecord{
		record("u9", "2025-03-10", withName("first")),
		record("u9", "2025-03-11", withName("second")),
		record("u1", "2025-03-10"),
		record("u8", "2025-03-06"),
		record("u7", "2025-03-07"),
	}

	got := NewProducts(older, newer, day("2025-03-06"))
	require.Len(t, got, 2)
	assert.Equal(t, "u9", got[0].ProductURL)
	assert.Equal(t, "first", *got[0].ProductName)
	assert.Equal(t, "u7", got[1].ProductURL)
}

func TestPriceTrendsWeekly(t *testing.T) {
	records := []models.ProductRecord{
		record("u1", "2025-03-10", withSub("Aseo"), withPrice(10)),
		record("u2", "2025-03-16", withSub("Aseo"), withPrice(20)),
		record("u3", "2025-03-17", withSub("Aseo"), withPrice(30)),
		record("u4", "2025-03-12", withSub("Bebidas")),
		record("u5", "2025-03-12", withPrice(1)),
	}

	got := PriceTrends(records, Weekly)
	require.Len(t, got, 3)

	assert.Equal(t, "Aseo", got[0].Subcategory)
	assert.Equal(t, "2025-03-10/2025-03-16", got[0].Period)
	assert.InDelta(t, 15.0, *got[0].MeanPrice, 1e-9)

	assert.Equal(t, "2025-03-17/2025-03-23", got[1].Period)
	assert.InDelta(t, 30.0, *got[1].MeanPrice, 1e-9)

	assert.Equal(t, "Bebidas", got[2].Subcategory)
	assert.Nil(t, got[2].MeanPrice)
}

func TestPriceTrendsDaily(t *testing.T) {
	records := []models.ProductRecord{
		record("u1", "2025-03-10", withSub("Aseo"), withPrice(10)),
		record("u2", "2025-03-10", withSub("Aseo"), withPrice(30)),
		record("u3", "2025-03-11", withSub("Aseo"), withPrice(5)),
	}

	got := PriceTrends(records, Daily)
	require.Len(t, got, 2)
	assert.Equal(t, Trend{Subcategory: "Aseo", Period: "2025-03-10", MeanPrice: floatPtr(20)}, got[0])
	assert.Equal(t, "2025-03-11", got[1].Period)
}

func TestLowStock(t *testing.T) {
	records := []models.ProductRecord{
		record("u1", "2025-03-10", withName("Jabón"), withQty(3), withSub("Aseo")),
		record("u1", "2025-03-12", withName("Jabón"), withQty(5), withSub("Aseo")),
		record("u2", "2025-03-12", withName("Arroz"), withQty(8)),
		record("u3", "2025-03-11", withName("Sal"), withQty(7)),
		record("u4", "2025-03-11", withName("Azúcar")),
	}

	got := LowStock(records, DefaultLowStockThreshold)
	require.Len(t, got, 2)
	assert.Equal(t, "Jabón", *got[0].ProductName)
	assert.Equal(t, 5, got[0].AvailableQuantity)
	assert.Equal(t, "Aseo", *got[0].Subcategory)
	assert.Equal(t, "Sal", *got[1].ProductName)
}

func TestAnalyzeDefaults(t *testing.T) {
	history := []models.ProductRecord{
		record("u1", "2025-03-01", withSub("Aseo"), withPrice(10), withQty(2), withName("Jabón")),
	}
	recent := []models.ProductRecord{
		record("u1", "2025-03-20", withSub("Aseo"), withPrice(12), withQty(20), withName("Jabón")),
		record("u2", "2025-03-20", withSub("Aseo"), withPrice(14), withQty(1), withName("Sal")),
	}

	r := Analyze(history, recent, Options{Now: day("2025-03-25"), NewSince: day("2025-03-06")})

	require.Len(t, r.Variability, 1)
	assert.Equal(t, 3, r.Variability[0].Prices)
	assert.Len(t, r.StockPrice.Rows, 1)
	require.Len(t, r.NewProducts, 1)
	assert.Equal(t, "u2", r.NewProducts[0].ProductURL)
	require.Len(t, r.LowStock, 1)
	assert.Equal(t, "Sal", *r.LowStock[0].ProductName)
	assert.NotEmpty(t, r.WeeklyTrends)
	assert.NotEmpty(t, r.DailyTrends)
}

func TestWriteReport(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	r := &Report{
		Variability: []Variability{
			{Subcategory: "Aseo", StdDev: floatPtr(2.5), Prices: 2},
			{Subcategory: "Solo", Prices: 1},
		},
		NewProducts: []models.ProductRecord{record("u1", "2025-03-10", withName("Jabón"))},
	}

	require.NoError(t, WriteReport(dir, r, nil))

	for _, name := range []string{VariabilityFile, StockPriceFile, NewProductsFile, WeeklyTrendsFile, DailyTrendsFile, LowStockFile} {
		assert.FileExists(t, filepath.Join(dir, name))
	}

	rows := readCSV(t, filepath.Join(dir, VariabilityFile))
	assert.Equal(t, [][]string{{"subcategory", "price"}, {"Aseo", "2.5"}, {"Solo", ""}}, rows)

	rows = readCSV(t, filepath.Join(dir, NewProductsFile))
	assert.Equal(t, [][]string{
		{"product_name", "product_URL", "date_scrape", "subcategory"},
		{"Jabón", "u1", "2025-03-10", ""},
	}, rows)

	rows = readCSV(t, filepath.Join(dir, WeeklyTrendsFile))
	assert.Equal(t, [][]string{{"subcategory", "week", "price"}}, rows)
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}
