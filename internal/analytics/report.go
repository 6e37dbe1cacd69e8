package analytics

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/maltedev/surtiapp-scraper/internal/models"
)

const (
	VariabilityFile  = "1_price_variability.csv"
	StockPriceFile   = "2_stock_vs_price.csv"
	NewProductsFile  = "3_new_products.csv"
	WeeklyTrendsFile = "4a_weekly_trends.csv"
	DailyTrendsFile  = "4b_daily_trends.csv"
	LowStockFile     = "5_low_stock_products.csv"
)

type Options struct {
	// VariabilitySince bounds the price variability window. Zero means one
	// month before Now.
	VariabilitySince time.Time
	// NewSince is the capture date after which unseen products count as new.
	NewSince          time.Time
	LowStockThreshold int
	Now               time.Time
}

func (o Options) withDefaults() Options {
	if o.Now.IsZero() {
		o.Now = time.Now()
	}
	if o.VariabilitySince.IsZero() {
		o.VariabilitySince = o.Now.AddDate(0, -1, 0)
	}
	if o.LowStockThreshold <= 0 {
		o.LowStockThreshold = DefaultLowStockThreshold
	}
	return o
}

type Report struct {
	Variability  []Variability
	StockPrice   Correlation
	NewProducts  []models.ProductRecord
	WeeklyTrends []Trend
	DailyTrends  []Trend
	LowStock     []LowStockItem
}

// Analyze compares a historical dataset with a newer one. Variability and
// trends cover both, the rest only the newer records.
func Analyze(history, recent []models.ProductRecord, opts Options) *Report {
	opts = opts.withDefaults()

	all := make([]models.ProductRecord, 0, len(history)+len(recent))
	all = append(all, history...)
	all = append(all, recent...)

	return &Report{
		Variability:  PriceVariability(all, opts.VariabilitySince),
		StockPrice:   StockPriceCorrelation(history, recent),
		NewProducts:  NewProducts(history, recent, opts.NewSince),
		WeeklyTrends: PriceTrends(all, Weekly),
		DailyTrends:  PriceTrends(all, Daily),
		LowStock:     LowStock(recent, opts.LowStockThreshold),
	}
}

// WriteReport stores every section of r as its own CSV file in dir.
func WriteReport(dir string, r *Report, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}

	files := []struct {
		name   string
		header []string
		rows   [][]string
	}{
		{VariabilityFile, []string{"subcategory", "price"}, variabilityRows(r.Variability)},
		{StockPriceFile, []string{"product_URL", "product_name_new", "price_diff", "available_quantity_new"}, stockPriceRows(r.StockPrice.Rows)},
		{NewProductsFile, []string{"product_name", "product_URL", "date_scrape", "subcategory"}, newProductRows(r.NewProducts)},
		{WeeklyTrendsFile, []string{"subcategory", Weekly.String(), "price"}, trendRows(r.WeeklyTrends)},
		{DailyTrendsFile, []string{"subcategory", Daily.String(), "price"}, trendRows(r.DailyTrends)},
		{LowStockFile, []string{"product_name", "available_quantity", "subcategory"}, lowStockRows(r.LowStock)},
	}

	for _, f := range files {
		path := filepath.Join(dir, f.name)
		if err := writeCSV(path, f.header, f.rows); err != nil {
			return fmt.Errorf("write %s: %w", f.name, err)
		}
		logger.Debug("report section written", "path", path, "rows", len(f.rows))
	}

	logger.Info("report written",
		"dir", dir,
		"subcategories", len(r.Variability),
		"price_changes", len(r.StockPrice.Rows),
		"new_products", len(r.NewProducts),
		"low_stock", len(r.LowStock),
	)
	return nil
}

func writeCSV(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		return err
	}
	return f.Close()
}

func variabilityRows(items []Variability) [][]string {
	rows := make([][]string, 0, len(items))
	for _, v := range items {
		rows = append(rows, []string{v.Subcategory, formatFloat(v.StdDev)})
	}
	return rows
}

func stockPriceRows(items []PriceChange) [][]string {
	rows := make([][]string, 0, len(items))
	for _, c := range items {
		rows = append(rows, []string{
			c.ProductURL,
			formatString(c.ProductName),
			strconv.FormatFloat(c.PriceDiff, 'f', -1, 64),
			strconv.Itoa(c.AvailableQuantityNew),
		})
	}
	return rows
}

func newProductRows(items []models.ProductRecord) [][]string {
	rows := make([][]string, 0, len(items))
	for _, rec := range items {
		rows = append(rows, []string{
			formatString(rec.ProductName),
			rec.ProductURL,
			rec.DateScrape,
			formatString(rec.Subcategory),
		})
	}
	return rows
}

func trendRows(items []Trend) [][]string {
	rows := make([][]string, 0, len(items))
	for _, t := range items {
		rows = append(rows, []string{t.Subcategory, t.Period, formatFloat(t.MeanPrice)})
	}
	return rows
}

func lowStockRows(items []LowStockItem) [][]string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			formatString(item.ProductName),
			strconv.Itoa(item.AvailableQuantity),
			formatString(item.Subcategory),
		})
	}
	return rows
}

func formatString(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func formatFloat(p *float64) string {
	if p == nil {
		return ""
	}
	return strconv.FormatFloat(*p, 'f', -1, 64)
}
