package analytics

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/maltedev/surtiapp-scraper/internal/models"
)

// DefaultLowStockThreshold is the available quantity at or below which a
// product is reported as low on stock.
const DefaultLowStockThreshold = 7

// Period is the bucket width of a price trend.
type Period int

const (
	Weekly Period = iota
	Daily
)

func (p Period) String() string {
	if p == Daily {
		return "day"
	}
	return "week"
}

// label renders the bucket holding t. Weekly buckets run Monday to Sunday.
func (p Period) label(t time.Time) string {
	if p == Daily {
		return t.Format(models.DateLayout)
	}
	offset := (int(t.Weekday()) + 6) % 7
	start := t.AddDate(0, 0, -offset)
	end := start.AddDate(0, 0, 6)
	return start.Format(models.DateLayout) + "/" + end.Format(models.DateLayout)
}

// Variability is the sample standard deviation of prices in one subcategory.
// StdDev is nil when fewer than two prices were seen.
type Variability struct {
	Subcategory string
	StdDev      *float64
	Prices      int
}

// PriceChange joins one earlier observation of a product with a newer one.
type PriceChange struct {
	ProductURL           string
	ProductName          *string
	PriceDiff            float64
	AvailableQuantityNew int
}

// Correlation holds the joined rows and the Pearson coefficient between the
// newer quantity and the price difference. Coefficient is nil when it is
// undefined.
type Correlation struct {
	Rows        []PriceChange
	Coefficient *float64
}

// Trend is the mean price of a subcategory in one period bucket.
type Trend struct {
	Subcategory string
	Period      string
	MeanPrice   *float64
}

type LowStockItem struct {
	ProductName       *string
	AvailableQuantity int
	Subcategory       *string
}

var dateLayouts = []string{
	models.DateLayout,
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// captureDate parses the record's capture date in loc. Unparseable dates
// are reported as missing.
func captureDate(rec models.ProductRecord, loc *time.Location) (time.Time, bool) {
	value := strings.TrimSpace(rec.DateScrape)
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// PriceVariability ranks subcategories by the spread of prices captured
// after since, largest first. Records without a subcategory are ignored.
func PriceVariability(records []models.ProductRecord, since time.Time) []Variability {
	groups := make(map[string][]float64)
	for _, rec := range records {
		if rec.Subcategory == nil {
			continue
		}
		date, ok := captureDate(rec, since.Location())
		if !ok || !date.After(since) {
			continue
		}
		prices := groups[*rec.Subcategory]
		if rec.Price != nil && !math.IsNaN(*rec.Price) {
			prices = append(prices, *rec.Price)
		}
		groups[*rec.Subcategory] = prices
	}

	out := make([]Variability, 0, len(groups))
	for name, prices := range groups {
		out = append(out, Variability{
			Subcategory: name,
			StdDev:      sampleStdDev(prices),
			Prices:      len(prices),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].StdDev, out[j].StdDev
		switch {
		case a == nil && b == nil:
			return out[i].Subcategory < out[j].Subcategory
		case a == nil:
			return false
		case b == nil:
			return true
		case *a != *b:
			return *a > *b
		}
		return out[i].Subcategory < out[j].Subcategory
	})
	return out
}

// StockPriceCorrelation pairs every older observation of a product URL with
// every newer one. Pairs missing either price or the newer quantity are
// dropped.
func StockPriceCorrelation(older, newer []models.ProductRecord) Correlation {
	byURL := make(map[string][]models.ProductRecord)
	for _, rec := range newer {
		byURL[rec.ProductURL] = append(byURL[rec.ProductURL], rec)
	}

	var rows []PriceChange
	for _, old := range older {
		for _, cur := range byURL[old.ProductURL] {
			if old.Price == nil || cur.Price == nil || cur.AvailableQuantity == nil {
				continue
			}
			rows = append(rows, PriceChange{
				ProductURL:           old.ProductURL,
				ProductName:          cur.ProductName,
				PriceDiff:            *cur.Price - *old.Price,
				AvailableQuantityNew: *cur.AvailableQuantity,
			})
		}
	}

	xs := make([]float64, len(rows))
	ys := make([]float64, len(rows))
	for i, row := range rows {
		xs[i] = float64(row.AvailableQuantityNew)
		ys[i] = row.PriceDiff
	}

	return Correlation{Rows: rows, Coefficient: pearson(xs, ys)}
}

// NewProducts returns the newer records whose URL never appears in older and
// that were captured after since. Only the first record of each URL is kept.
func NewProducts(older, newer []models.ProductRecord, since time.Time) []models.ProductRecord {
	known := make(map[string]bool, len(older))
	for _, rec := range older {
		known[rec.ProductURL] = true
	}

	seen := make(map[string]bool)
	var out []models.ProductRecord
	for _, rec := range newer {
		if known[rec.ProductURL] || seen[rec.ProductURL] {
			continue
		}
		date, ok := captureDate(rec, since.Location())
		if !ok || !date.After(since) {
			continue
		}
		seen[rec.ProductURL] = true
		out = append(out, rec)
	}
	return out
}

// PriceTrends averages prices per subcategory and period bucket, ordered by
// subcategory then bucket. Buckets whose records carry no price have a nil
// mean.
func PriceTrends(records []models.ProductRecord, period Period) []Trend {
	type key struct{ subcategory, bucket string }
	type acc struct {
		sum   float64
		count int
	}

	groups := make(map[key]*acc)
	for _, rec := range records {
		if rec.Subcategory == nil {
			continue
		}
		date, ok := captureDate(rec, time.UTC)
		if !ok {
			continue
		}
		k := key{*rec.Subcategory, period.label(date)}
		a, exists := groups[k]
		if !exists {
			a = &acc{}
			groups[k] = a
		}
		if rec.Price != nil && !math.IsNaN(*rec.Price) {
			a.sum += *rec.Price
			a.count++
		}
	}

	out := make([]Trend, 0, len(groups))
	for k, a := range groups {
		t := Trend{Subcategory: k.subcategory, Period: k.bucket}
		if a.count > 0 {
			mean := a.sum / float64(a.count)
			t.MeanPrice = &mean
		}
		out = append(out, t)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Subcategory != out[j].Subcategory {
			return out[i].Subcategory < out[j].Subcategory
		}
		return out[i].Period < out[j].Period
	})
	return out
}

// LowStock lists products whose available quantity is at or below
// threshold, keeping the most recently captured record per product name.
func LowStock(records []models.ProductRecord, threshold int) []LowStockItem {
	type candidate struct {
		rec  models.ProductRecord
		date time.Time
	}

	var low []candidate
	for _, rec := range records {
		if rec.AvailableQuantity == nil || *rec.AvailableQuantity > threshold {
			continue
		}
		date, _ := captureDate(rec, time.UTC)
		low = append(low, candidate{rec: rec, date: date})
	}

	sort.SliceStable(low, func(i, j int) bool {
		return low[i].date.After(low[j].date)
	})

	seen := make(map[string]bool)
	seenUnnamed := false
	out := make([]LowStockItem, 0, len(low))
	for _, c := range low {
		if c.rec.ProductName == nil {
			if seenUnnamed {
				continue
			}
			seenUnnamed = true
		} else {
			if seen[*c.rec.ProductName] {
				continue
			}
			seen[*c.rec.ProductName] = true
		}
		out = append(out, LowStockItem{
			ProductName:       c.rec.ProductName,
			AvailableQuantity: *c.rec.AvailableQuantity,
			Subcategory:       c.rec.Subcategory,
		})
	}
	return out
}

func sampleStdDev(values []float64) *float64 {
	n := len(values)
	if n < 2 {
		return nil
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(n)

	ss := 0.0
	for _, v := range values {
		d := v - mean
		ss += d * d
	}
	sd := math.Sqrt(ss / float64(n-1))
	return &sd
}

func pearson(xs, ys []float64) *float64 {
	n := len(xs)
	if n < 2 || n != len(ys) {
		return nil
	}

	var mx, my float64
	for i := range xs {
		mx += xs[i]
		my += ys[i]
	}
	mx /= float64(n)
	my /= float64(n)

	var cov, vx, vy float64
	for i := range xs {
		dx := xs[i] - mx
		dy := ys[i] - my
		cov += dx * dy
		vx += dx * dx
		vy += dy * dy
	}
	if vx == 0 || vy == 0 {
		return nil
	}
	r := cov / math.Sqrt(vx*vy)
	return &r
}
