package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	// DateLayout is the calendar date format used for capture dates and snapshot names.
	DateLayout = "2006-01-02"
	// TimestampLayout renders capture timestamps with microsecond precision.
	TimestampLayout = "2006-01-02 15:04:05.000000 UTC"

	CountryCode = "co"
)

var ErrSnapshotSealed = errors.New("snapshot is sealed")

type StockStatus string

const (
	StockInStock    StockStatus = "In Stock"
	StockOutOfStock StockStatus = "Out of Stock"
)

// StockStatusFor derives the stock status from the available quantity.
// A missing quantity counts as out of stock.
func StockStatusFor(quantity *int) StockStatus {
	if quantity != nil && *quantity > 0 {
		return StockInStock
	}
	return StockOutOfStock
}

// ProductRecord is one row of a catalog snapshot. Nil pointers mean the
// upstream did not provide the field.
type ProductRecord struct {
	ProductURL         string      `json:"product_url"`
	Category           *string     `json:"category,omitempty"`
	Subcategory        *string     `json:"subcategory,omitempty"`
	SKU                *string     `json:"sku,omitempty"`
	Price              *float64    `json:"price,omitempty"`
	DiscountPercentage *float64    `json:"discount_percentage,omitempty"`
	DiscountPrice      *float64    `json:"discount_price,omitempty"`
	ProductName        *string     `json:"product_name,omitempty"`
	AvailableQuantity  *int        `json:"available_quantity,omitempty"`
	PrimaryImage       *string     `json:"primary_image,omitempty"`
	StockStatus        StockStatus `json:"stock_status"`
	Brand              *string     `json:"brand,omitempty"`
	DateScrape         string      `json:"date_scrape"`
	Country            string      `json:"country"`
	CategoryURL        string      `json:"category_url"`
	ScrapedAt          time.Time   `json:"scraping_timestamp"`
}

// CandidateItem is a product discovered on a category page but not fetched yet.
type CandidateItem struct {
	ID  string
	URL string
}

// Capture holds the values shared by every record of one category scrape,
// so records of the same run compare by capture time.
type Capture struct {
	CategoryURL string
	Date        string
	Timestamp   time.Time
}

// NewCapture stamps a capture at now: the date in local time, the timestamp in UTC.
func NewCapture(categoryURL string, now time.Time) Capture {
	return Capture{
		CategoryURL: categoryURL,
		Date:        now.Format(DateLayout),
		Timestamp:   now.UTC(),
	}
}

// Snapshot is the collection of records produced by one catalog run.
type Snapshot struct {
	ID      uuid.UUID
	RunDate time.Time
	records []ProductRecord
	sealed  bool
}

func NewSnapshot(runDate time.Time) *Snapshot {
	return &Snapshot{
		ID:      uuid.New(),
		RunDate: runDate,
		records: make([]ProductRecord, 0),
	}
}

// Append grows the snapshot. It fails once the snapshot has been sealed.
func (s *Snapshot) Append(records ...ProductRecord) error {
	if s.sealed {
		return ErrSnapshotSealed
	}
	s.records = append(s.records, records...)
	return nil
}

// Seal marks the snapshot as written. Further appends are rejected.
func (s *Snapshot) Seal() {
	s.sealed = true
}

func (s *Snapshot) Sealed() bool {
	return s.sealed
}

// Records returns a copy of the snapshot rows in insertion order.
func (s *Snapshot) Records() []ProductRecord {
	out := make([]ProductRecord, len(s.records))
	copy(out, s.records)
	return out
}

func (s *Snapshot) Len() int {
	return len(s.records)
}

func (s *Snapshot) Empty() bool {
	return len(s.records) == 0
}

// Date returns the run date rendered for file names.
func (s *Snapshot) Date() string {
	return s.RunDate.Format(DateLayout)
}
