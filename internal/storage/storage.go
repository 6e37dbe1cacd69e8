package storage

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/maltedev/surtiapp-scraper/internal/models"
)

// NotAvailable stands in for a missing value in snapshot files.
const NotAvailable = "N/A"

const recentSuffix = "recent"

// Header lists the snapshot columns in file order.
var Header = []string{
	"product_URL", "category", "subcategory", "sku", "price", "discount_percentage",
	"discount_price", "product_name", "available_quantity", "primary_image", "stock_status",
	"brand", "date_scrape", "country", "Category_URL", "scraping_timestamp",
}

var ErrMissingColumn = errors.New("snapshot file is missing a required column")

// SnapshotStore keeps dated CSV snapshots in one directory.
type SnapshotStore struct {
	mu     sync.Mutex
	dir    string
	prefix string
	logger *slog.Logger
}

func NewSnapshotStore(dir, prefix string, logger *slog.Logger) *SnapshotStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotStore{
		dir:    dir,
		prefix: prefix,
		logger: logger.With("component", "snapshot_store"),
	}
}

func (s *SnapshotStore) Name() string {
	return "csv"
}

// Path returns the file holding the snapshot of date.
func (s *SnapshotStore) Path(date string) string {
	return filepath.Join(s.dir, s.prefix+date+".csv")
}

// RecentPath is the output of Combine.
func (s *SnapshotStore) RecentPath() string {
	return s.Path(recentSuffix)
}

// WriteSnapshot stores the snapshot under its run date, replacing an
// earlier file of the same date.
func (s *SnapshotStore) WriteSnapshot(ctx context.Context, snap *models.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path := s.Path(snap.Date())
	if err := s.save(path, snap.Records()); err != nil {
		return err
	}

	s.logger.Info("snapshot written", "path", path, "records", snap.Len())
	return nil
}

func (s *SnapshotStore) save(path string, records []models.ProductRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	tmpFile := path + ".tmp"
	f, err := os.Create(tmpFile)
	if err != nil {
		return fmt.Errorf("create csv file: %w", err)
	}

	if err := WriteRecords(f, records); err != nil {
		f.Close()
		os.Remove(tmpFile)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("close csv file: %w", err)
	}

	return os.Rename(tmpFile, path)
}

// List returns the dated snapshot files in name order. The combined file is
// not included.
func (s *SnapshotStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	recent := filepath.Base(s.RecentPath())
	var files []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || name == recent {
			continue
		}
		if strings.HasPrefix(name, s.prefix) && strings.HasSuffix(name, ".csv") {
			files = append(files, filepath.Join(s.dir, name))
		}
	}
	sort.Strings(files)
	return files, nil
}

// Combine concatenates every dated snapshot into the recent file, replacing
// any previous one. It returns the number of rows written. When there are
// no snapshots nothing is written.
func (s *SnapshotStore) Combine() (int, error) {
	recent := s.RecentPath()
	if err := os.Remove(recent); err != nil && !errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("remove previous combined file: %w", err)
	}

	files, err := s.List()
	if err != nil {
		return 0, err
	}
	if len(files) == 0 {
		s.logger.Warn("no snapshots to combine", "dir", s.dir)
		return 0, nil
	}

	var all []models.ProductRecord
	for _, file := range files {
		records, err := ReadFile(file)
		if err != nil {
			return 0, fmt.Errorf("read %s: %w", file, err)
		}
		s.logger.Debug("loaded snapshot", "path", file, "records", len(records))
		all = append(all, records...)
	}

	if err := s.save(recent, all); err != nil {
		return 0, err
	}

	s.logger.Info("snapshots combined", "files", len(files), "records", len(all), "path", recent)
	return len(all), nil
}

// WriteRecords writes the header and one row per record.
func WriteRecords(w io.Writer, records []models.ProductRecord) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(Header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, r := range records {
		if err := writer.Write(toRow(r)); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return nil
}

func ReadFile(path string) ([]models.ProductRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ReadRecords(f)
}

// ReadRecords parses a snapshot file. Columns are matched by name; "N/A",
// empty and unparseable numeric cells become nil.
func ReadRecords(r io.Reader) ([]models.ProductRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.TrimPrefix(strings.TrimSpace(name), "\ufeff")] = i
	}
	if _, ok := columns["product_URL"]; !ok {
		return nil, fmt.Errorf("%w: product_URL", ErrMissingColumn)
	}

	var records []models.ProductRecord
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv record: %w", err)
		}
		records = append(records, fromRow(row, columns))
	}
	return records, nil
}

func toRow(r models.ProductRecord) []string {
	return []string{
		r.ProductURL,
		formatString(r.Category),
		formatString(r.Subcategory),
		formatString(r.SKU),
		formatFloat(r.Price),
		formatFloat(r.DiscountPercentage),
		formatFloat(r.DiscountPrice),
		formatString(r.ProductName),
		formatInt(r.AvailableQuantity),
		formatString(r.PrimaryImage),
		string(r.StockStatus),
		formatString(r.Brand),
		r.DateScrape,
		r.Country,
		r.CategoryURL,
		r.ScrapedAt.UTC().Format(models.TimestampLayout),
	}
}

func fromRow(row []string, columns map[string]int) models.ProductRecord {
	cell := func(name string) string {
		i, ok := columns[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	record := models.ProductRecord{
		ProductURL:         cell("product_URL"),
		Category:           parseString(cell("category")),
		Subcategory:        parseString(cell("subcategory")),
		SKU:                parseString(cell("sku")),
		Price:              parseFloat(cell("price")),
		DiscountPercentage: parseFloat(cell("discount_percentage")),
		DiscountPrice:      parseFloat(cell("discount_price")),
		ProductName:        parseString(cell("product_name")),
		AvailableQuantity:  parseInt(cell("available_quantity")),
		PrimaryImage:       parseString(cell("primary_image")),
		StockStatus:        models.StockStatus(cell("stock_status")),
		Brand:              parseString(cell("brand")),
		DateScrape:         cell("date_scrape"),
		Country:            cell("country"),
		CategoryURL:        cell("Category_URL"),
	}
	if ts, err := time.Parse(models.TimestampLayout, cell("scraping_timestamp")); err == nil {
		record.ScrapedAt = ts
	}
	return record
}

func formatString(p *string) string {
	if p == nil {
		return NotAvailable
	}
	return *p
}

func formatFloat(p *float64) string {
	if p == nil {
		return NotAvailable
	}
	return strconv.FormatFloat(*p, 'f', -1, 64)
}

func formatInt(p *int) string {
	if p == nil {
		return NotAvailable
	}
	return strconv.Itoa(*p)
}

func missing(s string) bool {
	return s == "" || s == NotAvailable
}

func parseString(s string) *string {
	if missing(s) {
		return nil
	}
	return &s
}

func parseFloat(s string) *float64 {
	if missing(s) {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

// parseInt accepts integral floats such as "12.0" as written by dataframe
// exports.
func parseInt(s string) *int {
	f := parseFloat(s)
	if f == nil {
		return nil
	}
	v := int(*f)
	return &v
}
