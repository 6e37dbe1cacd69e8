package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/maltedev/surtiapp-scraper/internal/database"
	"github.com/maltedev/surtiapp-scraper/internal/models"
)

// SnapshotCreatedPayload is published once per stored snapshot.
type SnapshotCreatedPayload struct {
	EventID     string         `json:"event_id"`
	EventType   string         `json:"event_type"`
	Timestamp   time.Time      `json:"timestamp"`
	SnapshotID  string         `json:"snapshot_id"`
	RunDate     string         `json:"run_date"`
	RecordCount int            `json:"record_count"`
	NewProducts int            `json:"new_products"`
	Categories  map[string]int `json:"categories"`
	Source      string         `json:"source"`
}

// NewProductDetectedPayload is published for every product URL seen for
// the first time.
type NewProductDetectedPayload struct {
	EventID     string    `json:"event_id"`
	EventType   string    `json:"event_type"`
	Timestamp   time.Time `json:"timestamp"`
	SnapshotID  string    `json:"snapshot_id"`
	ProductURL  string    `json:"product_url"`
	ProductName *string   `json:"product_name,omitempty"`
	SKU         *string   `json:"sku,omitempty"`
	Brand       *string   `json:"brand,omitempty"`
	Category    *string   `json:"category,omitempty"`
	Subcategory *string   `json:"subcategory,omitempty"`
	Price       *float64  `json:"price,omitempty"`
	StockStatus string    `json:"stock_status"`
	DateScrape  string    `json:"date_scrape"`
	Source      string    `json:"source"`
}

const source = "surtiapp-scraper"

// TxRunner runs a function inside one database transaction.
type TxRunner interface {
	Transaction(ctx context.Context, fn func(pgx.Tx) error) error
}

type SnapshotRepo interface {
	InsertSnapshotWithTx(ctx context.Context, tx pgx.Tx, snap *models.Snapshot) error
	InsertRecordsWithTx(ctx context.Context, tx pgx.Tx, snapshotID uuid.UUID, records []models.ProductRecord) (int64, error)
	KnownURLsWithTx(ctx context.Context, tx pgx.Tx, urls []string) (map[string]bool, error)
}

type OutboxWriter interface {
	InsertWithTx(ctx context.Context, tx pgx.Tx, event *database.OutboxEvent) error
}

// Publisher stores snapshots in Postgres and emits their events through the
// transactional outbox, all in one transaction.
type Publisher struct {
	tx        TxRunner
	snapshots SnapshotRepo
	outbox    OutboxWriter
	logger    *slog.Logger
	now       func() time.Time
}

func NewPublisher(db *database.DB, logger *slog.Logger) *Publisher {
	return NewPublisherWith(db, database.NewSnapshotRepository(db), database.NewOutboxRepository(db), logger)
}

func NewPublisherWith(tx TxRunner, snapshots SnapshotRepo, outbox OutboxWriter, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		tx:        tx,
		snapshots: snapshots,
		outbox:    outbox,
		logger:    logger.With("component", "event_publisher"),
		now:       time.Now,
	}
}

func (p *Publisher) Name() string {
	return "postgres"
}

// WriteSnapshot persists snap with its rows, one SNAPSHOT_CREATED event and
// one NEW_PRODUCT_DETECTED event per product URL not stored before.
func (p *Publisher) WriteSnapshot(ctx context.Context, snap *models.Snapshot) error {
	records := snap.Records()
	var newProducts int

	err := p.tx.Transaction(ctx, func(tx pgx.Tx) error {
		known, err := p.snapshots.KnownURLsWithTx(ctx, tx, productURLs(records))
		if err != nil {
			return err
		}

		if err := p.snapshots.InsertSnapshotWithTx(ctx, tx, snap); err != nil {
			return err
		}
		if _, err := p.snapshots.InsertRecordsWithTx(ctx, tx, snap.ID, records); err != nil {
			return err
		}

		fresh := firstUnseen(records, known)
		newProducts = len(fresh)
		for _, rec := range fresh {
			event, err := p.newProductEvent(snap, rec)
			if err != nil {
				return err
			}
			if err := p.outbox.InsertWithTx(ctx, tx, event); err != nil {
				return err
			}
		}

		event, err := p.snapshotEvent(snap, records, newProducts)
		if err != nil {
			return err
		}
		return p.outbox.InsertWithTx(ctx, tx, event)
	})
	if err != nil {
		return fmt.Errorf("failed to publish snapshot: %w", err)
	}

	p.logger.Info("snapshot stored",
		"snapshot_id", snap.ID,
		"records", len(records),
		"new_products", newProducts)

	return nil
}

func (p *Publisher) snapshotEvent(snap *models.Snapshot, records []models.ProductRecord, newProducts int) (*database.OutboxEvent, error) {
	categories := make(map[string]int)
	for _, rec := range records {
		categories[rec.CategoryURL]++
	}

	payload := SnapshotCreatedPayload{
		EventID:     uuid.NewString(),
		EventType:   database.EventSnapshotCreated,
		Timestamp:   p.now().UTC(),
		SnapshotID:  snap.ID.String(),
		RunDate:     snap.Date(),
		RecordCount: len(records),
		NewProducts: newProducts,
		Categories:  categories,
		Source:      source,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	return &database.OutboxEvent{
		AggregateType: database.AggregateTypeSnapshot,
		AggregateID:   snap.ID.String(),
		EventType:     database.EventSnapshotCreated,
		Payload:       data,
		TargetStream:  database.StreamCatalogEvents,
	}, nil
}

func (p *Publisher) newProductEvent(snap *models.Snapshot, rec models.ProductRecord) (*database.OutboxEvent, error) {
	payload := NewProductDetectedPayload{
		EventID:     uuid.NewString(),
		EventType:   database.EventNewProductDetected,
		Timestamp:   p.now().UTC(),
		SnapshotID:  snap.ID.String(),
		ProductURL:  rec.ProductURL,
		ProductName: rec.ProductName,
		SKU:         rec.SKU,
		Brand:       rec.Brand,
		Category:    rec.Category,
		Subcategory: rec.Subcategory,
		Price:       rec.Price,
		StockStatus: string(rec.StockStatus),
		DateScrape:  rec.DateScrape,
		Source:      source,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	return &database.OutboxEvent{
		AggregateType: database.AggregateTypeProduct,
		AggregateID:   rec.ProductURL,
		EventType:     database.EventNewProductDetected,
		Payload:       data,
		TargetStream:  database.StreamCatalogEvents,
	}, nil
}

func productURLs(records []models.ProductRecord) []string {
	seen := make(map[string]bool, len(records))
	urls := make([]string, 0, len(records))
	for _, rec := range records {
		if !seen[rec.ProductURL] {
			seen[rec.ProductURL] = true
			urls = append(urls, rec.ProductURL)
		}
	}
	return urls
}

// firstUnseen keeps the first record of every URL missing from known.
func firstUnseen(records []models.ProductRecord, known map[string]bool) []models.ProductRecord {
	seen := make(map[string]bool)
	var out []models.ProductRecord
	for _, rec := range records {
		if known[rec.ProductURL] || seen[rec.ProductURL] {
			continue
		}
		seen[rec.ProductURL] = true
		out = append(out, rec)
	}
	return out
}
