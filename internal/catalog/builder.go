package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maltedev/surtiapp-scraper/internal/config"
	"github.com/maltedev/surtiapp-scraper/internal/metrics"
	"github.com/maltedev/surtiapp-scraper/internal/models"
	"github.com/maltedev/surtiapp-scraper/internal/ratelimit"
	"github.com/maltedev/surtiapp-scraper/internal/scraper"
)

// SnapshotWriter persists a finished snapshot.
type SnapshotWriter interface {
	Name() string
	WriteSnapshot(ctx context.Context, snap *models.Snapshot) error
}

// Builder runs the category scraper over an ordered category list and
// hands the combined snapshot to its writers.
type Builder struct {
	scraper scraper.Scraper
	writers []SnapshotWriter
	pacer   ratelimit.RateLimiter
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

type Option func(*Builder)

// WithPacer spaces consecutive categories.
func WithPacer(p ratelimit.RateLimiter) Option {
	return func(b *Builder) { b.pacer = p }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Builder) { b.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(b *Builder) { b.logger = l }
}

func NewBuilder(s scraper.Scraper, writers []SnapshotWriter, opts ...Option) *Builder {
	b := &Builder{
		scraper: s,
		writers: writers,
		pacer:   ratelimit.Unlimited{},
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("component", "catalog_builder")
	return b
}

// Build scrapes every category in order. A failing category is logged and
// skipped. A non-empty snapshot is passed to every writer; writer failures
// are joined into the returned error. The returned snapshot is sealed.
func (b *Builder) Build(ctx context.Context, categories []config.Category) (*models.Snapshot, error) {
	start := b.now()
	snap := models.NewSnapshot(start)

	b.logger.Info("catalog run started", "snapshot_id", snap.ID, "categories", len(categories))

	for _, category := range categories {
		if err := b.pace(ctx); err != nil {
			snap.Seal()
			return snap, fmt.Errorf("catalog run interrupted: %w", err)
		}

		records, err := b.scrapeCategory(ctx, category)
		if err != nil {
			b.logger.Error("category failed", "category", category.Name, "error", err)
			b.metrics.IncCategoryFailure(category.Name)
			continue
		}

		if err := snap.Append(records...); err != nil {
			return snap, err
		}
		b.logger.Info("category collected", "category", category.Name, "records", len(records))
	}

	snap.Seal()
	b.metrics.SetSnapshotRecords(snap.Len())

	if snap.Empty() {
		b.logger.Warn("no data found, snapshot not written", "snapshot_id", snap.ID)
		return snap, nil
	}

	var errs []error
	for _, w := range b.writers {
		if err := w.WriteSnapshot(ctx, snap); err != nil {
			b.logger.Error("snapshot writer failed", "writer", w.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s writer: %w", w.Name(), err))
		}
	}

	b.logger.Info("catalog run finished",
		"snapshot_id", snap.ID,
		"records", snap.Len(),
		"duration", b.now().Sub(start).Round(time.Second))

	return snap, errors.Join(errs...)
}

func (b *Builder) pace(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.pacer.Wait(ctx)
}

func (b *Builder) scrapeCategory(ctx context.Context, category config.Category) (records []models.ProductRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			records = nil
		}
	}()

	return b.scraper.Scrape(ctx, category.URL), nil
}
