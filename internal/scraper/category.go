package scraper

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/maltedev/surtiapp-scraper/internal/fetcher"
	"github.com/maltedev/surtiapp-scraper/internal/metrics"
	"github.com/maltedev/surtiapp-scraper/internal/models"
)

// CategoryScraper discovers the products of a category and fetches their
// details with bounded parallelism.
type CategoryScraper struct {
	discoverer Discoverer
	fetcher    fetcher.Fetcher
	opts       Options
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time
}

func NewCategoryScraper(d Discoverer, f fetcher.Fetcher, opts Options, m *metrics.Metrics, logger *slog.Logger) *CategoryScraper {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CategoryScraper{
		discoverer: d,
		fetcher:    f,
		opts:       opts,
		metrics:    m,
		logger:     logger.With("component", "category_scraper"),
		now:        time.Now,
	}
}

// Scrape returns one record per successfully fetched product, in no
// particular order. Discovery failures and panics yield an empty result.
func (s *CategoryScraper) Scrape(ctx context.Context, categoryURL string) (records []models.ProductRecord) {
	label := CategoryLabel(categoryURL)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("category scrape panicked", "category", label, "panic", r)
			s.metrics.IncCategoryFailure(label)
			records = nil
		}
	}()

	s.logger.Info("scraping category", "category", label, "url", categoryURL)

	candidates, err := s.discoverer.Discover(ctx, categoryURL)
	if err != nil {
		s.logger.Error("category discovery failed", "category", label, "error", err)
		s.metrics.IncCategoryFailure(label)
		return nil
	}
	s.metrics.AddCandidates(label, len(candidates))

	capture := models.NewCapture(categoryURL, s.now())

	var (
		mu  sync.Mutex
		out = make([]models.ProductRecord, 0, len(candidates))
	)

	var g errgroup.Group
	g.SetLimit(s.opts.Workers)

	for _, item := range candidates {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("product fetch panicked", "product_id", item.ID, "panic", r)
				}
			}()

			detail, err := s.fetch(ctx, item.ID)
			if err != nil {
				return nil
			}

			record := fetcher.ToRecord(detail, item, capture)
			mu.Lock()
			out = append(out, record)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	s.metrics.AddRecords(label, len(out))
	s.logger.Info("category scraped",
		"category", label,
		"candidates", len(candidates),
		"records", len(out),
		"duration", time.Since(start).Round(time.Millisecond))

	return out
}

// fetch calls the fetcher, retrying transient failures when retries are
// configured.
func (s *CategoryScraper) fetch(ctx context.Context, id string) (*fetcher.Detail, error) {
	if s.opts.MaxRetries <= 0 {
		return s.fetcher.Fetch(ctx, id)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.opts.RetryDelay
	if s.opts.RetryDelayMax > 0 {
		policy.MaxInterval = s.opts.RetryDelayMax
	}
	policy.MaxElapsedTime = 0

	var detail *fetcher.Detail
	operation := func() error {
		d, err := s.fetcher.Fetch(ctx, id)
		if err != nil {
			if !fetcher.IsRetryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		detail = d
		return nil
	}
	notify := func(err error, wait time.Duration) {
		s.metrics.IncRetries()
		s.logger.Debug("retrying product fetch", "product_id", id, "wait", wait, "error", err)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(s.opts.MaxRetries)), ctx)
	if err := backoff.RetryNotify(operation, b, notify); err != nil {
		return nil, err
	}
	return detail, nil
}
