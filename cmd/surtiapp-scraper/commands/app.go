package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/maltedev/surtiapp-scraper/internal/catalog"
	"github.com/maltedev/surtiapp-scraper/internal/config"
	"github.com/maltedev/surtiapp-scraper/internal/database"
	"github.com/maltedev/surtiapp-scraper/internal/events"
	"github.com/maltedev/surtiapp-scraper/internal/fetcher"
	"github.com/maltedev/surtiapp-scraper/internal/jobs"
	"github.com/maltedev/surtiapp-scraper/internal/metrics"
	"github.com/maltedev/surtiapp-scraper/internal/navigator"
	"github.com/maltedev/surtiapp-scraper/internal/ratelimit"
	"github.com/maltedev/surtiapp-scraper/internal/scraper"
	"github.com/maltedev/surtiapp-scraper/internal/storage"
)

// app holds the wired pipeline shared by the scrape and serve commands.
type app struct {
	metrics *metrics.Metrics
	store   *storage.SnapshotStore
	db      *database.DB
	jobs    *jobs.Manager
}

func newApp(ctx context.Context, cfg *config.Config, categories []config.Category, logger *slog.Logger) (*app, error) {
	a := &app{
		metrics: metrics.New(),
		store:   storage.NewSnapshotStore(cfg.Catalog.DataDir, cfg.Catalog.FilePrefix, logger),
	}

	writers := []catalog.SnapshotWriter{a.store}
	if cfg.Database.Enabled {
		db, err := database.New(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		a.db = db
		writers = append(writers, events.NewPublisher(db, logger))
	}

	limiter := ratelimit.NewTokenBucket(cfg.Scraper.RequestsPerSecond, cfg.Scraper.Burst)
	detail := fetcher.NewClient(cfg.Upstream, cfg.Scraper.RequestTimeout,
		fetcher.WithLimiter(limiter),
		fetcher.WithMetrics(a.metrics),
		fetcher.WithLogger(logger),
	)

	nav := navigator.New(
		navigator.NewPlaywrightFactory(cfg.Browser, cfg.Upstream, logger),
		navigator.OptionsFromConfig(cfg.Browser),
		a.metrics,
		logger,
	)

	categoryScraper := scraper.NewCategoryScraper(nav, detail, scraper.OptionsFromConfig(cfg.Scraper), a.metrics, logger)

	builder := catalog.NewBuilder(categoryScraper, writers,
		catalog.WithPacer(ratelimit.NewSimpleRateLimiter(cfg.Catalog.CategoryDelayMin, cfg.Catalog.CategoryDelayMax)),
		catalog.WithMetrics(a.metrics),
		catalog.WithLogger(logger),
	)

	a.jobs = jobs.NewManager(builder, categories, a.metrics, logger)
	return a, nil
}

func (a *app) close() {
	if a.db != nil {
		a.db.Close()
	}
}

// selectCategories keeps the configured categories whose name matches one
// of names, in configured order. No names selects everything.
func selectCategories(all []config.Category, names []string) ([]config.Category, error) {
	if len(names) == 0 {
		return all, nil
	}

	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[strings.ToLower(strings.TrimSpace(n))] = true
	}

	var out []config.Category
	for _, c := range all {
		if wanted[strings.ToLower(c.Name)] {
			out = append(out, c)
			delete(wanted, strings.ToLower(c.Name))
		}
	}
	if len(wanted) > 0 {
		unknown := make([]string, 0, len(wanted))
		for n := range wanted {
			unknown = append(unknown, n)
		}
		return nil, fmt.Errorf("unknown categories: %s", strings.Join(unknown, ", "))
	}
	return out, nil
}
