package scraper

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/maltedev/surtiapp-scraper/internal/config"
	"github.com/maltedev/surtiapp-scraper/internal/models"
)

const (
	categoryMarker = "/SearchByCategoryResults/"
	unknownLabel   = "Unknown"
)

// Discoverer enumerates the products listed on a category page.
type Discoverer interface {
	Discover(ctx context.Context, categoryURL string) ([]models.CandidateItem, error)
}

// Scraper produces the records of one category. It never fails; problems
// show up as missing records.
type Scraper interface {
	Scrape(ctx context.Context, categoryURL string) []models.ProductRecord
}

type Options struct {
	Workers       int
	MaxRetries    int
	RetryDelay    time.Duration
	RetryDelayMax time.Duration
}

func OptionsFromConfig(cfg config.ScraperConfig) Options {
	return Options{
		Workers:       cfg.Workers,
		MaxRetries:    cfg.MaxRetries,
		RetryDelay:    cfg.RetryDelay,
		RetryDelayMax: cfg.RetryDelayMax,
	}
}

// CategoryLabel derives a display label from a category URL: the
// path-unescaped segment following /SearchByCategoryResults/.
func CategoryLabel(categoryURL string) string {
	idx := strings.Index(categoryURL, categoryMarker)
	if idx < 0 {
		return unknownLabel
	}

	segment := categoryURL[idx+len(categoryMarker):]
	if end := strings.IndexAny(segment, "/?#"); end >= 0 {
		segment = segment[:end]
	}
	if segment == "" {
		return unknownLabel
	}

	if unescaped, err := url.PathUnescape(segment); err == nil {
		return unescaped
	}
	return segment
}
