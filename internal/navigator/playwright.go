package navigator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/playwright-community/playwright-go"

	"github.com/maltedev/surtiapp-scraper/internal/browser"
	"github.com/maltedev/surtiapp-scraper/internal/config"
	"github.com/maltedev/surtiapp-scraper/internal/models"
)

const (
	loadMoreSelector = "#buttonLoadId"
	navigateAttempts = 2
)

// PlaywrightSession drives a dedicated Chromium instance through one
// category listing.
type PlaywrightSession struct {
	opts    *browser.Options
	cfg     config.BrowserConfig
	browser *browser.Browser
	page    playwright.Page
	logger  *slog.Logger
}

// NewPlaywrightFactory returns a factory launching one browser per session.
func NewPlaywrightFactory(bcfg config.BrowserConfig, ucfg config.UpstreamConfig, logger *slog.Logger) SessionFactory {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context) (Session, error) {
		return &PlaywrightSession{
			opts:   browser.OptionsFromConfig(bcfg, ucfg),
			cfg:    bcfg,
			logger: logger.With("component", "playwright_session"),
		}, nil
	}
}

func (s *PlaywrightSession) Open(ctx context.Context, url string) error {
	b, err := browser.New(s.opts)
	if err != nil {
		return err
	}
	s.browser = b

	page, err := b.NewPage()
	if err != nil {
		return err
	}
	s.page = page

	s.logger.Info("opening category page", "url", url)
	if err := b.NavigateWithRetry(ctx, page, url, navigateAttempts); err != nil {
		return err
	}

	return browser.Sleep(ctx, s.cfg.SettleDelay)
}

func (s *PlaywrightSession) Expand(ctx context.Context) (bool, error) {
	button := s.page.Locator(loadMoreSelector).First()

	err := button.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(float64(s.cfg.ExpandTimeout.Milliseconds())),
	})
	if err != nil {
		if errors.Is(err, playwright.ErrTimeout) {
			return false, nil
		}
		return false, fmt.Errorf("failed to locate load-more button: %w", err)
	}

	enabled, err := button.IsEnabled()
	if err != nil || !enabled {
		return false, err
	}

	if err := button.ScrollIntoViewIfNeeded(); err != nil {
		return false, fmt.Errorf("failed to scroll to load-more button: %w", err)
	}
	if _, err := button.Evaluate("el => el.click()", nil); err != nil {
		return false, fmt.Errorf("failed to click load-more button: %w", err)
	}

	if err := browser.Sleep(ctx, s.cfg.SettleDelay); err != nil {
		return false, err
	}
	return true, nil
}

// ListCandidates waits for product cards and parses the rendered page.
// A listing with no cards yields no candidates.
func (s *PlaywrightSession) ListCandidates(ctx context.Context) ([]models.CandidateItem, error) {
	err := s.page.Locator(cardSelector).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateAttached,
		Timeout: playwright.Float(float64(s.cfg.CardsTimeout.Milliseconds())),
	})
	if err != nil {
		if errors.Is(err, playwright.ErrTimeout) {
			s.logger.Warn("no product cards found", "url", s.page.URL())
			return nil, nil
		}
		return nil, fmt.Errorf("failed waiting for product cards: %w", err)
	}

	html, err := s.page.Content()
	if err != nil {
		return nil, fmt.Errorf("failed to read page content: %w", err)
	}

	return ParseCandidates(html, s.page.URL())
}

func (s *PlaywrightSession) Close() error {
	if s.browser == nil {
		return nil
	}
	err := s.browser.Close()
	s.browser = nil
	s.page = nil
	return err
}
