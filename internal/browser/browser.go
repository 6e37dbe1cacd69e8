package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/maltedev/surtiapp-scraper/internal/config"
)

// Browser owns one playwright driver, one Chromium instance and one context.
// It is never shared between categories.
type Browser struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	timeout time.Duration
	logger  *slog.Logger
}

type Options struct {
	Headless       bool
	Timeout        time.Duration
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
	ProxyURL       string
	ExtraHeaders   map[string]string
}

func DefaultOptions() *Options {
	return &Options{
		Headless:       true,
		Timeout:        30 * time.Second,
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/134.0.0.0 Safari/537.36",
		ViewportWidth:  1920,
		ViewportHeight: 1080,
		AcceptLanguage: "es-CO,es;q=0.9,en;q=0.8",
		TimezoneID:     "America/Bogota",
		Locale:         "es-CO",
		ExtraHeaders: map[string]string{
			"Accept": "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
		},
	}
}

// OptionsFromConfig builds launch options from the browser section and the
// shared upstream settings, so the page session and the detail client leave
// through the same proxy.
func OptionsFromConfig(b config.BrowserConfig, u config.UpstreamConfig) *Options {
	opts := DefaultOptions()
	opts.Headless = b.Headless
	if b.Timeout > 0 {
		opts.Timeout = b.Timeout
	}
	if b.ViewportWidth > 0 && b.ViewportHeight > 0 {
		opts.ViewportWidth = b.ViewportWidth
		opts.ViewportHeight = b.ViewportHeight
	}
	if b.Locale != "" {
		opts.Locale = b.Locale
	}
	if b.TimezoneID != "" {
		opts.TimezoneID = b.TimezoneID
	}
	if u.UserAgent != "" {
		opts.UserAgent = u.UserAgent
	}
	if u.AcceptLanguage != "" {
		opts.AcceptLanguage = u.AcceptLanguage
	}
	opts.ProxyURL = u.ProxyURL
	return opts
}

// ProxyFromURL converts a proxy URL into playwright settings. Credentials in
// the URL become the proxy username and password.
func ProxyFromURL(raw string) (*playwright.Proxy, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid proxy url %q", raw)
	}

	proxy := &playwright.Proxy{
		Server: parsed.Scheme + "://" + parsed.Host,
	}
	if parsed.User != nil {
		proxy.Username = playwright.String(parsed.User.Username())
		if password, ok := parsed.User.Password(); ok {
			proxy.Password = playwright.String(password)
		}
	}
	return proxy, nil
}

func New(opts *Options) (*Browser, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: &opts.Headless,
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
			"--disable-setuid-sandbox",
			fmt.Sprintf("--window-size=%d,%d", opts.ViewportWidth, opts.ViewportHeight),
		},
	}

	if opts.ProxyURL != "" {
		proxy, err := ProxyFromURL(opts.ProxyURL)
		if err != nil {
			return nil, err
		}
		launchOpts.Proxy = proxy
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	browser, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	headers := make(map[string]string, len(opts.ExtraHeaders)+1)
	for k, v := range opts.ExtraHeaders {
		headers[k] = v
	}
	headers["Accept-Language"] = opts.AcceptLanguage

	bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent:         &opts.UserAgent,
		AcceptDownloads:   playwright.Bool(false),
		JavaScriptEnabled: playwright.Bool(true),
		Locale:            &opts.Locale,
		TimezoneId:        &opts.TimezoneID,
		Viewport: &playwright.Size{
			Width:  opts.ViewportWidth,
			Height: opts.ViewportHeight,
		},
		ExtraHttpHeaders: headers,
	})
	if err != nil {
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	return &Browser{
		pw:      pw,
		browser: browser,
		context: bctx,
		timeout: opts.Timeout,
		logger:  slog.Default().With("component", "browser"),
	}, nil
}

func (b *Browser) NewPage() (playwright.Page, error) {
	page, err := b.context.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create new page: %w", err)
	}

	page.SetDefaultTimeout(float64(b.timeout.Milliseconds()))

	return page, nil
}

// Close releases the context, the browser and the driver, in that order,
// and reports every failure.
func (b *Browser) Close() error {
	var errs []error

	if b.context != nil {
		if err := b.context.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close context: %w", err))
		}
	}

	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
	}

	if b.pw != nil {
		if err := b.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
	}

	return errors.Join(errs...)
}

// NavigateWithRetry loads url, waiting for the DOM to be ready. Failed loads
// are retried with a linear backoff until attempts are used up or ctx ends.
func (b *Browser) NavigateWithRetry(ctx context.Context, page playwright.Page, url string, attempts int) error {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			b.logger.Info("retrying navigation", "attempt", i+1, "url", url)
			if err := Sleep(ctx, time.Duration(i)*time.Second); err != nil {
				return err
			}
		}

		_, err := page.Goto(url, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateDomcontentloaded,
			Timeout:   playwright.Float(float64(b.timeout.Milliseconds())),
		})
		if err == nil {
			return nil
		}

		lastErr = err
		b.logger.Warn("navigation failed", "url", url, "attempt", i+1, "error", err)
	}

	return fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
