package fetcher

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/maltedev/surtiapp-scraper/internal/config"
	"github.com/maltedev/surtiapp-scraper/internal/metrics"
	"github.com/maltedev/surtiapp-scraper/internal/ratelimit"
)

const detailPath = "/api/ProductDetail/SelectedProduct/{id}"

// Fetcher retrieves the detail record of one product.
type Fetcher interface {
	Fetch(ctx context.Context, id string) (*Detail, error)
}

// Client calls the storefront detail API. It never retries; callers decide
// what to do with a failed fetch.
type Client struct {
	rest       *resty.Client
	storefront string
	limiter    ratelimit.RateLimiter
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

type Option func(*options)

type options struct {
	transport http.RoundTripper
	limiter   ratelimit.RateLimiter
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// WithTransport replaces the HTTP transport. The proxy setting is ignored
// when a transport is supplied.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.transport = rt }
}

func WithLimiter(l ratelimit.RateLimiter) Option {
	return func(o *options) { o.limiter = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func NewClient(upstream config.UpstreamConfig, timeout time.Duration, opts ...Option) *Client {
	o := options{
		limiter: ratelimit.Unlimited{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	rc := resty.New().
		SetBaseURL(strings.TrimSuffix(upstream.APIBaseURL, "/")).
		SetTimeout(timeout).
		SetHeaders(map[string]string{
			"User-Agent":         upstream.UserAgent,
			"Accept":             "*/*",
			"Accept-Language":    upstream.AcceptLanguage,
			"sec-ch-ua":          `"Chromium";v="134", "Not:A-Brand";v="24", "Google Chrome";v="134"`,
			"sec-ch-ua-mobile":   "?0",
			"sec-ch-ua-platform": `"Windows"`,
			"sec-fetch-dest":     "empty",
			"sec-fetch-mode":     "cors",
			"sec-fetch-site":     "same-origin",
		})

	switch {
	case o.transport != nil:
		rc.SetTransport(o.transport)
	case upstream.ProxyURL != "":
		rc.SetProxy(upstream.ProxyURL)
	}

	return &Client{
		rest:       rc,
		storefront: strings.TrimSuffix(upstream.StorefrontURL, "/"),
		limiter:    o.limiter,
		metrics:    o.metrics,
		logger:     o.logger.With("component", "fetcher"),
	}
}

// Fetch performs a single detail request for id. Any non-200 status, an
// undecodable body or an empty Value is reported as an error.
func (c *Client) Fetch(ctx context.Context, id string) (*Detail, error) {
	if id == "" {
		return nil, ErrEmptyIdentifier
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	detail, err := c.fetch(ctx, id)
	c.metrics.ObserveDetailRequest(ErrorLabel(err), time.Since(start))

	if err != nil {
		c.logger.Warn("Failed to fetch product detail",
			"product_id", id,
			"outcome", ErrorLabel(err),
			"error", err)
		return nil, err
	}

	return detail, nil
}

func (c *Client) fetch(ctx context.Context, id string) (*Detail, error) {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetHeader("Referer", c.storefront+"/WithoutLoginB2B/Store/ProductDetail/"+id).
		Get(detailPath)
	if err != nil {
		return nil, classifyTransportError(err)
	}

	if resp.StatusCode() != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode()}
	}

	return DecodeDetail(id, resp.Body())
}
