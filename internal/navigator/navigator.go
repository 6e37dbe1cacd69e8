package navigator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/maltedev/surtiapp-scraper/internal/browser"
	"github.com/maltedev/surtiapp-scraper/internal/config"
	"github.com/maltedev/surtiapp-scraper/internal/metrics"
	"github.com/maltedev/surtiapp-scraper/internal/models"
)

// Session is one exclusive page session on a category listing.
type Session interface {
	Open(ctx context.Context, url string) error
	// Expand activates the load-more control once. It reports false when
	// the control could not be found or clicked.
	Expand(ctx context.Context) (bool, error)
	ListCandidates(ctx context.Context) ([]models.CandidateItem, error)
	Close() error
}

// SessionFactory creates a fresh session for every category.
type SessionFactory func(ctx context.Context) (Session, error)

type State int

const (
	StateIdle State = iota
	StateOpened
	StateExpanding
	StateEnumerated
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpened:
		return "opened"
	case StateExpanding:
		return "expanding"
	case StateEnumerated:
		return "enumerated"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type Options struct {
	// ExhaustionChecks is the number of consecutive failed expansions after
	// which the listing is considered fully loaded.
	ExhaustionChecks int
	RecheckDelay     time.Duration
	MaxExpansions    int
}

func OptionsFromConfig(cfg config.BrowserConfig) Options {
	return Options{
		ExhaustionChecks: cfg.ExhaustionChecks,
		RecheckDelay:     cfg.RecheckDelay,
		MaxExpansions:    cfg.MaxExpansions,
	}
}

// Result describes one traversal of a category listing.
type Result struct {
	Candidates []models.CandidateItem
	Expansions int
	Trace      []State
}

type Navigator struct {
	factory SessionFactory
	opts    Options
	metrics *metrics.Metrics
	logger  *slog.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

func New(factory SessionFactory, opts Options, m *metrics.Metrics, logger *slog.Logger) *Navigator {
	if opts.ExhaustionChecks < 1 {
		opts.ExhaustionChecks = 1
	}
	if opts.MaxExpansions < 1 {
		opts.MaxExpansions = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Navigator{
		factory: factory,
		opts:    opts,
		metrics: m,
		logger:  logger.With("component", "navigator"),
		sleep:   browser.Sleep,
	}
}

// Discover returns every product listed on the category page after the
// listing has been expanded until exhaustion.
func (n *Navigator) Discover(ctx context.Context, categoryURL string) ([]models.CandidateItem, error) {
	res, err := n.Navigate(ctx, categoryURL)
	if err != nil {
		return nil, err
	}
	return res.Candidates, nil
}

type traversal struct {
	url        string
	state      State
	session    Session
	misses     int
	expansions int
	candidates []models.CandidateItem
	trace      []State
	done       bool
}

func (t *traversal) enter(s State) {
	t.state = s
	t.trace = append(t.trace, s)
}

// Navigate drives a session through idle, opened, expanding, enumerated and
// closed. The session is closed on every exit, including panics.
func (n *Navigator) Navigate(ctx context.Context, categoryURL string) (res *Result, err error) {
	t := &traversal{url: categoryURL}
	t.enter(StateIdle)
	res = &Result{}

	defer func() {
		if t.session != nil {
			if cerr := t.session.Close(); cerr != nil {
				n.logger.Warn("failed to close session", "url", categoryURL, "error", cerr)
			}
		}
		t.enter(StateClosed)
		res.Trace = t.trace
		res.Expansions = t.expansions
	}()

	for !t.done {
		if err := n.step(ctx, t); err != nil {
			return res, err
		}
	}

	res.Candidates = t.candidates
	n.logger.Info("category enumerated",
		"url", categoryURL,
		"expansions", t.expansions,
		"candidates", len(t.candidates))
	return res, nil
}

func (n *Navigator) step(ctx context.Context, t *traversal) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	switch t.state {
	case StateIdle:
		session, err := n.factory(ctx)
		if err != nil {
			return fmt.Errorf("failed to create session: %w", err)
		}
		t.session = session
		if err := session.Open(ctx, t.url); err != nil {
			return fmt.Errorf("failed to open %s: %w", t.url, err)
		}
		t.enter(StateOpened)

	case StateOpened:
		t.enter(StateExpanding)

	case StateExpanding:
		if t.expansions >= n.opts.MaxExpansions {
			n.logger.Warn("expansion limit reached", "url", t.url, "expansions", t.expansions)
			t.enter(StateEnumerated)
			return nil
		}

		clicked, err := t.session.Expand(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			n.logger.Debug("expand failed", "url", t.url, "error", err)
			clicked = false
		}

		if clicked {
			t.expansions++
			t.misses = 0
			n.metrics.IncExpansions()
			n.logger.Debug("loaded more products", "url", t.url, "expansions", t.expansions)
			return nil
		}

		t.misses++
		if t.misses >= n.opts.ExhaustionChecks {
			t.enter(StateEnumerated)
			return nil
		}
		return n.sleep(ctx, n.opts.RecheckDelay)

	case StateEnumerated:
		candidates, err := t.session.ListCandidates(ctx)
		if err != nil {
			return fmt.Errorf("failed to list candidates: %w", err)
		}
		t.candidates = candidates
		t.done = true

	default:
		return fmt.Errorf("unexpected navigator state %s", t.state)
	}

	return nil
}
