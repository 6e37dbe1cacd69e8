package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maltedev/surtiapp-scraper/internal/config"
	"github.com/maltedev/surtiapp-scraper/internal/metrics"
	"github.com/maltedev/surtiapp-scraper/internal/models"
)

const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"

	TriggerAPI      = "api"
	TriggerSchedule = "schedule"
	TriggerCLI      = "cli"

	listLimit = 100
)

var (
	ErrRunInProgress = errors.New("a catalog run is already pending or running")
	ErrRunNotFound   = errors.New("run not found")
)

// Builder produces one catalog snapshot.
type Builder interface {
	Build(ctx context.Context, categories []config.Category) (*models.Snapshot, error)
}

// Run is one catalog build requested through the API, the schedule or the CLI.
type Run struct {
	ID          string     `json:"id"`
	Trigger     string     `json:"trigger"`
	Status      string     `json:"status"`
	Categories  int        `json:"categories"`
	Records     int        `json:"records"`
	SnapshotID  string     `json:"snapshot_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

func (r *Run) active() bool {
	return r.Status == StatusPending || r.Status == StatusRunning
}

// Manager serializes catalog runs. At most one run is pending or running at
// any time.
type Manager struct {
	mu         sync.Mutex
	builder    Builder
	categories []config.Category
	runs       map[string]*Run
	queue      chan string
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time
}

func NewManager(builder Builder, categories []config.Category, m *metrics.Metrics, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		builder:    builder,
		categories: categories,
		runs:       make(map[string]*Run),
		queue:      make(chan string, 1),
		metrics:    m,
		logger:     logger.With("component", "job_manager"),
		now:        time.Now,
	}
}

// Categories returns the configured categories in processing order.
func (m *Manager) Categories() []config.Category {
	out := make([]config.Category, len(m.categories))
	copy(out, m.categories)
	return out
}

// Submit queues a new run for the worker.
func (m *Manager) Submit(trigger string) (*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.runs {
		if r.active() {
			return nil, ErrRunInProgress
		}
	}

	run := &Run{
		ID:         uuid.New().String(),
		Trigger:    trigger,
		Status:     StatusPending,
		Categories: len(m.categories),
		CreatedAt:  m.now(),
	}
	m.runs[run.ID] = run
	m.queue <- run.ID

	m.logger.Info("run created", "id", run.ID, "trigger", trigger)
	copied := *run
	return &copied, nil
}

// Get returns a copy of the run.
func (m *Manager) Get(id string) (*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	copied := *run
	return &copied, nil
}

// List returns the most recent runs, newest first.
func (m *Manager) List() []Run {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Run, 0, len(m.runs))
	for _, r := range m.runs {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > listLimit {
		out = out[:listLimit]
	}
	return out
}

func (m *Manager) update(id string, fn func(*Run)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if run, ok := m.runs[id]; ok {
		fn(run)
	}
}
