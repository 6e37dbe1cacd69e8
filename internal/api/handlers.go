package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/maltedev/surtiapp-scraper/internal/config"
	"github.com/maltedev/surtiapp-scraper/internal/database"
	"github.com/maltedev/surtiapp-scraper/internal/jobs"
)

const (
	pendingWarnThreshold    = 1000
	deadLetterFailThreshold = 100

	defaultSnapshotLimit = 20
	maxSnapshotLimit     = 200
)

type RunService interface {
	Submit(trigger string) (*jobs.Run, error)
	Get(id string) (*jobs.Run, error)
	List() []jobs.Run
	Categories() []config.Category
}

// OutboxCounter reports the backlog of the event relay.
type OutboxCounter interface {
	Counts(ctx context.Context) (pending, deadLetter int64, err error)
}

type SnapshotLister interface {
	Recent(ctx context.Context, limit int) ([]database.SnapshotSummary, error)
}

type Handlers struct {
	runs      RunService
	outbox    OutboxCounter
	snapshots SnapshotLister
	logger    *slog.Logger
}

type HandlerOption func(*Handlers)

func WithOutbox(o OutboxCounter) HandlerOption {
	return func(h *Handlers) { h.outbox = o }
}

func WithSnapshots(s SnapshotLister) HandlerOption {
	return func(h *Handlers) { h.snapshots = s }
}

func NewHandlers(runs RunService, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		runs:   runs,
		logger: logger.With("component", "api"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health reports ok unless the outbox backlog signals a stuck relay.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{"status": "ok"}
	status := http.StatusOK

	if h.outbox != nil {
		pending, deadLetter, err := h.outbox.Counts(r.Context())
		if err != nil {
			h.logger.Error("failed to read outbox counts", "error", err)
			health["status"] = "error"
			health["message"] = "outbox unavailable"
			h.respondJSON(w, http.StatusServiceUnavailable, health)
			return
		}

		health["outbox"] = map[string]interface{}{
			"pending":     pending,
			"dead_letter": deadLetter,
		}
		if pending > pendingWarnThreshold {
			health["status"] = "warning"
			health["message"] = "High number of pending outbox events"
		}
		if deadLetter > deadLetterFailThreshold {
			health["status"] = "error"
			health["message"] = "High number of dead letter events"
			status = http.StatusServiceUnavailable
		}
	}

	h.respondJSON(w, status, health)
}

// CreateRunResponse acknowledges a queued catalog run.
type CreateRunResponse struct {
	RunID   string `json:"run_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (h *Handlers) CreateRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.runs.Submit(jobs.TriggerAPI)
	if errors.Is(err, jobs.ErrRunInProgress) {
		h.respondError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("failed to create run", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to create run")
		return
	}

	h.respondJSON(w, http.StatusAccepted, CreateRunResponse{
		RunID:   run.ID,
		Status:  run.Status,
		Message: "Run queued",
	})
}

func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if runID == "" {
		h.respondError(w, http.StatusBadRequest, "run ID is required")
		return
	}

	run, err := h.runs.Get(runID)
	if err != nil {
		h.respondError(w, http.StatusNotFound, "run not found")
		return
	}

	h.respondJSON(w, http.StatusOK, run)
}

func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.runs.List())
}

func (h *Handlers) ListCategories(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.runs.Categories())
}

// ListSnapshots returns stored snapshot summaries. It needs the database.
func (h *Handlers) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	if h.snapshots == nil {
		h.respondError(w, http.StatusServiceUnavailable, "snapshot history requires a database")
		return
	}

	limit := defaultSnapshotLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxSnapshotLimit)
	}

	snapshots, err := h.snapshots.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list snapshots", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list snapshots")
		return
	}
	if snapshots == nil {
		snapshots = []database.SnapshotSummary{}
	}

	h.respondJSON(w, http.StatusOK, snapshots)
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
