package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/maltedev/surtiapp-scraper/internal/models"
)

// StartWorker executes queued runs until ctx is done. When interval is
// positive a run is also submitted on every tick.
func (m *Manager) StartWorker(ctx context.Context, interval time.Duration) {
	m.logger.Info("job worker started", "interval", interval)

	var tick <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("job worker stopping")
			return
		case <-tick:
			if _, err := m.Submit(TriggerSchedule); err != nil {
				m.logger.Warn("scheduled run skipped", "error", err)
			}
		case id := <-m.queue:
			m.execute(ctx, id)
		}
	}
}

// RunNow submits a run and executes it on the calling goroutine. It must not
// be used while StartWorker is consuming the queue.
func (m *Manager) RunNow(ctx context.Context, trigger string) (*Run, error) {
	run, err := m.Submit(trigger)
	if err != nil {
		return nil, err
	}
	<-m.queue
	m.execute(ctx, run.ID)
	return m.Get(run.ID)
}

func (m *Manager) execute(ctx context.Context, id string) {
	started := m.now()
	m.update(id, func(r *Run) {
		r.Status = StatusRunning
		r.StartedAt = &started
	})
	m.logger.Info("processing run", "id", id)

	snap, err := m.build(ctx)

	completed := m.now()
	status := StatusCompleted
	if err != nil {
		status = StatusFailed
	}

	m.update(id, func(r *Run) {
		r.Status = status
		r.CompletedAt = &completed
		if snap != nil {
			r.Records = snap.Len()
			if !snap.Empty() {
				r.SnapshotID = snap.ID.String()
			}
		}
		if err != nil {
			r.Error = err.Error()
		}
	})
	m.metrics.IncRun(status)

	if err != nil {
		m.logger.Error("run failed", "id", id, "error", err)
		return
	}
	m.logger.Info("run completed", "id", id, "records", snap.Len(), "duration", completed.Sub(started))
}

func (m *Manager) build(ctx context.Context) (snap *models.Snapshot, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("catalog build panicked: %v", r)
		}
	}()

	snap, err = m.builder.Build(ctx, m.Categories())
	if err == nil && snap == nil {
		err = errors.New("catalog build returned no snapshot")
	}
	return snap, err
}
