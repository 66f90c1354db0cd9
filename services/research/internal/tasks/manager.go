// Package tasks runs research in the background and tracks its lifecycle.
package tasks

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"hhresearch/services/research/internal/collector"
	"hhresearch/services/research/internal/errors"
	"hhresearch/services/research/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

func (s Status) Finished() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

type Snapshot struct {
	ID         string              `json:"id"`
	Status     Status              `json:"status"`
	Settings   models.Settings     `json:"settings"`
	Progress   *collector.Progress `json:"progress,omitempty"`
	Result     *models.Result      `json:"result,omitempty"`
	Error      string              `json:"error,omitempty"`
	ErrorType  errors.ErrorType    `json:"error_type,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
	StartedAt  *time.Time          `json:"started_at,omitempty"`
	FinishedAt *time.Time          `json:"finished_at,omitempty"`
}

type Runner interface {
	Run(ctx context.Context, settings models.Settings, progress collector.ProgressFunc) (*models.Result, error)
}

// Reporter receives task updates. Calls for one task are serialized.
type Reporter interface {
	Progress(ctx context.Context, snap Snapshot)
	Completed(ctx context.Context, snap Snapshot)
}

type NopReporter struct{}

func (NopReporter) Progress(context.Context, Snapshot)  {}
func (NopReporter) Completed(context.Context, Snapshot) {}

type task struct {
	snap   Snapshot
	cancel context.CancelFunc
	done   chan struct{}
}

type Manager struct {
	runner    Runner
	reporter  Reporter
	logger    *zap.Logger
	retention time.Duration
	now       func() time.Time

	mu     sync.Mutex
	tasks  map[string]*task
	closed bool
	wg     sync.WaitGroup

	baseCtx   context.Context
	cancelAll context.CancelFunc
}

// A non-positive retention keeps finished tasks forever.
func NewManager(runner Runner, reporter Reporter, logger *zap.Logger, retention time.Duration) *Manager {
	if reporter == nil {
		reporter = NopReporter{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		runner:    runner,
		reporter:  reporter,
		logger:    logger,
		retention: retention,
		now:       time.Now,
		tasks:     make(map[string]*task),
		baseCtx:   ctx,
		cancelAll: cancel,
	}
}

func (m *Manager) Start(settings models.Settings) (string, error) {
	if err := settings.Validate(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", errors.Unavailable("task manager is shutting down", nil)
	}
	m.evictLocked()

	ctx, cancel := context.WithCancel(m.baseCtx)
	t := &task{
		snap: Snapshot{
			ID:        uuid.NewString(),
			Status:    StatusPending,
			Settings:  settings,
			CreatedAt: m.now(),
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}
	m.tasks[t.snap.ID] = t

	m.wg.Add(1)
	go m.run(ctx, t, settings)

	m.logger.Info("research task scheduled",
		zap.String("task_id", t.snap.ID),
		zap.String("query", settings.Query))
	return t.snap.ID, nil
}

func (m *Manager) run(ctx context.Context, t *task, settings models.Settings) {
	defer m.wg.Done()
	defer t.cancel()

	m.update(t, func(s *Snapshot) {
		started := m.now()
		s.Status = StatusRunning
		s.StartedAt = &started
	})
	m.reporter.Progress(ctx, m.snapshot(t))

	result, err := m.runner.Run(ctx, settings, func(p collector.Progress) {
		m.update(t, func(s *Snapshot) { s.Progress = &p })
		m.reporter.Progress(ctx, m.snapshot(t))
	})

	m.update(t, func(s *Snapshot) {
		finished := m.now()
		s.FinishedAt = &finished
		switch {
		case err == nil:
			s.Status = StatusCompleted
			s.Result = result
		case stderrors.Is(err, context.Canceled):
			s.Status = StatusCancelled
			s.Error = err.Error()
		default:
			s.Status = StatusFailed
			s.Error = err.Error()
			if errType, ok := errors.TypeOf(err); ok {
				s.ErrorType = errType
			}
		}
	})
	close(t.done)

	snap := m.snapshot(t)
	if snap.Status == StatusFailed {
		m.logger.Error("research task failed", zap.String("task_id", snap.ID), zap.Error(err))
	} else {
		m.logger.Info("research task finished",
			zap.String("task_id", snap.ID),
			zap.String("status", string(snap.Status)))
	}
	// ctx is already done for cancelled tasks.
	m.reporter.Completed(context.Background(), snap)
}

func (m *Manager) update(t *task, fn func(*Snapshot)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(&t.snap)
}

func (m *Manager) snapshot(t *task) Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return t.snap
}

func (m *Manager) Get(id string) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evictLocked()
	t, ok := m.tasks[id]
	if !ok {
		return Snapshot{}, false
	}
	return t.snap, true
}

// Cancel reports whether id named a task that was still unfinished.
func (m *Manager) Cancel(id string) bool {
	m.mu.Lock()
	t, ok := m.tasks[id]
	active := ok && !t.snap.Status.Finished()
	m.mu.Unlock()

	if active {
		t.cancel()
		m.logger.Info("research task cancellation requested", zap.String("task_id", id))
	}
	return active
}

func (m *Manager) Wait(ctx context.Context, id string) (Snapshot, error) {
	m.mu.Lock()
	t, ok := m.tasks[id]
	m.mu.Unlock()
	if !ok {
		return Snapshot{}, errors.NotFound("research task not found", nil)
	}

	select {
	case <-t.done:
		return m.snapshot(t), nil
	case <-ctx.Done():
		return m.snapshot(t), ctx.Err()
	}
}

// Shutdown cancels every running task and waits for them to unwind.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.cancelAll()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) evictLocked() {
	if m.retention <= 0 {
		return
	}
	cutoff := m.now().Add(-m.retention)
	for id, t := range m.tasks {
		if t.snap.FinishedAt != nil && t.snap.FinishedAt.Before(cutoff) {
			delete(m.tasks, id)
		}
	}
}
