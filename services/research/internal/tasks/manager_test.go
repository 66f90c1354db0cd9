package tasks

import (
	"context"
	"sync"
	"testing"
	"time"

	"hhresearch/services/research/internal/collector"
	"hhresearch/services/research/internal/errors"
	"hhresearch/services/research/internal/models"

	"go.uber.org/zap"
)

type fakeRunner struct {
	release chan struct{}
	result  *models.Result
	err     error
}

func (f *fakeRunner) Run(ctx context.Context, settings models.Settings, progress collector.ProgressFunc) (*models.Result, error) {
	progress(collector.Progress{Stage: collector.StageSearch, Done: 1, Total: 1})
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.result, f.err
}

type recordingReporter struct {
	mu        sync.Mutex
	progress  []Snapshot
	completed []Snapshot
}

func (r *recordingReporter) Progress(_ context.Context, snap Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, snap)
}

func (r *recordingReporter) Completed(_ context.Context, snap Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, snap)
}

func (r *recordingReporter) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.progress), len(r.completed)
}

func validSettings() models.Settings {
	return models.Settings{Query: "golang", PerPage: 20, MaxWorkers: 2, Currencies: []string{"USD"}}
}

func waitFor(t *testing.T, m *Manager, id string) Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snap, err := m.Wait(ctx, id)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	return snap
}

func TestManagerCompletes(t *testing.T) {
	result := &models.Result{RunID: "run", Found: true, Count: 3}
	reporter := &recordingReporter{}
	m := NewManager(&fakeRunner{result: result}, reporter, zap.NewNop(), time.Hour)

	id, err := m.Start(validSettings())
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	snap := waitFor(t, m, id)
	if snap.Status != StatusCompleted || snap.Result != result {
		t.Errorf("got %+v", snap)
	}
	if snap.StartedAt == nil || snap.FinishedAt == nil {
		t.Error("expected start and finish times")
	}
	if snap.Progress == nil || snap.Progress.Stage != collector.StageSearch {
		t.Errorf("got progress %+v", snap.Progress)
	}

	// Completed is reported after done is closed.
	deadline := time.Now().Add(5 * time.Second)
	for {
		progress, completed := reporter.counts()
		if completed == 1 {
			if progress < 2 {
				t.Errorf("got %d progress reports, want at least 2", progress)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("completion was never reported")
		}
		time.Sleep(10 * time.Millisecond)
	}

	got, ok := m.Get(id)
	if !ok || got.Status != StatusCompleted {
		t.Errorf("get returned %+v, %v", got, ok)
	}
}

func TestManagerCancel(t *testing.T) {
	m := NewManager(&fakeRunner{release: make(chan struct{})}, nil, zap.NewNop(), time.Hour)

	id, err := m.Start(validSettings())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if !m.Cancel(id) {
		t.Fatal("expected an active task to be cancelled")
	}

	snap := waitFor(t, m, id)
	if snap.Status != StatusCancelled {
		t.Errorf("got status %s, want cancelled", snap.Status)
	}
	if m.Cancel(id) {
		t.Error("cancelling a finished task must report false")
	}
	if m.Cancel("missing") {
		t.Error("cancelling an unknown task must report false")
	}
}

func TestManagerFailure(t *testing.T) {
	runner := &fakeRunner{err: errors.Unavailable("searching listings", nil)}
	m := NewManager(runner, nil, zap.NewNop(), time.Hour)

	id, err := m.Start(validSettings())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	snap := waitFor(t, m, id)
	if snap.Status != StatusFailed || snap.ErrorType != errors.ErrTypeUnavailable || snap.Error == "" {
		t.Errorf("got %+v", snap)
	}
}

func TestManagerRejectsInvalidSettings(t *testing.T) {
	m := NewManager(&fakeRunner{}, nil, zap.NewNop(), time.Hour)
	settings := validSettings()
	settings.Query = " "
	if _, err := m.Start(settings); !errors.IsType(err, errors.ErrTypeInvalidInput) {
		t.Errorf("got %v, want invalid input", err)
	}
}

func TestManagerUnknownTask(t *testing.T) {
	m := NewManager(&fakeRunner{}, nil, zap.NewNop(), time.Hour)
	if _, ok := m.Get("missing"); ok {
		t.Error("unexpected task")
	}
	if _, err := m.Wait(context.Background(), "missing"); !errors.IsType(err, errors.ErrTypeNotFound) {
		t.Errorf("got %v, want not found", err)
	}
}

func TestManagerEvictsFinishedTasks(t *testing.T) {
	var (
		mu  sync.Mutex
		now = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	)
	m := NewManager(&fakeRunner{}, nil, zap.NewNop(), time.Hour)
	m.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	id, err := m.Start(validSettings())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, m, id)

	if _, ok := m.Get(id); !ok {
		t.Fatal("task evicted too early")
	}

	mu.Lock()
	now = now.Add(2 * time.Hour)
	mu.Unlock()
	if _, ok := m.Get(id); ok {
		t.Error("expected the task to be evicted after retention")
	}
}

func TestManagerShutdown(t *testing.T) {
	m := NewManager(&fakeRunner{release: make(chan struct{})}, nil, zap.NewNop(), time.Hour)
	id, err := m.Start(validSettings())
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	if snap, _ := m.Get(id); snap.Status != StatusCancelled {
		t.Errorf("got status %s, want cancelled", snap.Status)
	}
	if _, err := m.Start(validSettings()); !errors.IsType(err, errors.ErrTypeUnavailable) {
		t.Errorf("got %v, want unavailable after shutdown", err)
	}
}
