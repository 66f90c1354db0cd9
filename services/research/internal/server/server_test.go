package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"hhresearch/services/research/internal/models"
	"hhresearch/services/research/internal/tasks"

	"go.uber.org/zap"
)

type fakeTasks struct {
	started   []models.Settings
	snapshots map[string]tasks.Snapshot
}

func (f *fakeTasks) Start(settings models.Settings) (string, error) {
	if err := settings.Validate(); err != nil {
		return "", err
	}
	f.started = append(f.started, settings)
	return "task-1", nil
}

func (f *fakeTasks) Get(id string) (tasks.Snapshot, bool) {
	snap, ok := f.snapshots[id]
	return snap, ok
}

func (f *fakeTasks) Cancel(id string) bool {
	snap, ok := f.snapshots[id]
	return ok && !snap.Status.Finished()
}

func newTestServer() (*Server, *fakeTasks) {
	ft := &fakeTasks{snapshots: map[string]tasks.Snapshot{
		"running": {ID: "running", Status: tasks.StatusRunning},
		"done":    {ID: "done", Status: tasks.StatusCompleted, Result: &models.Result{Found: true, Count: 4}},
	}}
	defaults := models.Settings{PerPage: 50, MaxWorkers: 7, Currencies: []string{"USD"}}
	return New(zap.NewNop(), ft, defaults, ":0"), ft
}

func do(t *testing.T, s *Server, method, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.App().Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("decode %q: %v", data, err)
	}
	return resp.StatusCode, out
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer()
	code, body := do(t, s, http.MethodGet, "/healthz", "")
	if code != http.StatusOK || body["status"] != "ok" {
		t.Errorf("got %d %v", code, body)
	}
}

func TestStartResearch(t *testing.T) {
	s, ft := newTestServer()
	code, body := do(t, s, http.MethodPost, "/api/v1/research", `{"query":"Data Science","refresh":true}`)
	if code != http.StatusAccepted || body["task_id"] != "task-1" {
		t.Fatalf("got %d %v", code, body)
	}
	if len(ft.started) != 1 {
		t.Fatalf("got %d starts", len(ft.started))
	}
	got := ft.started[0]
	if got.Query != "Data Science" || !got.Refresh || got.MaxWorkers != 7 || got.PerPage != 50 {
		t.Errorf("defaults not merged: %+v", got)
	}
}

func TestStartResearchRejectsBadInput(t *testing.T) {
	s, _ := newTestServer()
	for _, body := range []string{`{"query":`, `{}`, `{"query":"go","per_page":500}`} {
		code, resp := do(t, s, http.MethodPost, "/api/v1/research", body)
		if code != http.StatusBadRequest || resp["error"] == nil {
			t.Errorf("body %s: got %d %v", body, code, resp)
		}
	}
}

func TestGetResearch(t *testing.T) {
	s, _ := newTestServer()

	code, body := do(t, s, http.MethodGet, "/api/v1/research/done", "")
	if code != http.StatusOK || body["status"] != string(tasks.StatusCompleted) {
		t.Fatalf("got %d %v", code, body)
	}
	result, _ := body["result"].(map[string]any)
	if result["count"] != float64(4) {
		t.Errorf("got result %v", result)
	}

	if code, _ := do(t, s, http.MethodGet, "/api/v1/research/missing", ""); code != http.StatusNotFound {
		t.Errorf("got %d, want 404", code)
	}
}

func TestCancelResearch(t *testing.T) {
	s, _ := newTestServer()
	tests := []struct {
		id   string
		want int
	}{
		{id: "running", want: http.StatusAccepted},
		{id: "done", want: http.StatusConflict},
		{id: "missing", want: http.StatusNotFound},
	}
	for _, tt := range tests {
		if code, body := do(t, s, http.MethodDelete, "/api/v1/research/"+tt.id, ""); code != tt.want {
			t.Errorf("cancel %s: got %d %v, want %d", tt.id, code, body, tt.want)
		}
	}
}
