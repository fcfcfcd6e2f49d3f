package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/waggle-io/waggle/internal/analytics"
	"github.com/waggle-io/waggle/internal/bus"
	"github.com/waggle-io/waggle/internal/logbuf"
	"github.com/waggle-io/waggle/internal/thread"
	"github.com/waggle-io/waggle/internal/ticket"
	"github.com/waggle-io/waggle/internal/workflow"
	"github.com/waggle-io/waggle/pkg/protocol"
)

type testEnv struct {
	server *Server
	wf     *workflow.Orchestrator
	buf    *logbuf.Buffer
}

func newTestEnv(t *testing.T, key string) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dir := t.TempDir()

	store, err := ticket.NewSQLiteStore(filepath.Join(dir, "tickets.db"))
	if err != nil {
		t.Fatalf("open ticket store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	threads, err := thread.NewSQLiteService(filepath.Join(dir, "threads.db"))
	if err != nil {
		t.Fatalf("open thread service: %v", err)
	}
	t.Cleanup(func() { threads.Close() })

	b := bus.New(logger)
	t.Cleanup(b.Close)

	wf := workflow.New(store, b, threads, logger)
	stats := analytics.New(store)
	buf := logbuf.New(32)

	srv := NewServer(wf, stats, store, Config{Host: "127.0.0.1", Port: 0, Key: key}, logger, buf)
	return &testEnv{server: srv, wf: wf, buf: buf}
}

func (e *testEnv) request(t *testing.T, method, path, key string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rd)
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func (e *testEnv) createTicket(t *testing.T, title, creator string) *protocol.Ticket {
	t.Helper()
	tk, err := e.wf.CreateTicket(context.Background(), workflow.CreateRequest{Title: title, CreatedBy: creator})
	if err != nil {
		t.Fatalf("create ticket: %v", err)
	}
	return tk
}

func TestHealthSkipsAuth(t *testing.T) {
	env := newTestEnv(t, "secret")

	rec := env.request(t, http.MethodGet, "/api/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body := decode[map[string]string](t, rec); body["status"] != "ok" {
		t.Errorf("unexpected body %v", body)
	}
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t, "secret")

	if rec := env.request(t, http.MethodGet, "/api/tickets", "", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("missing key: expected 401, got %d", rec.Code)
	}
	if rec := env.request(t, http.MethodGet, "/api/tickets", "wrong", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong key: expected 401, got %d", rec.Code)
	}
	if rec := env.request(t, http.MethodGet, "/api/tickets", "secret", nil); rec.Code != http.StatusOK {
		t.Errorf("valid key: expected 200, got %d", rec.Code)
	}
}

func TestCreateTicket(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.request(t, http.MethodPost, "/api/tickets", "", createTicketRequest{
		Title:     "Wire up billing export",
		Priority:  "high",
		CreatedBy: "agent-a",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	tk := decode[protocol.Ticket](t, rec)
	if tk.Status != protocol.StatusBacklog || tk.Priority != protocol.PriorityHigh {
		t.Errorf("unexpected ticket %+v", tk)
	}
	if tk.Type != protocol.TypeTask {
		t.Errorf("expected default type task, got %q", tk.Type)
	}
	if tk.ThreadID == "" {
		t.Error("expected discussion thread to be created")
	}
}

func TestCreateTicketBlankTitle(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.request(t, http.MethodPost, "/api/tickets", "", createTicketRequest{
		Title:     "   ",
		CreatedBy: "agent-a",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestGetTicketNotFound(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.request(t, http.MethodGet, "/api/tickets/absent", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestListTicketsFiltered(t *testing.T) {
	env := newTestEnv(t, "")
	env.createTicket(t, "first", "agent-a")
	tk := env.createTicket(t, "second", "agent-b")

	rec := env.request(t, http.MethodGet, "/api/tickets?created_by=agent-b", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	got := decode[[]protocol.Ticket](t, rec)
	if len(got) != 1 || got[0].ID != tk.ID {
		t.Errorf("expected only agent-b's ticket, got %+v", got)
	}
}

func TestTransitionErrors(t *testing.T) {
	env := newTestEnv(t, "")
	tk := env.createTicket(t, "deploy docs", "agent-a")

	// backlog -> done is not a legal move
	rec := env.request(t, http.MethodPost, "/api/tickets/"+tk.ID+"/status", "",
		transitionRequest{Status: "done", Actor: "agent-a"})
	if rec.Code != http.StatusConflict {
		t.Errorf("illegal transition: expected 409, got %d: %s", rec.Code, rec.Body.String())
	}

	// a stranger cannot move the ticket at all
	rec = env.request(t, http.MethodPost, "/api/tickets/"+tk.ID+"/status", "",
		transitionRequest{Status: "ready", Actor: "agent-z"})
	if rec.Code != http.StatusForbidden {
		t.Errorf("unauthorized actor: expected 403, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.request(t, http.MethodPost, "/api/tickets/"+tk.ID+"/status", "",
		transitionRequest{Status: "ready", Actor: "agent-a"})
	if rec.Code != http.StatusOK {
		t.Fatalf("legal transition: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := decode[protocol.Ticket](t, rec); got.Status != protocol.StatusReady {
		t.Errorf("expected ready, got %q", got.Status)
	}
}

func TestAssignAndBlock(t *testing.T) {
	env := newTestEnv(t, "")
	tk := env.createTicket(t, "flaky importer", "agent-a")

	rec := env.request(t, http.MethodPost, "/api/tickets/"+tk.ID+"/assignee", "",
		assignRequest{Assignee: "agent-b", Actor: "agent-a"})
	if rec.Code != http.StatusOK {
		t.Fatalf("assign: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := decode[protocol.Ticket](t, rec); got.AssignedTo != "agent-b" {
		t.Errorf("expected assignee agent-b, got %q", got.AssignedTo)
	}

	// Blocking only applies to in-progress work.
	rec = env.request(t, http.MethodPost, "/api/tickets/"+tk.ID+"/block", "",
		blockRequest{Reason: "missing credentials", Reporter: "agent-b"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("block from backlog: expected 409, got %d: %s", rec.Code, rec.Body.String())
	}

	for _, status := range []string{"ready", "in_progress"} {
		rec = env.request(t, http.MethodPost, "/api/tickets/"+tk.ID+"/status", "",
			transitionRequest{Status: status, Actor: "agent-b"})
		if rec.Code != http.StatusOK {
			t.Fatalf("move to %s: got %d: %s", status, rec.Code, rec.Body.String())
		}
	}

	rec = env.request(t, http.MethodPost, "/api/tickets/"+tk.ID+"/block", "",
		blockRequest{Reason: "missing credentials", Reporter: "agent-b"})
	if rec.Code != http.StatusOK {
		t.Fatalf("block: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := decode[protocol.Ticket](t, rec); got.Status != protocol.StatusBlocked {
		t.Errorf("expected blocked, got %q", got.Status)
	}
}

func TestBacklogAndWorkload(t *testing.T) {
	env := newTestEnv(t, "")
	env.createTicket(t, "one", "agent-a")
	tk := env.createTicket(t, "two", "agent-a")
	if _, err := env.wf.Assign(context.Background(), tk.ID, "agent-b", "agent-a"); err != nil {
		t.Fatalf("assign: %v", err)
	}

	rec := env.request(t, http.MethodGet, "/api/backlog", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("backlog: expected 200, got %d", rec.Code)
	}
	sum := decode[analytics.BacklogSummary](t, rec)
	if sum.TotalTickets != 2 || sum.ByStatus["backlog"] != 2 {
		t.Errorf("unexpected summary %+v", sum)
	}

	rec = env.request(t, http.MethodGet, "/api/agents/agent-b/workload", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("workload: expected 200, got %d", rec.Code)
	}
	wl := decode[analytics.AgentWorkload](t, rec)
	if wl.AgentID != "agent-b" || len(wl.AssignedTickets) != 1 {
		t.Errorf("unexpected workload %+v", wl)
	}
}

func TestDeadlinesValidation(t *testing.T) {
	env := newTestEnv(t, "")

	if rec := env.request(t, http.MethodGet, "/api/deadlines?days=-1", "", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("negative days: expected 400, got %d", rec.Code)
	}
	if rec := env.request(t, http.MethodGet, "/api/deadlines?days=nope", "", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("non-numeric days: expected 400, got %d", rec.Code)
	}

	rec := env.request(t, http.MethodGet, "/api/deadlines?days=14", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := decode[[]protocol.Ticket](t, rec); len(got) != 0 {
		t.Errorf("expected empty list, got %+v", got)
	}
}

func TestGetLogs(t *testing.T) {
	env := newTestEnv(t, "")
	base := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		env.buf.Append(logbuf.Entry{
			Time:    base.Add(time.Duration(i) * time.Second),
			Level:   slog.LevelInfo,
			Message: fmt.Sprintf("entry-%d", i),
		})
	}
	env.buf.Append(logbuf.Entry{Time: base.Add(time.Minute), Level: slog.LevelError, Message: "boom"})

	rec := env.request(t, http.MethodGet, "/api/logs", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := decode[[]logbuf.Entry](t, rec); len(got) != 4 {
		t.Errorf("expected 4 entries, got %d", len(got))
	}

	rec = env.request(t, http.MethodGet, "/api/logs?level=error", "", nil)
	got := decode[[]logbuf.Entry](t, rec)
	if len(got) != 1 || got[0].Message != "boom" {
		t.Errorf("expected only the error entry, got %+v", got)
	}

	rec = env.request(t, http.MethodGet, "/api/logs?limit=2", "", nil)
	if got := decode[[]logbuf.Entry](t, rec); len(got) != 2 {
		t.Errorf("expected 2 entries with limit, got %d", len(got))
	}
}
