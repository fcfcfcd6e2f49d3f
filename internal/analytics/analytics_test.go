package analytics

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/waggle-io/waggle/internal/ticket"
	"github.com/waggle-io/waggle/pkg/protocol"
)

var testNow = time.Date(2026, 5, 20, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *ticket.SQLiteStore {
	t.Helper()
	s, err := ticket.NewSQLiteStore(filepath.Join(t.TempDir(), "tickets.db"))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	t.Cleanup(func() { s.DB().Close() })
	return s
}

func seed(t *testing.T, s *ticket.SQLiteStore, id string, mut func(*protocol.Ticket)) {
	t.Helper()
	tk := &protocol.Ticket{
		ID:        id,
		Title:     "ticket " + id,
		Type:      protocol.TypeTask,
		Priority:  protocol.PriorityMedium,
		Status:    protocol.StatusBacklog,
		CreatedBy: "agent-a",
		CreatedAt: testNow,
		UpdatedAt: testNow,
	}
	if mut != nil {
		mut(tk)
	}
	if err := s.Create(tk); err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
}

func due(d time.Duration) *time.Time {
	v := testNow.Add(d)
	return &v
}

func TestBacklogSummary_EmptyStore(t *testing.T) {
	svc := New(newTestStore(t), WithClock(func() time.Time { return testNow }))

	sum, err := svc.BacklogSummary()
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum.TotalTickets != 0 || sum.BlockedCount != 0 || sum.OverdueCount != 0 {
		t.Errorf("expected all-zero summary, got %+v", sum)
	}
	if len(sum.ByStatus) != 0 || len(sum.ByPriority) != 0 || len(sum.ByType) != 0 {
		t.Errorf("expected empty histograms, got %+v", sum)
	}
}

func TestBacklogSummary_Histograms(t *testing.T) {
	s := newTestStore(t)
	seed(t, s, "t-1", nil)
	seed(t, s, "t-2", func(tk *protocol.Ticket) {
		tk.Status = protocol.StatusBlocked
		tk.Priority = protocol.PriorityCritical
		tk.Type = protocol.TypeBug
	})
	seed(t, s, "t-3", func(tk *protocol.Ticket) {
		tk.Status = protocol.StatusInProgress
		tk.DueDate = due(-24 * time.Hour) // overdue
	})
	seed(t, s, "t-4", func(tk *protocol.Ticket) {
		tk.Status = protocol.StatusDone
		tk.DueDate = due(-48 * time.Hour) // done tickets are never overdue
	})

	svc := New(s, WithClock(func() time.Time { return testNow }))
	sum, err := svc.BacklogSummary()
	if err != nil {
		t.Fatalf("summary: %v", err)
	}

	if sum.TotalTickets != 4 {
		t.Errorf("expected 4 tickets, got %d", sum.TotalTickets)
	}
	if sum.ByStatus[protocol.StatusBlocked] != 1 || sum.ByStatus[protocol.StatusBacklog] != 1 {
		t.Errorf("unexpected status histogram %+v", sum.ByStatus)
	}
	if sum.ByPriority[protocol.PriorityCritical] != 1 || sum.ByPriority[protocol.PriorityMedium] != 3 {
		t.Errorf("unexpected priority histogram %+v", sum.ByPriority)
	}
	if sum.ByType[protocol.TypeBug] != 1 || sum.ByType[protocol.TypeTask] != 3 {
		t.Errorf("unexpected type histogram %+v", sum.ByType)
	}
	if sum.BlockedCount != 1 {
		t.Errorf("expected 1 blocked, got %d", sum.BlockedCount)
	}
	if sum.OverdueCount != 1 {
		t.Errorf("expected 1 overdue (done excluded), got %d", sum.OverdueCount)
	}
}

func TestAgentWorkload(t *testing.T) {
	s := newTestStore(t)
	seed(t, s, "t-1", func(tk *protocol.Ticket) {
		tk.AssignedTo = "agent-b"
		tk.Status = protocol.StatusInProgress
	})
	seed(t, s, "t-2", func(tk *protocol.Ticket) {
		tk.AssignedTo = "agent-b"
		tk.Status = protocol.StatusBlocked
	})
	seed(t, s, "t-3", func(tk *protocol.Ticket) {
		tk.AssignedTo = "agent-b"
		tk.Status = protocol.StatusDone
	})
	seed(t, s, "t-4", func(tk *protocol.Ticket) {
		tk.AssignedTo = "agent-b"
		tk.Status = protocol.StatusReady
	})
	seed(t, s, "t-5", func(tk *protocol.Ticket) {
		tk.AssignedTo = "agent-c"
	})

	svc := New(s, WithClock(func() time.Time { return testNow }))
	w, err := svc.AgentWorkload("agent-b")
	if err != nil {
		t.Fatalf("workload: %v", err)
	}

	if len(w.AssignedTickets) != 4 {
		t.Fatalf("expected 4 assigned tickets, got %d", len(w.AssignedTickets))
	}
	if w.InProgressCount != 1 || w.BlockedCount != 1 || w.CompletedCount != 1 {
		t.Errorf("unexpected counts %+v", w)
	}
	if w.ActiveCount != len(w.AssignedTickets)-w.CompletedCount {
		t.Errorf("active count invariant violated: %d != %d - %d",
			w.ActiveCount, len(w.AssignedTickets), w.CompletedCount)
	}
	if w.ActiveCount != 3 {
		t.Errorf("expected 3 active (ready ticket counts too), got %d", w.ActiveCount)
	}
}

func TestAgentWorkload_UnknownAgent(t *testing.T) {
	svc := New(newTestStore(t))

	w, err := svc.AgentWorkload("nobody")
	if err != nil {
		t.Fatalf("expected empty workload, not error: %v", err)
	}
	if len(w.AssignedTickets) != 0 || w.ActiveCount != 0 {
		t.Errorf("expected empty workload, got %+v", w)
	}
}

func TestAgentWorkload_EmptyAgentID(t *testing.T) {
	s := newTestStore(t)
	seed(t, s, "t-1", nil) // unassigned
	seed(t, s, "t-2", func(tk *protocol.Ticket) { tk.AssignedTo = "agent-b" })

	svc := New(s)
	w, err := svc.AgentWorkload("")
	if err != nil {
		t.Fatalf("expected empty workload, not error: %v", err)
	}
	if len(w.AssignedTickets) != 0 || w.ActiveCount != 0 {
		t.Errorf("empty agent ID must not match any ticket, got %+v", w)
	}
}

func TestUpcomingDeadlines(t *testing.T) {
	s := newTestStore(t)
	seed(t, s, "t-late", func(tk *protocol.Ticket) { tk.DueDate = due(-2 * time.Hour) })
	seed(t, s, "t-soon", func(tk *protocol.Ticket) { tk.DueDate = due(6 * time.Hour) })
	seed(t, s, "t-week", func(tk *protocol.Ticket) { tk.DueDate = due(5 * 24 * time.Hour) })
	seed(t, s, "t-far", func(tk *protocol.Ticket) { tk.DueDate = due(30 * 24 * time.Hour) })
	seed(t, s, "t-done", func(tk *protocol.Ticket) {
		tk.Status = protocol.StatusDone
		tk.DueDate = due(6 * time.Hour)
	})
	seed(t, s, "t-nodue", nil)

	svc := New(s, WithClock(func() time.Time { return testNow }))
	got, err := svc.UpcomingDeadlines(7)
	if err != nil {
		t.Fatalf("deadlines: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("expected 2 upcoming, got %d", len(got))
	}
	if got[0].ID != "t-soon" || got[1].ID != "t-week" {
		t.Errorf("expected ascending due order [t-soon t-week], got [%s %s]", got[0].ID, got[1].ID)
	}
	for _, tk := range got {
		if tk.DueDate.Before(testNow) {
			t.Errorf("overdue ticket %s must not appear in upcoming", tk.ID)
		}
		if tk.Status == protocol.StatusDone {
			t.Errorf("done ticket %s must not appear in upcoming", tk.ID)
		}
	}
}

func TestOverdue(t *testing.T) {
	s := newTestStore(t)
	seed(t, s, "t-old", func(tk *protocol.Ticket) { tk.DueDate = due(-72 * time.Hour) })
	seed(t, s, "t-late", func(tk *protocol.Ticket) { tk.DueDate = due(-2 * time.Hour) })
	seed(t, s, "t-soon", func(tk *protocol.Ticket) { tk.DueDate = due(6 * time.Hour) })
	seed(t, s, "t-done", func(tk *protocol.Ticket) {
		tk.Status = protocol.StatusDone
		tk.DueDate = due(-24 * time.Hour)
	})

	svc := New(s, WithClock(func() time.Time { return testNow }))
	got, err := svc.Overdue()
	if err != nil {
		t.Fatalf("overdue: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 overdue, got %d", len(got))
	}
	if got[0].ID != "t-old" || got[1].ID != "t-late" {
		t.Errorf("expected [t-old t-late], got [%s %s]", got[0].ID, got[1].ID)
	}
}

func TestUpcomingDeadlines_EmptyStore(t *testing.T) {
	svc := New(newTestStore(t))
	got, err := svc.UpcomingDeadlines(7)
	if err != nil {
		t.Fatalf("deadlines: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no deadlines, got %d", len(got))
	}
}
