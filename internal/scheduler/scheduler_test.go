package scheduler

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/waggle-io/waggle/internal/analytics"
	"github.com/waggle-io/waggle/internal/bus"
	"github.com/waggle-io/waggle/internal/ticket"
	"github.com/waggle-io/waggle/pkg/protocol"
)

var testNow = time.Date(2026, 5, 20, 12, 0, 0, 0, time.UTC)

func newSweeper(t *testing.T) (*Sweeper, *ticket.SQLiteStore, chan protocol.Event) {
	t.Helper()
	store, err := ticket.NewSQLiteStore(filepath.Join(t.TempDir(), "tickets.db"))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	t.Cleanup(func() { store.DB().Close() })

	b := bus.New(nil)
	t.Cleanup(b.Close)

	events := make(chan protocol.Event, 16)
	b.Subscribe("recorder", func(e protocol.Event) { events <- e },
		protocol.EventTicketOverdue, protocol.EventTicketDeadlineApproaching)

	a := analytics.New(store, analytics.WithClock(func() time.Time { return testNow }))
	s := New(a, b, 3, nil)
	s.now = func() time.Time { return testNow }
	return s, store, events
}

func seed(t *testing.T, store *ticket.SQLiteStore, id string, status protocol.TicketStatus, dueIn time.Duration) {
	t.Helper()
	due := testNow.Add(dueIn)
	tk := &protocol.Ticket{
		ID:        id,
		Title:     "ticket " + id,
		Type:      protocol.TypeTask,
		Priority:  protocol.PriorityLow,
		Status:    status,
		CreatedBy: "agent-a",
		CreatedAt: testNow,
		UpdatedAt: testNow,
		DueDate:   &due,
	}
	if err := store.Create(tk); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func recvOne(t *testing.T, ch chan protocol.Event) protocol.Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for sweep event")
		return protocol.Event{}
	}
}

func TestSweepPublishesOverdueAndApproaching(t *testing.T) {
	s, store, events := newSweeper(t)
	seed(t, store, "t-overdue", protocol.StatusInProgress, -2*time.Hour)
	seed(t, store, "t-soon", protocol.StatusReady, 24*time.Hour)
	seed(t, store, "t-far", protocol.StatusReady, 30*24*time.Hour)
	seed(t, store, "t-done", protocol.StatusDone, -24*time.Hour)

	s.Sweep()

	over := recvOne(t, events)
	if over.Type != protocol.EventTicketOverdue || over.TicketID != "t-overdue" {
		t.Errorf("expected ticket.overdue for t-overdue, got %s/%s", over.Type, over.TicketID)
	}
	if over.Urgency != protocol.UrgencyHigh {
		t.Errorf("overdue events must be high urgency, got %s", over.Urgency)
	}
	if over.Source != protocol.SourceScheduler {
		t.Errorf("expected scheduler source, got %q", over.Source)
	}

	soon := recvOne(t, events)
	if soon.Type != protocol.EventTicketDeadlineApproaching || soon.TicketID != "t-soon" {
		t.Errorf("expected deadline_approaching for t-soon, got %s/%s", soon.Type, soon.TicketID)
	}
	if soon.Urgency != protocol.UrgencyMedium {
		t.Errorf("approaching events are medium urgency, got %s", soon.Urgency)
	}

	select {
	case extra := <-events:
		t.Errorf("unexpected event for %s (%s)", extra.TicketID, extra.Type)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSweepEmptyStoreIsQuiet(t *testing.T) {
	s, _, events := newSweeper(t)
	s.Sweep()

	select {
	case e := <-events:
		t.Errorf("unexpected event %s", e.Type)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestScheduleRejectsBadExpression(t *testing.T) {
	s, _, _ := newSweeper(t)
	if err := s.Schedule("not a cron expression"); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
	if err := s.Schedule("@every 5m"); err != nil {
		t.Fatalf("valid schedule rejected: %v", err)
	}
}
