// Package analytics computes read-only aggregates over the ticket store.
// Every query recomputes from a fresh store snapshot; nothing is cached, so
// results may observe a ticket mid-transition. That is acceptable for
// aggregate counts.
package analytics

import (
	"fmt"
	"slices"
	"time"

	"github.com/waggle-io/waggle/internal/ticket"
	"github.com/waggle-io/waggle/pkg/protocol"
)

// BacklogSummary is a point-in-time aggregate over all tickets.
type BacklogSummary struct {
	TotalTickets int                              `json:"total_tickets"`
	ByStatus     map[protocol.TicketStatus]int    `json:"by_status"`
	ByPriority   map[protocol.TicketPriority]int  `json:"by_priority"`
	ByType       map[protocol.TicketType]int      `json:"by_type"`
	BlockedCount int                              `json:"blocked_count"`
	OverdueCount int                              `json:"overdue_count"`
}

// AgentWorkload is a point-in-time view of one agent's assigned tickets.
// ActiveCount is every assigned ticket that is not done, not just the
// in-progress and blocked ones.
type AgentWorkload struct {
	AgentID         string             `json:"agent_id"`
	AssignedTickets []*protocol.Ticket `json:"assigned_tickets"`
	InProgressCount int                `json:"in_progress_count"`
	BlockedCount    int                `json:"blocked_count"`
	CompletedCount  int                `json:"completed_count"`
	ActiveCount     int                `json:"active_count"`
}

// Service answers analytics queries against the ticket store.
type Service struct {
	store ticket.Store
	now   func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source (for tests).
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates an analytics service over the given store.
func New(store ticket.Store, opts ...Option) *Service {
	s := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BacklogSummary returns the total count, the status/priority/type
// histograms, and the blocked and overdue counts. An empty store yields an
// all-zero summary.
func (s *Service) BacklogSummary() (*BacklogSummary, error) {
	tickets, err := s.store.All()
	if err != nil {
		return nil, fmt.Errorf("analytics: backlog summary: %w", err)
	}

	now := s.now()
	sum := &BacklogSummary{
		ByStatus:   make(map[protocol.TicketStatus]int),
		ByPriority: make(map[protocol.TicketPriority]int),
		ByType:     make(map[protocol.TicketType]int),
	}
	for _, t := range tickets {
		sum.TotalTickets++
		sum.ByStatus[t.Status]++
		sum.ByPriority[t.Priority]++
		sum.ByType[t.Type]++
		if t.Status == protocol.StatusBlocked {
			sum.BlockedCount++
		}
		if t.DueDate != nil && t.DueDate.Before(now) && t.Status != protocol.StatusDone {
			sum.OverdueCount++
		}
	}
	return sum, nil
}

// AgentWorkload returns the agent's assigned tickets and derived counts.
// An agent with no assignments yields a well-formed empty workload.
func (s *Service) AgentWorkload(agentID string) (*AgentWorkload, error) {
	// An empty ID would disable the assignee filter and sweep up every
	// ticket; it identifies nobody.
	if agentID == "" {
		return &AgentWorkload{AssignedTickets: []*protocol.Ticket{}}, nil
	}
	assigned, err := s.store.List(ticket.Filter{AssignedTo: agentID})
	if err != nil {
		return nil, fmt.Errorf("analytics: agent workload: %w", err)
	}
	if assigned == nil {
		assigned = []*protocol.Ticket{}
	}

	w := &AgentWorkload{AgentID: agentID, AssignedTickets: assigned}
	for _, t := range assigned {
		switch t.Status {
		case protocol.StatusInProgress:
			w.InProgressCount++
		case protocol.StatusBlocked:
			w.BlockedCount++
		case protocol.StatusDone:
			w.CompletedCount++
		}
	}
	w.ActiveCount = len(assigned) - w.CompletedCount
	return w, nil
}

// Overdue returns tickets whose due date is strictly in the past and whose
// status is not done, sorted ascending by due date (most overdue first).
func (s *Service) Overdue() ([]*protocol.Ticket, error) {
	tickets, err := s.store.All()
	if err != nil {
		return nil, fmt.Errorf("analytics: overdue: %w", err)
	}

	now := s.now()
	overdue := []*protocol.Ticket{}
	for _, t := range tickets {
		if t.DueDate == nil || t.Status == protocol.StatusDone {
			continue
		}
		if t.DueDate.Before(now) {
			overdue = append(overdue, t)
		}
	}
	slices.SortFunc(overdue, func(a, b *protocol.Ticket) int {
		return a.DueDate.Compare(*b.DueDate)
	})
	return overdue, nil
}

// UpcomingDeadlines returns tickets due within the next daysAhead days,
// sorted ascending by due date. Tickets already overdue belong to the
// overdue count, not here; done tickets are excluded entirely.
func (s *Service) UpcomingDeadlines(daysAhead int) ([]*protocol.Ticket, error) {
	tickets, err := s.store.All()
	if err != nil {
		return nil, fmt.Errorf("analytics: upcoming deadlines: %w", err)
	}

	now := s.now()
	horizon := now.Add(time.Duration(daysAhead) * 24 * time.Hour)

	upcoming := []*protocol.Ticket{}
	for _, t := range tickets {
		if t.DueDate == nil || t.Status == protocol.StatusDone {
			continue
		}
		if t.DueDate.Before(now) || t.DueDate.After(horizon) {
			continue
		}
		upcoming = append(upcoming, t)
	}
	slices.SortFunc(upcoming, func(a, b *protocol.Ticket) int {
		return a.DueDate.Compare(*b.DueDate)
	})
	return upcoming, nil
}
