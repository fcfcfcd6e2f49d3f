// Package workflow is the ticket orchestrator: it validates and applies
// ticket mutations, enforces who may mutate what, and publishes the
// resulting domain events. The store stays the single source of truth:
// every operation re-reads the ticket before mutating it.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/waggle-io/waggle/internal/bus"
	"github.com/waggle-io/waggle/internal/thread"
	"github.com/waggle-io/waggle/internal/ticket"
	"github.com/waggle-io/waggle/pkg/protocol"
)

// EscalationKind says where a block escalation should be routed.
type EscalationKind string

const (
	EscalateHuman      EscalationKind = "human"
	EscalateSupervisor EscalationKind = "supervisor"
)

// Escalation is an attention request raised when an in-flight ticket stalls.
type Escalation struct {
	TicketID   string
	Title      string
	Reason     string
	Kind       EscalationKind
	ReportedBy string
	AssignedTo string
}

// Escalator routes an escalation toward a human or supervisory channel. The
// orchestrator only issues the request; it never waits for a response.
type Escalator interface {
	Escalate(ctx context.Context, e Escalation) error
}

const lockStripes = 64

// Orchestrator applies ticket mutations under the workflow rules.
//
// Mutations are serialized per ticket ID through striped locks so that the
// authorization and transition-validity checks observe a consistent
// snapshot; the store's conditional status update is the backstop against
// writers outside this process. Different tickets mutate fully concurrently.
type Orchestrator struct {
	store    ticket.Store
	bus      *bus.Bus
	threads  thread.Service
	escalate Escalator
	logger   *slog.Logger
	now      func() time.Time

	locks [lockStripes]sync.Mutex
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithEscalator routes block escalations through the given channel.
func WithEscalator(e Escalator) Option {
	return func(o *Orchestrator) { o.escalate = e }
}

// WithClock overrides the time source (for tests).
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an orchestrator over the given store, bus, and thread service.
func New(store ticket.Store, b *bus.Bus, threads thread.Service, logger *slog.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		store:   store,
		bus:     b,
		threads: threads,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// CreateRequest carries the inputs for CreateTicket.
type CreateRequest struct {
	Title       string
	Description string
	Type        protocol.TicketType
	Priority    protocol.TicketPriority
	CreatedBy   string
	DueDate     *time.Time
}

// CreateTicket validates the request, persists a new backlog ticket, opens
// its discussion thread seeded with the title, and publishes ticket.created
// with urgency derived from the priority.
func (o *Orchestrator) CreateTicket(ctx context.Context, req CreateRequest) (*protocol.Ticket, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, &ValidationError{Actor: req.CreatedBy, Reason: "title must not be blank"}
	}
	if req.Type == "" {
		req.Type = protocol.TypeTask
	}
	if req.Priority == "" {
		req.Priority = protocol.PriorityMedium
	}

	now := o.now()
	t := &protocol.Ticket{
		ID:          uuid.NewString(),
		Title:       req.Title,
		Description: req.Description,
		Type:        req.Type,
		Priority:    req.Priority,
		Status:      protocol.StatusBacklog,
		CreatedBy:   req.CreatedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
		DueDate:     req.DueDate,
	}

	th, err := o.threads.Create(protocol.Message{
		ID:        uuid.NewString(),
		From:      req.CreatedBy,
		Content:   req.Title,
		Timestamp: now,
	})
	if err != nil {
		return nil, fmt.Errorf("workflow: open thread: %w", err)
	}
	t.ThreadID = th.ID

	if err := o.store.Create(t); err != nil {
		// The thread was opened first so the insert could record its ID;
		// remove it rather than leave it orphaned.
		if derr := o.threads.Delete(th.ID); derr != nil {
			o.logger.Error("orphan thread cleanup failed", "thread", th.ID, "error", derr)
		}
		return nil, fmt.Errorf("workflow: create ticket: %w", err)
	}

	o.bus.Publish(protocol.Event{
		ID:        uuid.NewString(),
		Type:      protocol.EventTicketCreated,
		Timestamp: now,
		Source:    req.CreatedBy,
		Urgency:   protocol.UrgencyFor(req.Priority),
		TicketID:  t.ID,
		DueDate:   req.DueDate,
	})

	o.logger.Info("ticket created", "ticket", t.ID, "by", req.CreatedBy, "priority", req.Priority, "title", req.Title)
	return t, nil
}

// TransitionStatus moves a ticket to the next status on behalf of the actor.
// The actor must be the creator or the current assignee, and the move must
// be legal under the transition table.
func (o *Orchestrator) TransitionStatus(ctx context.Context, ticketID string, next protocol.TicketStatus, actor string) (*protocol.Ticket, error) {
	unlock := o.lock(ticketID)
	defer unlock()

	t, err := o.load(ticketID)
	if err != nil {
		return nil, err
	}
	if err := o.authorize(t, actor); err != nil {
		return nil, err
	}
	if !CanTransition(t.Status, next) {
		return nil, &TransitionError{TicketID: ticketID, From: t.Status, To: next}
	}

	now := o.now()
	if err := o.store.UpdateStatus(ticketID, t.Status, next, now); err != nil {
		if errors.Is(err, ticket.ErrConflict) {
			return nil, &TransitionError{TicketID: ticketID, From: t.Status, To: next}
		}
		return nil, fmt.Errorf("workflow: transition: %w", err)
	}

	o.bus.Publish(protocol.Event{
		ID:             uuid.NewString(),
		Type:           protocol.EventTicketStatusChanged,
		Timestamp:      now,
		Source:         actor,
		Urgency:        protocol.UrgencyFor(t.Priority),
		TicketID:       ticketID,
		PreviousStatus: t.Status,
		NewStatus:      next,
	})
	if next == protocol.StatusDone {
		o.bus.Publish(protocol.Event{
			ID:        uuid.NewString(),
			Type:      protocol.EventTicketCompleted,
			Timestamp: now,
			Source:    actor,
			Urgency:   protocol.UrgencyFor(t.Priority),
			TicketID:  ticketID,
		})
	}

	o.logger.Info("ticket status changed", "ticket", ticketID, "from", t.Status, "to", next, "by", actor)

	t.Status = next
	t.UpdatedAt = now
	return t, nil
}

// Assign sets (or, with an empty target, clears) a ticket's assignee on
// behalf of the assigner. The assigner must be the creator or the current
// assignee, and a done ticket can no longer be reassigned.
func (o *Orchestrator) Assign(ctx context.Context, ticketID, target, assigner string) (*protocol.Ticket, error) {
	unlock := o.lock(ticketID)
	defer unlock()

	t, err := o.load(ticketID)
	if err != nil {
		return nil, err
	}
	if err := o.authorize(t, assigner); err != nil {
		return nil, err
	}
	if t.Status.Terminal() {
		return nil, &ValidationError{TicketID: ticketID, Actor: assigner, Reason: "ticket is done and can no longer be modified"}
	}

	now := o.now()
	if err := o.store.UpdateAssignee(ticketID, target, now); err != nil {
		return nil, fmt.Errorf("workflow: assign: %w", err)
	}

	o.bus.Publish(protocol.Event{
		ID:         uuid.NewString(),
		Type:       protocol.EventTicketAssigned,
		Timestamp:  now,
		Source:     assigner,
		Urgency:    protocol.UrgencyFor(t.Priority),
		TicketID:   ticketID,
		AssignedTo: target,
	})

	o.logger.Info("ticket assigned", "ticket", ticketID, "to", target, "by", assigner)

	t.AssignedTo = target
	t.UpdatedAt = now
	return t, nil
}

// Block marks an in-progress ticket as blocked, posts an escalation message
// into its discussion thread, routes an attention request to the escalation
// channel, and publishes ticket.blocked. The event urgency is always high:
// a blocked in-flight ticket warrants elevated attention regardless of the
// ticket's own priority.
func (o *Orchestrator) Block(ctx context.Context, ticketID, reason string, kind EscalationKind, reporter, assigned string) (*protocol.Ticket, error) {
	unlock := o.lock(ticketID)
	defer unlock()

	t, err := o.load(ticketID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(t.Status, protocol.StatusBlocked) {
		return nil, &TransitionError{TicketID: ticketID, From: t.Status, To: protocol.StatusBlocked}
	}

	now := o.now()
	if err := o.store.UpdateStatus(ticketID, t.Status, protocol.StatusBlocked, now); err != nil {
		if errors.Is(err, ticket.ErrConflict) {
			return nil, &TransitionError{TicketID: ticketID, From: t.Status, To: protocol.StatusBlocked}
		}
		return nil, fmt.Errorf("workflow: block: %w", err)
	}

	if t.ThreadID != "" {
		msg := protocol.Message{
			ID:        uuid.NewString(),
			From:      reporter,
			Content:   fmt.Sprintf("BLOCKED: %s (requesting %s attention)", reason, kind),
			Timestamp: now,
		}
		if err := o.threads.Post(t.ThreadID, msg); err != nil {
			o.logger.Error("escalation thread post failed", "ticket", ticketID, "thread", t.ThreadID, "error", err)
		}
	}

	if o.escalate != nil {
		esc := Escalation{
			TicketID:   ticketID,
			Title:      t.Title,
			Reason:     reason,
			Kind:       kind,
			ReportedBy: reporter,
			AssignedTo: assigned,
		}
		if err := o.escalate.Escalate(ctx, esc); err != nil {
			o.logger.Error("escalation routing failed", "ticket", ticketID, "kind", kind, "error", err)
		}
	}

	o.bus.Publish(protocol.Event{
		ID:             uuid.NewString(),
		Type:           protocol.EventTicketBlocked,
		Timestamp:      now,
		Source:         reporter,
		Urgency:        protocol.UrgencyHigh,
		TicketID:       ticketID,
		BlockingReason: reason,
	})

	o.logger.Warn("ticket blocked", "ticket", ticketID, "reason", reason, "by", reporter)

	t.Status = protocol.StatusBlocked
	t.UpdatedAt = now
	return t, nil
}

// RecordMeeting notes a scheduled meeting about a ticket in its thread and
// publishes ticket.meeting_scheduled. Called by the meeting subsystem; the
// orchestrator does no scheduling itself.
func (o *Orchestrator) RecordMeeting(ctx context.Context, ticketID, organizer string, at time.Time) error {
	t, err := o.load(ticketID)
	if err != nil {
		return err
	}

	now := o.now()
	if t.ThreadID != "" {
		msg := protocol.Message{
			ID:        uuid.NewString(),
			From:      organizer,
			Content:   fmt.Sprintf("Meeting scheduled for %s", at.Format(time.RFC3339)),
			Timestamp: now,
		}
		if err := o.threads.Post(t.ThreadID, msg); err != nil {
			o.logger.Error("meeting thread post failed", "ticket", ticketID, "error", err)
		}
	}

	o.bus.Publish(protocol.Event{
		ID:        uuid.NewString(),
		Type:      protocol.EventTicketMeetingScheduled,
		Timestamp: now,
		Source:    organizer,
		Urgency:   protocol.UrgencyFor(t.Priority),
		TicketID:  ticketID,
	})
	return nil
}

// Get returns the current ticket record.
func (o *Orchestrator) Get(ticketID string) (*protocol.Ticket, error) {
	return o.load(ticketID)
}

// --- helpers ---

func (o *Orchestrator) load(ticketID string) (*protocol.Ticket, error) {
	t, err := o.store.Get(ticketID)
	if err != nil {
		if errors.Is(err, ticket.ErrNotFound) {
			return nil, &NotFoundError{TicketID: ticketID}
		}
		return nil, fmt.Errorf("workflow: load ticket: %w", err)
	}
	return t, nil
}

// authorize permits mutation only by the ticket's creator or its current
// assignee.
func (o *Orchestrator) authorize(t *protocol.Ticket, actor string) error {
	if actor != "" && (actor == t.CreatedBy || (t.AssignedTo != "" && actor == t.AssignedTo)) {
		return nil
	}
	return &ValidationError{
		TicketID: t.ID,
		Actor:    actor,
		Reason:   "only the creator or current assignee may mutate this ticket",
	}
}

func (o *Orchestrator) lock(ticketID string) func() {
	h := fnv.New32a()
	h.Write([]byte(ticketID))
	mu := &o.locks[h.Sum32()%lockStripes]
	mu.Lock()
	return mu.Unlock
}
