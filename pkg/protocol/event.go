package protocol

import "time"

// EventType discriminates the closed set of domain events. Dispatch by
// switching on this value; there is no open event hierarchy.
type EventType string

const (
	EventTicketCreated             EventType = "ticket.created"
	EventTicketStatusChanged       EventType = "ticket.status_changed"
	EventTicketAssigned            EventType = "ticket.assigned"
	EventTicketBlocked             EventType = "ticket.blocked"
	EventTicketCompleted           EventType = "ticket.completed"
	EventTicketMeetingScheduled    EventType = "ticket.meeting_scheduled"
	EventTicketDeadlineApproaching EventType = "ticket.deadline_approaching"
	EventTicketOverdue             EventType = "ticket.overdue"

	// Notification envelopes produced by the router. Never re-wrapped.
	EventNotifyAgent EventType = "notification.agent"
	EventNotifyHuman EventType = "notification.human"
)

// Urgency signals how promptly an event should be handled, independent of
// the ticket's priority.
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// Well-known event sources that are not agent IDs.
const (
	SourceHuman     = "human"
	SourceScheduler = "scheduler"
)

// Event is an immutable, timestamped fact about something that happened.
// Events are facts, not commands; they are never mutated after publication.
// Payload fields are populated per type: status changes carry
// PreviousStatus/NewStatus, assignments carry AssignedTo, blocks carry
// BlockingReason, and notification envelopes carry Target plus the wrapped
// original event.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Urgency   Urgency   `json:"urgency"`
	TicketID  string    `json:"ticket_id,omitempty"`

	PreviousStatus TicketStatus `json:"previous_status,omitempty"`
	NewStatus      TicketStatus `json:"new_status,omitempty"`
	AssignedTo     string       `json:"assigned_to,omitempty"`
	BlockingReason string       `json:"blocking_reason,omitempty"`
	DueDate        *time.Time   `json:"due_date,omitempty"`

	Target  string `json:"target,omitempty"`
	Wrapped *Event `json:"wrapped,omitempty"`
}

// Notification reports whether the event is a router-produced envelope.
func (e Event) Notification() bool {
	return e.Type == EventNotifyAgent || e.Type == EventNotifyHuman
}

// UrgencyFor derives an event urgency from a ticket priority: critical and
// high priority work warrants high urgency, medium maps to medium, low to low.
func UrgencyFor(p TicketPriority) Urgency {
	switch p {
	case PriorityCritical, PriorityHigh:
		return UrgencyHigh
	case PriorityMedium:
		return UrgencyMedium
	default:
		return UrgencyLow
	}
}
