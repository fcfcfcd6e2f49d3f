package protocol

import "time"

// TicketStatus represents the lifecycle state of a ticket.
type TicketStatus string

const (
	StatusBacklog    TicketStatus = "backlog"
	StatusReady      TicketStatus = "ready"
	StatusInProgress TicketStatus = "in_progress"
	StatusBlocked    TicketStatus = "blocked"
	StatusInReview   TicketStatus = "in_review"
	StatusDone       TicketStatus = "done"
)

// Terminal reports whether the status admits no further transitions.
func (s TicketStatus) Terminal() bool { return s == StatusDone }

// TicketType classifies the kind of work a ticket tracks.
type TicketType string

const (
	TypeFeature TicketType = "feature"
	TypeTask    TicketType = "task"
	TypeBug     TicketType = "bug"
	TypeSpike   TicketType = "spike"
)

// TicketPriority ranks how important a ticket is relative to the backlog.
type TicketPriority string

const (
	PriorityLow      TicketPriority = "low"
	PriorityMedium   TicketPriority = "medium"
	PriorityHigh     TicketPriority = "high"
	PriorityCritical TicketPriority = "critical"
)

// Ticket is a trackable unit of work owned by the ticket store.
// All mutation goes through the workflow orchestrator; status only ever
// holds a value reachable via the workflow transition table.
type Ticket struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Type        TicketType     `json:"type"`
	Priority    TicketPriority `json:"priority"`
	Status      TicketStatus   `json:"status"`
	AssignedTo  string         `json:"assigned_to,omitempty"`
	CreatedBy   string         `json:"created_by"`
	ThreadID    string         `json:"thread_id,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DueDate     *time.Time     `json:"due_date,omitempty"`
}
