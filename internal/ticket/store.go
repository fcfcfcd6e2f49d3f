package ticket

import (
	"errors"
	"time"

	"github.com/waggle-io/waggle/pkg/protocol"
)

// ErrNotFound is returned when the referenced ticket ID does not exist.
var ErrNotFound = errors.New("ticket not found")

// ErrConflict is returned when a conditional update observed a ticket that
// moved out of the expected state under a concurrent writer.
var ErrConflict = errors.New("ticket state conflict")

// Store is the persistence interface for tickets. The store owns the
// authoritative ticket record; callers never hold long-lived ticket state.
type Store interface {
	// Create persists a new ticket. The ID must not already exist.
	Create(t *protocol.Ticket) error
	// Get retrieves a ticket by ID.
	Get(id string) (*protocol.Ticket, error)
	// List returns tickets matching the filter, newest first.
	List(filter Filter) ([]*protocol.Ticket, error)
	// All returns every ticket. Used by analytics for snapshot aggregation.
	All() ([]*protocol.Ticket, error)
	// UpdateStatus moves a ticket from the expected status to next. The
	// update is conditioned on the expected prior status so that two
	// concurrent transitions cannot both succeed against a stale read.
	UpdateStatus(id string, expected, next protocol.TicketStatus, now time.Time) error
	// UpdateAssignee sets the assigned agent. Empty assignee unassigns.
	UpdateAssignee(id, assignee string, now time.Time) error
	// UpdateDueDate sets or clears the due date.
	UpdateDueDate(id string, due *time.Time, now time.Time) error
}

// Filter constrains ticket list queries.
type Filter struct {
	Status     *protocol.TicketStatus
	Type       *protocol.TicketType
	Priority   *protocol.TicketPriority
	AssignedTo string
	CreatedBy  string
	Limit      int // 0 = no limit
}
