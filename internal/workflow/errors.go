package workflow

import (
	"fmt"

	"github.com/waggle-io/waggle/pkg/protocol"
)

// ValidationError covers malformed input and authorization failures. The
// caller can recover by correcting the input or acting as an authorized
// agent; it is never retried automatically.
type ValidationError struct {
	TicketID string
	Actor    string
	Reason   string
}

func (e *ValidationError) Error() string {
	if e.TicketID == "" {
		return fmt.Sprintf("validation: %s", e.Reason)
	}
	if e.Actor == "" {
		return fmt.Sprintf("validation: ticket %s: %s", e.TicketID, e.Reason)
	}
	return fmt.Sprintf("validation: ticket %s: actor %s: %s", e.TicketID, e.Actor, e.Reason)
}

// NotFoundError reports that the referenced ticket does not exist.
type NotFoundError struct {
	TicketID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("ticket %s not found", e.TicketID)
}

// TransitionError reports a status change that is not reachable from the
// ticket's current status under the transition table.
type TransitionError struct {
	TicketID string
	From     protocol.TicketStatus
	To       protocol.TicketStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("ticket %s: invalid transition %s -> %s", e.TicketID, e.From, e.To)
}
