package workflow

import (
	"slices"

	"github.com/waggle-io/waggle/pkg/protocol"
)

// transitions is the ticket lifecycle table. Backlog is the initial state,
// done is terminal. Any pair not listed here is rejected.
var transitions = map[protocol.TicketStatus][]protocol.TicketStatus{
	protocol.StatusBacklog:    {protocol.StatusReady},
	protocol.StatusReady:      {protocol.StatusInProgress},
	protocol.StatusInProgress: {protocol.StatusBlocked, protocol.StatusInReview, protocol.StatusDone},
	protocol.StatusBlocked:    {protocol.StatusInProgress},
	protocol.StatusInReview:   {protocol.StatusInProgress, protocol.StatusDone},
	protocol.StatusDone:       nil,
}

// CanTransition reports whether moving a ticket from one status to the
// other is legal.
func CanTransition(from, to protocol.TicketStatus) bool {
	return slices.Contains(transitions[from], to)
}
