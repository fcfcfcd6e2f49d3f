// Package thread provides the discussion thread service attached to
// tickets. The workflow orchestrator seeds a thread on ticket creation and
// posts escalation notes into it when a ticket blocks.
package thread

import (
	"errors"

	"github.com/waggle-io/waggle/pkg/protocol"
)

// ErrNotFound is returned when the referenced thread ID does not exist.
var ErrNotFound = errors.New("thread not found")

// Service is the discussion thread interface consumed by the workflow core.
type Service interface {
	// Create opens a new thread seeded with the given message. The seed's
	// content doubles as the thread title.
	Create(seed protocol.Message) (*protocol.Thread, error)
	// Post appends a message to an existing thread.
	Post(threadID string, msg protocol.Message) error
	// Get retrieves a thread by ID, including its messages in
	// chronological order.
	Get(threadID string) (*protocol.Thread, error)
	// Delete removes a thread and its messages. Deleting an absent thread
	// is a no-op.
	Delete(threadID string) error
}
