// Package notify routes domain events to registered agents and human
// operators as notification envelopes.
package notify

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/waggle-io/waggle/internal/bus"
	"github.com/waggle-io/waggle/pkg/protocol"
)

// envelopeNS namespaces deterministic envelope IDs: wrapping the same event
// for the same target always yields the same envelope ID, so duplicate
// delivery attempts are idempotently identifiable downstream.
var envelopeNS = uuid.NewSHA1(uuid.NameSpaceURL, []byte("waggle://notification"))

// Sink receives notification envelopes for one target (an agent inbox, a
// connector toward a human operator).
type Sink interface {
	Deliver(n protocol.Event) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(n protocol.Event) error

func (f SinkFunc) Deliver(n protocol.Event) error { return f(n) }

// Router subscribes targets on the event bus and wraps each matching domain
// event in a per-target notification envelope. The envelope inherits the
// original event's urgency and timestamp unchanged and is re-published on
// the bus before sink delivery. Envelopes themselves are never re-wrapped.
type Router struct {
	bus    *bus.Bus
	logger *slog.Logger
}

// New creates a router on top of the given bus.
func New(b *bus.Bus, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{bus: b, logger: logger}
}

// RegisterAgent routes the given event types to an agent's sink and returns
// the agent's updated subscription set.
func (r *Router) RegisterAgent(agentID string, sink Sink, types ...protocol.EventType) []protocol.EventType {
	return r.register(agentID, protocol.EventNotifyAgent, sink, types)
}

// RegisterHuman routes the given event types to a human operator's sink and
// returns the operator's updated subscription set.
func (r *Router) RegisterHuman(operatorID string, sink Sink, types ...protocol.EventType) []protocol.EventType {
	return r.register(operatorID, protocol.EventNotifyHuman, sink, types)
}

// Deregister removes event types from a target's subscription and returns
// the remaining set.
func (r *Router) Deregister(targetID string, types ...protocol.EventType) []protocol.EventType {
	return r.bus.Unsubscribe(busID(targetID), types...)
}

func (r *Router) register(targetID string, kind protocol.EventType, sink Sink, types []protocol.EventType) []protocol.EventType {
	handler := func(e protocol.Event) {
		if e.Notification() {
			return
		}
		n := Envelope(e, targetID, kind)
		r.bus.Publish(n)
		if err := sink.Deliver(n); err != nil {
			r.logger.Error("notification delivery failed",
				"target", targetID,
				"event", e.ID,
				"envelope", n.ID,
				"error", err,
			)
		}
	}
	return r.bus.Subscribe(busID(targetID), handler, types...)
}

// Envelope wraps an event for a target. The envelope ID is derived from the
// original event ID and the target identity, never random.
func Envelope(e protocol.Event, targetID string, kind protocol.EventType) protocol.Event {
	orig := e
	return protocol.Event{
		ID:        uuid.NewSHA1(envelopeNS, []byte(e.ID+"/"+targetID)).String(),
		Type:      kind,
		Timestamp: e.Timestamp,
		Source:    e.Source,
		Urgency:   e.Urgency,
		TicketID:  e.TicketID,
		Target:    targetID,
		Wrapped:   &orig,
	}
}

// busID keeps router registrations from colliding with direct bus
// subscriptions under the same agent ID.
func busID(targetID string) string { return "notify/" + targetID }
