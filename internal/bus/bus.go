// Package bus is the in-process publish/subscribe dispatcher for domain
// events. Each subscriber is drained by its own goroutine, so delivery to one
// subscriber never blocks delivery to another, while events destined for the
// same subscriber arrive in publication order.
//
// The subscription map is guarded by a single RWMutex; registration and
// deregistration are safe under concurrent Publish.
package bus

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/waggle-io/waggle/pkg/protocol"
)

// Handler processes a delivered event. A handler that panics is isolated:
// the panic is recovered and logged without affecting other subscribers or
// the publisher.
type Handler func(protocol.Event)

type subscriber struct {
	id      string
	handler Handler
	types   map[protocol.EventType]struct{}

	mu    sync.Mutex
	queue []protocol.Event
	wake  chan struct{}
	stop  chan struct{}
}

// Bus routes published events to subscribers by event type.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]*subscriber
	logger *slog.Logger
	wg     sync.WaitGroup
	closed bool
}

// New creates an event bus.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subs:   make(map[string]*subscriber),
		logger: logger,
	}
}

// Subscribe registers the handler for the given event types under the
// subscriber ID, adding to any existing registration, and returns the
// subscriber's updated type set. The handler passed on the first Subscribe
// call for an ID is the one used; later calls only extend the type set.
func (b *Bus) Subscribe(subscriberID string, handler Handler, types ...protocol.EventType) []protocol.EventType {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subs[subscriberID]
	if !ok {
		sub = &subscriber{
			id:      subscriberID,
			handler: handler,
			types:   make(map[protocol.EventType]struct{}),
			wake:    make(chan struct{}, 1),
			stop:    make(chan struct{}),
		}
		b.subs[subscriberID] = sub
		b.wg.Add(1)
		go b.dispatch(sub)
	}
	for _, t := range types {
		sub.types[t] = struct{}{}
	}
	b.logger.Debug("subscribed", "subscriber", subscriberID, "types", len(sub.types))
	return typeSet(sub)
}

// Unsubscribe removes the given event types from the subscriber's
// registration and returns the remaining set. A subscriber left with no
// types is removed entirely and its dispatcher stopped.
func (b *Bus) Unsubscribe(subscriberID string, types ...protocol.EventType) []protocol.EventType {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subs[subscriberID]
	if !ok {
		return nil
	}
	for _, t := range types {
		delete(sub.types, t)
	}
	if len(sub.types) == 0 {
		close(sub.stop)
		delete(b.subs, subscriberID)
		b.logger.Debug("subscriber removed", "subscriber", subscriberID)
		return nil
	}
	return typeSet(sub)
}

// Publish delivers the event to every subscriber whose registered type set
// contains the event's type. Publishing with no matching subscribers is a
// no-op. Publish never blocks on slow subscribers.
func (b *Bus) Publish(e protocol.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		b.logger.Warn("publish on closed bus dropped", "type", e.Type, "event", e.ID)
		return
	}

	for _, sub := range b.subs {
		if _, ok := sub.types[e.Type]; !ok {
			continue
		}
		sub.mu.Lock()
		sub.queue = append(sub.queue, e)
		sub.mu.Unlock()
		select {
		case sub.wake <- struct{}{}:
		default:
		}
	}
}

// Close stops all dispatchers and waits for in-flight deliveries to finish.
// The bus must not be used after Close.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		close(sub.stop)
		delete(b.subs, id)
	}
	b.mu.Unlock()
	b.wg.Wait()
}

// dispatch drains a subscriber's queue in order until the subscriber stops.
func (b *Bus) dispatch(sub *subscriber) {
	defer b.wg.Done()
	for {
		select {
		case <-sub.wake:
			for _, e := range b.drain(sub) {
				b.invoke(sub, e)
			}
		case <-sub.stop:
			// Final drain so events queued before removal still deliver.
			for _, e := range b.drain(sub) {
				b.invoke(sub, e)
			}
			return
		}
	}
}

func (b *Bus) drain(sub *subscriber) []protocol.Event {
	sub.mu.Lock()
	batch := sub.queue
	sub.queue = nil
	sub.mu.Unlock()
	return batch
}

// invoke runs the handler, containing any panic to this one delivery.
func (b *Bus) invoke(sub *subscriber, e protocol.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("subscriber handler panicked",
				"subscriber", sub.id,
				"event", e.ID,
				"type", e.Type,
				"panic", r,
			)
		}
	}()
	sub.handler(e)
}

func typeSet(sub *subscriber) []protocol.EventType {
	out := make([]protocol.EventType, 0, len(sub.types))
	for t := range sub.types {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}
