// Package logbuf captures recent slog output in memory so the API server
// can serve it without touching the daemon's stdout stream.
package logbuf

import (
	"log/slog"
	"sync"
	"time"
)

// Entry is a single captured log record.
type Entry struct {
	Time    time.Time      `json:"time"`
	Level   slog.Level     `json:"level"`
	Message string         `json:"message"`
	Attrs   map[string]any `json:"attrs,omitempty"`
}

// Buffer retains recent log entries. It keeps at least the most recent
// `capacity` entries (and at most twice that), using two generations that
// swap when the current one fills, which keeps appends allocation-cheap.
type Buffer struct {
	mu       sync.Mutex
	capacity int
	prev     []Entry
	current  []Entry
}

// New creates a buffer retaining at least capacity entries.
func New(capacity int) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer{
		capacity: capacity,
		current:  make([]Entry, 0, capacity),
	}
}

// Append records an entry.
func (b *Buffer) Append(e Entry) {
	b.mu.Lock()
	if len(b.current) == b.capacity {
		b.prev = b.current
		b.current = make([]Entry, 0, b.capacity)
	}
	b.current = append(b.current, e)
	b.mu.Unlock()
}

// Tail returns retained entries at or above minLevel and not before since,
// oldest first. A zero since means no time filter; limit <= 0 means no
// count limit, otherwise the newest `limit` matches are returned.
func (b *Buffer) Tail(since time.Time, minLevel slog.Level, limit int) []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []Entry
	for _, gen := range [][]Entry{b.prev, b.current} {
		for _, e := range gen {
			if e.Level < minLevel {
				continue
			}
			if !since.IsZero() && e.Time.Before(since) {
				continue
			}
			out = append(out, e)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}
