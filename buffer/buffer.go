// Package buffer implements the bounded FIFO message buffer used to hold
// publishes attempted during reconnection.
package buffer

import (
	"sync"
	"time"

	herrors "github.com/nogards95TG/hermes-mq/errors"
)

// Entry is a pending publish awaiting flush.
type Entry struct {
	Payload    []byte
	Exchange   string
	RoutingKey string
	Mandatory  bool
	Persistent bool
	insertedAt time.Time
	done       chan error
}

// Wait blocks until the entry is flushed (nil error), expired, or
// cleared, returning the terminal error if any.
func (e *Entry) Wait() error {
	return <-e.done
}

// Buffer is a capacity-bounded FIFO queue of Entry values with per-entry
// TTL expiry.
type Buffer struct {
	mu       sync.Mutex
	entries  []*Entry
	capacity int
	ttl      time.Duration
}

// New constructs a Buffer with the given capacity and per-entry TTL.
func New(capacity int, ttl time.Duration) *Buffer {
	return &Buffer{capacity: capacity, ttl: ttl}
}

// Add enqueues a pending publish. It fails immediately with a *Publish*
// error if the buffer is at capacity.
func (b *Buffer) Add(payload []byte, exchange, routingKey string, mandatory, persistent bool) (*Entry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.capacity > 0 && len(b.entries) >= b.capacity {
		return nil, herrors.New(herrors.CodePublishBufferFull, "message buffer is full")
	}
	e := &Entry{
		Payload:    payload,
		Exchange:   exchange,
		RoutingKey: routingKey,
		Mandatory:  mandatory,
		Persistent: persistent,
		insertedAt: time.Now(),
		done:       make(chan error, 1),
	}
	b.entries = append(b.entries, e)
	return e, nil
}

// Flush drains the buffer in FIFO order. Entries whose TTL has elapsed
// are rejected with an Expired error rather than returned for
// redelivery.
func (b *Buffer) Flush() []*Entry {
	b.mu.Lock()
	entries := b.entries
	b.entries = nil
	b.mu.Unlock()

	live := make([]*Entry, 0, len(entries))
	for _, e := range entries {
		if b.ttl > 0 && time.Since(e.insertedAt) > b.ttl {
			e.done <- herrors.New(herrors.CodePublishExpired, "buffered message expired before flush")
			continue
		}
		live = append(live, e)
	}
	return live
}

// Resolve marks entry as successfully republished.
func (b *Buffer) Resolve(e *Entry) {
	e.done <- nil
}

// Reject marks entry as failed to republish.
func (b *Buffer) Reject(e *Entry, err error) {
	e.done <- err
}

// Clear rejects every outstanding entry with reason and empties the
// buffer.
func (b *Buffer) Clear(reason error) {
	b.mu.Lock()
	entries := b.entries
	b.entries = nil
	b.mu.Unlock()
	for _, e := range entries {
		e.done <- reason
	}
}

// Len reports the number of currently buffered entries.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}
