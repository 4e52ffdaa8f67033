// Package session owns connected clients, the registry of two-player
// matches, matchmaking and the match lifecycle.
package session

import (
	"errors"
	"sync"
	"sync/atomic"
)

var (
	// ErrOutboxClosed is returned by Send after Close.
	ErrOutboxClosed = errors.New("outbox closed")
	// ErrOutboxFull is returned by Send when the buffer has no room.
	ErrOutboxFull = errors.New("outbox full")
)

// Outbox is a bounded, non-blocking queue of outbound messages drained by a
// transport's write loop. It implements Sender.
type Outbox struct {
	id       string
	messages chan string
	dropped  atomic.Uint64

	mu     sync.Mutex
	closed bool
}

// NewOutbox creates an Outbox holding up to size messages.
//
// Postcondition: Returns an open Outbox; size <= 0 falls back to 64.
func NewOutbox(id string, size int) *Outbox {
	if size <= 0 {
		size = 64
	}
	return &Outbox{
		id:       id,
		messages: make(chan string, size),
	}
}

// ID returns the owner's identifier.
func (o *Outbox) ID() string {
	return o.id
}

// Send enqueues text without blocking.
//
// Postcondition: Returns ErrOutboxFull (and counts a drop) when the buffer
// is full, or ErrOutboxClosed after Close.
func (o *Outbox) Send(text string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return ErrOutboxClosed
	}
	select {
	case o.messages <- text:
		return nil
	default:
		o.dropped.Add(1)
		return ErrOutboxFull
	}
}

// Messages returns the receive side. It is closed by Close.
func (o *Outbox) Messages() <-chan string {
	return o.messages
}

// Dropped returns how many messages were discarded because the buffer was full.
func (o *Outbox) Dropped() uint64 {
	return o.dropped.Load()
}

// Close closes the message channel. It is idempotent.
func (o *Outbox) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.closed {
		o.closed = true
		close(o.messages)
	}
	return nil
}

// IsClosed reports whether Close has been called.
func (o *Outbox) IsClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}
