package syncx

import (
	"context"
	"errors"
	"sync"
)

// ErrMailboxClosed is returned by Receive after Close.
var ErrMailboxClosed = errors.New("mailbox closed")

// Mailbox is a single-slot, latest-value-wins hand-off between one producer
// and its consumers. Publishing over an unconsumed value replaces it; there
// is never a backlog.
type Mailbox[T any] struct {
	mu      sync.Mutex
	value   T
	full    bool
	closed  bool
	err     error
	notify  chan struct{}
	dropped uint64
}

func NewMailbox[T any]() *Mailbox[T] {
	return &Mailbox[T]{notify: make(chan struct{})}
}

// Publish stores v. It reports whether an unconsumed value was overwritten.
// Publishing to a closed mailbox is a no-op.
func (m *Mailbox[T]) Publish(v T) (overwrote bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	overwrote = m.full
	if overwrote {
		m.dropped++
	}
	m.value = v
	m.full = true
	m.wake()
	return overwrote
}

// Receive blocks until a value is available, the mailbox is closed or ctx is
// done. A received value is consumed.
func (m *Mailbox[T]) Receive(ctx context.Context) (T, error) {
	var zero T
	for {
		m.mu.Lock()
		if m.full {
			v := m.value
			m.value = zero
			m.full = false
			m.mu.Unlock()
			return v, nil
		}
		if m.closed {
			err := m.err
			m.mu.Unlock()
			if err == nil {
				err = ErrMailboxClosed
			}
			return zero, err
		}
		wait := m.notify
		m.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// Close wakes all receivers. A non-nil err is returned to them instead of
// ErrMailboxClosed. A pending value is discarded.
func (m *Mailbox[T]) Close(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	var zero T
	m.closed = true
	m.err = err
	m.value = zero
	m.full = false
	m.wake()
}

// Dropped returns the number of values overwritten before being received.
func (m *Mailbox[T]) Dropped() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped
}

// wake must be called with mu held.
func (m *Mailbox[T]) wake() {
	close(m.notify)
	m.notify = make(chan struct{})
}
