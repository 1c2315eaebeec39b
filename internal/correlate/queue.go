package correlate

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrClosed is returned by Next and TryNext once the queue is closed
// and fully drained.
var ErrClosed = errors.New("correlation queue is closed")

// Event pairs a circuit with one observed outbound connection.
//
// Only the port is authoritative: it is the ephemeral local port of the
// connection the probe command opened toward the SOCKS listener. The host
// is whatever the disclosing layer reported (typically the loopback
// address) and must not be interpreted as the proxy-observed peer.
type Event struct {
	// CircuitID is the opaque identifier of the circuit that carried
	// the connection.
	CircuitID string

	// Host is the reported source host of the connection.
	Host string

	// Port is the ephemeral source port of the connection.
	Port int

	// ObservedAt is when the disclosure was read from the output stream.
	ObservedAt time.Time
}

// Queue is an unbounded, concurrency-safe FIFO of correlation events.
//
// Multiple runners may publish concurrently. Events from a single
// producer are delivered in the order they were put. Put never blocks;
// consumers block in Next until an event arrives or the queue closes.
type Queue struct {
	mu     sync.Mutex
	events []Event
	closed bool

	// ready is closed to wake waiting consumers and replaced with a
	// fresh channel once the queue empties again.
	ready chan struct{}
}

// NewQueue creates an empty queue ready for producers and consumers.
func NewQueue() *Queue {
	return &Queue{ready: make(chan struct{})}
}

// Put appends an event for the given circuit and observed address.
// It never blocks. Puts after Close are dropped.
func (q *Queue) Put(circuitID, host string, port int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.events = append(q.events, Event{
		CircuitID:  circuitID,
		Host:       host,
		Port:       port,
		ObservedAt: time.Now(),
	})
	q.wakeLocked()
}

// Next returns the oldest queued event, blocking until one is available,
// the context is done, or the queue is closed and drained.
func (q *Queue) Next(ctx context.Context) (Event, error) {
	for {
		q.mu.Lock()
		if len(q.events) > 0 {
			ev := q.popLocked()
			q.mu.Unlock()
			return ev, nil
		}
		if q.closed {
			q.mu.Unlock()
			return Event{}, ErrClosed
		}
		ready := q.ready
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return Event{}, ctx.Err()
		case <-ready:
		}
	}
}

// TryNext returns the oldest queued event without blocking.
// The boolean reports whether an event was available. The error is
// ErrClosed once the queue is closed and drained, nil otherwise.
func (q *Queue) TryNext() (Event, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) > 0 {
		return q.popLocked(), true, nil
	}
	if q.closed {
		return Event{}, false, ErrClosed
	}
	return Event{}, false, nil
}

// Len returns the number of events currently queued.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Close marks the queue closed. Queued events remain readable; once
// drained, Next and TryNext report ErrClosed. Close is idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	q.wakeLocked()
}

// popLocked removes and returns the head event. Caller holds q.mu and
// has verified the queue is non-empty.
func (q *Queue) popLocked() Event {
	ev := q.events[0]
	q.events = q.events[1:]
	if len(q.events) == 0 {
		// Reset so the backing array does not pin delivered events.
		q.events = nil
		if !q.closed {
			q.ready = make(chan struct{})
		}
	}
	return ev
}

// wakeLocked wakes all consumers waiting on the current ready channel.
// Caller holds q.mu.
func (q *Queue) wakeLocked() {
	select {
	case <-q.ready:
		// Already woken.
	default:
		close(q.ready)
	}
}
