package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// DequeueOutcome describes why Dequeue returned.
type DequeueOutcome int

const (
	// DequeueMessage means a payload was returned.
	DequeueMessage DequeueOutcome = iota
	// DequeueTimeout means the wait elapsed with nothing to deliver.
	DequeueTimeout
	// DequeueClosed means the close signal was consumed; no more payloads follow.
	DequeueClosed
	// DequeueCanceled means the caller's context was canceled.
	DequeueCanceled
)

// envelope is a queue entry. The close signal is a tagged variant rather
// than a nil payload, so a legitimately-null payload can never terminate
// the stream by accident.
type envelope struct {
	payload json.RawMessage
	closed  bool
}

// Queue is the ordered outbound queue for one session: unbounded for
// producers, blocking (with timeout) for the single consumer.
type Queue struct {
	mu     sync.Mutex
	items  []envelope
	closed bool

	// wake has capacity 1; producers drop the notification when one is
	// already pending. The consumer re-checks items after every wake, so
	// coalesced notifications are safe with a single consumer.
	wake chan struct{}
}

// NewQueue creates an empty open queue.
func NewQueue() *Queue {
	return &Queue{wake: make(chan struct{}, 1)}
}

// Enqueue appends a payload. Payloads enqueued after Close are dropped.
func (q *Queue) Enqueue(payload json.RawMessage) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, envelope{payload: payload})
	q.mu.Unlock()
	q.notify()
}

// Close appends the close signal. Payloads already queued are still
// delivered first; Close is idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.items = append(q.items, envelope{closed: true})
	q.mu.Unlock()
	q.notify()
}

// Closed reports whether Close has been called.
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Len returns the number of pending entries (including a pending close signal).
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) notify() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Dequeue removes and returns the next payload, blocking up to wait.
// The returned outcome distinguishes a payload from timeout, close signal,
// and context cancellation. Designed for a single consumer.
func (q *Queue) Dequeue(ctx context.Context, wait time.Duration) (json.RawMessage, DequeueOutcome) {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			head := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			if head.closed {
				return nil, DequeueClosed
			}
			return head.payload, DequeueMessage
		}
		q.mu.Unlock()

		select {
		case <-q.wake:
			// Re-check the queue.
		case <-timer.C:
			return nil, DequeueTimeout
		case <-ctx.Done():
			return nil, DequeueCanceled
		}
	}
}
