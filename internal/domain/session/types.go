// Package session manages streamable HTTP transport sessions: the outbound
// message queue, the monotonic event counter, and the replay buffer that
// backs stream resumption.
package session

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultBufferSize is the replay buffer capacity per session.
// The oldest event is evicted once the buffer is full.
const DefaultBufferSize = 100

// Event is one delivered SSE event: a strictly increasing id paired with
// the JSON payload that was written to the wire.
type Event struct {
	ID      uint64
	Payload json.RawMessage
}

// Session correlates a GET stream with subsequent POSTs and DELETEs.
//
// The queue is written by POST handlers and server-push callers and drained
// by at most one SSE consumer. The event counter and replay buffer are only
// touched by the consumer (via Record), but are still guarded by a mutex so
// replay on a reconnect never observes a half-applied append.
type Session struct {
	// ID is an opaque unique identifier, client-supplied or generated.
	ID string
	// Stateless marks a session synthesized for a single POST without a
	// prior GET handshake. Its lifetime ends before the POST returns.
	Stateless bool
	// CreatedAt is when the session was created (UTC).
	CreatedAt time.Time

	queue *Queue

	mu        sync.Mutex
	counter   uint64
	buffer    []Event
	bufferCap int
}

// New creates a session with the given id and the default replay buffer size.
func New(id string, stateless bool) *Session {
	return &Session{
		ID:        id,
		Stateless: stateless,
		CreatedAt: time.Now().UTC(),
		queue:     NewQueue(),
		bufferCap: DefaultBufferSize,
	}
}

// GenerateID creates a fresh random session identifier (random 128-bit UUID).
func GenerateID() string {
	return uuid.NewString()
}

// Queue returns the session's outbound queue.
func (s *Session) Queue() *Queue {
	return s.queue
}

// Enqueue appends a payload to the outbound queue.
func (s *Session) Enqueue(payload json.RawMessage) {
	s.queue.Enqueue(payload)
}

// CloseQueue pushes the close signal onto the queue. Pending payloads are
// still delivered before the consumer observes the close.
func (s *Session) CloseQueue() {
	s.queue.Close()
}

// Record assigns the next event id to a delivered payload and appends it to
// the replay buffer, evicting the oldest entry when over capacity.
// Called by the SSE consumer once per payload taken off the queue.
func (s *Session) Record(payload json.RawMessage) Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counter++
	ev := Event{ID: s.counter, Payload: payload}

	s.buffer = append(s.buffer, ev)
	if len(s.buffer) > s.bufferCap {
		s.buffer = s.buffer[len(s.buffer)-s.bufferCap:]
	}

	return ev
}

// Replay returns a copy of all buffered events with id greater than afterID,
// in delivery order. Used to serve Last-Event-ID resumption.
func (s *Session) Replay(afterID uint64) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Event
	for _, ev := range s.buffer {
		if ev.ID > afterID {
			out = append(out, ev)
		}
	}
	return out
}

// LastEventID returns the id of the most recently delivered event,
// or 0 if nothing has been delivered yet.
func (s *Session) LastEventID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counter
}

// BufferLen returns the current replay buffer length.
func (s *Session) BufferLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buffer)
}
