// Package memory provides in-memory implementations of outbound ports.
package memory

import (
	"context"
	"sync"

	"github.com/signalgate/signalgate/internal/domain/session"
)

// SessionRegistry implements session.Registry with a mutex-guarded map.
// A lookup for session A never blocks behind work on session B: the lock
// only covers map access, never queue waits.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session
}

// NewSessionRegistry creates an empty registry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]*session.Session),
	}
}

// GetOrCreate looks up a session, creating it if absent. An empty id
// allocates a fresh random id.
func (r *SessionRegistry) GetOrCreate(ctx context.Context, id string, stateless bool) (*session.Session, bool) {
	if id == "" {
		id = session.GenerateID()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.sessions[id]; ok {
		return existing, false
	}

	created := session.New(id, stateless)
	r.sessions[id] = created
	return created, true
}

// Get retrieves a session by id.
func (r *SessionRegistry) Get(ctx context.Context, id string) (*session.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.sessions[id]
	if !ok {
		return nil, session.ErrNotFound
	}
	return sess, nil
}

// Delete removes a session from the registry. The caller is responsible
// for pushing the close signal first if a consumer may be streaming.
func (r *SessionRegistry) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return session.ErrNotFound
	}
	delete(r.sessions, id)
	return nil
}

// Len returns the number of live sessions.
func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CloseAll pushes the close signal onto every queue and empties the map.
func (r *SessionRegistry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, sess := range r.sessions {
		sess.CloseQueue()
	}
	r.sessions = make(map[string]*session.Session)
}

// Compile-time interface verification.
var _ session.Registry = (*SessionRegistry)(nil)
