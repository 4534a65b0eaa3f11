package session

import (
	"context"
	"errors"
)

// Registry owns the mapping from session id to session state.
// This interface is defined in the domain to avoid circular imports.
// Implementation: in-memory (internal/adapter/outbound/memory).
type Registry interface {
	// GetOrCreate looks up a session, creating it if absent. An empty id
	// allocates a fresh random id. The second return value reports whether
	// the session was created by this call.
	GetOrCreate(ctx context.Context, id string, stateless bool) (*Session, bool)

	// Get retrieves a session by id.
	// Returns ErrNotFound if the session doesn't exist.
	Get(ctx context.Context, id string) (*Session, error)

	// Delete removes a session. Returns ErrNotFound if it doesn't exist.
	// Callers that need the close signal observed by a streaming consumer
	// must push it (CloseQueue) before calling Delete.
	Delete(ctx context.Context, id string) error

	// Len returns the number of live sessions.
	Len() int

	// CloseAll pushes the close signal onto every session's queue and
	// empties the registry. Used during graceful shutdown.
	CloseAll()
}

// ErrNotFound is returned when a session doesn't exist.
var ErrNotFound = errors.New("session not found")
