// Package session manages conversation session lifecycle for kubesage.
//
// A session is owned by exactly one agent instance in one process; the store
// tracks identity and liveness while the memory store holds the messages.
package session

import (
	"context"
	"time"
)

// Session represents a stateful conversation.
type Session struct {
	ID         string            `json:"id"`
	CreatedAt  time.Time         `json:"created_at"`
	LastActive time.Time         `json:"last_active"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Store manages session lifecycle.
type Store interface {
	// Create creates a session. If id is empty a new identifier is
	// generated; a caller-supplied id (e.g. from the web client) is kept
	// verbatim. Creating an existing id returns the existing session.
	Create(ctx context.Context, id string, metadata map[string]string) (*Session, error)

	// Get retrieves a session by ID.
	Get(ctx context.Context, id string) (*Session, error)

	// Delete removes a session by ID. Deleting an unknown id is a no-op.
	Delete(ctx context.Context, id string) error

	// List returns all live sessions.
	List(ctx context.Context) ([]*Session, error)

	// Touch updates the last active timestamp.
	Touch(ctx context.Context, id string) error
}
