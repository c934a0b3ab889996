package session

import (
	"context"
	"fmt"

	"github.com/kubesage/kubesage/internal/llm"
	"github.com/kubesage/kubesage/internal/memory"
)

// Manager handles session lifecycle: ensure, load/save history, reset, close.
type Manager struct {
	store  Store
	memory memory.Store
}

// NewManager creates a session manager.
func NewManager(store Store, mem memory.Store) *Manager {
	return &Manager{store: store, memory: mem}
}

// Ensure returns the session with the given id, creating it if needed.
func (m *Manager) Ensure(ctx context.Context, sessionID string) (*Session, error) {
	return m.store.Create(ctx, sessionID, nil)
}

// Get retrieves a session by ID.
func (m *Manager) Get(ctx context.Context, sessionID string) (*Session, error) {
	return m.store.Get(ctx, sessionID)
}

// LoadMessages retrieves conversation history for a session.
func (m *Manager) LoadMessages(ctx context.Context, sessionID string) ([]llm.Message, error) {
	if _, err := m.store.Get(ctx, sessionID); err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return m.memory.Load(ctx, sessionID)
}

// SaveMessages appends messages to the session's conversation history.
func (m *Manager) SaveMessages(ctx context.Context, sessionID string, messages []llm.Message) error {
	if err := m.store.Touch(ctx, sessionID); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return m.memory.Save(ctx, sessionID, messages)
}

// Reset clears a session's history without deleting the session, so the next
// turn starts a clean investigation. Resetting an unknown or already-empty
// session is a no-op.
func (m *Manager) Reset(ctx context.Context, sessionID string) error {
	return m.memory.Clear(ctx, sessionID)
}

// Close deletes a session and its conversation history.
func (m *Manager) Close(ctx context.Context, sessionID string) error {
	if err := m.memory.Clear(ctx, sessionID); err != nil {
		return fmt.Errorf("clear memory: %w", err)
	}
	return m.store.Delete(ctx, sessionID)
}

// List returns all live sessions.
func (m *Manager) List(ctx context.Context) ([]*Session, error) {
	return m.store.List(ctx)
}

// ResetAll clears history for every live session.
func (m *Manager) ResetAll(ctx context.Context) (int, error) {
	sessions, err := m.store.List(ctx)
	if err != nil {
		return 0, err
	}
	for _, sess := range sessions {
		if err := m.memory.Clear(ctx, sess.ID); err != nil {
			return 0, fmt.Errorf("clear session %q: %w", sess.ID, err)
		}
		if err := m.store.Delete(ctx, sess.ID); err != nil {
			return 0, fmt.Errorf("delete session %q: %w", sess.ID, err)
		}
	}
	return len(sessions), nil
}
