package memory

import (
	"context"
	"sync"

	"github.com/kubesage/kubesage/internal/llm"
)

// FullHistory retains every message for a session, unbounded.
type FullHistory struct {
	mu       sync.Mutex
	sessions map[string][]llm.Message
}

// NewFullHistory creates a full-replay memory store.
func NewFullHistory() *FullHistory {
	return &FullHistory{sessions: make(map[string][]llm.Message)}
}

// Load retrieves the message history for a session.
func (s *FullHistory) Load(_ context.Context, sessionID string) ([]llm.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.sessions[sessionID]
	result := make([]llm.Message, len(msgs))
	copy(result, msgs)
	return result, nil
}

// Save appends messages to the session history.
func (s *FullHistory) Save(_ context.Context, sessionID string, messages []llm.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = append(s.sessions[sessionID], messages...)
	return nil
}

// Clear removes all messages for a session.
func (s *FullHistory) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}
