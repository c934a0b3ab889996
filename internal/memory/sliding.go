package memory

import (
	"context"
	"sync"

	"github.com/kubesage/kubesage/internal/llm"
)

// SlidingWindow implements a fixed-size message history with FIFO eviction.
// System messages are never evicted so the seeded instructions survive.
type SlidingWindow struct {
	mu          sync.Mutex
	maxMessages int
	sessions    map[string][]llm.Message
}

// NewSlidingWindow creates a sliding window memory store.
// maxMessages is the maximum number of messages retained per session.
func NewSlidingWindow(maxMessages int) *SlidingWindow {
	if maxMessages <= 0 {
		maxMessages = 50
	}
	return &SlidingWindow{
		maxMessages: maxMessages,
		sessions:    make(map[string][]llm.Message),
	}
}

// Load retrieves the message history for a session.
func (s *SlidingWindow) Load(_ context.Context, sessionID string) ([]llm.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.sessions[sessionID]
	result := make([]llm.Message, len(msgs))
	copy(result, msgs)
	return result, nil
}

// Save appends messages and evicts the oldest non-system messages when the
// window is exceeded. Eviction never splits a tool exchange: when an
// assistant message carrying tool calls goes, its tool-result messages go
// with it, so the retained history always replays cleanly.
func (s *SlidingWindow) Save(_ context.Context, sessionID string, messages []llm.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := append(s.sessions[sessionID], messages...)

	if over := len(existing) - s.maxMessages; over > 0 {
		kept := make([]llm.Message, 0, s.maxMessages)
		dropResults := false
		for _, m := range existing {
			if m.Role == llm.RoleSystem {
				kept = append(kept, m)
				continue
			}
			if m.Role == llm.RoleTool && dropResults {
				continue
			}
			if over > 0 {
				over--
				dropResults = m.Role == llm.RoleAssistant && len(m.ToolCalls) > 0
				continue
			}
			dropResults = false
			kept = append(kept, m)
		}
		existing = kept
	}

	s.sessions[sessionID] = existing
	return nil
}

// Clear removes all messages for a session.
func (s *SlidingWindow) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}
