package agent

import (
	"context"
	"fmt"

	"github.com/kubesage/kubesage/internal/session"
)

// Conversation binds the agent to a session store, giving each session a
// persistent multi-turn context until it is explicitly reset.
type Conversation struct {
	agent    *Agent
	sessions *session.Manager
}

// NewConversation creates a conversation service.
func NewConversation(a *Agent, sessions *session.Manager) *Conversation {
	return &Conversation{agent: a, sessions: sessions}
}

// Ask runs one turn for the given session and returns the final answer.
// The session is created on first use. The turn's messages are persisted
// only on success; a failed turn leaves the history untouched so the next
// turn retries cleanly.
func (c *Conversation) Ask(ctx context.Context, sessionID, question string) (*Turn, error) {
	if _, err := c.sessions.Ensure(ctx, sessionID); err != nil {
		return nil, fmt.Errorf("ensure session: %w", err)
	}

	history, err := c.sessions.LoadMessages(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	turn, err := c.agent.Run(ctx, history, question)
	if err != nil {
		return nil, err
	}

	if err := c.sessions.SaveMessages(ctx, sessionID, turn.Messages); err != nil {
		return nil, fmt.Errorf("save history: %w", err)
	}
	return turn, nil
}

// Reset clears the session's history so the next turn starts a fresh
// investigation. Resetting an unknown or empty session is a no-op.
func (c *Conversation) Reset(ctx context.Context, sessionID string) error {
	return c.sessions.Reset(ctx, sessionID)
}

// ResetAll clears every live session and returns how many were affected.
func (c *Conversation) ResetAll(ctx context.Context) (int, error) {
	return c.sessions.ResetAll(ctx)
}

// Sessions exposes the underlying session manager.
func (c *Conversation) Sessions() *session.Manager {
	return c.sessions
}
