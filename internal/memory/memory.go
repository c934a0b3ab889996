// Package memory defines the conversation history abstraction for kubesage
// sessions. History is append-only and strictly ordered; the retention
// strategy decides how much of it is replayed on each model call.
package memory

import (
	"context"

	"github.com/kubesage/kubesage/internal/llm"
)

// Strategy identifies a history retention strategy.
type Strategy string

const (
	// StrategyFull replays the entire history on every model call.
	// This matches the baseline behavior; cost grows with session length.
	StrategyFull Strategy = "full"

	// StrategySlidingWindow retains only the most recent messages.
	StrategySlidingWindow Strategy = "sliding_window"
)

// Store manages conversation message history for a session.
type Store interface {
	// Load retrieves the message history for a session.
	Load(ctx context.Context, sessionID string) ([]llm.Message, error)

	// Save appends messages to the session history, applying the
	// configured retention strategy.
	Save(ctx context.Context, sessionID string, messages []llm.Message) error

	// Clear removes all messages for a session. Clearing a session with
	// no history is a no-op.
	Clear(ctx context.Context, sessionID string) error
}

// ForStrategy constructs the store for a strategy name. Unrecognized names
// fall back to full replay.
func ForStrategy(strategy Strategy, maxMessages int) Store {
	if strategy == StrategySlidingWindow {
		return NewSlidingWindow(maxMessages)
	}
	return NewFullHistory()
}
