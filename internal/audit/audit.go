// Package audit defines structured events recording what the agent did with
// the cluster on each turn: which queries ran, with which arguments, and how
// the turn ended.
package audit

import (
	"encoding/json"
	"sync"
	"time"
)

// Type represents the kind of event.
type Type string

const (
	TurnStarted   Type = "turn.started"
	ToolCall      Type = "tool.call"
	TurnCompleted Type = "turn.completed"
	TurnFailed    Type = "turn.failed"
	SessionReset  Type = "session.reset"
)

// Event is a structured audit event.
type Event struct {
	Type          Type                   `json:"type"`
	Timestamp     time.Time              `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id"`
	SessionID     string                 `json:"session_id,omitempty"`
	Data          map[string]interface{} `json:"data,omitempty"`
}

// New creates a new event with the given type and correlation ID.
func New(eventType Type, correlationID string) *Event {
	return &Event{
		Type:          eventType,
		Timestamp:     time.Now(),
		CorrelationID: correlationID,
	}
}

// WithSession sets the session ID and returns the event for chaining.
func (e *Event) WithSession(sessionID string) *Event {
	e.SessionID = sessionID
	return e
}

// WithData adds a data field to the event and returns it for chaining.
func (e *Event) WithData(key string, value interface{}) *Event {
	if e.Data == nil {
		e.Data = make(map[string]interface{})
	}
	e.Data[key] = value
	return e
}

// JSON returns the event serialized as JSON.
func (e *Event) JSON() ([]byte, error) {
	return json.Marshal(e)
}

// Emitter is the interface for event consumers.
type Emitter interface {
	Emit(event *Event)
}

// NoopEmitter discards all events.
type NoopEmitter struct{}

// Emit implements Emitter by discarding the event.
func (NoopEmitter) Emit(*Event) {}

// CollectorEmitter collects events in memory for testing.
type CollectorEmitter struct {
	mu     sync.Mutex
	Events []*Event
}

// Emit appends the event to the collector.
func (c *CollectorEmitter) Emit(event *Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Events = append(c.Events, event)
}

// Collected returns a snapshot of the collected events.
func (c *CollectorEmitter) Collected() []*Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Event(nil), c.Events...)
}

// MultiEmitter fans events out to several emitters.
type MultiEmitter []Emitter

// Emit forwards the event to every emitter.
func (m MultiEmitter) Emit(event *Event) {
	for _, e := range m {
		e.Emit(event)
	}
}
