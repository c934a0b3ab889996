// Package agent implements the tool-augmented conversation loop: the model
// proposes tool calls, the system executes them, and the model synthesizes
// the results, repeating until a final answer or the iteration budget.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kubesage/kubesage/internal/audit"
	"github.com/kubesage/kubesage/internal/llm"
	"github.com/kubesage/kubesage/internal/telemetry"
	"github.com/kubesage/kubesage/internal/tools"
)

const (
	defaultMaxRounds = 15
	defaultMaxTokens = 4096
)

// Config holds the agent's fixed parameters.
type Config struct {
	Model       string
	System      string // defaults to SystemPrompt
	MaxRounds   int    // model-call iteration budget per turn; defaults to 15
	MaxTokens   int
	TokenBudget int // cumulative token ceiling per turn; 0 = unlimited
	Temperature *float64
}

// ToolCallRecord is an audit record of a single tool invocation.
type ToolCallRecord struct {
	ID       string                 `json:"id"`
	ToolName string                 `json:"tool_name"`
	Input    map[string]interface{} `json:"input"`
	Output   string                 `json:"output"`
	IsError  bool                   `json:"is_error,omitempty"`
}

// Turn is the result of one full question-to-answer cycle.
type Turn struct {
	Output string `json:"output"`

	// Messages holds everything appended to the session this turn, in
	// order: the user question, each assistant tool-call message with its
	// tool results, and the final assistant answer.
	Messages []llm.Message `json:"messages"`

	ToolCalls       []ToolCallRecord `json:"tool_calls,omitempty"`
	Rounds          int              `json:"rounds"`
	Tokens          llm.TokenUsage   `json:"tokens"`
	Duration        time.Duration    `json:"duration"`
	BudgetExhausted bool             `json:"budget_exhausted,omitempty"`
}

// Agent drives conversation turns. It holds no per-session state: callers
// pass the session history in and persist the returned messages, so one
// Agent safely serves many sessions.
type Agent struct {
	client  llm.Client
	tools   *tools.Registry
	config  Config
	logger  *slog.Logger
	metrics *telemetry.Metrics
	emitter audit.Emitter
}

// Option configures an Agent.
type Option func(*Agent)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) { a.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(a *Agent) { a.metrics = m }
}

// WithAuditEmitter sets the audit event emitter.
func WithAuditEmitter(e audit.Emitter) Option {
	return func(a *Agent) { a.emitter = e }
}

// New creates an agent over a model client and tool registry.
func New(client llm.Client, registry *tools.Registry, config Config, opts ...Option) *Agent {
	if config.System == "" {
		config.System = SystemPrompt
	}
	if config.MaxRounds <= 0 {
		config.MaxRounds = defaultMaxRounds
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = defaultMaxTokens
	}

	a := &Agent{
		client:  client,
		tools:   registry,
		config:  config,
		logger:  slog.Default(),
		emitter: audit.NoopEmitter{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// System returns the effective system instructions.
func (a *Agent) System() string { return a.config.System }

// Run executes one turn: the question is appended to the supplied history
// and the loop iterates until the model answers without tool calls or the
// round budget is spent, in which case the last response is surfaced as a
// best-effort answer.
//
// History is never mutated; all appended messages come back in Turn.Messages
// for the caller to persist. When Run returns an error (model transport
// failure) nothing should be persisted, so the next turn retries against the
// history as it was.
func (a *Agent) Run(ctx context.Context, history []llm.Message, question string) (*Turn, error) {
	start := time.Now()
	correlationID := telemetry.CorrelationID(ctx)
	tracker := llm.NewTokenTracker(a.config.TokenBudget)

	a.emitter.Emit(audit.New(audit.TurnStarted, correlationID).WithData("question", question))

	// Seed the fixed instructions on first use of a session.
	var appended []llm.Message
	if len(history) == 0 {
		appended = append(appended, llm.Message{Role: llm.RoleSystem, Content: a.config.System})
	}
	appended = append(appended, llm.Message{Role: llm.RoleUser, Content: question})

	messages := make([]llm.Message, 0, len(history)+len(appended))
	messages = append(messages, history...)
	messages = append(messages, appended...)

	turn := &Turn{}
	var lastContent string

	for round := 0; round < a.config.MaxRounds; round++ {
		turn.Rounds++

		if err := tracker.CheckBudget(a.config.MaxTokens); err != nil {
			a.logger.Warn("token budget exhausted", "correlation_id", correlationID, "rounds", turn.Rounds)
			turn.BudgetExhausted = true
			break
		}

		req := llm.ChatRequest{
			Model:       a.config.Model,
			Messages:    messages,
			Tools:       a.tools.Definitions(),
			MaxTokens:   a.config.MaxTokens,
			Temperature: a.config.Temperature,
		}

		a.metrics.RecordModelCall()
		resp, err := a.client.Chat(ctx, req)
		if err != nil {
			a.metrics.RecordTurn("error", time.Since(start), tracker.Usage().InputTokens, tracker.Usage().OutputTokens)
			a.emitter.Emit(audit.New(audit.TurnFailed, correlationID).WithData("error", err.Error()))
			return nil, fmt.Errorf("model call failed on round %d: %w", round+1, err)
		}

		tracker.Add(resp.Usage)
		if resp.Content != "" {
			lastContent = resp.Content
		}

		// A response without tool calls is the final answer.
		if len(resp.ToolCalls) == 0 {
			assistant := llm.Message{Role: llm.RoleAssistant, Content: resp.Content}
			messages = append(messages, assistant)
			appended = append(appended, assistant)
			break
		}

		assistant := llm.Message{
			Role:      llm.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		}
		messages = append(messages, assistant)
		appended = append(appended, assistant)

		results := a.tools.ExecuteAll(ctx, resp.ToolCalls)
		for i := range results {
			call := resp.ToolCalls[i]
			result := results[i]

			status := "success"
			if result.IsError {
				status = "error"
			}
			a.metrics.RecordToolCall(call.Name, status)
			a.emitter.Emit(audit.New(audit.ToolCall, correlationID).
				WithData("tool", call.Name).
				WithData("input", call.Input).
				WithData("status", status))

			turn.ToolCalls = append(turn.ToolCalls, ToolCallRecord{
				ID:       call.ID,
				ToolName: call.Name,
				Input:    call.Input,
				Output:   result.Content,
				IsError:  result.IsError,
			})

			toolMsg := llm.Message{Role: llm.RoleTool, ToolResult: &results[i]}
			messages = append(messages, toolMsg)
			appended = append(appended, toolMsg)
		}

		if turn.Rounds == a.config.MaxRounds {
			turn.BudgetExhausted = true
		}
	}

	// On budget exhaustion the last assistant content stands as the
	// best-effort answer; the prompt instructs the model to summarize
	// partial findings as it approaches its limit.
	turn.Output = lastContent
	if turn.BudgetExhausted {
		if lastContent == "" {
			turn.Output = "The investigation hit its iteration limit before reaching a conclusion. Please retry or narrow the question."
		}
		// The loop stopped after a tool exchange, so the transcript has no
		// closing assistant message yet; record the surfaced answer.
		appended = append(appended, llm.Message{Role: llm.RoleAssistant, Content: turn.Output})
	}

	turn.Messages = appended
	turn.Tokens = tracker.Usage()
	turn.Duration = time.Since(start)

	a.metrics.RecordTurn("success", turn.Duration, turn.Tokens.InputTokens, turn.Tokens.OutputTokens)
	a.emitter.Emit(audit.New(audit.TurnCompleted, correlationID).
		WithData("rounds", turn.Rounds).
		WithData("tool_calls", len(turn.ToolCalls)).
		WithData("budget_exhausted", turn.BudgetExhausted))

	a.logger.Info("turn completed",
		"correlation_id", correlationID,
		"rounds", turn.Rounds,
		"tool_calls", len(turn.ToolCalls),
		"budget_exhausted", turn.BudgetExhausted,
		"duration", turn.Duration)

	return turn, nil
}
