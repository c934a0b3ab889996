package agent

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/kubesage/kubesage/internal/audit"
	"github.com/kubesage/kubesage/internal/llm"
	"github.com/kubesage/kubesage/internal/memory"
	"github.com/kubesage/kubesage/internal/session"
	"github.com/kubesage/kubesage/internal/tools"
)

type stubExecutor struct {
	output string
	err    error
	calls  int
}

func (s *stubExecutor) Execute(_ context.Context, _ map[string]interface{}) (string, error) {
	s.calls++
	return s.output, s.err
}

func newTestRegistry(exec *stubExecutor) *tools.Registry {
	r := tools.NewRegistry()
	r.Register(llm.ToolDefinition{
		Name:        "execute_kubernetes_query",
		Description: "query cluster state",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"resource_type": map[string]interface{}{"type": "string"},
				"namespace":     map[string]interface{}{"type": "string", "default": "default"},
				"name":          map[string]interface{}{"type": "string"},
			},
			"required": []interface{}{"resource_type"},
		},
	}, exec)
	return r
}

func TestRun_DirectAnswer(t *testing.T) {
	mock := llm.NewMockClient(llm.MockResponse{
		Content:    "All pods are healthy.",
		StopReason: llm.StopEndTurn,
		Usage:      llm.TokenUsage{InputTokens: 10, OutputTokens: 5},
	})
	a := New(mock, newTestRegistry(&stubExecutor{}), Config{Model: "test"})

	turn, err := a.Run(context.Background(), nil, "Are my pods healthy?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if turn.Output != "All pods are healthy." {
		t.Errorf("Output = %q", turn.Output)
	}
	if turn.Rounds != 1 {
		t.Errorf("Rounds = %d, want 1", turn.Rounds)
	}

	// First use of a session seeds the instructions: system, user, assistant.
	if len(turn.Messages) != 3 {
		t.Fatalf("len(Messages) = %d, want 3", len(turn.Messages))
	}
	wantRoles := []llm.Role{llm.RoleSystem, llm.RoleUser, llm.RoleAssistant}
	for i, want := range wantRoles {
		if turn.Messages[i].Role != want {
			t.Errorf("Messages[%d].Role = %q, want %q", i, turn.Messages[i].Role, want)
		}
	}
}

func TestRun_ToolRoundTrip(t *testing.T) {
	mock := llm.NewMockClient(
		llm.MockResponse{
			Content: "Let me check the pods.",
			ToolCalls: []llm.ToolCall{
				{ID: "tc1", Name: "execute_kubernetes_query", Input: map[string]interface{}{"resource_type": "pod"}},
			},
			StopReason: llm.StopToolUse,
			Usage:      llm.TokenUsage{InputTokens: 10, OutputTokens: 15},
		},
		llm.MockResponse{
			Content:    "# Final Answer: pod web-1 is CrashLooping.",
			StopReason: llm.StopEndTurn,
			Usage:      llm.TokenUsage{InputTokens: 30, OutputTokens: 10},
		},
	)
	exec := &stubExecutor{output: `{"status":"success","data":{"items":[]}}`}
	a := New(mock, newTestRegistry(exec), Config{Model: "test"})

	turn, err := a.Run(context.Background(), nil, "Why is web-1 crashing?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := len(mock.Calls()); got != 2 {
		t.Errorf("model calls = %d, want 2", got)
	}
	if exec.calls != 1 {
		t.Errorf("tool executions = %d, want 1", exec.calls)
	}
	if turn.Rounds != 2 {
		t.Errorf("Rounds = %d, want 2", turn.Rounds)
	}
	if len(turn.ToolCalls) != 1 {
		t.Fatalf("len(ToolCalls) = %d, want 1", len(turn.ToolCalls))
	}
	if turn.ToolCalls[0].ToolName != "execute_kubernetes_query" {
		t.Errorf("ToolName = %q", turn.ToolCalls[0].ToolName)
	}
	if turn.Tokens.Total() != 65 {
		t.Errorf("Tokens.Total() = %d, want 65", turn.Tokens.Total())
	}

	// system, user, assistant(tool call), tool result, assistant(final).
	wantRoles := []llm.Role{llm.RoleSystem, llm.RoleUser, llm.RoleAssistant, llm.RoleTool, llm.RoleAssistant}
	if len(turn.Messages) != len(wantRoles) {
		t.Fatalf("len(Messages) = %d, want %d", len(turn.Messages), len(wantRoles))
	}
	for i, want := range wantRoles {
		if turn.Messages[i].Role != want {
			t.Errorf("Messages[%d].Role = %q, want %q", i, turn.Messages[i].Role, want)
		}
	}
	if turn.Messages[3].ToolResult == nil || turn.Messages[3].ToolResult.ToolUseID != "tc1" {
		t.Errorf("tool result not threaded back by id: %+v", turn.Messages[3].ToolResult)
	}
}

func TestRun_ExistingHistoryNotReseeded(t *testing.T) {
	mock := llm.NewMockClient(llm.MockResponse{
		Content:    "Still healthy.",
		StopReason: llm.StopEndTurn,
	})
	a := New(mock, newTestRegistry(&stubExecutor{}), Config{Model: "test"})

	history := []llm.Message{
		{Role: llm.RoleSystem, Content: "instructions"},
		{Role: llm.RoleUser, Content: "first question"},
		{Role: llm.RoleAssistant, Content: "first answer"},
	}
	turn, err := a.Run(context.Background(), history, "And now?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Only the new user message and the answer are appended.
	if len(turn.Messages) != 2 {
		t.Fatalf("len(Messages) = %d, want 2", len(turn.Messages))
	}
	if turn.Messages[0].Role != llm.RoleUser || turn.Messages[1].Role != llm.RoleAssistant {
		t.Errorf("appended roles = %q, %q", turn.Messages[0].Role, turn.Messages[1].Role)
	}

	// The model saw the full conversation.
	req := mock.Calls()[0]
	if len(req.Messages) != 4 {
		t.Errorf("model saw %d messages, want 4", len(req.Messages))
	}
}

func TestRun_MalformedArgumentsBecomeErrorResult(t *testing.T) {
	mock := llm.NewMockClient(
		llm.MockResponse{
			ToolCalls: []llm.ToolCall{
				{ID: "tc1", Name: "execute_kubernetes_query", Input: map[string]interface{}{"bogus": true}},
			},
			StopReason: llm.StopToolUse,
		},
		llm.MockResponse{
			Content:    "I could not query the cluster.",
			StopReason: llm.StopEndTurn,
		},
	)
	exec := &stubExecutor{output: "unused"}
	a := New(mock, newTestRegistry(exec), Config{Model: "test"})

	turn, err := a.Run(context.Background(), nil, "check pods")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exec.calls != 0 {
		t.Errorf("executor ran despite invalid arguments")
	}
	if len(turn.ToolCalls) != 1 || !turn.ToolCalls[0].IsError {
		t.Fatalf("expected one error tool record, got %+v", turn.ToolCalls)
	}
	if turn.Output != "I could not query the cluster." {
		t.Errorf("Output = %q", turn.Output)
	}
}

func TestRun_RoundBudgetExhausted(t *testing.T) {
	mock := llm.NewMockClient(llm.MockResponse{
		Content: "Checking again.",
		ToolCalls: []llm.ToolCall{
			{ID: "tc", Name: "execute_kubernetes_query", Input: map[string]interface{}{"resource_type": "pod"}},
		},
		StopReason: llm.StopToolUse,
	})
	exec := &stubExecutor{output: `{"status":"success","data":{}}`}
	a := New(mock, newTestRegistry(exec), Config{Model: "test", MaxRounds: 3})

	turn, err := a.Run(context.Background(), nil, "loop forever")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !turn.BudgetExhausted {
		t.Error("BudgetExhausted = false, want true")
	}
	if turn.Rounds != 3 {
		t.Errorf("Rounds = %d, want 3", turn.Rounds)
	}
	// The last assistant content stands as the best-effort answer.
	if turn.Output != "Checking again." {
		t.Errorf("Output = %q", turn.Output)
	}
	// The surfaced answer is part of the transcript, so persisted history
	// does not end on a tool message.
	last := turn.Messages[len(turn.Messages)-1]
	if last.Role != llm.RoleAssistant {
		t.Errorf("last message role = %q, want assistant", last.Role)
	}
	if last.Content != turn.Output {
		t.Errorf("last message content = %q, want %q", last.Content, turn.Output)
	}
}

func TestRun_TransportErrorFailsTurn(t *testing.T) {
	mock := llm.NewMockClient(llm.MockResponse{Error: fmt.Errorf("connection reset")})
	a := New(mock, newTestRegistry(&stubExecutor{}), Config{Model: "test"})

	_, err := a.Run(context.Background(), nil, "anything")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "connection reset") {
		t.Errorf("error = %v", err)
	}
}

func TestRun_EmitsAuditTrail(t *testing.T) {
	collector := &audit.CollectorEmitter{}
	mock := llm.NewMockClient(
		llm.MockResponse{
			ToolCalls: []llm.ToolCall{
				{ID: "tc1", Name: "execute_kubernetes_query", Input: map[string]interface{}{"resource_type": "pod"}},
			},
			StopReason: llm.StopToolUse,
		},
		llm.MockResponse{Content: "done", StopReason: llm.StopEndTurn},
	)
	a := New(mock, newTestRegistry(&stubExecutor{output: "{}"}), Config{Model: "test"},
		WithAuditEmitter(collector))

	if _, err := a.Run(context.Background(), nil, "check"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var types []audit.Type
	for _, e := range collector.Collected() {
		types = append(types, e.Type)
	}
	want := []audit.Type{audit.TurnStarted, audit.ToolCall, audit.TurnCompleted}
	if len(types) != len(want) {
		t.Fatalf("audit events = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("event[%d] = %q, want %q", i, types[i], want[i])
		}
	}
}

func TestConversation_PersistsOnlySuccessfulTurns(t *testing.T) {
	mock := llm.NewMockClient(
		llm.MockResponse{Content: "first answer", StopReason: llm.StopEndTurn},
		llm.MockResponse{Error: fmt.Errorf("upstream timeout")},
		llm.MockResponse{Content: "second answer", StopReason: llm.StopEndTurn},
	)
	a := New(mock, newTestRegistry(&stubExecutor{}), Config{Model: "test"})

	mgr := session.NewManager(session.NewMemoryStore(0), memory.NewFullHistory())
	conv := NewConversation(a, mgr)
	ctx := context.Background()

	if _, err := conv.Ask(ctx, "s1", "q1"); err != nil {
		t.Fatalf("first turn: %v", err)
	}
	if _, err := conv.Ask(ctx, "s1", "q2"); err == nil {
		t.Fatal("second turn should fail on transport error")
	}

	// The failed turn persisted nothing: history holds only the first turn.
	history, err := mgr.LoadMessages(ctx, "s1")
	if err != nil {
		t.Fatalf("LoadMessages: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("len(history) = %d, want 3", len(history))
	}

	// The retry sees the same history plus its question.
	if _, err := conv.Ask(ctx, "s1", "q2 again"); err != nil {
		t.Fatalf("retry: %v", err)
	}
	history, _ = mgr.LoadMessages(ctx, "s1")
	if len(history) != 5 {
		t.Errorf("len(history) = %d, want 5", len(history))
	}
}

func TestConversation_ResetClearsHistory(t *testing.T) {
	mock := llm.NewMockClient(llm.MockResponse{Content: "answer", StopReason: llm.StopEndTurn})
	a := New(mock, newTestRegistry(&stubExecutor{}), Config{Model: "test"})
	mgr := session.NewManager(session.NewMemoryStore(0), memory.NewFullHistory())
	conv := NewConversation(a, mgr)
	ctx := context.Background()

	if _, err := conv.Ask(ctx, "s1", "q1"); err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if err := conv.Reset(ctx, "s1"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	history, err := mgr.LoadMessages(ctx, "s1")
	if err != nil {
		t.Fatalf("LoadMessages: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("len(history) = %d after reset, want 0", len(history))
	}

	// Resetting an already-empty session is a no-op.
	if err := conv.Reset(ctx, "s1"); err != nil {
		t.Errorf("second Reset: %v", err)
	}
}
