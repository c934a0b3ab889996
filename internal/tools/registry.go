// Package tools implements the tool registry the agent loop dispatches
// model-requested tool calls through.
package tools

import (
	"context"
	"fmt"
	"sync"

	"github.com/kubesage/kubesage/internal/llm"
)

// Executor executes a tool call and returns the result as a string.
type Executor interface {
	Execute(ctx context.Context, input map[string]interface{}) (string, error)
}

// Registry manages tool executors and dispatches tool calls. Argument
// payloads are validated against the tool's declared schema before the
// executor runs; a validation failure comes back as an error result the
// model can correct on its next iteration.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]Executor
	tools     map[string]llm.ToolDefinition
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		executors: make(map[string]Executor),
		tools:     make(map[string]llm.ToolDefinition),
	}
}

// Register adds a tool executor to the registry.
func (r *Registry) Register(def llm.ToolDefinition, executor Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[def.Name] = executor
	r.tools[def.Name] = def
}

// Execute validates and dispatches a tool call to its registered executor.
func (r *Registry) Execute(ctx context.Context, call llm.ToolCall) (string, error) {
	r.mu.RLock()
	executor, ok := r.executors[call.Name]
	def := r.tools[call.Name]
	r.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("tool %q not registered", call.Name)
	}

	input, err := ValidateArguments(def.InputSchema, call.Input)
	if err != nil {
		return "", fmt.Errorf("invalid arguments for tool %q: %w", call.Name, err)
	}

	return executor.Execute(ctx, input)
}

// ExecuteAll dispatches the calls one at a time, in request order, and
// returns one result per call. Results are matched to calls by identifier;
// executor errors become error results rather than aborting the batch.
func (r *Registry) ExecuteAll(ctx context.Context, calls []llm.ToolCall) []llm.ToolResult {
	results := make([]llm.ToolResult, len(calls))
	for i, call := range calls {
		output, err := r.Execute(ctx, call)
		if err != nil {
			results[i] = llm.ToolResult{
				ToolUseID: call.ID,
				Content:   err.Error(),
				IsError:   true,
			}
		} else {
			results[i] = llm.ToolResult{
				ToolUseID: call.ID,
				Content:   output,
			}
		}
	}
	return results
}

// Definitions returns all registered tool definitions.
func (r *Registry) Definitions() []llm.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]llm.ToolDefinition, 0, len(r.tools))
	for _, d := range r.tools {
		defs = append(defs, d)
	}
	return defs
}
