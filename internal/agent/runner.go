package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/RelayClaw/RelayClaw/internal/provider"
	"github.com/RelayClaw/RelayClaw/internal/tools"
)

// DefaultMaxIterations bounds the tool-call loop within one run.
const DefaultMaxIterations = 10

// LoopRunner implements Runner with an OpenAI-compatible provider and a tool
// registry. Session handles are opaque ids it mints; each maps to an
// in-memory conversation transcript.
type LoopRunner struct {
	provider      provider.LLMProvider
	registry      *tools.Registry
	systemPrompt  string
	maxIterations int

	mu       sync.Mutex
	sessions map[string][]provider.Message
}

// LoopRunnerOptions configures a LoopRunner.
type LoopRunnerOptions struct {
	Provider      provider.LLMProvider
	Registry      *tools.Registry
	SystemPrompt  string
	MaxIterations int
}

// NewLoopRunner creates a provider-backed runner.
func NewLoopRunner(opts LoopRunnerOptions) *LoopRunner {
	maxIter := opts.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}
	return &LoopRunner{
		provider:      opts.Provider,
		registry:      opts.Registry,
		systemPrompt:  opts.SystemPrompt,
		maxIterations: maxIter,
		sessions:      make(map[string][]provider.Message),
	}
}

// Run executes prompt, resuming the session when sessionID names a live
// transcript, and returns the final text plus the session handle for
// continuation.
func (r *LoopRunner) Run(ctx context.Context, chatID, prompt, sessionID string, onToolUse ToolUseObserver) (*Result, error) {
	if r.provider == nil {
		return nil, ErrNoProvider
	}

	messages, sessionID := r.resume(sessionID)
	messages = append(messages, provider.Message{Role: "user", Content: prompt})

	var finalText string
	for i := 0; i < r.maxIterations; i++ {
		resp, err := r.provider.Chat(ctx, &provider.ChatRequest{
			Messages: messages,
			Tools:    r.toolDefinitions(),
		})
		if err != nil {
			return nil, fmt.Errorf("agent run for chat %s: %w", chatID, err)
		}

		events := eventsFromResponse(resp)
		messages = append(messages, provider.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		done := true
		for _, evt := range events {
			switch evt.Type {
			case EventAssistantText, EventResult:
				if evt.Text != "" {
					finalText = evt.Text
				}
			case EventToolUse:
				done = false
				if onToolUse != nil {
					onToolUse(*evt.Tool)
				}
			}
		}
		if done {
			break
		}

		// Execute the requested tools and feed results back.
		for _, tc := range resp.ToolCalls {
			output, err := r.registry.Execute(ctx, tc.Name, tc.Arguments)
			if err != nil {
				output = fmt.Sprintf("Error: %v", err)
			}
			messages = append(messages, provider.Message{
				Role:       "tool",
				Content:    output,
				ToolCallID: tc.ID,
			})
		}
	}

	r.mu.Lock()
	r.sessions[sessionID] = messages
	r.mu.Unlock()

	return &Result{Text: finalText, SessionID: sessionID}, nil
}

// DropSession discards the transcript behind a session handle.
func (r *LoopRunner) DropSession(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
}

func (r *LoopRunner) resume(sessionID string) ([]provider.Message, string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sessionID != "" {
		if transcript, ok := r.sessions[sessionID]; ok {
			return append([]provider.Message(nil), transcript...), sessionID
		}
		slog.Debug("Agent session not found, starting fresh", "session_id", sessionID)
	}

	sessionID = uuid.NewString()
	var messages []provider.Message
	if r.systemPrompt != "" {
		messages = append(messages, provider.Message{Role: "system", Content: r.systemPrompt})
	}
	return messages, sessionID
}

func (r *LoopRunner) toolDefinitions() []provider.ToolDefinition {
	if r.registry == nil {
		return nil
	}
	list := r.registry.List()
	defs := make([]provider.ToolDefinition, 0, len(list))
	for _, tool := range list {
		defs = append(defs, provider.ToolDefinition{
			Type: "function",
			Function: provider.FunctionDef{
				Name:        tool.Name(),
				Description: tool.Description(),
				Parameters:  tool.Parameters(),
			},
		})
	}
	return defs
}

// eventsFromResponse is the single conversion point from provider output to
// agent events.
func eventsFromResponse(resp *provider.ChatResponse) []Event {
	var events []Event
	if resp.Content != "" {
		events = append(events, Event{Type: EventAssistantText, Text: resp.Content})
	}
	for i := range resp.ToolCalls {
		tc := resp.ToolCalls[i]
		events = append(events, Event{Type: EventToolUse, Tool: &ToolUse{
			Name:      tc.Name,
			Arguments: tc.Arguments,
		}})
	}
	if len(resp.ToolCalls) == 0 {
		events = append(events, Event{Type: EventResult, Text: resp.Content})
	}
	return events
}
