// Package agent defines the runner contract the router and scheduler consume,
// plus a provider-backed implementation.
package agent

import (
	"context"
	"fmt"
)

// EventType identifies the kind of an agent event.
type EventType string

// The closed set of agent event kinds. Provider output is converted to these
// in one place (eventsFromResponse); nothing downstream inspects raw payloads.
const (
	EventSystemInit    EventType = "system-init"
	EventAssistantText EventType = "assistant-text"
	EventToolUse       EventType = "tool-use"
	EventResult        EventType = "result"
)

// ToolUse describes an intermediate tool invocation by the agent.
type ToolUse struct {
	Name      string
	Arguments map[string]any
}

// PrimaryArgument renders the most informative argument of a tool call for
// progress notices. Best effort; returns "" when nothing usable is present.
func (t ToolUse) PrimaryArgument() string {
	for _, key := range []string{"command", "path", "prompt", "query", "id"} {
		if v, ok := t.Arguments[key].(string); ok && v != "" {
			return v
		}
	}
	for _, v := range t.Arguments {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// Event is one step of an agent run.
type Event struct {
	Type      EventType
	Text      string   // assistant-text, result
	Tool      *ToolUse // tool-use
	SessionID string   // system-init
}

// Result is the outcome of a completed agent run.
type Result struct {
	Text      string
	SessionID string
}

// ToolUseObserver receives intermediate tool invocations during a run.
type ToolUseObserver func(ToolUse)

// Runner executes a prompt against the agent, optionally resuming a prior
// session. A returned SessionID lets a later call continue the conversation.
type Runner interface {
	Run(ctx context.Context, chatID, prompt, sessionID string, onToolUse ToolUseObserver) (*Result, error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, chatID, prompt, sessionID string, onToolUse ToolUseObserver) (*Result, error)

func (f RunnerFunc) Run(ctx context.Context, chatID, prompt, sessionID string, onToolUse ToolUseObserver) (*Result, error) {
	return f(ctx, chatID, prompt, sessionID, onToolUse)
}

// ErrNoProvider is returned by a runner constructed without an LLM provider.
var ErrNoProvider = fmt.Errorf("no LLM provider configured")
