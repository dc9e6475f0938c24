package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/RelayClaw/RelayClaw/internal/provider"
	"github.com/RelayClaw/RelayClaw/internal/tools"
)

// stubProvider returns scripted responses and records every request.
type stubProvider struct {
	responses []*provider.ChatResponse
	requests  []*provider.ChatRequest
}

func (p *stubProvider) Chat(ctx context.Context, req *provider.ChatRequest) (*provider.ChatResponse, error) {
	p.requests = append(p.requests, req)
	if len(p.responses) == 0 {
		return &provider.ChatResponse{Content: "out of script"}, nil
	}
	resp := p.responses[0]
	p.responses = p.responses[1:]
	return resp, nil
}

func (p *stubProvider) DefaultModel() string { return "stub" }

// echoTool records the params it was called with.
type echoTool struct {
	calls []map[string]any
}

func (t *echoTool) Name() string        { return "echo" }
func (t *echoTool) Description() string { return "Echo the input back." }
func (t *echoTool) Parameters() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}
func (t *echoTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	t.calls = append(t.calls, params)
	return "echoed", nil
}

func TestRunToolCallLoop(t *testing.T) {
	prov := &stubProvider{responses: []*provider.ChatResponse{
		{ToolCalls: []provider.ToolCall{{ID: "c1", Name: "echo", Arguments: map[string]any{"text": "hi"}}}},
		{Content: "all done"},
	}}
	echo := &echoTool{}
	registry := tools.NewRegistry()
	registry.Register(echo)

	runner := NewLoopRunner(LoopRunnerOptions{Provider: prov, Registry: registry})

	var observed []ToolUse
	result, err := runner.Run(context.Background(), "chat-1", "please echo", "", func(tu ToolUse) {
		observed = append(observed, tu)
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Text != "all done" {
		t.Errorf("result text = %q", result.Text)
	}
	if result.SessionID == "" {
		t.Error("no session handle returned")
	}

	if len(observed) != 1 || observed[0].Name != "echo" {
		t.Errorf("observed tool uses = %+v", observed)
	}
	if len(echo.calls) != 1 {
		t.Errorf("tool executed %d times, want 1", len(echo.calls))
	}

	// The tool result is fed back as a tool-role message.
	if len(prov.requests) != 2 {
		t.Fatalf("provider called %d times, want 2", len(prov.requests))
	}
	last := prov.requests[1].Messages[len(prov.requests[1].Messages)-1]
	if last.Role != "tool" || last.Content != "echoed" || last.ToolCallID != "c1" {
		t.Errorf("tool feedback message = %+v", last)
	}
}

func TestRunSessionContinuity(t *testing.T) {
	prov := &stubProvider{responses: []*provider.ChatResponse{
		{Content: "first answer"},
		{Content: "second answer"},
	}}
	runner := NewLoopRunner(LoopRunnerOptions{Provider: prov, Registry: tools.NewRegistry()})

	first, err := runner.Run(context.Background(), "chat-1", "question one", "", nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	second, err := runner.Run(context.Background(), "chat-1", "question two", first.SessionID, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if second.SessionID != first.SessionID {
		t.Errorf("session changed: %q -> %q", first.SessionID, second.SessionID)
	}

	// The resumed transcript carries the earlier exchange.
	msgs := prov.requests[1].Messages
	var sawFirstQuestion, sawFirstAnswer bool
	for _, m := range msgs {
		if m.Content == "question one" {
			sawFirstQuestion = true
		}
		if m.Content == "first answer" {
			sawFirstAnswer = true
		}
	}
	if !sawFirstQuestion || !sawFirstAnswer {
		t.Errorf("resumed transcript missing history: %+v", msgs)
	}
}

func TestRunUnknownSessionStartsFresh(t *testing.T) {
	prov := &stubProvider{responses: []*provider.ChatResponse{{Content: "hello"}}}
	runner := NewLoopRunner(LoopRunnerOptions{Provider: prov, Registry: tools.NewRegistry()})

	result, err := runner.Run(context.Background(), "chat-1", "hi", "nonexistent-session", nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.SessionID == "nonexistent-session" {
		t.Error("stale session handle was reused")
	}
}

func TestRunWithoutProvider(t *testing.T) {
	runner := NewLoopRunner(LoopRunnerOptions{})
	_, err := runner.Run(context.Background(), "chat-1", "hi", "", nil)
	if !errors.Is(err, ErrNoProvider) {
		t.Errorf("err = %v, want ErrNoProvider", err)
	}
}

func TestDropSession(t *testing.T) {
	prov := &stubProvider{responses: []*provider.ChatResponse{{Content: "a"}, {Content: "b"}}}
	runner := NewLoopRunner(LoopRunnerOptions{Provider: prov, Registry: tools.NewRegistry()})

	first, _ := runner.Run(context.Background(), "chat-1", "one", "", nil)
	runner.DropSession(first.SessionID)

	second, _ := runner.Run(context.Background(), "chat-1", "two", first.SessionID, nil)
	if second.SessionID == first.SessionID {
		t.Error("dropped session was resumed")
	}
}

func TestEventsFromResponse(t *testing.T) {
	textOnly := eventsFromResponse(&provider.ChatResponse{Content: "hi"})
	if len(textOnly) != 2 || textOnly[0].Type != EventAssistantText || textOnly[1].Type != EventResult {
		t.Errorf("text-only events = %+v", textOnly)
	}

	withTools := eventsFromResponse(&provider.ChatResponse{
		Content:   "thinking",
		ToolCalls: []provider.ToolCall{{Name: "echo"}},
	})
	var sawToolUse, sawResult bool
	for _, evt := range withTools {
		if evt.Type == EventToolUse {
			sawToolUse = true
		}
		if evt.Type == EventResult {
			sawResult = true
		}
	}
	if !sawToolUse {
		t.Error("tool call produced no tool-use event")
	}
	if sawResult {
		t.Error("pending tool calls should not produce a result event")
	}
}

func TestPrimaryArgument(t *testing.T) {
	if got := (ToolUse{Name: "exec", Arguments: map[string]any{"command": "ls"}}).PrimaryArgument(); got != "ls" {
		t.Errorf("PrimaryArgument = %q, want ls", got)
	}
	if got := (ToolUse{Name: "noop"}).PrimaryArgument(); got != "" {
		t.Errorf("PrimaryArgument = %q, want empty", got)
	}
}
