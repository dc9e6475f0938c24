// Package router decides, per inbound message, whether to act and produces
// the outgoing reply.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/RelayClaw/RelayClaw/internal/agent"
	"github.com/RelayClaw/RelayClaw/internal/bus"
	"github.com/RelayClaw/RelayClaw/internal/state"
	"github.com/RelayClaw/RelayClaw/internal/tools"
)

// Replies for the /clear command and the empty-response fallback.
const (
	clearCommand        = "/clear"
	clearedReply        = "Session cleared. The next message starts a fresh conversation."
	nothingToClearReply = "No active session to clear."
	emptyResponseReply  = "(Agent returned no content)"
)

// Router consumes inbound messages from the bus, applies dedup and command
// logic, and delegates to the agent runner.
type Router struct {
	bus           *bus.MessageBus
	store         *state.Store
	runner        agent.Runner
	assistantName string

	startMu sync.Mutex
	started bool

	inflightMu sync.Mutex
	inflight   map[string]struct{}
}

// Options configures a Router.
type Options struct {
	Bus           *bus.MessageBus
	Store         *state.Store
	Runner        agent.Runner
	AssistantName string
}

// New creates a Router.
func New(opts Options) *Router {
	name := opts.AssistantName
	if name == "" {
		name = "Assistant"
	}
	return &Router{
		bus:           opts.Bus,
		store:         opts.Store,
		runner:        opts.Runner,
		assistantName: name,
		inflight:      make(map[string]struct{}),
	}
}

// Start launches the inbound consume loop. It is idempotent: only the first
// call transitions the router to running.
func (r *Router) Start(ctx context.Context) {
	r.startMu.Lock()
	if r.started {
		r.startMu.Unlock()
		return
	}
	r.started = true
	r.startMu.Unlock()

	go func() {
		slog.Info("Router started", "assistant", r.assistantName)
		for {
			msg, err := r.bus.ConsumeInbound(ctx)
			if err != nil {
				slog.Info("Router stopped", "reason", err)
				return
			}
			go r.Handle(ctx, msg)
		}
	}()
}

// Handle processes one inbound message end to end.
func (r *Router) Handle(ctx context.Context, msg *bus.InboundMessage) {
	if msg.SenderType != bus.SenderUser {
		return
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	// The in-flight guard closes the race between two concurrent deliveries
	// of the same message; release on every exit path.
	if !r.acquire(msg.MessageID) {
		return
	}
	defer r.release(msg.MessageID)

	if r.store.IsDuplicate(msg.MessageID) {
		slog.Debug("Router skipping duplicate", "message_id", msg.MessageID)
		return
	}
	// Mark before any further work so a redelivery mid-run is still caught.
	r.store.MarkProcessed(msg.MessageID)

	if strings.EqualFold(text, clearCommand) {
		r.handleClear(msg)
		return
	}

	sessionID, _ := r.store.GetSession(msg.ChatID)
	prompt := r.contextualPrompt(msg, text)

	// Task tools invoked during the run act on behalf of this chat.
	runCtx := tools.WithChatID(ctx, msg.ChatID)
	result, err := r.runner.Run(runCtx, msg.ChatID, prompt, sessionID, func(tu agent.ToolUse) {
		r.sendToolNotice(msg, tu)
	})
	if err != nil {
		slog.Error("Agent run failed", "chat_id", msg.ChatID, "error", err)
		r.save()
		r.reply(msg, fmt.Sprintf("%s: Error: %v", r.assistantName, err))
		return
	}

	if result.SessionID != "" {
		r.store.SetSession(msg.ChatID, result.SessionID)
	}
	r.save()

	replyText := strings.TrimSpace(result.Text)
	if replyText == "" {
		replyText = emptyResponseReply
	}
	r.reply(msg, fmt.Sprintf("%s: %s", r.assistantName, replyText))
}

func (r *Router) handleClear(msg *bus.InboundMessage) {
	existed := r.store.ClearSession(msg.ChatID)
	r.save()
	if existed {
		r.reply(msg, clearedReply)
	} else {
		r.reply(msg, nothingToClearReply)
	}
}

func (r *Router) contextualPrompt(msg *bus.InboundMessage, text string) string {
	return fmt.Sprintf("[channel=%s chat=%s] You are %s; replies to this chat are prefixed with %q.\n\n%s",
		msg.Channel, msg.ChatID, r.assistantName, r.assistantName+": ", text)
}

// sendToolNotice posts a progress line for an intermediate tool call.
// Fire-and-forget: a lost notice never affects the run.
func (r *Router) sendToolNotice(msg *bus.InboundMessage, tu agent.ToolUse) {
	notice := "🔧 " + tu.Name
	if arg := tu.PrimaryArgument(); arg != "" {
		notice += ": " + arg
	}
	r.bus.PublishOutbound(&bus.OutboundMessage{
		Channel: msg.Channel,
		ChatID:  msg.ChatID,
		Text:    notice,
	})
}

func (r *Router) reply(msg *bus.InboundMessage, text string) {
	r.bus.PublishOutbound(&bus.OutboundMessage{
		Channel:   msg.Channel,
		ChatID:    msg.ChatID,
		ReplyToID: msg.MessageID,
		Text:      text,
	})
}

func (r *Router) save() {
	if err := r.store.Save(); err != nil {
		slog.Warn("Router state save failed", "error", err)
	}
}

func (r *Router) acquire(messageID string) bool {
	r.inflightMu.Lock()
	defer r.inflightMu.Unlock()
	if _, ok := r.inflight[messageID]; ok {
		return false
	}
	r.inflight[messageID] = struct{}{}
	return true
}

func (r *Router) release(messageID string) {
	r.inflightMu.Lock()
	defer r.inflightMu.Unlock()
	delete(r.inflight, messageID)
}
