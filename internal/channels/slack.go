package channels

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/RelayClaw/RelayClaw/internal/bus"
	"github.com/RelayClaw/RelayClaw/internal/config"
)

// SlackChannel is a Socket Mode transport: Events API messages in, chat
// messages out.
type SlackChannel struct {
	BaseChannel
	config    config.SlackConfig
	api       *slack.Client
	sock      *socketmode.Client
	botUserID string
}

func NewSlackChannel(cfg config.SlackConfig, messageBus *bus.MessageBus) *SlackChannel {
	return &SlackChannel{
		BaseChannel: BaseChannel{Bus: messageBus},
		config:      cfg,
	}
}

func (c *SlackChannel) Name() string { return "slack" }

func (c *SlackChannel) Start(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	c.api = slack.New(c.config.BotToken, slack.OptionAppLevelToken(c.config.AppToken))
	auth, err := c.api.AuthTestContext(ctx)
	if err != nil {
		return err
	}
	c.botUserID = auth.UserID
	c.sock = socketmode.New(c.api)

	c.Bus.Subscribe(c.Name(), func(msg *bus.OutboundMessage) {
		if err := c.Send(ctx, msg); err != nil {
			slog.Warn("Slack send failed", "chat_id", msg.ChatID, "error", err)
		}
	})

	go c.runSocketMode(ctx)
	slog.Info("Slack channel started", "bot_user", c.botUserID)
	return nil
}

func (c *SlackChannel) Stop() error { return nil }

// Send posts a message, retrying once after a rate-limit backoff.
func (c *SlackChannel) Send(ctx context.Context, msg *bus.OutboundMessage) error {
	_, _, err := c.api.PostMessageContext(ctx, msg.ChatID, slack.MsgOptionText(msg.Text, false))
	var rle *slack.RateLimitedError
	if errors.As(err, &rle) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(rle.RetryAfter):
		}
		_, _, err = c.api.PostMessageContext(ctx, msg.ChatID, slack.MsgOptionText(msg.Text, false))
	}
	return err
}

func (c *SlackChannel) runSocketMode(ctx context.Context) {
	go c.consumeEvents(ctx, c.sock.Events)
	if err := c.sock.RunContext(ctx); err != nil && ctx.Err() == nil {
		slog.Error("Slack socket mode exited", "error", err)
	}
}

// consumeEvents drains socket mode events until the context ends. Socket mode
// never closes its events channel, so the context is the exit path.
func (c *SlackChannel) consumeEvents(ctx context.Context, events chan socketmode.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			if evt.Type != socketmode.EventTypeEventsAPI {
				continue
			}
			if evt.Request != nil {
				c.sock.Ack(*evt.Request)
			}
			ev, ok := evt.Data.(slackevents.EventsAPIEvent)
			if !ok || ev.Type != slackevents.CallbackEvent {
				continue
			}
			if in, ok := ev.InnerEvent.Data.(*slackevents.MessageEvent); ok && in != nil {
				c.handleMessageEvent(in)
			}
		}
	}
}

func (c *SlackChannel) handleMessageEvent(in *slackevents.MessageEvent) {
	// Edits, joins, thread broadcasts etc. carry a subtype; only plain
	// messages reach the router.
	if in.SubType != "" {
		return
	}

	senderType := bus.SenderUser
	if in.BotID != "" || (c.botUserID != "" && in.User == c.botUserID) {
		senderType = bus.SenderBot
	}

	c.Bus.PublishInbound(&bus.InboundMessage{
		Channel:    c.Name(),
		ChatID:     in.Channel,
		MessageID:  in.TimeStamp,
		SenderType: senderType,
		Text:       strings.TrimSpace(in.Text),
	})
}
