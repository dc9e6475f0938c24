package bus

import (
	"context"
	"testing"
	"time"
)

func TestPublishConsumeInbound(t *testing.T) {
	b := NewMessageBus()
	b.PublishInbound(&InboundMessage{Channel: "slack", ChatID: "C1", MessageID: "m1", Text: "hi"})

	msg, err := b.ConsumeInbound(context.Background())
	if err != nil {
		t.Fatalf("ConsumeInbound: %v", err)
	}
	if msg.ChatID != "C1" || msg.Text != "hi" {
		t.Errorf("got %+v", msg)
	}
	if msg.Timestamp.IsZero() {
		t.Error("timestamp was not defaulted")
	}
}

func TestConsumeInboundCancelled(t *testing.T) {
	b := NewMessageBus()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := b.ConsumeInbound(ctx); err == nil {
		t.Error("expected error after cancel")
	}
}

func TestDispatchOutboundRoutesBySubscription(t *testing.T) {
	b := NewMessageBus()
	slack := make(chan *OutboundMessage, 1)
	kafka := make(chan *OutboundMessage, 1)
	b.Subscribe("slack", func(m *OutboundMessage) { slack <- m })
	b.Subscribe("kafka", func(m *OutboundMessage) { kafka <- m })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.DispatchOutbound(ctx)

	b.PublishOutbound(&OutboundMessage{Channel: "slack", ChatID: "C1", Text: "reply"})

	select {
	case m := <-slack:
		if m.Text != "reply" {
			t.Errorf("got %+v", m)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatch")
	}

	select {
	case m := <-kafka:
		t.Errorf("kafka subscriber received %+v", m)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestQueueSizes(t *testing.T) {
	b := NewMessageBus()
	b.PublishInbound(&InboundMessage{ChatID: "C1"})
	b.PublishOutbound(&OutboundMessage{ChatID: "C1"})

	if got := b.InboundSize(); got != 1 {
		t.Errorf("InboundSize = %d, want 1", got)
	}
	if got := b.OutboundSize(); got != 1 {
		t.Errorf("OutboundSize = %d, want 1", got)
	}
}
