package channels

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/segmentio/kafka-go"

	"github.com/RelayClaw/RelayClaw/internal/bus"
	"github.com/RelayClaw/RelayClaw/internal/config"
)

// chatEvent is the JSON payload exchanged on the Kafka topics.
type chatEvent struct {
	ChatID     string `json:"chat_id"`
	MessageID  string `json:"message_id,omitempty"`
	ReplyToID  string `json:"reply_to_id,omitempty"`
	SenderType string `json:"sender_type,omitempty"`
	Text       string `json:"text"`
}

// KafkaChannel bridges chat events over Kafka: one topic in, one topic out.
type KafkaChannel struct {
	BaseChannel
	config config.KafkaConfig
	reader *kafka.Reader
	writer *kafka.Writer
}

func NewKafkaChannel(cfg config.KafkaConfig, messageBus *bus.MessageBus) *KafkaChannel {
	return &KafkaChannel{
		BaseChannel: BaseChannel{Bus: messageBus},
		config:      cfg,
	}
}

func (c *KafkaChannel) Name() string { return "kafka" }

func (c *KafkaChannel) Start(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	brokers := strings.Split(c.config.Brokers, ",")
	c.reader = kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    c.config.InboundTopic,
		GroupID:  c.config.ConsumerGroup,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	c.writer = &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    c.config.OutboundTopic,
		Balancer: &kafka.LeastBytes{},
	}

	c.Bus.Subscribe(c.Name(), func(msg *bus.OutboundMessage) {
		if err := c.Send(ctx, msg); err != nil {
			slog.Warn("Kafka send failed", "chat_id", msg.ChatID, "error", err)
		}
	})

	go c.consume(ctx)
	slog.Info("Kafka channel started", "inbound", c.config.InboundTopic, "outbound", c.config.OutboundTopic)
	return nil
}

func (c *KafkaChannel) Stop() error {
	var err error
	if c.reader != nil {
		err = c.reader.Close()
	}
	if c.writer != nil {
		if werr := c.writer.Close(); err == nil {
			err = werr
		}
	}
	return err
}

func (c *KafkaChannel) Send(ctx context.Context, msg *bus.OutboundMessage) error {
	payload, err := json.Marshal(chatEvent{
		ChatID:    msg.ChatID,
		ReplyToID: msg.ReplyToID,
		Text:      msg.Text,
	})
	if err != nil {
		return err
	}
	return c.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.ChatID),
		Value: payload,
	})
}

func (c *KafkaChannel) consume(ctx context.Context) {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Warn("Kafka read error", "error", err)
			continue
		}

		var evt chatEvent
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			slog.Warn("Kafka inbound payload malformed", "error", err)
			continue
		}
		if evt.ChatID == "" || evt.MessageID == "" {
			slog.Warn("Kafka inbound payload missing ids")
			continue
		}
		senderType := evt.SenderType
		if senderType == "" {
			senderType = bus.SenderUser
		}

		c.Bus.PublishInbound(&bus.InboundMessage{
			Channel:    c.Name(),
			ChatID:     evt.ChatID,
			MessageID:  evt.MessageID,
			SenderType: senderType,
			Text:       evt.Text,
		})
	}
}
