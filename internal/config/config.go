// Package config handles loading and persisting RelayClaw configuration.
package config

import (
	"os"
	"path/filepath"
	"time"
)

// PathsConfig holds filesystem locations for state and data.
type PathsConfig struct {
	StateDir string `json:"stateDir" envconfig:"STATE_DIR"`
	TaskDB   string `json:"taskDb" envconfig:"TASK_DB"`
}

// AssistantConfig holds the user-visible assistant identity.
type AssistantConfig struct {
	Name string `json:"name" envconfig:"NAME"`
}

// OpenAIConfig holds settings for the OpenAI-compatible provider.
type OpenAIConfig struct {
	APIKey  string `json:"apiKey" envconfig:"API_KEY"`
	APIBase string `json:"apiBase" envconfig:"API_BASE"`
	Model   string `json:"model" envconfig:"MODEL"`
}

// SlackConfig holds Slack Socket Mode settings.
type SlackConfig struct {
	Enabled  bool   `json:"enabled" envconfig:"ENABLED"`
	BotToken string `json:"botToken" envconfig:"BOT_TOKEN"`
	AppToken string `json:"appToken" envconfig:"APP_TOKEN"`
}

// KafkaConfig holds settings for the Kafka chat-event channel.
type KafkaConfig struct {
	Enabled       bool   `json:"enabled" envconfig:"ENABLED"`
	Brokers       string `json:"brokers" envconfig:"BROKERS"`
	ConsumerGroup string `json:"consumerGroup" envconfig:"CONSUMER_GROUP"`
	InboundTopic  string `json:"inboundTopic" envconfig:"INBOUND_TOPIC"`
	OutboundTopic string `json:"outboundTopic" envconfig:"OUTBOUND_TOPIC"`
}

// ChannelsConfig groups all channel settings.
type ChannelsConfig struct {
	Slack SlackConfig `json:"slack"`
	Kafka KafkaConfig `json:"kafka"`
}

// SchedulerConfig holds scheduler loop settings.
type SchedulerConfig struct {
	Enabled      bool          `json:"enabled" envconfig:"ENABLED"`
	PollInterval time.Duration `json:"pollInterval" envconfig:"POLL_INTERVAL"`
}

// Config is the root configuration.
type Config struct {
	Paths     PathsConfig     `json:"paths"`
	Assistant AssistantConfig `json:"assistant"`
	OpenAI    OpenAIConfig    `json:"openai"`
	Channels  ChannelsConfig  `json:"channels"`
	Scheduler SchedulerConfig `json:"scheduler"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	base := filepath.Join(home, ".relayclaw")
	return &Config{
		Paths: PathsConfig{
			StateDir: base,
			TaskDB:   filepath.Join(base, "tasks.db"),
		},
		Assistant: AssistantConfig{
			Name: "RelayClaw",
		},
		OpenAI: OpenAIConfig{
			APIBase: "https://api.openai.com/v1",
		},
		Channels: ChannelsConfig{
			Kafka: KafkaConfig{
				Brokers:       "localhost:9092",
				ConsumerGroup: "relayclaw",
				InboundTopic:  "relayclaw.inbound",
				OutboundTopic: "relayclaw.outbound",
			},
		},
		Scheduler: SchedulerConfig{
			Enabled:      true,
			PollInterval: 60 * time.Second,
		},
	}
}
