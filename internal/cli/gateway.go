package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/RelayClaw/RelayClaw/internal/agent"
	"github.com/RelayClaw/RelayClaw/internal/bus"
	"github.com/RelayClaw/RelayClaw/internal/channels"
	"github.com/RelayClaw/RelayClaw/internal/config"
	"github.com/RelayClaw/RelayClaw/internal/provider"
	"github.com/RelayClaw/RelayClaw/internal/router"
	"github.com/RelayClaw/RelayClaw/internal/scheduler"
	"github.com/RelayClaw/RelayClaw/internal/state"
	"github.com/RelayClaw/RelayClaw/internal/taskstore"
	"github.com/RelayClaw/RelayClaw/internal/tools"
)

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Run the gateway: channels, router, and task scheduler",
	RunE:  runGateway,
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	stateStore, err := state.NewStore(cfg.Paths.StateDir)
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	tasks, err := taskstore.New(cfg.Paths.TaskDB)
	if err != nil {
		return fmt.Errorf("open task store: %w", err)
	}
	defer tasks.Close()

	messageBus := bus.NewMessageBus()

	registry := tools.NewRegistry()
	tools.RegisterTaskTools(registry, tasks)

	prov := provider.NewOpenAIProvider(cfg.OpenAI.APIKey, cfg.OpenAI.APIBase, cfg.OpenAI.Model)
	runner := agent.NewLoopRunner(agent.LoopRunnerOptions{
		Provider: prov,
		Registry: registry,
		SystemPrompt: fmt.Sprintf("You are %s, a helpful assistant reachable over chat. "+
			"You can schedule recurring work with the task tools.", cfg.Assistant.Name),
	})

	rt := router.New(router.Options{
		Bus:           messageBus,
		Store:         stateStore,
		Runner:        runner,
		AssistantName: cfg.Assistant.Name,
	})
	rt.Start(ctx)

	if cfg.Scheduler.Enabled {
		loop := scheduler.New(scheduler.Options{
			Store:           tasks,
			Runner:          runner,
			Bus:             messageBus,
			DeliveryChannel: deliveryChannel(cfg),
			PollInterval:    cfg.Scheduler.PollInterval,
		})
		loop.Start(ctx)
	}

	active := []channels.Channel{
		channels.NewSlackChannel(cfg.Channels.Slack, messageBus),
		channels.NewKafkaChannel(cfg.Channels.Kafka, messageBus),
	}
	for _, ch := range active {
		if err := ch.Start(ctx); err != nil {
			return fmt.Errorf("start %s channel: %w", ch.Name(), err)
		}
	}

	go messageBus.DispatchOutbound(ctx)

	slog.Info("Gateway running", "assistant", cfg.Assistant.Name)
	<-ctx.Done()

	for _, ch := range active {
		if err := ch.Stop(); err != nil {
			slog.Warn("Channel stop failed", "channel", ch.Name(), "error", err)
		}
	}
	return nil
}

// deliveryChannel picks the bus channel scheduled task results are posted to:
// the first enabled transport.
func deliveryChannel(cfg *config.Config) string {
	if cfg.Channels.Slack.Enabled {
		return "slack"
	}
	if cfg.Channels.Kafka.Enabled {
		return "kafka"
	}
	return "slack"
}
