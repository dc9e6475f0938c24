// Package scheduler runs the polling loop that executes due tasks.
package scheduler

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/RelayClaw/RelayClaw/internal/agent"
	"github.com/RelayClaw/RelayClaw/internal/bus"
	"github.com/RelayClaw/RelayClaw/internal/schedule"
	"github.com/RelayClaw/RelayClaw/internal/taskstore"
	"github.com/RelayClaw/RelayClaw/internal/tools"
)

// DefaultPollInterval is the pause between poll completions. Each poll
// schedules the next one only after finishing, so long polls drift rather
// than stack.
const DefaultPollInterval = 60 * time.Second

// MaxResultLength bounds the stored last_result summary.
const MaxResultLength = 200

// Loop is the single polling scheduler. Tasks within one poll execute
// strictly sequentially; a long-running task delays the tasks behind it.
type Loop struct {
	store           *taskstore.Store
	runner          agent.Runner
	bus             *bus.MessageBus
	deliveryChannel string
	pollInterval    time.Duration
	now             func() time.Time

	startMu sync.Mutex
	started bool

	runningMu sync.Mutex
	running   map[string]struct{}
}

// Options configures a Loop.
type Options struct {
	Store  *taskstore.Store
	Runner agent.Runner
	Bus    *bus.MessageBus
	// DeliveryChannel names the bus channel task results are sent to.
	DeliveryChannel string
	PollInterval    time.Duration
	// Now overrides the clock (tests).
	Now func() time.Time
}

// New creates a scheduler Loop.
func New(opts Options) *Loop {
	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Loop{
		store:           opts.Store,
		runner:          opts.Runner,
		bus:             opts.Bus,
		deliveryChannel: opts.DeliveryChannel,
		pollInterval:    interval,
		now:             now,
		running:         make(map[string]struct{}),
	}
}

// Start launches the poll loop in a goroutine. Idempotent: only the first
// call starts the loop.
func (l *Loop) Start(ctx context.Context) {
	l.startMu.Lock()
	if l.started {
		l.startMu.Unlock()
		return
	}
	l.started = true
	l.startMu.Unlock()

	go l.run(ctx)
}

func (l *Loop) run(ctx context.Context) {
	slog.Info("Scheduler started", "poll", l.pollInterval)
	for {
		l.Poll(ctx)
		select {
		case <-ctx.Done():
			slog.Info("Scheduler stopped")
			return
		case <-time.After(l.pollInterval):
		}
	}
}

// Poll executes one scan of due tasks. Errors are logged and swallowed so the
// loop survives store outages.
func (l *Loop) Poll(ctx context.Context) {
	due, err := l.store.GetDueTasks(l.now())
	if err != nil {
		slog.Error("Scheduler poll failed", "error", err)
		return
	}

	for _, task := range due {
		// Skip tasks still executing from a previous poll.
		if !l.acquire(task.ID) {
			slog.Warn("Scheduler skipping running task", "task_id", task.ID)
			continue
		}
		l.executeTask(ctx, task.ID)
	}
}

// executeTask runs one due task and records the outcome. The guard entry is
// released on every exit path.
func (l *Loop) executeTask(ctx context.Context, id string) {
	defer l.release(id)

	// Re-fetch: a pause or cancel may have landed since the due query.
	task, err := l.store.GetTask(id)
	if err != nil {
		slog.Error("Scheduler task fetch failed", "task_id", id, "error", err)
		return
	}
	if task == nil || task.Status != taskstore.StatusActive {
		return
	}

	slog.Info("Scheduler executing task", "task_id", task.ID, "chat_id", task.ChatID)
	start := l.now()

	// Each scheduled run is a fresh agent context, no session continuity.
	runCtx := tools.WithChatID(ctx, task.ChatID)
	result, runErr := l.runner.Run(runCtx, task.ChatID, task.Prompt, "", nil)
	duration := l.now().Sub(start)

	var summary, resultText, errText string
	if runErr != nil {
		errText = runErr.Error()
		summary = "Error: " + errText
		slog.Error("Scheduler task failed", "task_id", task.ID, "error", runErr)
	} else {
		resultText = result.Text
		summary = truncateResult(resultText)
		if summary == "" {
			summary = "Completed"
		}
		if strings.TrimSpace(resultText) != "" {
			l.bus.PublishOutbound(&bus.OutboundMessage{
				Channel: l.deliveryChannel,
				ChatID:  task.ChatID,
				Text:    resultText,
			})
		}
	}

	status := taskstore.RunSuccess
	if runErr != nil {
		status = taskstore.RunError
	}
	if err := l.store.AppendRunLog(&taskstore.TaskRunLog{
		TaskID:     task.ID,
		RunAt:      start,
		DurationMs: duration.Milliseconds(),
		Status:     status,
		Result:     truncateResult(resultText),
		Error:      errText,
	}); err != nil {
		slog.Error("Scheduler run log failed", "task_id", task.ID, "error", err)
	}

	nextRun, err := schedule.NextRun(task.ScheduleType, task.ScheduleValue, l.now())
	if err != nil {
		// An unparseable schedule cannot fire again; the task retires.
		slog.Warn("Scheduler cannot reschedule task", "task_id", task.ID, "error", err)
		nextRun = nil
	}
	if err := l.store.UpdateTaskAfterRun(task.ID, nextRun, summary); err != nil {
		slog.Error("Scheduler task update failed", "task_id", task.ID, "error", err)
	}
}

func (l *Loop) acquire(id string) bool {
	l.runningMu.Lock()
	defer l.runningMu.Unlock()
	if _, ok := l.running[id]; ok {
		return false
	}
	l.running[id] = struct{}{}
	return true
}

func (l *Loop) release(id string) {
	l.runningMu.Lock()
	defer l.runningMu.Unlock()
	delete(l.running, id)
}

func truncateResult(s string) string {
	if len(s) <= MaxResultLength {
		return s
	}
	// Cut on a rune boundary so the stored summary stays valid UTF-8.
	runes := []rune(s)
	if len(runes) > MaxResultLength {
		runes = runes[:MaxResultLength]
	}
	return string(runes)
}
