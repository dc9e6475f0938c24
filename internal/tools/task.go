package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/RelayClaw/RelayClaw/internal/schedule"
	"github.com/RelayClaw/RelayClaw/internal/taskstore"
)

// Task-surface result strings.
const (
	accessDeniedResult = "Access denied."
	noTasksResult      = "No scheduled tasks."
)

// RegisterTaskTools adds the five task control tools to a registry.
func RegisterTaskTools(registry *Registry, store *taskstore.Store) {
	registry.Register(NewScheduleTaskTool(store))
	registry.Register(NewListTasksTool(store))
	registry.Register(NewPauseTaskTool(store))
	registry.Register(NewResumeTaskTool(store))
	registry.Register(NewCancelTaskTool(store))
}

// ScheduleTaskTool creates a new scheduled task owned by the calling chat.
type ScheduleTaskTool struct {
	store *taskstore.Store
}

func NewScheduleTaskTool(store *taskstore.Store) *ScheduleTaskTool {
	return &ScheduleTaskTool{store: store}
}

func (t *ScheduleTaskTool) Name() string { return "schedule_task" }
func (t *ScheduleTaskTool) Description() string {
	return "Schedule a prompt to run later: on a cron expression, at a fixed interval, or once at a timestamp. Results are posted back to this chat."
}

func (t *ScheduleTaskTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"prompt": map[string]any{
				"type":        "string",
				"description": "The prompt to run on each execution",
			},
			"schedule_type": map[string]any{
				"type":        "string",
				"enum":        []string{"cron", "interval", "once"},
				"description": "Schedule kind",
			},
			"schedule_value": map[string]any{
				"type":        "string",
				"description": "Cron expression, interval in milliseconds, or ISO timestamp",
			},
		},
		"required": []string{"prompt", "schedule_type", "schedule_value"},
	}
}

func (t *ScheduleTaskTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	chatID := ChatIDFrom(ctx)
	if chatID == "" {
		return accessDeniedResult, nil
	}

	prompt := strings.TrimSpace(GetString(params, "prompt", ""))
	scheduleType := strings.TrimSpace(GetString(params, "schedule_type", ""))
	scheduleValue := strings.TrimSpace(GetString(params, "schedule_value", ""))
	if prompt == "" {
		return "Error: prompt is required", nil
	}
	if !schedule.ValidType(scheduleType) {
		return fmt.Sprintf("Invalid schedule: unknown type %q (want cron, interval, or once)", scheduleType), nil
	}

	nextRun, err := schedule.NextRun(scheduleType, scheduleValue, time.Now())
	if err != nil {
		return fmt.Sprintf("Invalid schedule: %v", err), nil
	}
	if nextRun == nil {
		// Nil without error: a past once timestamp, or a cron expression
		// that can never fire.
		if scheduleType == schedule.TypeOnce {
			return "Invalid schedule: the timestamp is in the past.", nil
		}
		return "Invalid schedule: the expression never fires.", nil
	}

	task := &taskstore.ScheduledTask{
		ChatID:        chatID,
		Prompt:        prompt,
		ScheduleType:  scheduleType,
		ScheduleValue: scheduleValue,
		NextRun:       nextRun,
		Status:        taskstore.StatusActive,
	}
	if err := t.store.CreateTask(task); err != nil {
		return fmt.Sprintf("Error creating task: %v", err), nil
	}

	return "Task scheduled:\n" + formatTask(task), nil
}

// ListTasksTool lists the calling chat's tasks.
type ListTasksTool struct {
	store *taskstore.Store
}

func NewListTasksTool(store *taskstore.Store) *ListTasksTool {
	return &ListTasksTool{store: store}
}

func (t *ListTasksTool) Name() string { return "list_tasks" }
func (t *ListTasksTool) Description() string {
	return "List the scheduled tasks owned by this chat, newest first."
}

func (t *ListTasksTool) Parameters() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}
}

func (t *ListTasksTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	chatID := ChatIDFrom(ctx)
	if chatID == "" {
		return accessDeniedResult, nil
	}

	tasks, err := t.store.GetTasksForChat(chatID)
	if err != nil {
		return fmt.Sprintf("Error listing tasks: %v", err), nil
	}
	if len(tasks) == 0 {
		return noTasksResult, nil
	}

	parts := make([]string, 0, len(tasks))
	for _, task := range tasks {
		parts = append(parts, formatTask(task))
	}
	return strings.Join(parts, "\n\n"), nil
}

// PauseTaskTool pauses an active task.
type PauseTaskTool struct {
	store *taskstore.Store
}

func NewPauseTaskTool(store *taskstore.Store) *PauseTaskTool {
	return &PauseTaskTool{store: store}
}

func (t *PauseTaskTool) Name() string { return "pause_task" }
func (t *PauseTaskTool) Description() string {
	return "Pause a scheduled task so it stops firing until resumed."
}

func (t *PauseTaskTool) Parameters() map[string]any {
	return taskIDParameters()
}

func (t *PauseTaskTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	task, denial := lookupOwnedTask(ctx, t.store, params)
	if denial != "" {
		return denial, nil
	}

	status := taskstore.StatusPaused
	if err := t.store.UpdateTask(task.ID, taskstore.TaskUpdate{Status: &status}); err != nil {
		return fmt.Sprintf("Error pausing task: %v", err), nil
	}
	return fmt.Sprintf("Task paused: %s", task.ID), nil
}

// ResumeTaskTool reactivates a paused task with a freshly computed next run.
type ResumeTaskTool struct {
	store *taskstore.Store
}

func NewResumeTaskTool(store *taskstore.Store) *ResumeTaskTool {
	return &ResumeTaskTool{store: store}
}

func (t *ResumeTaskTool) Name() string { return "resume_task" }
func (t *ResumeTaskTool) Description() string {
	return "Resume a paused task. Its next run time is recomputed from now."
}

func (t *ResumeTaskTool) Parameters() map[string]any {
	return taskIDParameters()
}

func (t *ResumeTaskTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	task, denial := lookupOwnedTask(ctx, t.store, params)
	if denial != "" {
		return denial, nil
	}

	// A paused task's due time is stale; refresh it relative to now.
	nextRun, err := schedule.NextRun(task.ScheduleType, task.ScheduleValue, time.Now())
	if err != nil {
		return fmt.Sprintf("Cannot resume task %s: %v", task.ID, err), nil
	}
	if nextRun == nil {
		return fmt.Sprintf("Cannot resume task %s: its schedule has no future run.", task.ID), nil
	}

	status := taskstore.StatusActive
	if err := t.store.UpdateTask(task.ID, taskstore.TaskUpdate{
		Status:     &status,
		NextRun:    nextRun,
		SetNextRun: true,
	}); err != nil {
		return fmt.Sprintf("Error resuming task: %v", err), nil
	}
	return fmt.Sprintf("Task resumed: %s (next run %s)", task.ID, nextRun.Local().Format(time.RFC3339)), nil
}

// CancelTaskTool deletes a task and its run history.
type CancelTaskTool struct {
	store *taskstore.Store
}

func NewCancelTaskTool(store *taskstore.Store) *CancelTaskTool {
	return &CancelTaskTool{store: store}
}

func (t *CancelTaskTool) Name() string { return "cancel_task" }
func (t *CancelTaskTool) Description() string {
	return "Cancel a scheduled task permanently, removing it and its run history."
}

func (t *CancelTaskTool) Parameters() map[string]any {
	return taskIDParameters()
}

func (t *CancelTaskTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	task, denial := lookupOwnedTask(ctx, t.store, params)
	if denial != "" {
		return denial, nil
	}

	if err := t.store.DeleteTask(task.ID); err != nil {
		return fmt.Sprintf("Error cancelling task: %v", err), nil
	}
	return fmt.Sprintf("Task cancelled: %s", task.ID), nil
}

func taskIDParameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"id": map[string]any{
				"type":        "string",
				"description": "The task id",
			},
		},
		"required": []string{"id"},
	}
}

// lookupOwnedTask resolves the task id parameter and enforces chat ownership.
// A non-empty denial string is the tool result for the failure.
func lookupOwnedTask(ctx context.Context, store *taskstore.Store, params map[string]any) (*taskstore.ScheduledTask, string) {
	chatID := ChatIDFrom(ctx)
	if chatID == "" {
		return nil, accessDeniedResult
	}
	id := strings.TrimSpace(GetString(params, "id", ""))
	if id == "" {
		return nil, "Error: id is required"
	}

	task, err := store.GetTask(id)
	if err != nil {
		return nil, fmt.Sprintf("Error loading task: %v", err)
	}
	if task == nil {
		return nil, fmt.Sprintf("Task not found: %s", id)
	}
	if task.ChatID != chatID {
		return nil, accessDeniedResult
	}
	return task, ""
}

func formatTask(t *taskstore.ScheduledTask) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "ID: %s\n", t.ID)
	fmt.Fprintf(&sb, "Prompt: %s\n", t.Prompt)
	fmt.Fprintf(&sb, "Schedule: %s (%s)\n", t.ScheduleType, t.ScheduleValue)
	fmt.Fprintf(&sb, "Status: %s\n", t.Status)
	fmt.Fprintf(&sb, "Next run: %s\n", formatTaskTime(t.NextRun))
	fmt.Fprintf(&sb, "Last run: %s", formatTaskTime(t.LastRun))
	if t.LastResult != "" {
		fmt.Fprintf(&sb, "\nLast result: %s", t.LastResult)
	}
	return sb.String()
}

func formatTaskTime(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
