package taskstore

import "time"

// Task status constants.
const (
	StatusActive    = "active"
	StatusPaused    = "paused"
	StatusCompleted = "completed"
)

// Run log status constants.
const (
	RunSuccess = "success"
	RunError   = "error"
)

// ScheduledTask is a durable agent task definition.
type ScheduledTask struct {
	ID            string     `json:"id"`
	ChatID        string     `json:"chat_id"`
	Prompt        string     `json:"prompt"`
	ScheduleType  string     `json:"schedule_type"`  // cron, interval, once
	ScheduleValue string     `json:"schedule_value"` // cron expr | milliseconds | timestamp
	NextRun       *time.Time `json:"next_run,omitempty"`
	LastRun       *time.Time `json:"last_run,omitempty"`
	LastResult    string     `json:"last_result,omitempty"`
	Status        string     `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
}

// TaskRunLog is an append-only record of one execution attempt.
type TaskRunLog struct {
	ID         int64     `json:"id"`
	TaskID     string    `json:"task_id"`
	RunAt      time.Time `json:"run_at"`
	DurationMs int64     `json:"duration_ms"`
	Status     string    `json:"status"` // success, error
	Result     string    `json:"result,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Schema defines the task database tables.
const Schema = `
CREATE TABLE IF NOT EXISTS scheduled_tasks (
	id TEXT PRIMARY KEY,
	chat_id TEXT NOT NULL,
	prompt TEXT NOT NULL,
	schedule_type TEXT NOT NULL,
	schedule_value TEXT NOT NULL,
	next_run DATETIME,
	last_run DATETIME,
	last_result TEXT,
	status TEXT NOT NULL DEFAULT 'active',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_scheduled_tasks_due ON scheduled_tasks(status, next_run);
CREATE INDEX IF NOT EXISTS idx_scheduled_tasks_chat ON scheduled_tasks(chat_id);

CREATE TABLE IF NOT EXISTS task_run_logs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	task_id TEXT NOT NULL REFERENCES scheduled_tasks(id),
	run_at DATETIME NOT NULL,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	result TEXT,
	error TEXT
);

CREATE INDEX IF NOT EXISTS idx_task_run_logs_task ON task_run_logs(task_id);
`
