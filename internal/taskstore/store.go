// Package taskstore is the durable repository for scheduled tasks and their
// run history.
package taskstore

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Store provides CRUD and due-task queries over the task database.
type Store struct {
	db *sql.DB
}

// New opens (creating if needed) the task database at dbPath.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open task db: %w", err)
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply task schema: %w", err)
	}
	return &Store{db: db}, nil
}

// DB exposes the underlying handle (used by the CLI status command).
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error {
	return s.db.Close()
}

// NewTaskID generates a unique task identifier.
func NewTaskID() string {
	return "task-" + uuid.NewString()
}

// CreateTask inserts a new task. Missing id, status and created_at are filled
// with defaults.
func (s *Store) CreateTask(task *ScheduledTask) error {
	if task.ID == "" {
		task.ID = NewTaskID()
	}
	if task.Status == "" {
		task.Status = StatusActive
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.Exec(`
	INSERT INTO scheduled_tasks (id, chat_id, prompt, schedule_type, schedule_value, next_run, last_run, last_result, status, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID,
		task.ChatID,
		task.Prompt,
		task.ScheduleType,
		task.ScheduleValue,
		nullableTime(task.NextRun),
		nullableTime(task.LastRun),
		task.LastResult,
		task.Status,
		task.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

const taskColumns = `id, chat_id, prompt, schedule_type, schedule_value,
	next_run, last_run, COALESCE(last_result,''), status, created_at`

// GetTask returns a task by id, or nil when no such task exists.
func (s *Store) GetTask(id string) (*ScheduledTask, error) {
	row := s.db.QueryRow(`SELECT `+taskColumns+` FROM scheduled_tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// GetDueTasks returns active tasks due at or before now, earliest first.
func (s *Store) GetDueTasks(now time.Time) ([]*ScheduledTask, error) {
	rows, err := s.db.Query(`SELECT `+taskColumns+`
	FROM scheduled_tasks
	WHERE status = ? AND next_run IS NOT NULL AND next_run <= ?
	ORDER BY next_run ASC`, StatusActive, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("get due tasks: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

// GetTasksForChat returns all tasks owned by a chat, newest first.
func (s *Store) GetTasksForChat(chatID string) ([]*ScheduledTask, error) {
	rows, err := s.db.Query(`SELECT `+taskColumns+`
	FROM scheduled_tasks WHERE chat_id = ? ORDER BY created_at DESC`, chatID)
	if err != nil {
		return nil, fmt.Errorf("get tasks for chat: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

// GetAllTasks returns every task, newest first.
func (s *Store) GetAllTasks() ([]*ScheduledTask, error) {
	rows, err := s.db.Query(`SELECT ` + taskColumns + `
	FROM scheduled_tasks ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("get all tasks: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

// TaskUpdate describes a partial update. Only non-nil fields (and NextRun when
// SetNextRun is true, allowing an explicit NULL) are written.
type TaskUpdate struct {
	Prompt        *string
	ScheduleType  *string
	ScheduleValue *string
	Status        *string
	LastResult    *string
	NextRun       *time.Time
	SetNextRun    bool
}

// UpdateTask applies a partial update; unspecified fields are untouched.
func (s *Store) UpdateTask(id string, upd TaskUpdate) error {
	sets := []string{}
	args := []any{}

	if upd.Prompt != nil {
		sets = append(sets, "prompt = ?")
		args = append(args, *upd.Prompt)
	}
	if upd.ScheduleType != nil {
		sets = append(sets, "schedule_type = ?")
		args = append(args, *upd.ScheduleType)
	}
	if upd.ScheduleValue != nil {
		sets = append(sets, "schedule_value = ?")
		args = append(args, *upd.ScheduleValue)
	}
	if upd.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *upd.Status)
	}
	if upd.LastResult != nil {
		sets = append(sets, "last_result = ?")
		args = append(args, *upd.LastResult)
	}
	if upd.SetNextRun {
		sets = append(sets, "next_run = ?")
		args = append(args, nullableTime(upd.NextRun))
	}
	if len(sets) == 0 {
		return nil
	}

	args = append(args, id)
	_, err := s.db.Exec("UPDATE scheduled_tasks SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return nil
}

// UpdateTaskAfterRun records the outcome of an execution: last_run is set to
// now, and the task retires (status completed) exactly when nextRun is nil.
func (s *Store) UpdateTaskAfterRun(id string, nextRun *time.Time, lastResult string) error {
	_, err := s.db.Exec(`
	UPDATE scheduled_tasks
	SET last_run = ?, last_result = ?, next_run = ?,
		status = CASE WHEN ? IS NULL THEN ? ELSE status END
	WHERE id = ?`,
		time.Now().UTC(), lastResult, nullableTime(nextRun), nullableTime(nextRun), StatusCompleted, id)
	if err != nil {
		return fmt.Errorf("update task after run: %w", err)
	}
	return nil
}

// DeleteTask removes a task and its run logs; the logs go first so a failure
// cannot orphan them.
func (s *Store) DeleteTask(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM task_run_logs WHERE task_id = ?`, id); err != nil {
		return fmt.Errorf("delete task logs: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM scheduled_tasks WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return tx.Commit()
}

// AppendRunLog appends one execution record. Rows are never updated.
func (s *Store) AppendRunLog(log *TaskRunLog) error {
	if log.RunAt.IsZero() {
		log.RunAt = time.Now().UTC()
	}
	result, err := s.db.Exec(`
	INSERT INTO task_run_logs (task_id, run_at, duration_ms, status, result, error)
	VALUES (?, ?, ?, ?, ?, ?)`,
		log.TaskID, log.RunAt.UTC(), log.DurationMs, log.Status, log.Result, log.Error)
	if err != nil {
		return fmt.Errorf("append run log: %w", err)
	}
	log.ID, _ = result.LastInsertId()
	return nil
}

// GetRunLogs returns the most recent run logs for a task, newest first.
func (s *Store) GetRunLogs(taskID string, limit int) ([]TaskRunLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
	SELECT id, task_id, run_at, duration_ms, status, COALESCE(result,''), COALESCE(error,'')
	FROM task_run_logs WHERE task_id = ? ORDER BY run_at DESC, id DESC LIMIT ?`, taskID, limit)
	if err != nil {
		return nil, fmt.Errorf("get run logs: %w", err)
	}
	defer rows.Close()

	var logs []TaskRunLog
	for rows.Next() {
		var l TaskRunLog
		if err := rows.Scan(&l.ID, &l.TaskID, &l.RunAt, &l.DurationMs, &l.Status, &l.Result, &l.Error); err != nil {
			return nil, fmt.Errorf("scan run log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*ScheduledTask, error) {
	var t ScheduledTask
	var nextRun, lastRun sql.NullTime
	err := row.Scan(&t.ID, &t.ChatID, &t.Prompt, &t.ScheduleType, &t.ScheduleValue,
		&nextRun, &lastRun, &t.LastResult, &t.Status, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	if nextRun.Valid {
		v := nextRun.Time
		t.NextRun = &v
	}
	if lastRun.Valid {
		v := lastRun.Time
		t.LastRun = &v
	}
	return &t, nil
}

func scanTasks(rows *sql.Rows) ([]*ScheduledTask, error) {
	var tasks []*ScheduledTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
