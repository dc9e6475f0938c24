package cli

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/RelayClaw/RelayClaw/internal/config"
	"github.com/RelayClaw/RelayClaw/internal/taskstore"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Inspect scheduled tasks",
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all scheduled tasks",
	RunE:  runTaskList,
}

var taskLogsCmd = &cobra.Command{
	Use:   "logs <task-id>",
	Short: "Show recent run logs for a task",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskLogs,
}

var taskLogsLimit int

func init() {
	taskLogsCmd.Flags().IntVar(&taskLogsLimit, "limit", 20, "Maximum log rows to show")
	taskCmd.AddCommand(taskListCmd, taskLogsCmd)
}

func openTaskStore() (*taskstore.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return taskstore.New(cfg.Paths.TaskDB)
}

func runTaskList(cmd *cobra.Command, args []string) error {
	store, err := openTaskStore()
	if err != nil {
		return err
	}
	defer store.Close()

	tasks, err := store.GetAllTasks()
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		fmt.Println("No scheduled tasks.")
		return nil
	}

	for _, t := range tasks {
		fmt.Printf("%s  %s  %s\n",
			color.CyanString(t.ID),
			statusColor(t.Status),
			color.WhiteString("%s (%s)", t.ScheduleType, t.ScheduleValue))
		fmt.Printf("  chat: %s\n", t.ChatID)
		fmt.Printf("  prompt: %s\n", t.Prompt)
		fmt.Printf("  next run: %s   last run: %s\n", formatCLITime(t.NextRun), formatCLITime(t.LastRun))
		if t.LastResult != "" {
			fmt.Printf("  last result: %s\n", t.LastResult)
		}
		fmt.Println()
	}
	return nil
}

func runTaskLogs(cmd *cobra.Command, args []string) error {
	store, err := openTaskStore()
	if err != nil {
		return err
	}
	defer store.Close()

	logs, err := store.GetRunLogs(args[0], taskLogsLimit)
	if err != nil {
		return err
	}
	if len(logs) == 0 {
		fmt.Println("No runs recorded.")
		return nil
	}

	for _, l := range logs {
		line := fmt.Sprintf("%s  %s  %dms", l.RunAt.Local().Format(time.RFC3339), l.Status, l.DurationMs)
		if l.Status == taskstore.RunError {
			fmt.Println(color.RedString(line), "-", l.Error)
		} else {
			fmt.Println(color.GreenString(line))
			if l.Result != "" {
				fmt.Printf("  %s\n", l.Result)
			}
		}
	}
	return nil
}

func statusColor(status string) string {
	switch status {
	case taskstore.StatusActive:
		return color.GreenString(status)
	case taskstore.StatusPaused:
		return color.YellowString(status)
	default:
		return color.HiBlackString(status)
	}
}

func formatCLITime(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
