// Package automationtools provides the built-in tools for scheduling
// reminders and persisting long-term facts.
//
// Four tools are exported via [NewTools]:
//   - "schedule_task"        — register a recurring reminder on a cron schedule.
//   - "list_scheduled_tasks" — list registered reminders with next fire times.
//   - "cancel_scheduled_task" — cancel a reminder by task ID.
//   - "remember"             — persist a key/value fact via the shell's memory store.
//
// The scheduling tools drive an [automation.Scheduler] bound at construction;
// remember goes through the [host.MemoryStore] capability. All handlers are
// safe for concurrent use.
package automationtools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chatit-cloud/neuroos/internal/automation"
	"github.com/chatit-cloud/neuroos/internal/engine"
	"github.com/chatit-cloud/neuroos/internal/tools"
	"github.com/chatit-cloud/neuroos/pkg/host"
)

// fireTimeFormat renders next fire times in reminders listings.
const fireTimeFormat = "Mon 2 Jan 15:04"

// scheduleTaskArgs is the decoded input for the "schedule_task" tool.
type scheduleTaskArgs struct {
	// Schedule is a standard five-field cron expression, or a descriptor
	// like @hourly or @every 30m.
	Schedule string `json:"schedule"`

	// Message is the reminder text delivered when the task fires.
	Message string `json:"message"`

	// Name is an optional short label for listings.
	Name string `json:"name,omitempty"`
}

// cancelTaskArgs is the decoded input for the "cancel_scheduled_task" tool.
type cancelTaskArgs struct {
	TaskID string `json:"task_id"`
}

// rememberArgs is the decoded input for the "remember" tool.
type rememberArgs struct {
	// Key names the fact, e.g. "favorite_editor".
	Key string `json:"key"`

	// Value is the fact itself.
	Value string `json:"value"`
}

func makeScheduleTaskHandler(s *automation.Scheduler) engine.Handler {
	return func(_ context.Context, args map[string]any, _ *host.Context) (engine.ToolResult, error) {
		var a scheduleTaskArgs
		if err := tools.DecodeArgs(args, &a); err != nil {
			return engine.ToolResult{}, fmt.Errorf("automationtools: schedule_task: %w", err)
		}
		if a.Schedule == "" {
			return engine.ToolResult{}, errors.New(`automationtools: schedule_task: missing required argument "schedule"`)
		}
		if a.Message == "" {
			return engine.ToolResult{}, errors.New(`automationtools: schedule_task: missing required argument "message"`)
		}

		task, err := s.Add(a.Name, a.Schedule, a.Message)
		if err != nil {
			return engine.ToolResult{}, err
		}
		return engine.ToolResult{
			Success: true,
			Message: fmt.Sprintf("Scheduled %q (%s). It first fires at %s. Task ID: %s.",
				task.Name, task.Schedule, task.NextRun.Format(fireTimeFormat), task.ID),
			Data: task,
		}, nil
	}
}

func makeListTasksHandler(s *automation.Scheduler) engine.Handler {
	return func(_ context.Context, _ map[string]any, _ *host.Context) (engine.ToolResult, error) {
		tasks := s.Tasks()
		if len(tasks) == 0 {
			return engine.ToolResult{
				Success: true,
				Message: "No tasks are scheduled.",
				Data:    tasks,
			}, nil
		}

		var b strings.Builder
		if len(tasks) == 1 {
			b.WriteString("1 task is scheduled:\n")
		} else {
			fmt.Fprintf(&b, "%d tasks are scheduled:\n", len(tasks))
		}
		for _, task := range tasks {
			fmt.Fprintf(&b, "- %s %q (%s) next at %s\n",
				task.ID, task.Name, task.Schedule, task.NextRun.Format(fireTimeFormat))
		}
		return engine.ToolResult{
			Success: true,
			Message: strings.TrimRight(b.String(), "\n"),
			Data:    tasks,
		}, nil
	}
}

func makeCancelTaskHandler(s *automation.Scheduler) engine.Handler {
	return func(_ context.Context, args map[string]any, _ *host.Context) (engine.ToolResult, error) {
		var a cancelTaskArgs
		if err := tools.DecodeArgs(args, &a); err != nil {
			return engine.ToolResult{}, fmt.Errorf("automationtools: cancel_scheduled_task: %w", err)
		}
		if a.TaskID == "" {
			return engine.ToolResult{}, errors.New(`automationtools: cancel_scheduled_task: missing required argument "task_id"`)
		}

		if err := s.Remove(a.TaskID); err != nil {
			return engine.ToolResult{}, err
		}
		return engine.ToolResult{
			Success: true,
			Message: fmt.Sprintf("Cancelled task %s.", a.TaskID),
			Data:    map[string]any{"task_id": a.TaskID},
		}, nil
	}
}

func remember(ctx context.Context, args map[string]any, hc *host.Context) (engine.ToolResult, error) {
	var a rememberArgs
	if err := tools.DecodeArgs(args, &a); err != nil {
		return engine.ToolResult{}, fmt.Errorf("automationtools: remember: %w", err)
	}
	if a.Key == "" {
		return engine.ToolResult{}, errors.New(`automationtools: remember: missing required argument "key"`)
	}
	if a.Value == "" {
		return engine.ToolResult{}, errors.New(`automationtools: remember: missing required argument "value"`)
	}
	if hc.Memory == nil {
		return tools.Unavailable("long-term memory"), nil
	}

	if err := hc.Memory.SaveFact(ctx, a.Key, a.Value); err != nil {
		return engine.ToolResult{}, fmt.Errorf("automationtools: remember: %w", err)
	}
	return engine.ToolResult{
		Success: true,
		Message: fmt.Sprintf("Noted. I'll remember %q.", a.Key),
		Data:    map[string]any{"key": a.Key},
	}, nil
}

// NewTools constructs the automation tool set bound to s.
func NewTools(s *automation.Scheduler) []engine.ToolDefinition {
	return []engine.ToolDefinition{
		{
			Name:        "schedule_task",
			Description: "Schedule a recurring reminder. The message is posted into the conversation every time the schedule fires.",
			Category:    engine.CategoryAutomation,
			Parameters: map[string]engine.ParamSpec{
				"schedule": {
					Type:        engine.TypeString,
					Description: "Cron expression (minute hour day month weekday), or @hourly, @daily, @every 30m.",
				},
				"message": {
					Type:        engine.TypeString,
					Description: "Reminder text to deliver.",
				},
				"name": {
					Type:        engine.TypeString,
					Description: "Short label for listings.",
					Optional:    true,
				},
			},
			Handler: makeScheduleTaskHandler(s),
		},
		{
			Name:        "list_scheduled_tasks",
			Description: "List every scheduled reminder with its ID, schedule, and next fire time.",
			Category:    engine.CategoryAutomation,
			Handler:     makeListTasksHandler(s),
		},
		{
			Name:        "cancel_scheduled_task",
			Description: "Cancel a scheduled reminder.",
			Category:    engine.CategoryAutomation,
			Parameters: map[string]engine.ParamSpec{
				"task_id": {
					Type:        engine.TypeString,
					Description: "ID of the task to cancel, as returned by schedule_task or list_scheduled_tasks.",
				},
			},
			Handler: makeCancelTaskHandler(s),
		},
		{
			Name:        "remember",
			Description: "Save a fact to long-term memory so it survives across sessions.",
			Category:    engine.CategoryAutomation,
			Parameters: map[string]engine.ParamSpec{
				"key": {
					Type:        engine.TypeString,
					Description: "Short identifier for the fact, e.g. favorite_editor.",
				},
				"value": {
					Type:        engine.TypeString,
					Description: "The fact to remember.",
				},
			},
			Handler: remember,
		},
	}
}
