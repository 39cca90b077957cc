package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"

	"dreamflow/internal/models"
)

// Tasks is the slice of the task service the assistant may drive. Every call
// is scoped to the owner resolved for the current turn.
type Tasks interface {
	CreateTask(ctx context.Context, owner uint, in models.NewTask) (models.Task, error)
	ListTasks(ctx context.Context, owner uint, filter models.TaskFilter) ([]models.Task, error)
	UpdateTask(ctx context.Context, owner, id uint, patch models.TaskPatch) (models.Task, error)
	DeleteTask(ctx context.Context, owner, id uint) (models.Task, error)
	ToggleComplete(ctx context.Context, owner, id uint) (models.Task, error)
}

// toolCall is one parsed tool invocation. The set of implementations is closed:
// parseToolCall is the only place that maps a tool name to a variant.
type toolCall interface {
	name() string
	run(ctx context.Context, tasks Tasks, owner uint) map[string]any
}

type toolDef struct {
	info  *schema.ToolInfo
	parse func(args map[string]any) (toolCall, error)
}

var toolTable = []toolDef{
	{
		info: &schema.ToolInfo{
			Name: "add_task",
			Desc: "Create a new task with title and optional description",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"title": {
					Type:     schema.String,
					Desc:     "Task title (required, 1-200 characters)",
					Required: true,
				},
				"description": {
					Type: schema.String,
					Desc: "Optional task description",
				},
			}),
		},
		parse: parseAddTask,
	},
	{
		info: &schema.ToolInfo{
			Name: "list_tasks",
			Desc: "Get list of tasks, optionally filtered by status",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"status": {
					Type: schema.String,
					Desc: "Filter tasks by status. Default: all",
					Enum: []string{"all", "pending", "completed"},
				},
			}),
		},
		parse: parseListTasks,
	},
	{
		info: &schema.ToolInfo{
			Name: "complete_task",
			Desc: "Mark a task as complete or toggle completion status",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"task_id": {
					Type:     schema.Integer,
					Desc:     "ID of the task to complete",
					Required: true,
				},
			}),
		},
		parse: parseCompleteTask,
	},
	{
		info: &schema.ToolInfo{
			Name: "update_task",
			Desc: "Update task title and/or description",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"task_id": {
					Type:     schema.Integer,
					Desc:     "ID of the task to update",
					Required: true,
				},
				"title": {
					Type: schema.String,
					Desc: "New task title",
				},
				"description": {
					Type: schema.String,
					Desc: "New task description",
				},
			}),
		},
		parse: parseUpdateTask,
	},
	{
		info: &schema.ToolInfo{
			Name: "delete_task",
			Desc: "Delete a task permanently",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"task_id": {
					Type:     schema.Integer,
					Desc:     "ID of the task to delete",
					Required: true,
				},
			}),
		},
		parse: parseDeleteTask,
	},
}

// ToolInfos lists the tools declared to the completion service.
func ToolInfos() []*schema.ToolInfo {
	infos := make([]*schema.ToolInfo, 0, len(toolTable))
	for _, def := range toolTable {
		infos = append(infos, def.info)
	}
	return infos
}

type unknownToolError struct {
	name string
}

func (e *unknownToolError) Error() string {
	return "Unknown function: " + e.name
}

func parseToolCall(name string, args map[string]any) (toolCall, error) {
	for _, def := range toolTable {
		if def.info.Name == name {
			return def.parse(args)
		}
	}
	return nil, &unknownToolError{name: name}
}

// decodeArguments parses the model's JSON argument string. An empty string is
// treated as no arguments.
func decodeArguments(raw string) (map[string]any, error) {
	args := map[string]any{}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return args, nil
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return map[string]any{}, models.NewValidationError("arguments", "must be a JSON object")
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

// executeTool runs one requested call and always returns a result map; failures
// are reported in the map so the remaining calls still run.
func executeTool(ctx context.Context, tasks Tasks, owner uint, call schema.ToolCall) models.ToolCallRecord {
	name := call.Function.Name
	args, err := decodeArguments(call.Function.Arguments)
	record := models.ToolCallRecord{Function: name, Arguments: args}
	if err != nil {
		record.Result = failure(name, 0, err)
		return record
	}

	tc, err := parseToolCall(name, args)
	if err != nil {
		var unknown *unknownToolError
		if errors.As(err, &unknown) {
			record.Result = map[string]any{
				"success": false,
				"error":   unknown.Error(),
				"message": unknown.Error(),
			}
			return record
		}
		record.Result = failure(name, 0, err)
		return record
	}
	record.Result = tc.run(ctx, tasks, owner)
	return record
}

func failure(function string, taskID uint, err error) map[string]any {
	if errors.Is(err, models.ErrNotFound) {
		msg := fmt.Sprintf("Task %d not found", taskID)
		return map[string]any{"success": false, "error": msg, "message": msg}
	}
	return map[string]any{
		"success": false,
		"error":   err.Error(),
		"message": fmt.Sprintf("Failed to %s: %v", function, err),
	}
}

type addTaskCall struct {
	title       string
	description string
}

func parseAddTask(args map[string]any) (toolCall, error) {
	title, err := stringArg(args, "title")
	if err != nil {
		return nil, err
	}
	if title == nil {
		return nil, models.NewValidationError("title", "is required")
	}
	description, err := stringArg(args, "description")
	if err != nil {
		return nil, err
	}
	call := addTaskCall{title: *title}
	if description != nil {
		call.description = *description
	}
	return call, nil
}

func (addTaskCall) name() string { return "add_task" }

func (c addTaskCall) run(ctx context.Context, tasks Tasks, owner uint) map[string]any {
	task, err := tasks.CreateTask(ctx, owner, models.NewTask{Title: c.title, Description: c.description})
	if err != nil {
		return failure(c.name(), 0, err)
	}
	return map[string]any{
		"success": true,
		"task_id": task.ID,
		"title":   task.Title,
		"message": fmt.Sprintf("Task '%s' created successfully", task.Title),
	}
}

type listTasksCall struct {
	status models.TaskStatus
}

func parseListTasks(args map[string]any) (toolCall, error) {
	raw, err := stringArg(args, "status")
	if err != nil {
		return nil, err
	}
	status := models.TaskStatusAll
	if raw != nil {
		if status, err = models.ParseTaskStatus(*raw); err != nil {
			return nil, models.NewValidationError("status", "must be one of all, pending, completed (got %q)", *raw)
		}
	}
	return listTasksCall{status: status}, nil
}

func (listTasksCall) name() string { return "list_tasks" }

func (c listTasksCall) run(ctx context.Context, tasks Tasks, owner uint) map[string]any {
	list, err := tasks.ListTasks(ctx, owner, models.TaskFilter{Status: c.status})
	if err != nil {
		return failure(c.name(), 0, err)
	}
	items := make([]map[string]any, 0, len(list))
	for _, t := range list {
		items = append(items, map[string]any{
			"id":          t.ID,
			"title":       t.Title,
			"description": t.Description,
			"completed":   t.Completed,
			"created_at":  t.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return map[string]any{
		"success": true,
		"tasks":   items,
		"count":   len(items),
	}
}

type completeTaskCall struct {
	id uint
}

func parseCompleteTask(args map[string]any) (toolCall, error) {
	id, err := taskIDArg(args)
	if err != nil {
		return nil, err
	}
	return completeTaskCall{id: id}, nil
}

func (completeTaskCall) name() string { return "complete_task" }

// run toggles completion, so asking twice reopens the task.
func (c completeTaskCall) run(ctx context.Context, tasks Tasks, owner uint) map[string]any {
	task, err := tasks.ToggleComplete(ctx, owner, c.id)
	if err != nil {
		return failure(c.name(), c.id, err)
	}
	state := "incomplete"
	if task.Completed {
		state = "complete"
	}
	return map[string]any{
		"success":   true,
		"task_id":   task.ID,
		"title":     task.Title,
		"completed": task.Completed,
		"message":   fmt.Sprintf("Task '%s' marked as %s", task.Title, state),
	}
}

type updateTaskCall struct {
	id          uint
	title       *string
	description *string
}

func parseUpdateTask(args map[string]any) (toolCall, error) {
	id, err := taskIDArg(args)
	if err != nil {
		return nil, err
	}
	title, err := stringArg(args, "title")
	if err != nil {
		return nil, err
	}
	description, err := stringArg(args, "description")
	if err != nil {
		return nil, err
	}
	return updateTaskCall{id: id, title: title, description: description}, nil
}

func (updateTaskCall) name() string { return "update_task" }

func (c updateTaskCall) run(ctx context.Context, tasks Tasks, owner uint) map[string]any {
	task, err := tasks.UpdateTask(ctx, owner, c.id, models.TaskPatch{Title: c.title, Description: c.description})
	if err != nil {
		return failure(c.name(), c.id, err)
	}
	return map[string]any{
		"success": true,
		"task_id": task.ID,
		"title":   task.Title,
		"message": fmt.Sprintf("Task '%s' updated successfully", task.Title),
	}
}

type deleteTaskCall struct {
	id uint
}

func parseDeleteTask(args map[string]any) (toolCall, error) {
	id, err := taskIDArg(args)
	if err != nil {
		return nil, err
	}
	return deleteTaskCall{id: id}, nil
}

func (deleteTaskCall) name() string { return "delete_task" }

func (c deleteTaskCall) run(ctx context.Context, tasks Tasks, owner uint) map[string]any {
	task, err := tasks.DeleteTask(ctx, owner, c.id)
	if err != nil {
		return failure(c.name(), c.id, err)
	}
	return map[string]any{
		"success": true,
		"task_id": task.ID,
		"title":   task.Title,
		"message": fmt.Sprintf("Task '%s' deleted successfully", task.Title),
	}
}

func stringArg(args map[string]any, key string) (*string, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, models.NewValidationError(key, "must be a string")
	}
	return &s, nil
}

// taskIDArg accepts a JSON number or a numeric string, since models are not
// consistent about quoting integers.
func taskIDArg(args map[string]any) (uint, error) {
	switch v := args["task_id"].(type) {
	case nil:
		return 0, models.NewValidationError("task_id", "is required")
	case float64:
		if v < 1 || v != math.Trunc(v) || v > math.MaxUint32 {
			return 0, models.NewValidationError("task_id", "must be a positive integer")
		}
		return uint(v), nil
	case string:
		n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 32)
		if err != nil || n == 0 {
			return 0, models.NewValidationError("task_id", "must be a positive integer")
		}
		return uint(n), nil
	default:
		return 0, models.NewValidationError("task_id", "must be a positive integer")
	}
}
