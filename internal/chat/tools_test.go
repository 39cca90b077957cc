package chat

import (
	"context"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dreamflow/internal/models"
	"dreamflow/internal/repositories"
	"dreamflow/internal/services"
)

func TestToolInfos_DeclaresTheFiveTools(t *testing.T) {
	var names []string
	for _, info := range ToolInfos() {
		names = append(names, info.Name)
		assert.NotEmpty(t, info.Desc)
	}
	assert.Equal(t, []string{"add_task", "list_tasks", "complete_task", "update_task", "delete_task"}, names)
}

func TestParseToolCall(t *testing.T) {
	tests := []struct {
		name    string
		tool    string
		args    map[string]any
		want    toolCall
		wantErr bool
	}{
		{"add with description", "add_task", map[string]any{"title": "Buy milk", "description": "2L"}, addTaskCall{title: "Buy milk", description: "2L"}, false},
		{"add without title", "add_task", map[string]any{}, nil, true},
		{"add with numeric title", "add_task", map[string]any{"title": 5.0}, nil, true},
		{"list defaults to all", "list_tasks", map[string]any{}, listTasksCall{status: models.TaskStatusAll}, false},
		{"list pending means active", "list_tasks", map[string]any{"status": "pending"}, listTasksCall{status: models.TaskStatusActive}, false},
		{"list bad status", "list_tasks", map[string]any{"status": "someday"}, nil, true},
		{"complete numeric id", "complete_task", map[string]any{"task_id": 3.0}, completeTaskCall{id: 3}, false},
		{"complete string id", "complete_task", map[string]any{"task_id": " 7 "}, completeTaskCall{id: 7}, false},
		{"complete fractional id", "complete_task", map[string]any{"task_id": 1.5}, nil, true},
		{"complete zero id", "complete_task", map[string]any{"task_id": 0.0}, nil, true},
		{"delete missing id", "delete_task", map[string]any{}, nil, true},
		{"unknown tool", "launch_rocket", map[string]any{}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseToolCall(tt.tool, tt.args)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExecuteTool_AgainstStore(t *testing.T) {
	tasks := services.NewTaskService(repositories.NewMemoryTaskStore())
	ctx := context.Background()
	call := func(name, args string) map[string]any {
		return executeTool(ctx, tasks, 1, schema.ToolCall{ID: "x", Function: schema.FunctionCall{Name: name, Arguments: args}}).Result
	}

	res := call("add_task", `{"title":"Write report"}`)
	require.Equal(t, true, res["success"])
	id := res["task_id"].(uint)

	res = call("complete_task", `{"task_id":1}`)
	assert.Equal(t, true, res["completed"])
	assert.Equal(t, "Task 'Write report' marked as complete", res["message"])

	res = call("complete_task", `{"task_id":1}`)
	assert.Equal(t, false, res["completed"])
	assert.Equal(t, "Task 'Write report' marked as incomplete", res["message"])

	res = call("update_task", `{"task_id":1,"title":"Write final report"}`)
	assert.Equal(t, "Task 'Write final report' updated successfully", res["message"])

	res = call("update_task", `{"task_id":1}`)
	assert.Equal(t, false, res["success"])
	assert.Contains(t, res["message"], "Failed to update_task")

	res = call("list_tasks", `{"status":"pending"}`)
	assert.Equal(t, 1, res["count"])

	res = call("list_tasks", `{"status":"completed"}`)
	assert.Equal(t, 0, res["count"])

	res = call("add_task", `not json`)
	assert.Equal(t, false, res["success"])

	res = call("delete_task", `{"task_id":1}`)
	assert.Equal(t, "Task 'Write final report' deleted successfully", res["message"])
	assert.Equal(t, id, res["task_id"])

	res = call("delete_task", `{"task_id":1}`)
	assert.Equal(t, false, res["success"])
	assert.Equal(t, "Task 1 not found", res["error"])
}

func TestSummarize(t *testing.T) {
	records := []models.ToolCallRecord{
		{Result: map[string]any{"success": true, "message": "Task 'A' created successfully"}},
		{Result: map[string]any{"success": true, "tasks": []any{}, "count": 2}},
	}
	assert.Equal(t, "Task 'A' created successfully\nYou have 2 tasks.", summarize(records))
	assert.Equal(t, ApologyReply, summarize(nil))
}
