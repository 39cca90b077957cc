package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"dreamflow/internal/handlers"
	"dreamflow/internal/middleware"
	"dreamflow/internal/models"
	"dreamflow/internal/repositories"
	"dreamflow/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Detail  string          `json:"detail"`
}

// withTestUser stands in for the bearer middleware: the caller id comes from X-Test-User.
func withTestUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if raw := c.GetHeader("X-Test-User"); raw != "" {
			id, _ := strconv.ParseUint(raw, 10, 32)
			c.Set(middleware.UserIDKey, uint(id))
		}
		c.Next()
	}
}

func setupTaskRouter(taskService services.TaskService) *gin.Engine {
	gin.SetMode(gin.TestMode)

	handler := handlers.NewTaskHandler(taskService, zap.NewNop())
	router := gin.New()
	router.Use(withTestUser())
	router.GET("/api/tasks", handler.GetTasks)
	router.POST("/api/tasks", handler.CreateTask)
	router.GET("/api/tasks/stats", handler.GetStats)
	router.GET("/api/tasks/:id", handler.GetTask)
	router.PUT("/api/tasks/:id", handler.UpdateTask)
	router.DELETE("/api/tasks/:id", handler.DeleteTask)
	router.PATCH("/api/tasks/:id/toggle-complete", handler.ToggleComplete)
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, user uint, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req, _ := http.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if user != 0 {
		req.Header.Set("X-Test-User", strconv.FormatUint(uint64(user), 10))
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w, env
}

func decodeTask(t *testing.T, raw json.RawMessage) models.Task {
	t.Helper()
	var task models.Task
	require.NoError(t, json.Unmarshal(raw, &task))
	return task
}

func TestCreateTask(t *testing.T) {
	router := setupTaskRouter(services.NewTaskService(repositories.NewMemoryTaskStore()))

	w, env := doJSON(t, router, "POST", "/api/tasks", 1, map[string]any{
		"title":    "Test Task",
		"priority": "high",
		"tags":     []string{"work"},
	})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, env.Success)
	task := decodeTask(t, env.Data)
	assert.Equal(t, "Test Task", task.Title)
	assert.Equal(t, models.PriorityHigh, task.Priority)
	assert.Equal(t, uint(1), task.UserID)
}

func TestCreateTaskValidation(t *testing.T) {
	store := repositories.NewMemoryTaskStore()
	router := setupTaskRouter(services.NewTaskService(store))

	tests := []struct {
		name string
		body any
	}{
		{"invalid json", "invalid json"},
		{"empty title", map[string]any{"title": "   "}},
		{"invalid priority", map[string]any{"title": "x", "priority": "urgent"}},
		{"upper-case priority", map[string]any{"title": "x", "priority": "HIGH"}},
		{"padded priority", map[string]any{"title": "x", "priority": " low"}},
		{"bad due date", map[string]any{"title": "x", "due_date": "tomorrow"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := doJSON(t, router, "POST", "/api/tasks", 1, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.NotEmpty(t, env.Detail)
		})
	}

	tasks, err := store.List(context.Background(), 1, models.TaskFilter{Status: models.TaskStatusAll})
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestTaskRoutesRequireUser(t *testing.T) {
	router := setupTaskRouter(services.NewTaskService(repositories.NewMemoryTaskStore()))

	w, _ := doJSON(t, router, "GET", "/api/tasks", 0, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetTasksFilter(t *testing.T) {
	router := setupTaskRouter(services.NewTaskService(repositories.NewMemoryTaskStore()))

	for _, title := range []string{"Buy milk", "Buy bread", "Call mom"} {
		w, _ := doJSON(t, router, "POST", "/api/tasks", 1, map[string]any{"title": title})
		require.Equal(t, http.StatusCreated, w.Code)
	}
	w, _ := doJSON(t, router, "PATCH", "/api/tasks/2/toggle-complete", 1, nil)
	require.Equal(t, http.StatusOK, w.Code)

	tests := []struct {
		query string
		want  int
	}{
		{"", 3},
		{"?filter=all", 3},
		{"?filter=active", 2},
		{"?filter=completed", 1},
		{"?search=buy", 2},
		{"?filter=active&search=BUY", 1},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w, env := doJSON(t, router, "GET", "/api/tasks"+tt.query, 1, nil)
			require.Equal(t, http.StatusOK, w.Code)

			var data struct {
				Tasks []models.Task `json:"tasks"`
				Total int           `json:"total"`
				Page  int           `json:"page"`
				Limit int           `json:"limit"`
			}
			require.NoError(t, json.Unmarshal(env.Data, &data))
			assert.Equal(t, tt.want, data.Total)
			assert.Len(t, data.Tasks, tt.want)
			assert.Equal(t, 1, data.Page)
			assert.Equal(t, tt.want, data.Limit)
		})
	}

	w, _ = doJSON(t, router, "GET", "/api/tasks?filter=someday", 1, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTaskOwnershipIsolation(t *testing.T) {
	router := setupTaskRouter(services.NewTaskService(repositories.NewMemoryTaskStore()))

	w, _ := doJSON(t, router, "POST", "/api/tasks", 1, map[string]any{"title": "Alice's"})
	require.Equal(t, http.StatusCreated, w.Code)

	for _, req := range []struct{ method, path string }{
		{"GET", "/api/tasks/1"},
		{"PUT", "/api/tasks/1"},
		{"DELETE", "/api/tasks/1"},
		{"PATCH", "/api/tasks/1/toggle-complete"},
	} {
		w, env := doJSON(t, router, req.method, req.path, 2, map[string]any{"title": "hijack"})
		assert.Equal(t, http.StatusNotFound, w.Code, req.method)
		assert.Equal(t, "Task not found", env.Detail)
	}

	w, env := doJSON(t, router, "GET", "/api/tasks/1", 1, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Alice's", decodeTask(t, env.Data).Title)
}

func TestUpdateAndDeleteTask(t *testing.T) {
	router := setupTaskRouter(services.NewTaskService(repositories.NewMemoryTaskStore()))

	doJSON(t, router, "POST", "/api/tasks", 1, map[string]any{"title": "Draft", "description": "keep me"})

	w, env := doJSON(t, router, "PUT", "/api/tasks/1", 1, map[string]any{"title": "Final", "priority": "low"})
	require.Equal(t, http.StatusOK, w.Code)
	task := decodeTask(t, env.Data)
	assert.Equal(t, "Final", task.Title)
	assert.Equal(t, "keep me", task.Description)
	assert.Equal(t, models.PriorityLow, task.Priority)

	w, _ = doJSON(t, router, "PUT", "/api/tasks/1", 1, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = doJSON(t, router, "GET", "/api/tasks/abc", 1, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = doJSON(t, router, "DELETE", "/api/tasks/1", 1, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = doJSON(t, router, "GET", "/api/tasks/1", 1, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetStats(t *testing.T) {
	router := setupTaskRouter(services.NewTaskService(repositories.NewMemoryTaskStore()))

	doJSON(t, router, "POST", "/api/tasks", 1, map[string]any{"title": "a", "priority": "high"})
	doJSON(t, router, "POST", "/api/tasks", 1, map[string]any{"title": "b"})
	doJSON(t, router, "PATCH", "/api/tasks/1/toggle-complete", 1, nil)

	w, env := doJSON(t, router, "GET", "/api/tasks/stats", 1, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var stats models.TaskStats
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, models.TaskStats{
		Total:      2,
		Completed:  1,
		Active:     1,
		ByPriority: models.PriorityCounts{High: 1, Medium: 1},
	}, stats)
}

type failingTaskService struct {
	services.TaskService
}

func (failingTaskService) ListTasks(context.Context, uint, models.TaskFilter) ([]models.Task, error) {
	return nil, errors.New("connection refused")
}

func TestGetTasksInternalError(t *testing.T) {
	router := setupTaskRouter(failingTaskService{})

	w, env := doJSON(t, router, "GET", "/api/tasks", 1, nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal server error", env.Detail)
}

func serve(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}
