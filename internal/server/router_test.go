package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm/logger"

	"dreamflow/internal/chat"
	"dreamflow/internal/config"
	"dreamflow/internal/database"
	"dreamflow/internal/middleware"
	"dreamflow/internal/models"
	"dreamflow/internal/monitoring"
	"dreamflow/internal/repositories"
	"dreamflow/internal/services"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Detail  string          `json:"detail"`
}

// addThenReply asks for one add_task call, then answers with plain text.
type addThenReply struct {
	mu    sync.Mutex
	calls int
}

func (c *addThenReply) Complete(_ context.Context, messages []*schema.Message) (*schema.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if messages[len(messages)-1].Role == schema.Tool {
		return schema.AssistantMessage("Done, I added it to your list.", nil), nil
	}
	return schema.AssistantMessage("", []schema.ToolCall{{
		ID:       fmt.Sprintf("call_%d", c.calls),
		Type:     "function",
		Function: schema.FunctionCall{Name: "add_task", Arguments: `{"title":"Call mom"}`},
	}}), nil
}

type testServer struct {
	router *gin.Engine
	tasks  services.TaskService
}

func newTestServer(t *testing.T, limiter *middleware.RateLimiter) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	pool, err := database.NewDatabasePool(&database.PoolConfig{Driver: "sqlite", DSN: ":memory:", LogLevel: logger.Silent}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })
	require.NoError(t, database.Migrate(pool.DB))

	cfg := &config.Config{
		Server: config.ServerConfig{Environment: "test", AllowedOrigins: []string{"http://localhost:3000"}},
	}
	log := zap.NewNop()

	users := repositories.NewUserRepository(pool.DB)
	auth := services.NewAuthService(users, repositories.NewRefreshTokenRepository(pool.DB), services.AuthConfig{
		Secret:          "router-test-secret",
		Issuer:          "dreamflow-test",
		AccessTokenTTL:  time.Minute,
		RefreshTokenTTL: time.Hour,
	})
	tasks := services.NewTaskService(repositories.NewTaskRepository(pool.DB))
	conversations := repositories.NewConversationRepository(pool.DB)

	health := monitoring.NewHealthChecker(time.Second)
	health.Register("database", pool.Health)

	router := NewRouter(RouterParams{
		Config:        cfg,
		Logger:        log,
		Auth:          auth,
		Register:      services.NewRegisterService(users, bcrypt.MinCost),
		Tasks:         tasks,
		Chat:          chat.NewService(tasks, conversations, &addThenReply{}, chat.DefaultHistoryWindow, log),
		Conversations: conversations,
		Metrics:       monitoring.NewMetrics(),
		Health:        health,
		RateLimiter:   limiter,
	})
	return &testServer{router: router, tasks: tasks}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &env)
	}
	return w, env
}

// signUp registers and logs in a user, returning their id and access token.
func (s *testServer) signUp(t *testing.T, username string) (uint, string) {
	t.Helper()
	email := username + "@example.com"

	w, env := s.do(t, http.MethodPost, "/api/register", "", map[string]any{
		"email": email, "username": username, "password": "correct-horse",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var user models.User
	require.NoError(t, json.Unmarshal(env.Data, &user))

	w, _ = s.do(t, http.MethodPost, "/api/login", "", map[string]any{"email": email, "password": "correct-horse"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var tokens services.TokenPair
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tokens))
	return user.ID, tokens.AccessToken
}

type taskList struct {
	Tasks []models.Task `json:"tasks"`
	Total int           `json:"total"`
}

func (s *testServer) listTasks(t *testing.T, token, filter string) taskList {
	t.Helper()
	w, env := s.do(t, http.MethodGet, "/api/tasks?filter="+filter, token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var list taskList
	require.NoError(t, json.Unmarshal(env.Data, &list))
	return list
}

func TestTaskLifecycle(t *testing.T) {
	s := newTestServer(t, nil)
	_, token := s.signUp(t, "alice")

	w, env := s.do(t, http.MethodPost, "/api/tasks", token, map[string]any{"title": "Buy milk", "priority": "low"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var task models.Task
	require.NoError(t, json.Unmarshal(env.Data, &task))
	assert.Equal(t, "Buy milk", task.Title)
	assert.Equal(t, models.PriorityLow, task.Priority)
	assert.False(t, task.Completed)

	active := s.listTasks(t, token, "active")
	require.Equal(t, 1, active.Total)
	assert.Equal(t, task.ID, active.Tasks[0].ID)

	w, env = s.do(t, http.MethodPatch, fmt.Sprintf("/api/tasks/%d/toggle-complete", task.ID), token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &task))
	assert.True(t, task.Completed)

	assert.Equal(t, 1, s.listTasks(t, token, "completed").Total)
	assert.Equal(t, 0, s.listTasks(t, token, "active").Total)

	w, _ = s.do(t, http.MethodDelete, fmt.Sprintf("/api/tasks/%d", task.ID), token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, env = s.do(t, http.MethodGet, "/api/tasks/stats", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats models.TaskStats
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Zero(t, stats.Total)

	w, env = s.do(t, http.MethodGet, fmt.Sprintf("/api/tasks/%d", task.ID), token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Task not found", env.Detail)
}

func TestTasksAreIsolatedBetweenUsers(t *testing.T) {
	s := newTestServer(t, nil)
	_, alice := s.signUp(t, "alice")
	_, bob := s.signUp(t, "bob")

	w, env := s.do(t, http.MethodPost, "/api/tasks", alice, map[string]any{"title": "Alice only"})
	require.Equal(t, http.StatusCreated, w.Code)
	var task models.Task
	require.NoError(t, json.Unmarshal(env.Data, &task))

	path := fmt.Sprintf("/api/tasks/%d", task.ID)
	w, _ = s.do(t, http.MethodGet, path, bob, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = s.do(t, http.MethodPut, path, bob, map[string]any{"title": "stolen"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = s.do(t, http.MethodDelete, path, bob, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	assert.Equal(t, 0, s.listTasks(t, bob, "all").Total)
	assert.Equal(t, 1, s.listTasks(t, alice, "all").Total)
}

func TestInvalidPriorityWritesNothing(t *testing.T) {
	s := newTestServer(t, nil)
	_, token := s.signUp(t, "alice")

	w, _ := s.do(t, http.MethodPost, "/api/tasks", token, map[string]any{"title": "Odd", "priority": "urgent"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 0, s.listTasks(t, token, "all").Total)
}

func TestChatEndpoints(t *testing.T) {
	s := newTestServer(t, nil)
	userID, token := s.signUp(t, "alice")
	base := fmt.Sprintf("/api/%d", userID)

	w, env := s.do(t, http.MethodPost, base+"/chat", token, map[string]any{"message": "remind me to call mom"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var turn chat.TurnResult
	require.NoError(t, json.Unmarshal(env.Data, &turn))
	assert.Equal(t, "Done, I added it to your list.", turn.Response)
	require.Len(t, turn.ToolCalls, 1)
	assert.Equal(t, "add_task", turn.ToolCalls[0].Function)

	list := s.listTasks(t, token, "all")
	require.Equal(t, 1, list.Total)
	assert.Equal(t, "Call mom", list.Tasks[0].Title)

	w, env = s.do(t, http.MethodGet, base+"/conversations", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var conversations struct {
		Conversations []models.Conversation `json:"conversations"`
		Total         int                   `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &conversations))
	require.Equal(t, 1, conversations.Total)
	assert.Equal(t, turn.ConversationID, conversations.Conversations[0].ID)

	w, env = s.do(t, http.MethodGet, fmt.Sprintf("%s/conversations/%d/messages", base, turn.ConversationID), token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var messages struct {
		Messages []models.MessageView `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &messages))
	require.Len(t, messages.Messages, 2)
	assert.Equal(t, models.RoleUser, messages.Messages[0].Role)
	assert.Len(t, messages.Messages[1].ToolCalls, 1)

	w, env = s.do(t, http.MethodPost, fmt.Sprintf("/api/%d/chat", userID+1), token, map[string]any{"message": "hi"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.NotEmpty(t, env.Detail)

	w, _ = s.do(t, http.MethodPost, base+"/chat", "", map[string]any{"message": "hi"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = s.do(t, http.MethodPost, base+"/chat", token, map[string]any{"message": "hi", "conversation_id": 999})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMonitoringRoutes(t *testing.T) {
	s := newTestServer(t, nil)

	w, _ := s.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"database"`)

	w, _ = s.do(t, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"application"`)
}

func TestRateLimitedRoutes(t *testing.T) {
	s := newTestServer(t, middleware.NewRateLimiter(60, 2, time.Minute))

	body := map[string]any{"email": "nobody@example.com", "password": "whatever"}
	for i := 0; i < 2; i++ {
		w, _ := s.do(t, http.MethodPost, "/api/login", "", body)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	}
	w, env := s.do(t, http.MethodPost, "/api/login", "", body)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "rate limit exceeded", env.Detail)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestModuleGraph(t *testing.T) {
	require.NoError(t, fx.ValidateApp(Module, fx.NopLogger))
}
