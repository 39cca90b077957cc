package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"dreamflow/internal/models"
	"dreamflow/internal/services"
)

type TaskHandler struct {
	taskService services.TaskService
	log         *zap.Logger
}

func NewTaskHandler(taskService services.TaskService, log *zap.Logger) *TaskHandler {
	return &TaskHandler{taskService: taskService, log: log}
}

// GetTasks lists the caller's tasks, optionally filtered by ?filter= and ?search=.
func (h *TaskHandler) GetTasks(c *gin.Context) {
	owner, ok := requireUser(c)
	if !ok {
		return
	}

	status, err := models.ParseTaskStatus(c.Query("filter"))
	if err != nil {
		handleServiceError(c, h.log, err, "Task")
		return
	}

	tasks, err := h.taskService.ListTasks(c.Request.Context(), owner, models.TaskFilter{
		Status: status,
		Search: c.Query("search"),
	})
	if err != nil {
		handleServiceError(c, h.log, err, "Task")
		return
	}
	// Listings are unpaginated: a single page holding every match.
	respondSuccess(c, http.StatusOK, gin.H{
		"tasks": tasks,
		"total": len(tasks),
		"page":  1,
		"limit": len(tasks),
	}, "")
}

func (h *TaskHandler) CreateTask(c *gin.Context) {
	owner, ok := requireUser(c)
	if !ok {
		return
	}

	var input models.NewTask
	if err := c.ShouldBindJSON(&input); err != nil {
		bindError(c, err)
		return
	}

	task, err := h.taskService.CreateTask(c.Request.Context(), owner, input)
	if err != nil {
		handleServiceError(c, h.log, err, "Task")
		return
	}
	respondSuccess(c, http.StatusCreated, task, "Task created successfully")
}

func (h *TaskHandler) GetTask(c *gin.Context) {
	owner, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	task, err := h.taskService.GetTask(c.Request.Context(), owner, id)
	if err != nil {
		handleServiceError(c, h.log, err, "Task")
		return
	}
	respondSuccess(c, http.StatusOK, task, "")
}

func (h *TaskHandler) UpdateTask(c *gin.Context) {
	owner, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var patch models.TaskPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		bindError(c, err)
		return
	}

	task, err := h.taskService.UpdateTask(c.Request.Context(), owner, id, patch)
	if err != nil {
		handleServiceError(c, h.log, err, "Task")
		return
	}
	respondSuccess(c, http.StatusOK, task, "Task updated successfully")
}

func (h *TaskHandler) DeleteTask(c *gin.Context) {
	owner, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	task, err := h.taskService.DeleteTask(c.Request.Context(), owner, id)
	if err != nil {
		handleServiceError(c, h.log, err, "Task")
		return
	}
	respondSuccess(c, http.StatusOK, task, "Task deleted successfully")
}

func (h *TaskHandler) ToggleComplete(c *gin.Context) {
	owner, ok := requireUser(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	task, err := h.taskService.ToggleComplete(c.Request.Context(), owner, id)
	if err != nil {
		handleServiceError(c, h.log, err, "Task")
		return
	}
	respondSuccess(c, http.StatusOK, task, "")
}

func (h *TaskHandler) GetStats(c *gin.Context) {
	owner, ok := requireUser(c)
	if !ok {
		return
	}

	stats, err := h.taskService.Stats(c.Request.Context(), owner)
	if err != nil {
		handleServiceError(c, h.log, err, "Task")
		return
	}
	respondSuccess(c, http.StatusOK, stats, "")
}
