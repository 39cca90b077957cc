package services

import (
	"context"
	"strings"
	"unicode/utf8"

	"dreamflow/internal/models"
	"dreamflow/internal/repositories"
)

const maxSearchLength = 200

// TaskService validates input at the boundary and delegates to a TaskStore.
type TaskService interface {
	CreateTask(ctx context.Context, owner uint, in models.NewTask) (models.Task, error)
	GetTask(ctx context.Context, owner, id uint) (models.Task, error)
	ListTasks(ctx context.Context, owner uint, filter models.TaskFilter) ([]models.Task, error)
	UpdateTask(ctx context.Context, owner, id uint, patch models.TaskPatch) (models.Task, error)
	DeleteTask(ctx context.Context, owner, id uint) (models.Task, error)
	ToggleComplete(ctx context.Context, owner, id uint) (models.Task, error)
	Stats(ctx context.Context, owner uint) (models.TaskStats, error)
}

type TaskServiceImpl struct {
	store repositories.TaskStore
}

func NewTaskService(store repositories.TaskStore) *TaskServiceImpl {
	return &TaskServiceImpl{store: store}
}

func (s *TaskServiceImpl) CreateTask(ctx context.Context, owner uint, in models.NewTask) (models.Task, error) {
	if err := in.Normalize(); err != nil {
		return models.Task{}, err
	}
	return s.store.Create(ctx, owner, in)
}

func (s *TaskServiceImpl) GetTask(ctx context.Context, owner, id uint) (models.Task, error) {
	if err := validateID(id); err != nil {
		return models.Task{}, err
	}
	return s.store.Get(ctx, owner, id)
}

func (s *TaskServiceImpl) ListTasks(ctx context.Context, owner uint, filter models.TaskFilter) ([]models.Task, error) {
	if filter.Status == "" {
		filter.Status = models.TaskStatusAll
	}
	if _, err := models.ParseTaskStatus(string(filter.Status)); err != nil {
		return nil, err
	}
	filter.Search = strings.TrimSpace(filter.Search)
	if utf8.RuneCountInString(filter.Search) > maxSearchLength {
		return nil, models.NewValidationError("search", "must be at most %d characters", maxSearchLength)
	}
	return s.store.List(ctx, owner, filter)
}

func (s *TaskServiceImpl) UpdateTask(ctx context.Context, owner, id uint, patch models.TaskPatch) (models.Task, error) {
	if err := validateID(id); err != nil {
		return models.Task{}, err
	}
	if patch.Empty() {
		return models.Task{}, models.NewValidationError("", "no fields to update")
	}
	if err := patch.Normalize(); err != nil {
		return models.Task{}, err
	}
	return s.store.Update(ctx, owner, id, patch)
}

func (s *TaskServiceImpl) DeleteTask(ctx context.Context, owner, id uint) (models.Task, error) {
	if err := validateID(id); err != nil {
		return models.Task{}, err
	}
	return s.store.Delete(ctx, owner, id)
}

func (s *TaskServiceImpl) ToggleComplete(ctx context.Context, owner, id uint) (models.Task, error) {
	if err := validateID(id); err != nil {
		return models.Task{}, err
	}
	return s.store.ToggleComplete(ctx, owner, id)
}

func (s *TaskServiceImpl) Stats(ctx context.Context, owner uint) (models.TaskStats, error) {
	return s.store.Stats(ctx, owner)
}

func validateID(id uint) error {
	if id == 0 {
		return models.NewValidationError("task_id", "must be a positive integer")
	}
	return nil
}
