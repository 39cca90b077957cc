package repositories

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"dreamflow/internal/models"

	"gorm.io/datatypes"
)

// MemoryTaskStore keeps tasks in process memory. Ids come from a counter and
// are never reused after a delete.
type MemoryTaskStore struct {
	mu     sync.RWMutex
	tasks  map[uint]models.Task
	nextID uint
	now    func() time.Time
}

func NewMemoryTaskStore() *MemoryTaskStore {
	return &MemoryTaskStore{
		tasks:  make(map[uint]models.Task),
		nextID: 1,
		now:    time.Now,
	}
}

func (s *MemoryTaskStore) Create(_ context.Context, owner uint, in models.NewTask) (models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task := in.ToTask(owner)
	task.ID = s.nextID
	task.Tags = cloneTags(task.Tags)
	task.CreatedAt = s.now()
	task.UpdatedAt = task.CreatedAt
	s.nextID++

	s.tasks[task.ID] = task
	return copyTask(task), nil
}

func (s *MemoryTaskStore) Get(_ context.Context, owner, id uint) (models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, err := s.owned(owner, id)
	if err != nil {
		return models.Task{}, err
	}
	return copyTask(task), nil
}

func (s *MemoryTaskStore) List(_ context.Context, owner uint, filter models.TaskFilter) ([]models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	out := []models.Task{}
	for _, task := range s.tasks {
		if task.UserID != owner {
			continue
		}
		if filter.Status == models.TaskStatusActive && task.Completed {
			continue
		}
		if filter.Status == models.TaskStatusCompleted && !task.Completed {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(task.Title), search) {
			continue
		}
		out = append(out, copyTask(task))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryTaskStore) Update(_ context.Context, owner, id uint, patch models.TaskPatch) (models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, err := s.owned(owner, id)
	if err != nil {
		return models.Task{}, err
	}
	patch.Apply(&task)
	task.Tags = cloneTags(task.Tags)
	task.UpdatedAt = s.now()
	s.tasks[id] = task
	return copyTask(task), nil
}

func (s *MemoryTaskStore) Delete(_ context.Context, owner, id uint) (models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, err := s.owned(owner, id)
	if err != nil {
		return models.Task{}, err
	}
	delete(s.tasks, id)
	return task, nil
}

func (s *MemoryTaskStore) ToggleComplete(_ context.Context, owner, id uint) (models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, err := s.owned(owner, id)
	if err != nil {
		return models.Task{}, err
	}
	task.Completed = !task.Completed
	task.UpdatedAt = s.now()
	s.tasks[id] = task
	return copyTask(task), nil
}

func (s *MemoryTaskStore) Stats(_ context.Context, owner uint) (models.TaskStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats models.TaskStats
	for _, task := range s.tasks {
		if task.UserID != owner {
			continue
		}
		stats.Total++
		if task.Completed {
			stats.Completed++
		} else {
			stats.Active++
		}
		stats.ByPriority.Add(task.Priority, 1)
	}
	return stats, nil
}

func (s *MemoryTaskStore) owned(owner, id uint) (models.Task, error) {
	task, ok := s.tasks[id]
	if !ok || task.UserID != owner {
		return models.Task{}, fmt.Errorf("task %d: %w", id, models.ErrNotFound)
	}
	return task, nil
}

func copyTask(t models.Task) models.Task {
	t.Tags = cloneTags(t.Tags)
	if t.DueDate != nil {
		due := *t.DueDate
		t.DueDate = &due
	}
	return t
}

func cloneTags(tags datatypes.JSONSlice[string]) datatypes.JSONSlice[string] {
	out := make([]string, len(tags))
	copy(out, tags)
	return datatypes.NewJSONSlice(out)
}
