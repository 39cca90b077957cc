package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"dreamflow/internal/cache"
	"dreamflow/internal/models"

	"go.uber.org/zap"
)

type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeletePattern(ctx context.Context, pattern string) error
}

const (
	taskTTL  = 5 * time.Minute
	listTTL  = 5 * time.Minute
	statsTTL = 5 * time.Minute
)

var listStatuses = []models.TaskStatus{models.TaskStatusAll, models.TaskStatusActive, models.TaskStatusCompleted}

// CachedTaskService caches reads per owner and deletes the affected keys on
// every mutation. Cache failures fall through to the wrapped service.
//
// An owner whose invalidation failed is marked stale: their reads bypass the
// cache until their whole key space has been flushed successfully.
type CachedTaskService struct {
	taskService TaskService
	cache       Cache
	log         *zap.Logger

	mu    sync.Mutex
	stale map[uint]struct{}
}

func NewCachedTaskService(taskService TaskService, c Cache, log *zap.Logger) *CachedTaskService {
	if log == nil {
		log = zap.NewNop()
	}
	return &CachedTaskService{
		taskService: taskService,
		cache:       c,
		log:         log,
		stale:       make(map[uint]struct{}),
	}
}

func ownerPrefix(owner uint) string {
	return fmt.Sprintf("tasks:%d:", owner)
}

func taskKey(owner, id uint) string {
	return fmt.Sprintf("%stask:%d", ownerPrefix(owner), id)
}

func statsKey(owner uint) string {
	return ownerPrefix(owner) + "stats"
}

func listKey(owner uint, status models.TaskStatus) string {
	return fmt.Sprintf("%slist:%s", ownerPrefix(owner), status)
}

func (s *CachedTaskService) CreateTask(ctx context.Context, owner uint, in models.NewTask) (models.Task, error) {
	task, err := s.taskService.CreateTask(ctx, owner, in)
	if err != nil {
		return task, err
	}
	s.invalidate(ctx, owner, 0)
	return task, nil
}

func (s *CachedTaskService) GetTask(ctx context.Context, owner, id uint) (models.Task, error) {
	key := taskKey(owner, id)

	var cached models.Task
	if s.lookup(ctx, owner, key, &cached) {
		return cached, nil
	}

	task, err := s.taskService.GetTask(ctx, owner, id)
	if err != nil {
		return task, err
	}
	s.store(ctx, owner, key, task, taskTTL)
	return task, nil
}

// ListTasks caches unsearched listings only; search results are always fresh.
func (s *CachedTaskService) ListTasks(ctx context.Context, owner uint, filter models.TaskFilter) ([]models.Task, error) {
	if filter.Search != "" {
		return s.taskService.ListTasks(ctx, owner, filter)
	}
	if filter.Status == "" {
		filter.Status = models.TaskStatusAll
	}
	key := listKey(owner, filter.Status)

	var cached []models.Task
	if s.lookup(ctx, owner, key, &cached) {
		return cached, nil
	}

	tasks, err := s.taskService.ListTasks(ctx, owner, filter)
	if err != nil {
		return tasks, err
	}
	s.store(ctx, owner, key, tasks, listTTL)
	return tasks, nil
}

func (s *CachedTaskService) UpdateTask(ctx context.Context, owner, id uint, patch models.TaskPatch) (models.Task, error) {
	task, err := s.taskService.UpdateTask(ctx, owner, id, patch)
	if err != nil {
		return task, err
	}
	s.invalidate(ctx, owner, id)
	return task, nil
}

func (s *CachedTaskService) DeleteTask(ctx context.Context, owner, id uint) (models.Task, error) {
	task, err := s.taskService.DeleteTask(ctx, owner, id)
	if err != nil {
		return task, err
	}
	s.invalidate(ctx, owner, id)
	return task, nil
}

func (s *CachedTaskService) ToggleComplete(ctx context.Context, owner, id uint) (models.Task, error) {
	task, err := s.taskService.ToggleComplete(ctx, owner, id)
	if err != nil {
		return task, err
	}
	s.invalidate(ctx, owner, id)
	return task, nil
}

func (s *CachedTaskService) Stats(ctx context.Context, owner uint) (models.TaskStats, error) {
	key := statsKey(owner)

	var cached models.TaskStats
	if s.lookup(ctx, owner, key, &cached) {
		return cached, nil
	}

	stats, err := s.taskService.Stats(ctx, owner)
	if err != nil {
		return stats, err
	}
	s.store(ctx, owner, key, stats, statsTTL)
	return stats, nil
}

func (s *CachedTaskService) lookup(ctx context.Context, owner uint, key string, dest interface{}) bool {
	if !s.usable(ctx, owner) {
		return false
	}
	err := s.cache.Get(ctx, key, dest)
	if err == nil {
		return true
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		s.logCacheError("cache read failed", key, err)
	}
	return false
}

func (s *CachedTaskService) store(ctx context.Context, owner uint, key string, value interface{}, ttl time.Duration) {
	if !s.usable(ctx, owner) {
		return
	}
	if err := s.cache.Set(ctx, key, value, ttl); err != nil {
		s.logCacheError("cache write failed", key, err)
	}
}

// invalidate deletes the owner's listings and stats, plus the task itself
// when id is non-zero.
func (s *CachedTaskService) invalidate(ctx context.Context, owner, id uint) {
	keys := make([]string, 0, len(listStatuses)+2)
	keys = append(keys, statsKey(owner))
	for _, status := range listStatuses {
		keys = append(keys, listKey(owner, status))
	}
	if id != 0 {
		keys = append(keys, taskKey(owner, id))
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		s.logCacheError("cache invalidation failed", ownerPrefix(owner), err)
		s.markStale(owner)
	}
}

// usable reports whether the owner's cached entries can be trusted, flushing
// them first if an earlier invalidation was lost.
func (s *CachedTaskService) usable(ctx context.Context, owner uint) bool {
	s.mu.Lock()
	_, stale := s.stale[owner]
	s.mu.Unlock()
	if !stale {
		return true
	}

	pattern := ownerPrefix(owner) + "*"
	if err := s.cache.DeletePattern(ctx, pattern); err != nil {
		s.logCacheError("cache flush failed", pattern, err)
		return false
	}
	s.mu.Lock()
	delete(s.stale, owner)
	s.mu.Unlock()
	s.log.Info("flushed stale cache entries", zap.Uint("owner", owner))
	return true
}

func (s *CachedTaskService) markStale(owner uint) {
	s.mu.Lock()
	s.stale[owner] = struct{}{}
	s.mu.Unlock()
}

func (s *CachedTaskService) logCacheError(msg, key string, err error) {
	if errors.Is(err, cache.ErrCacheDown) {
		s.log.Debug(msg, zap.String("key", key), zap.Error(err))
		return
	}
	s.log.Warn(msg, zap.String("key", key), zap.Error(err))
}
