package repositories

import (
	"context"
	"fmt"
	"strings"

	"dreamflow/internal/models"

	"gorm.io/gorm"
)

type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) Create(ctx context.Context, owner uint, in models.NewTask) (models.Task, error) {
	task := in.ToTask(owner)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&task).Error
	})
	if err != nil {
		return models.Task{}, fmt.Errorf("create task: %w", err)
	}
	return task, nil
}

func (r *TaskRepository) Get(ctx context.Context, owner, id uint) (models.Task, error) {
	var task models.Task
	if err := ownedTask(r.db.WithContext(ctx), owner, id, &task); err != nil {
		return models.Task{}, err
	}
	return task, nil
}

func (r *TaskRepository) List(ctx context.Context, owner uint, filter models.TaskFilter) ([]models.Task, error) {
	query := r.db.WithContext(ctx).Where("user_id = ?", owner)

	switch filter.Status {
	case models.TaskStatusActive:
		query = query.Where("completed = ?", false)
	case models.TaskStatusCompleted:
		query = query.Where("completed = ?", true)
	}

	if search := strings.TrimSpace(filter.Search); search != "" {
		query = query.Where(`LOWER(title) LIKE ? ESCAPE '\'`, likePattern(search))
	}

	tasks := []models.Task{}
	if err := query.Order("id ASC").Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

func (r *TaskRepository) Update(ctx context.Context, owner, id uint, patch models.TaskPatch) (models.Task, error) {
	var task models.Task
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ownedTask(tx, owner, id, &task); err != nil {
			return err
		}
		patch.Apply(&task)
		return tx.Save(&task).Error
	})
	if err != nil {
		return models.Task{}, err
	}
	return task, nil
}

func (r *TaskRepository) Delete(ctx context.Context, owner, id uint) (models.Task, error) {
	var task models.Task
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ownedTask(tx, owner, id, &task); err != nil {
			return err
		}
		return tx.Delete(&models.Task{}, task.ID).Error
	})
	if err != nil {
		return models.Task{}, err
	}
	return task, nil
}

func (r *TaskRepository) ToggleComplete(ctx context.Context, owner, id uint) (models.Task, error) {
	var task models.Task
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ownedTask(tx, owner, id, &task); err != nil {
			return err
		}
		task.Completed = !task.Completed
		return tx.Save(&task).Error
	})
	if err != nil {
		return models.Task{}, err
	}
	return task, nil
}

func (r *TaskRepository) Stats(ctx context.Context, owner uint) (models.TaskStats, error) {
	var rows []struct {
		Priority  models.Priority
		Completed bool
		Count     int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.Task{}).
		Select("priority, completed, COUNT(*) AS count").
		Where("user_id = ?", owner).
		Group("priority, completed").
		Scan(&rows).Error
	if err != nil {
		return models.TaskStats{}, fmt.Errorf("task stats: %w", err)
	}

	var stats models.TaskStats
	for _, row := range rows {
		stats.Total += row.Count
		if row.Completed {
			stats.Completed += row.Count
		} else {
			stats.Active += row.Count
		}
		stats.ByPriority.Add(row.Priority, row.Count)
	}
	return stats, nil
}

func ownedTask(db *gorm.DB, owner, id uint, dest *models.Task) error {
	err := db.Where("id = ? AND user_id = ?", id, owner).First(dest).Error
	if err != nil {
		return notFound(err, "task", id)
	}
	return nil
}
