package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"dreamflow/internal/models"

	"gorm.io/gorm"
)

// TaskStore is the owner-scoped task persistence contract. Inputs are expected
// to be normalized already; a task owned by someone else is reported as
// models.ErrNotFound exactly like a missing one.
type TaskStore interface {
	Create(ctx context.Context, owner uint, in models.NewTask) (models.Task, error)
	Get(ctx context.Context, owner, id uint) (models.Task, error)
	List(ctx context.Context, owner uint, filter models.TaskFilter) ([]models.Task, error)
	Update(ctx context.Context, owner, id uint, patch models.TaskPatch) (models.Task, error)
	Delete(ctx context.Context, owner, id uint) (models.Task, error)
	ToggleComplete(ctx context.Context, owner, id uint) (models.Task, error)
	Stats(ctx context.Context, owner uint) (models.TaskStats, error)
}

func notFound(err error, what string, id uint) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %d: %w", what, id, models.ErrNotFound)
	}
	return err
}

// likePattern escapes LIKE wildcards so the search is a plain substring match.
func likePattern(search string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.ToLower(search)) + "%"
}
