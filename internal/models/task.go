package models

import (
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/datatypes"
)

const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 1000
	MaxTagLength         = 50
	DueDateLayout        = "2006-01-02"
)

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// ParsePriority accepts only the exact lower-case names; "HIGH" and " low" are rejected.
func ParsePriority(s string) (Priority, error) {
	p := Priority(s)
	if !p.Valid() {
		return "", NewValidationError("priority", "must be one of high, medium, low (got %q)", s)
	}
	return p, nil
}

type Task struct {
	ID          uint                        `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID      uint                        `json:"owner_user_id" gorm:"not null;index"`
	Title       string                      `json:"title" gorm:"size:200;not null"`
	Description string                      `json:"description" gorm:"size:1000"`
	Completed   bool                        `json:"completed" gorm:"not null"`
	Priority    Priority                    `json:"priority" gorm:"type:varchar(10);not null;default:'medium'"`
	Tags        datatypes.JSONSlice[string] `json:"tags" gorm:"not null"`
	DueDate     *string                     `json:"due_date" gorm:"type:varchar(10)"`
	CreatedAt   time.Time                   `json:"created_at"`
	UpdatedAt   time.Time                   `json:"updated_at"`
}

// NewTask is the validated input for creating a task.
type NewTask struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Completed   bool     `json:"completed"`
	Priority    Priority `json:"priority"`
	Tags        []string `json:"tags"`
	DueDate     *string  `json:"due_date"`
}

// Normalize trims and validates the input in place. An empty priority defaults to medium.
func (n *NewTask) Normalize() error {
	title, err := normalizeTitle(n.Title)
	if err != nil {
		return err
	}
	n.Title = title

	description, err := normalizeDescription(n.Description)
	if err != nil {
		return err
	}
	n.Description = description

	if n.Priority == "" {
		n.Priority = PriorityMedium
	} else {
		p, err := ParsePriority(string(n.Priority))
		if err != nil {
			return err
		}
		n.Priority = p
	}

	tags, err := normalizeTags(n.Tags)
	if err != nil {
		return err
	}
	n.Tags = tags

	due, err := normalizeDueDate(n.DueDate)
	if err != nil {
		return err
	}
	n.DueDate = due
	return nil
}

func (n NewTask) ToTask(owner uint) Task {
	return Task{
		UserID:      owner,
		Title:       n.Title,
		Description: n.Description,
		Completed:   n.Completed,
		Priority:    n.Priority,
		Tags:        datatypes.NewJSONSlice(n.Tags),
		DueDate:     n.DueDate,
	}
}

// TaskPatch carries a partial update; nil fields are left unchanged.
// An empty DueDate clears the due date.
type TaskPatch struct {
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	Completed   *bool     `json:"completed"`
	Priority    *Priority `json:"priority"`
	Tags        *[]string `json:"tags"`
	DueDate     *string   `json:"due_date"`
}

func (p *TaskPatch) Normalize() error {
	if p.Title != nil {
		title, err := normalizeTitle(*p.Title)
		if err != nil {
			return err
		}
		p.Title = &title
	}
	if p.Description != nil {
		description, err := normalizeDescription(*p.Description)
		if err != nil {
			return err
		}
		p.Description = &description
	}
	if p.Priority != nil {
		pr, err := ParsePriority(string(*p.Priority))
		if err != nil {
			return err
		}
		p.Priority = &pr
	}
	if p.Tags != nil {
		tags, err := normalizeTags(*p.Tags)
		if err != nil {
			return err
		}
		p.Tags = &tags
	}
	if p.DueDate != nil && strings.TrimSpace(*p.DueDate) != "" {
		due, err := normalizeDueDate(p.DueDate)
		if err != nil {
			return err
		}
		p.DueDate = due
	}
	return nil
}

func (p TaskPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Completed == nil &&
		p.Priority == nil && p.Tags == nil && p.DueDate == nil
}

// Apply copies the set fields onto t. The patch must already be normalized.
func (p TaskPatch) Apply(t *Task) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Completed != nil {
		t.Completed = *p.Completed
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.Tags != nil {
		t.Tags = datatypes.NewJSONSlice(*p.Tags)
	}
	if p.DueDate != nil {
		if strings.TrimSpace(*p.DueDate) == "" {
			t.DueDate = nil
		} else {
			due := *p.DueDate
			t.DueDate = &due
		}
	}
}

type TaskStatus string

const (
	TaskStatusAll       TaskStatus = "all"
	TaskStatusActive    TaskStatus = "active"
	TaskStatusCompleted TaskStatus = "completed"
)

// ParseTaskStatus accepts the list filter values. "pending" is an alias for active.
func ParseTaskStatus(s string) (TaskStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return TaskStatusAll, nil
	case "active", "pending":
		return TaskStatusActive, nil
	case "completed":
		return TaskStatusCompleted, nil
	}
	return "", NewValidationError("filter", "must be one of all, active, completed (got %q)", s)
}

type TaskFilter struct {
	Status TaskStatus
	Search string
}

type PriorityCounts struct {
	High   int64 `json:"high"`
	Medium int64 `json:"medium"`
	Low    int64 `json:"low"`
}

func (c *PriorityCounts) Add(p Priority, n int64) {
	switch p {
	case PriorityHigh:
		c.High += n
	case PriorityMedium:
		c.Medium += n
	case PriorityLow:
		c.Low += n
	}
}

type TaskStats struct {
	Total      int64          `json:"total"`
	Completed  int64          `json:"completed"`
	Active     int64          `json:"active"`
	ByPriority PriorityCounts `json:"by_priority"`
}

func normalizeTitle(s string) (string, error) {
	title := strings.TrimSpace(s)
	if title == "" {
		return "", NewValidationError("title", "must not be empty")
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return "", NewValidationError("title", "must be at most %d characters", MaxTitleLength)
	}
	return title, nil
}

func normalizeDescription(s string) (string, error) {
	description := strings.TrimSpace(s)
	if utf8.RuneCountInString(description) > MaxDescriptionLength {
		return "", NewValidationError("description", "must be at most %d characters", MaxDescriptionLength)
	}
	return description, nil
}

func normalizeTags(in []string) ([]string, error) {
	tags := make([]string, 0, len(in))
	for _, tag := range in {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if utf8.RuneCountInString(tag) > MaxTagLength {
			return nil, NewValidationError("tags", "tag %q exceeds %d characters", tag, MaxTagLength)
		}
		tags = append(tags, tag)
	}
	return tags, nil
}

func normalizeDueDate(in *string) (*string, error) {
	if in == nil {
		return nil, nil
	}
	s := strings.TrimSpace(*in)
	if s == "" {
		return nil, nil
	}
	if _, err := time.Parse(DueDateLayout, s); err != nil {
		return nil, NewValidationError("due_date", "must be a date in YYYY-MM-DD format")
	}
	return &s, nil
}
