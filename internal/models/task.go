package models

import (
	"errors"
	"strings"
	"time"
)

type TaskStatus string

const (
	StatusTodo       TaskStatus = "todo"
	StatusInProgress TaskStatus = "in_progress"
	StatusDone       TaskStatus = "done"
)

// TaskStatuses lists every status in declaration order.
var TaskStatuses = []TaskStatus{StatusTodo, StatusInProgress, StatusDone}

func (s TaskStatus) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone:
		return true
	}
	return false
}

type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityMedium TaskPriority = "medium"
	PriorityHigh   TaskPriority = "high"
)

// TaskPriorities lists every priority in ascending order.
var TaskPriorities = []TaskPriority{PriorityLow, PriorityMedium, PriorityHigh}

func (p TaskPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

type Task struct {
	ID          string
	UserID      string
	Title       string
	Description *string
	Status      TaskStatus
	Priority    TaskPriority
	DueDate     time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time

	// IsOverdue is derived and never persisted.
	IsOverdue bool
}

// Overdue reports whether the task is not done and its due date
// lies strictly before today. Both dates are compared by calendar day.
func (t *Task) Overdue(today time.Time) bool {
	return t.Status != StatusDone && DateOf(t.DueDate).Before(DateOf(today))
}

const DateLayout = time.DateOnly

var ErrInvalidDate = errors.New("invalid date")

// DateOf returns midnight UTC of t's calendar day, read in t's own location.
// Callers pass UTC times to get UTC days.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate accepts YYYY-MM-DD and RFC 3339 timestamps. The calendar day
// of a timestamp is taken in the timestamp's own offset.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(DateLayout, value); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return DateOf(t), nil
	}
	return time.Time{}, ErrInvalidDate
}
