package services

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/adanyl0v/go-task-manager/internal/models"
)

const minPasswordLength = 6

// ValidationError carries every violation found in one input.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Violations, ". ")
}

func (e *ValidationError) add(violation string) {
	e.Violations = append(e.Violations, violation)
}

func (e *ValidationError) orNil() error {
	if len(e.Violations) == 0 {
		return nil
	}
	return e
}

var validate = validator.New()

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (p *RegisterParams) normalize() {
	p.Name = strings.TrimSpace(p.Name)
	p.Email = normalizeEmail(p.Email)
}

func (p *RegisterParams) validate() error {
	verr := new(ValidationError)
	if p.Name == "" || p.Email == "" || p.Password == "" {
		verr.add("Name, email and password are required")
	}
	if p.Email != "" && validate.Var(p.Email, "email,max=255") != nil {
		verr.add("Please provide a valid email")
	}
	if p.Password != "" && utf8.RuneCountInString(p.Password) < minPasswordLength {
		verr.add(fmt.Sprintf("Password must be at least %d characters", minPasswordLength))
	}
	return verr.orNil()
}

func (p *LoginParams) validate() error {
	if p.Email == "" || p.Password == "" {
		return &ValidationError{Violations: []string{"Email and password are required"}}
	}
	return nil
}

var (
	priorityViolation = "Priority must be one of: " + joinValues(models.TaskPriorities)
	statusViolation   = "Status must be one of: " + joinValues(models.TaskStatuses)
)

func joinValues[T ~string](values []T) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = string(v)
	}
	return strings.Join(parts, ", ")
}

// createTaskInput is CreateTaskParams after validation.
type createTaskInput struct {
	title       string
	description *string
	priority    models.TaskPriority
	status      models.TaskStatus
	dueDate     time.Time
}

func (p *CreateTaskParams) validate(today time.Time) (*createTaskInput, error) {
	verr := new(ValidationError)
	in := &createTaskInput{
		priority: models.PriorityMedium,
		status:   models.StatusTodo,
	}

	in.title = strings.TrimSpace(p.Title)
	if in.title == "" {
		verr.add("Title is required")
	}

	if p.Description != nil {
		description := strings.TrimSpace(*p.Description)
		if description != "" {
			in.description = &description
		}
	}

	if p.Priority != nil && *p.Priority != "" {
		priority := models.TaskPriority(*p.Priority)
		if priority.Valid() {
			in.priority = priority
		} else {
			verr.add(priorityViolation)
		}
	}

	if p.DueDate == nil || strings.TrimSpace(*p.DueDate) == "" {
		verr.add("Due date is required")
	} else if dueDate, err := models.ParseDate(*p.DueDate); err != nil {
		verr.add("Due date is not a valid date")
	} else if dueDate.Before(models.DateOf(today)) {
		verr.add("Due date cannot be in the past")
	} else {
		in.dueDate = dueDate
	}

	if p.Status != nil && *p.Status != "" {
		status := models.TaskStatus(*p.Status)
		if status.Valid() {
			in.status = status
		} else {
			verr.add(statusViolation)
		}
	}

	if err := verr.orNil(); err != nil {
		return nil, err
	}
	return in, nil
}

// updateTaskInput holds the columns to change; nil keeps the stored value.
type updateTaskInput struct {
	title       *string
	description *string
	priority    *string
	status      *string
	dueDate     *time.Time
}

func (p *UpdateTaskParams) validate() (*updateTaskInput, error) {
	verr := new(ValidationError)
	in := new(updateTaskInput)

	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if title == "" {
			verr.add("Title cannot be empty")
		} else {
			in.title = &title
		}
	}

	if p.Description != nil {
		description := strings.TrimSpace(*p.Description)
		in.description = &description
	}

	if p.Priority != nil && *p.Priority != "" {
		if models.TaskPriority(*p.Priority).Valid() {
			in.priority = p.Priority
		} else {
			verr.add(priorityViolation)
		}
	}

	if p.Status != nil && *p.Status != "" {
		if models.TaskStatus(*p.Status).Valid() {
			in.status = p.Status
		} else {
			verr.add(statusViolation)
		}
	}

	if p.DueDate != nil && strings.TrimSpace(*p.DueDate) != "" {
		dueDate, err := models.ParseDate(*p.DueDate)
		if err != nil {
			verr.add("Due date is not a valid date")
		} else {
			in.dueDate = &dueDate
		}
	}

	if err := verr.orNil(); err != nil {
		return nil, err
	}
	return in, nil
}
