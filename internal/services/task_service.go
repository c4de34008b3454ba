package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"github.com/adanyl0v/go-task-manager/internal/models"
)

type taskServiceImpl struct {
	logger zerolog.Logger
	pgPool Pool
	now    func() time.Time
}

func NewTaskService(
	logger zerolog.Logger,
	pgPool Pool,
) TaskService {
	return &taskServiceImpl{
		logger: logger,
		pgPool: pgPool,
		now:    utcNow,
	}
}

func (s *taskServiceImpl) CreateTask(ctx context.Context, ownerID string, params CreateTaskParams) (*models.Task, error) {
	now := s.now()
	input, err := params.validate(now)
	if err != nil {
		s.logger.Debug().
			Err(err).
			Str("user_id", ownerID).
			Msg("invalid task")
		return nil, err
	}

	taskUUID, err := uuid.NewV7()
	if err != nil {
		s.logger.Error().
			Err(err).
			Msg("failed to generate task uuid")
		return nil, err
	}

	task := &models.Task{
		ID:          taskUUID.String(),
		UserID:      ownerID,
		Title:       input.title,
		Description: input.description,
		Status:      input.status,
		Priority:    input.priority,
		DueDate:     input.dueDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	const insertTaskQuery = `
INSERT INTO tasks (id,
                   user_id,
                   title,
                   description,
                   status,
                   priority,
                   due_date,
                   created_at,
                   updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`
	_, err = s.pgPool.Exec(
		ctx,
		insertTaskQuery,
		task.ID,
		task.UserID,
		task.Title,
		task.Description,
		string(task.Status),
		string(task.Priority),
		task.DueDate,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			s.logger.Error().
				Str("user_id", ownerID).
				Msg("task owner does not exist")
			return nil, ErrUserNotFound
		}

		s.logger.Error().
			Err(err).
			Str("user_id", ownerID).
			Msg("failed to insert task")
		return nil, fmt.Errorf("failed to insert task: %w", err)
	}
	task.IsOverdue = task.Overdue(now)

	s.logger.Info().
		Str("task_id", task.ID).
		Str("user_id", task.UserID).
		Msg("created task")
	return task, nil
}

func (s *taskServiceImpl) ListTasks(ctx context.Context, ownerID string, filter TaskFilter) (*TaskList, error) {
	today := s.now()
	query := newListTasksQuery(ownerID, filter, today)

	selectSQL, args := query.selectSQL()
	rows, err := s.pgPool.Query(ctx, selectSQL, args...)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("user_id", ownerID).
			Msg("failed to select tasks")
		return nil, fmt.Errorf("failed to select tasks: %w", err)
	}
	defer rows.Close()

	var total int64
	tasks := make([]*models.Task, 0, query.limit)
	for rows.Next() {
		task, err := scanTask(rows, &total)
		if err != nil {
			s.logger.Error().
				Err(err).
				Msg("failed to scan task")
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		task.IsOverdue = task.Overdue(today)
		tasks = append(tasks, task)
	}

	err = rows.Err()
	if err != nil {
		s.logger.Error().
			Err(err).
			Msg("failed to iterate over rows")
		return nil, fmt.Errorf("failed to iterate over tasks: %w", err)
	}

	// A page past the end carries no rows and so no window count.
	if len(tasks) == 0 && query.offset() > 0 {
		countSQL, args := query.countSQL()
		err = s.pgPool.QueryRow(ctx, countSQL, args...).Scan(&total)
		if err != nil {
			s.logger.Error().
				Err(err).
				Str("user_id", ownerID).
				Msg("failed to count tasks")
			return nil, fmt.Errorf("failed to count tasks: %w", err)
		}
	}
	s.logger.Debug().
		Int("count", len(tasks)).
		Int64("total", total).
		Str("user_id", ownerID).
		Msg("selected tasks")

	return &TaskList{
		Tasks:      tasks,
		Pagination: query.pagination(total),
	}, nil
}

func (s *taskServiceImpl) GetTask(ctx context.Context, ownerID, taskID string) (*models.Task, error) {
	if err := validateTaskID(taskID); err != nil {
		return nil, err
	}

	const selectTaskByIDQuery = `
SELECT ` + taskColumns + `
FROM tasks
WHERE id = $1 AND
      user_id = $2
`
	task, err := scanTask(s.pgPool.QueryRow(
		ctx,
		selectTaskByIDQuery,
		taskID,
		ownerID,
	))
	if err != nil {
		return nil, s.translateTaskError(err, taskID, ownerID, "failed to select task")
	}
	task.IsOverdue = task.Overdue(s.now())

	s.logger.Debug().
		Str("task_id", task.ID).
		Msg("selected task")
	return task, nil
}

func (s *taskServiceImpl) UpdateTask(ctx context.Context, ownerID, taskID string, params UpdateTaskParams) (*models.Task, error) {
	if err := validateTaskID(taskID); err != nil {
		return nil, err
	}
	input, err := params.validate()
	if err != nil {
		s.logger.Debug().
			Err(err).
			Str("task_id", taskID).
			Msg("invalid task update")
		return nil, err
	}

	now := s.now()
	const updateTaskQuery = `
UPDATE tasks
SET title = COALESCE($1, title),
    description = COALESCE($2, description),
    status = COALESCE($3, status),
    priority = COALESCE($4, priority),
    due_date = COALESCE($5, due_date),
    updated_at = $6
WHERE id = $7 AND
      user_id = $8
RETURNING ` + taskColumns
	task, err := scanTask(s.pgPool.QueryRow(
		ctx,
		updateTaskQuery,
		input.title,
		input.description,
		input.status,
		input.priority,
		input.dueDate,
		now,
		taskID,
		ownerID,
	))
	if err != nil {
		return nil, s.translateTaskError(err, taskID, ownerID, "failed to update task")
	}
	task.IsOverdue = task.Overdue(now)

	s.logger.Info().
		Str("task_id", task.ID).
		Str("user_id", task.UserID).
		Msg("updated task")
	return task, nil
}

func (s *taskServiceImpl) DeleteTask(ctx context.Context, ownerID, taskID string) (*models.Task, error) {
	if err := validateTaskID(taskID); err != nil {
		return nil, err
	}

	const deleteTaskQuery = `
DELETE FROM tasks
WHERE id = $1 AND
      user_id = $2
RETURNING ` + taskColumns
	task, err := scanTask(s.pgPool.QueryRow(
		ctx,
		deleteTaskQuery,
		taskID,
		ownerID,
	))
	if err != nil {
		return nil, s.translateTaskError(err, taskID, ownerID, "failed to delete task")
	}
	task.IsOverdue = task.Overdue(s.now())

	s.logger.Info().
		Str("task_id", task.ID).
		Str("user_id", task.UserID).
		Msg("deleted task")
	return task, nil
}

// translateTaskError maps store errors of single task statements. Missing
// and foreign tasks are indistinguishable to the caller.
func (s *taskServiceImpl) translateTaskError(err error, taskID, ownerID, msg string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		s.logger.Warn().
			Str("task_id", taskID).
			Str("user_id", ownerID).
			Msg("task not found")
		return ErrTaskNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.InvalidTextRepresentation {
		s.logger.Warn().
			Str("task_id", taskID).
			Msg("malformed task id")
		return ErrInvalidTaskID
	}

	s.logger.Error().
		Err(err).
		Str("task_id", taskID).
		Msg(msg)
	return fmt.Errorf("%s: %w", msg, err)
}

func validateTaskID(taskID string) error {
	if _, err := uuid.Parse(taskID); err != nil {
		return ErrInvalidTaskID
	}
	return nil
}

// scanTask reads the taskColumns of one row followed by any extra columns.
func scanTask(row pgx.Row, extra ...any) (*models.Task, error) {
	var (
		task             models.Task
		status, priority string
	)
	dest := []any{
		&task.ID,
		&task.UserID,
		&task.Title,
		&task.Description,
		&status,
		&priority,
		&task.DueDate,
		&task.CreatedAt,
		&task.UpdatedAt,
	}
	err := row.Scan(append(dest, extra...)...)
	if err != nil {
		return nil, err
	}
	task.Status = models.TaskStatus(status)
	task.Priority = models.TaskPriority(priority)
	return &task, nil
}
