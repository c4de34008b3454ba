package services

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/adanyl0v/go-task-manager/internal/models"
)

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserAlreadyExists  = errors.New("email already registered")
	ErrUserNotFound       = errors.New("user not found")
	ErrTaskNotFound       = errors.New("task not found")
	ErrInvalidTaskID      = errors.New("invalid task id")

	// ErrInvalidToken and ErrTokenExpired both match ErrUnauthorized.
	ErrInvalidToken = unauthorizedError("invalid token")
	ErrTokenExpired = unauthorizedError("token expired")
)

// utcNow is the services' clock. Calendar days, and so "today", are UTC days.
func utcNow() time.Time {
	return time.Now().UTC()
}

type unauthorizedError string

func (e unauthorizedError) Error() string { return string(e) }

func (e unauthorizedError) Is(target error) bool { return target == ErrUnauthorized }

// Pool is the subset of *pgxpool.Pool the services need.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type AuthService interface {
	// Register creates a user with a salted argon2id hash of the
	// password and returns the user with a freshly signed token.
	//
	// It returns a *ValidationError if a field is missing, malformed
	// or the password is too short, and ErrUserAlreadyExists if the
	// email is taken.
	Register(ctx context.Context, params RegisterParams) (*AuthResult, error)

	// Login checks the credentials and returns the user with a fresh token.
	//
	// It returns ErrInvalidCredentials both for an unknown email and
	// a wrong password.
	Login(ctx context.Context, params LoginParams) (*AuthResult, error)

	// GetUserByID returns ErrUserNotFound if no such user exists.
	GetUserByID(ctx context.Context, userID string) (*models.User, error)

	// VerifyToken validates the signature, issuer and expiry of the token
	// and returns the user id it carries. It returns ErrTokenExpired or
	// ErrInvalidToken, both of which match ErrUnauthorized.
	VerifyToken(token string) (string, error)
}

type TaskService interface {
	// CreateTask validates the params and stores a task owned by ownerID.
	CreateTask(ctx context.Context, ownerID string, params CreateTaskParams) (*models.Task, error)

	// ListTasks returns one page of the owner's tasks matching the filter.
	ListTasks(ctx context.Context, ownerID string, filter TaskFilter) (*TaskList, error)

	// GetTask returns ErrTaskNotFound when the task does not exist
	// or belongs to somebody else.
	GetTask(ctx context.Context, ownerID, taskID string) (*models.Task, error)

	// UpdateTask applies the non-nil fields of params. Omitted fields keep
	// their stored values. Not-owned tasks yield ErrTaskNotFound.
	UpdateTask(ctx context.Context, ownerID, taskID string, params UpdateTaskParams) (*models.Task, error)

	// DeleteTask removes the task and returns it as it was stored.
	DeleteTask(ctx context.Context, ownerID, taskID string) (*models.Task, error)
}

type RegisterParams struct {
	Name     string
	Email    string
	Password string
}

type LoginParams struct {
	Email    string
	Password string
}

type AuthResult struct {
	User           *models.User
	Token          string
	TokenExpiresAt time.Time
}

type CreateTaskParams struct {
	Title       string
	Description *string
	Priority    *string
	DueDate     *string
	Status      *string
}

type UpdateTaskParams struct {
	Title       *string
	Description *string
	Priority    *string
	DueDate     *string
	Status      *string
}

// TaskFilter holds raw listing options. Values outside the allowed
// sets fall back to defaults instead of failing. A nil Page or Limit
// means DefaultPage or DefaultLimit; set values are clamped.
type TaskFilter struct {
	Status   string
	Priority string
	SortBy   string
	Order    string
	Overdue  bool
	Page     *int
	Limit    *int
}

type Pagination struct {
	Total      int64
	Page       int
	Limit      int
	TotalPages int
}

type TaskList struct {
	Tasks      []*models.Task
	Pagination Pagination
}
