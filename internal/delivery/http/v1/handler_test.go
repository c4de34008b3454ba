package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/adanyl0v/go-task-manager/internal/models"
	"github.com/adanyl0v/go-task-manager/internal/ratelimit"
	"github.com/adanyl0v/go-task-manager/internal/services"
)

const (
	userA = "0190f5d2-6c1b-7c4e-9a55-3f0d5e2b8a11"
	userB = "0190f5d2-6c1b-7c4e-9a55-3f0d5e2b8a22"
	taskA = "0190f5d2-6c1b-7c4e-9a55-3f0d5e2b8a33"
)

type fakeAuthService struct {
	users map[string]*models.User
	// passwords by email
	passwords map[string]string
}

func newFakeAuthService() *fakeAuthService {
	return &fakeAuthService{
		users: map[string]*models.User{
			userA: {ID: userA, Name: "Ann", Email: "ann@example.com", CreatedAt: time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)},
			userB: {ID: userB, Name: "Bob", Email: "bob@example.com"},
		},
		passwords: map[string]string{"ann@example.com": "secret1"},
	}
}

func tokenFor(userID string) string { return "token-" + userID }

func (f *fakeAuthService) Register(_ context.Context, params services.RegisterParams) (*services.AuthResult, error) {
	if params.Name == "" || params.Email == "" || params.Password == "" {
		return nil, &services.ValidationError{Violations: []string{"Name, email and password are required"}}
	}
	for _, user := range f.users {
		if user.Email == params.Email {
			return nil, services.ErrUserAlreadyExists
		}
	}
	user := &models.User{ID: "0190f5d2-6c1b-7c4e-9a55-3f0d5e2b8a44", Name: params.Name, Email: params.Email}
	f.users[user.ID] = user
	return &services.AuthResult{User: user, Token: tokenFor(user.ID)}, nil
}

func (f *fakeAuthService) Login(_ context.Context, params services.LoginParams) (*services.AuthResult, error) {
	password, ok := f.passwords[params.Email]
	if !ok || password != params.Password {
		return nil, services.ErrInvalidCredentials
	}
	for _, user := range f.users {
		if user.Email == params.Email {
			return &services.AuthResult{User: user, Token: tokenFor(user.ID)}, nil
		}
	}
	return nil, services.ErrInvalidCredentials
}

func (f *fakeAuthService) GetUserByID(_ context.Context, userID string) (*models.User, error) {
	user, ok := f.users[userID]
	if !ok {
		return nil, services.ErrUserNotFound
	}
	return user, nil
}

func (f *fakeAuthService) VerifyToken(token string) (string, error) {
	switch {
	case token == "expired":
		return "", services.ErrTokenExpired
	case strings.HasPrefix(token, "token-"):
		return strings.TrimPrefix(token, "token-"), nil
	default:
		return "", services.ErrInvalidToken
	}
}

type fakeTaskService struct {
	tasks      map[string]*models.Task
	lastFilter services.TaskFilter
	listErr    error
}

func newFakeTaskService() *fakeTaskService {
	description := "two liters"
	return &fakeTaskService{
		tasks: map[string]*models.Task{
			taskA: {
				ID:          taskA,
				UserID:      userA,
				Title:       "Buy milk",
				Description: &description,
				Status:      models.StatusTodo,
				Priority:    models.PriorityHigh,
				DueDate:     time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC),
			},
		},
	}
}

func (f *fakeTaskService) owned(ownerID, taskID string) (*models.Task, error) {
	if taskID == "not-a-uuid" {
		return nil, services.ErrInvalidTaskID
	}
	task, ok := f.tasks[taskID]
	if !ok || task.UserID != ownerID {
		return nil, services.ErrTaskNotFound
	}
	return task, nil
}

func (f *fakeTaskService) CreateTask(_ context.Context, ownerID string, params services.CreateTaskParams) (*models.Task, error) {
	if strings.TrimSpace(params.Title) == "" {
		return nil, &services.ValidationError{Violations: []string{"Title is required", "Due date is required"}}
	}
	return &models.Task{
		ID:       "0190f5d2-6c1b-7c4e-9a55-3f0d5e2b8a55",
		UserID:   ownerID,
		Title:    params.Title,
		Status:   models.StatusTodo,
		Priority: models.PriorityMedium,
		DueDate:  time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC),
	}, nil
}

func (f *fakeTaskService) ListTasks(_ context.Context, ownerID string, filter services.TaskFilter) (*services.TaskList, error) {
	f.lastFilter = filter
	if f.listErr != nil {
		return nil, f.listErr
	}
	list := &services.TaskList{Tasks: []*models.Task{}}
	for _, task := range f.tasks {
		if task.UserID == ownerID {
			list.Tasks = append(list.Tasks, task)
		}
	}
	list.Pagination = services.Pagination{
		Total:      int64(len(list.Tasks)),
		Page:       1,
		Limit:      10,
		TotalPages: len(list.Tasks),
	}
	return list, nil
}

func (f *fakeTaskService) GetTask(_ context.Context, ownerID, taskID string) (*models.Task, error) {
	return f.owned(ownerID, taskID)
}

func (f *fakeTaskService) UpdateTask(_ context.Context, ownerID, taskID string, params services.UpdateTaskParams) (*models.Task, error) {
	task, err := f.owned(ownerID, taskID)
	if err != nil {
		return nil, err
	}
	updated := *task
	if params.Status != nil {
		updated.Status = models.TaskStatus(*params.Status)
	}
	return &updated, nil
}

func (f *fakeTaskService) DeleteTask(_ context.Context, ownerID, taskID string) (*models.Task, error) {
	task, err := f.owned(ownerID, taskID)
	if err != nil {
		return nil, err
	}
	delete(f.tasks, taskID)
	return task, nil
}

type testServer struct {
	router *gin.Engine
	auth   *fakeAuthService
	tasks  *fakeTaskService
}

func newTestServer(t *testing.T, limiter ratelimit.Limiter, checks ...ReadinessCheck) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	if limiter == nil {
		limiter = ratelimit.NewLocalLimiter(600, 100)
	}
	s := &testServer{
		router: gin.New(),
		auth:   newFakeAuthService(),
		tasks:  newFakeTaskService(),
	}
	h := New(zerolog.Nop(), s.auth, s.tasks, limiter, checks...)
	s.router.Use(gin.CustomRecovery(h.HandleRecovery))
	s.router.Use(h.HandleAccessLogMiddleware)
	RegisterRoutes(s.router, h)
	s.router.NoRoute(h.HandleNoRoute)
	return s
}

func (s *testServer) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.RemoteAddr = "127.0.0.1:12345"
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to decode %q: %v", w.Body.String(), err)
	}
	return v
}

func expectError(t *testing.T, w *httptest.ResponseRecorder, status int, message string) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status = %d, want %d (body %s)", w.Code, status, w.Body.String())
	}
	resp := decode[errorResponse](t, w)
	if resp.Success || resp.Message != message {
		t.Errorf("body = %+v, want {success:false message:%q}", resp, message)
	}
}

func TestRegister(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodPost, "/api/auth/register", "",
		`{"name":"Cid","email":"cid@example.com","password":"secret1"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	resp := decode[authResponse](t, w)
	if !resp.Success || resp.Message != "Registration successful" {
		t.Errorf("unexpected envelope %+v", resp)
	}
	if resp.Data.User.Email != "cid@example.com" || resp.Data.Token == "" {
		t.Errorf("unexpected data %+v", resp.Data)
	}
	if strings.Contains(w.Body.String(), "password") {
		t.Errorf("response leaks the password: %s", w.Body.String())
	}
}

func TestRegister_Errors(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodPost, "/api/auth/register", "", `{"name":`)
	expectError(t, w, http.StatusBadRequest, "Invalid request body")

	w = s.do(t, http.MethodPost, "/api/auth/register", "", `{"email":"cid@example.com"}`)
	expectError(t, w, http.StatusBadRequest, "Name, email and password are required")

	w = s.do(t, http.MethodPost, "/api/auth/register", "",
		`{"name":"Ann","email":"ann@example.com","password":"secret1"}`)
	expectError(t, w, http.StatusBadRequest, "Email already registered")
}

func TestLogin(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodPost, "/api/auth/login", "",
		`{"email":"ann@example.com","password":"secret1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	resp := decode[authResponse](t, w)
	if resp.Message != "Login successful" || resp.Data.User.ID != userA || resp.Data.Token != tokenFor(userA) {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestLogin_FailuresLookTheSame(t *testing.T) {
	s := newTestServer(t, nil)

	wrongPassword := s.do(t, http.MethodPost, "/api/auth/login", "",
		`{"email":"ann@example.com","password":"wrong"}`)
	unknownEmail := s.do(t, http.MethodPost, "/api/auth/login", "",
		`{"email":"nobody@example.com","password":"secret1"}`)

	expectError(t, wrongPassword, http.StatusUnauthorized, "Invalid email or password")
	expectError(t, unknownEmail, http.StatusUnauthorized, "Invalid email or password")
	if wrongPassword.Body.String() != unknownEmail.Body.String() {
		t.Errorf("bodies differ: %s vs %s", wrongPassword.Body.String(), unknownEmail.Body.String())
	}
}

func TestMe(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodGet, "/api/auth/me", tokenFor(userA), "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	resp := decode[struct {
		Success bool `json:"success"`
		Data    struct {
			User userResponse `json:"user"`
		} `json:"data"`
	}](t, w)
	if !resp.Success || resp.Data.User.ID != userA || resp.Data.User.CreatedAt == nil {
		t.Errorf("unexpected response %s", w.Body.String())
	}

	w = s.do(t, http.MethodGet, "/api/auth/me", tokenFor("0190f5d2-6c1b-7c4e-9a55-3f0d5e2b8a99"), "")
	expectError(t, w, http.StatusNotFound, "User not found")
}

func TestAuthMiddleware(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		name    string
		header  string
		message string
	}{
		{name: "missing header", message: "Not authorized. Please log in."},
		{name: "not bearer", header: "Basic abc", message: "Not authorized. Please log in."},
		{name: "empty token", header: "Bearer ", message: "Not authorized. Please log in."},
		{name: "invalid token", header: "Bearer forged", message: "Invalid token. Please log in again."},
		{name: "expired token", header: "Bearer expired", message: "Invalid token. Please log in again."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			s.router.ServeHTTP(w, req)
			expectError(t, w, http.StatusUnauthorized, tt.message)
		})
	}
}

func TestGetTask_OtherOwnerGetsNotFound(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodGet, "/api/tasks/"+taskA, tokenFor(userA), "")
	if w.Code != http.StatusOK {
		t.Fatalf("owner: status = %d, body %s", w.Code, w.Body.String())
	}
	resp := decode[taskEnvelope](t, w)
	if resp.Data.ID != taskA || resp.Data.DueDate != "2026-10-15" || resp.Data.Priority != "high" {
		t.Errorf("unexpected task %+v", resp.Data)
	}

	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		body := ""
		if method == http.MethodPut {
			body = `{"status":"done"}`
		}
		w := s.do(t, method, "/api/tasks/"+taskA, tokenFor(userB), body)
		expectError(t, w, http.StatusNotFound, "Task not found")
	}

	if _, ok := s.tasks.tasks[taskA]; !ok {
		t.Error("another owner deleted the task")
	}
}

func TestGetTask_MalformedID(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodGet, "/api/tasks/not-a-uuid", tokenFor(userA), "")
	expectError(t, w, http.StatusBadRequest, "Invalid ID format")
}

func TestCreateTask(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodPost, "/api/tasks", tokenFor(userA),
		`{"title":"Buy milk","priority":"high","due_date":"2026-10-20"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	resp := decode[taskEnvelope](t, w)
	if resp.Message != "Task created successfully" || resp.Data.UserID != userA {
		t.Errorf("unexpected response %+v", resp)
	}
	if !strings.Contains(w.Body.String(), `"description":null`) {
		t.Errorf("absent description is not null: %s", w.Body.String())
	}

	w = s.do(t, http.MethodPost, "/api/tasks", tokenFor(userA), `{"title":"  "}`)
	expectError(t, w, http.StatusBadRequest, "Title is required. Due date is required")

	w = s.do(t, http.MethodPost, "/api/tasks", tokenFor(userA), `{"title":"x","due_date":20261020}`)
	expectError(t, w, http.StatusBadRequest, "Invalid request body")
}

func TestUpdateAndDeleteTask(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodPut, "/api/tasks/"+taskA, tokenFor(userA), `{"status":"done"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("update: status = %d, body %s", w.Code, w.Body.String())
	}
	resp := decode[taskEnvelope](t, w)
	if resp.Message != "Task updated successfully" || resp.Data.Status != "done" || resp.Data.Title != "Buy milk" {
		t.Errorf("unexpected update response %+v", resp)
	}

	w = s.do(t, http.MethodDelete, "/api/tasks/"+taskA, tokenFor(userA), "")
	if w.Code != http.StatusOK {
		t.Fatalf("delete: status = %d, body %s", w.Code, w.Body.String())
	}
	resp = decode[taskEnvelope](t, w)
	if resp.Message != "Task deleted successfully" || resp.Data.ID != taskA {
		t.Errorf("unexpected delete response %+v", resp)
	}

	w = s.do(t, http.MethodDelete, "/api/tasks/"+taskA, tokenFor(userA), "")
	expectError(t, w, http.StatusNotFound, "Task not found")
}

func TestListTasks(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodGet,
		"/api/tasks?status=todo&priority=high&sortBy=due_date&order=asc&overdue=true&page=2&limit=5",
		tokenFor(userA), "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	resp := decode[listTasksResponse](t, w)
	if !resp.Success || resp.Count != 1 || len(resp.Data) != 1 {
		t.Fatalf("unexpected response %s", w.Body.String())
	}
	if resp.Data[0].UserID != userA {
		t.Errorf("listed a task of %s", resp.Data[0].UserID)
	}
	if resp.Pagination.Total != 1 || resp.Pagination.TotalPages != 1 {
		t.Errorf("unexpected pagination %+v", resp.Pagination)
	}
	if !strings.Contains(w.Body.String(), `"totalPages":1`) {
		t.Errorf("pagination keys changed: %s", w.Body.String())
	}

	f := s.tasks.lastFilter
	if f.Status != "todo" || f.Priority != "high" || f.SortBy != "due_date" || f.Order != "asc" || !f.Overdue {
		t.Errorf("unexpected filter %+v", f)
	}
	if f.Page == nil || *f.Page != 2 || f.Limit == nil || *f.Limit != 5 {
		t.Errorf("unexpected paging %v %v", f.Page, f.Limit)
	}
}

func TestListTasks_LenientQuery(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodGet, "/api/tasks?overdue=1&page=abc&limit=", tokenFor(userB), "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"data":[]`) {
		t.Errorf("empty list is not an empty array: %s", w.Body.String())
	}

	f := s.tasks.lastFilter
	if f.Overdue || f.Page != nil || f.Limit != nil {
		t.Errorf("unexpected filter %+v", f)
	}
}

func TestListTasks_InternalError(t *testing.T) {
	s := newTestServer(t, nil)
	s.tasks.listErr = errors.New("failed to select tasks: connection refused")

	w := s.do(t, http.MethodGet, "/api/tasks", tokenFor(userA), "")
	expectError(t, w, http.StatusInternalServerError, "Internal Server Error")
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, ratelimit.NewLocalLimiter(1, 2))

	body := `{"email":"ann@example.com","password":"secret1"}`
	for i := range 2 {
		if w := s.do(t, http.MethodPost, "/api/auth/login", "", body); w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i, w.Code)
		}
	}

	w := s.do(t, http.MethodPost, "/api/auth/login", "", body)
	expectError(t, w, http.StatusTooManyRequests, "Too many requests, please try again later.")

	// Task routes are not limited.
	if w := s.do(t, http.MethodGet, "/api/tasks", tokenFor(userA), ""); w.Code != http.StatusOK {
		t.Errorf("tasks: status = %d", w.Code)
	}
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (bool, error) {
	return false, errors.New("redis: connection refused")
}

func TestRateLimit_FailsOpen(t *testing.T) {
	s := newTestServer(t, failingLimiter{})

	w := s.do(t, http.MethodPost, "/api/auth/login", "", `{"email":"ann@example.com","password":"secret1"}`)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want the request to pass", w.Code)
	}
}

func TestHealthAndReady(t *testing.T) {
	s := newTestServer(t, nil,
		ReadinessCheck{Name: "postgres", Check: func(context.Context) error { return nil }},
		ReadinessCheck{Name: "redis", Check: func(context.Context) error { return errors.New("down") }},
	)

	w := s.do(t, http.MethodGet, "/health", "", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"message":"Server is running"`) {
		t.Errorf("health: %d %s", w.Code, w.Body.String())
	}

	w = s.do(t, http.MethodGet, "/ready", "", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("ready: status = %d", w.Code)
	}
	resp := decode[struct {
		Ready  bool              `json:"ready"`
		Checks map[string]string `json:"checks"`
	}](t, w)
	if resp.Ready || resp.Checks["postgres"] != "up" || resp.Checks["redis"] != "down" {
		t.Errorf("unexpected readiness %+v", resp)
	}
}

func TestNoRouteAndRecovery(t *testing.T) {
	s := newTestServer(t, nil)
	s.router.GET("/panic", func(*gin.Context) { panic("boom") })

	w := s.do(t, http.MethodGet, "/api/unknown", "", "")
	expectError(t, w, http.StatusNotFound, "Route not found")

	w = s.do(t, http.MethodGet, "/panic", "", "")
	expectError(t, w, http.StatusInternalServerError, "Internal Server Error")
}

func TestRegister_LogsOnlyTheRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var logs bytes.Buffer
	h := New(zerolog.New(&logs), newFakeAuthService(), newFakeTaskService(), ratelimit.NewLocalLimiter(600, 100))
	router := gin.New()
	router.Use(h.HandleAccessLogMiddleware)
	RegisterRoutes(router, h)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register",
		strings.NewReader(`{"name":"Cid","email":"cid@example.com","password":"secret1"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if lines := strings.Count(strings.TrimSpace(logs.String()), "\n") + 1; lines != 1 {
		t.Errorf("logged %d lines, want the access log only:\n%s", lines, logs.String())
	}
	if !strings.Contains(logs.String(), `"message":"handled request"`) {
		t.Errorf("access log missing:\n%s", logs.String())
	}
}
