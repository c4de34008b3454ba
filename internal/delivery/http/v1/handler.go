package v1

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/adanyl0v/go-task-manager/internal/ratelimit"
	"github.com/adanyl0v/go-task-manager/internal/services"
)

type Handler interface {
	HandleRegister(c *gin.Context)
	HandleLogin(c *gin.Context)
	HandleMe(c *gin.Context)

	HandleCreateTask(c *gin.Context)
	HandleListTasks(c *gin.Context)
	HandleGetTask(c *gin.Context)
	HandleUpdateTask(c *gin.Context)
	HandleDeleteTask(c *gin.Context)

	HandleHealth(c *gin.Context)
	HandleReady(c *gin.Context)
	HandleNoRoute(c *gin.Context)

	HandleAuthMiddleware(c *gin.Context)
	HandleRateLimitMiddleware(c *gin.Context)
	HandleAccessLogMiddleware(c *gin.Context)
	HandleRecovery(c *gin.Context, recovered any)
}

// ReadinessCheck reports whether a dependency named Name can serve requests.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type handlerImpl struct {
	logger  zerolog.Logger
	auth    services.AuthService
	tasks   services.TaskService
	limiter ratelimit.Limiter
	checks  []ReadinessCheck
}

func New(
	logger zerolog.Logger,
	authService services.AuthService,
	taskService services.TaskService,
	limiter ratelimit.Limiter,
	checks ...ReadinessCheck,
) Handler {
	return &handlerImpl{
		logger:  logger,
		auth:    authService,
		tasks:   taskService,
		limiter: limiter,
		checks:  checks,
	}
}

// RegisterRoutes mounts the API on router.
func RegisterRoutes(router gin.IRouter, h Handler) {
	router.GET("/health", h.HandleHealth)
	router.GET("/ready", h.HandleReady)

	api := router.Group("/api")

	authRouter := api.Group("/auth", h.HandleRateLimitMiddleware)
	authRouter.POST("/register", h.HandleRegister)
	authRouter.POST("/login", h.HandleLogin)
	authRouter.GET("/me", h.HandleAuthMiddleware, h.HandleMe)

	tasksRouter := api.Group("/tasks", h.HandleAuthMiddleware)
	tasksRouter.POST("", h.HandleCreateTask)
	tasksRouter.GET("", h.HandleListTasks)
	tasksRouter.GET("/:id", h.HandleGetTask)
	tasksRouter.PUT("/:id", h.HandleUpdateTask)
	tasksRouter.DELETE("/:id", h.HandleDeleteTask)
}
