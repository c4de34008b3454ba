package app

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/adanyl0v/go-task-manager/internal/config"
	v1 "github.com/adanyl0v/go-task-manager/internal/delivery/http/v1"
	"github.com/adanyl0v/go-task-manager/internal/ratelimit"
	"github.com/adanyl0v/go-task-manager/internal/services"
)

// Run boots the service and blocks until it is shut down. Failures during
// startup panic after being logged.
func Run() {
	logger := NewDefaultLogger()
	cfg := MustReadEnv(logger)
	logger = MustInitApplicationLogger(logger, cfg.Env)

	pgPool := MustConnectPostgres(logger, cfg.Postgres)
	defer DisconnectPostgres(logger, pgPool)

	if cfg.Postgres.Migrate {
		MustMigratePostgres(logger, cfg.Postgres)
	}

	redisClient := MustConnectRedis(logger, cfg.Redis)
	defer DisconnectRedis(logger, redisClient)

	authService, err := services.NewAuthService(
		logger.With().Str("service", "auth").Logger(),
		pgPool,
		cfg.JWT.Issuer,
		[]byte(cfg.JWT.SigningKey),
		cfg.JWT.TokenTTL,
	)
	if err != nil {
		logger.Error().
			Err(err).
			Msg("failed to create auth service")
		panic(err)
	}
	taskService := services.NewTaskService(
		logger.With().Str("service", "tasks").Logger(),
		pgPool,
	)

	checks := []v1.ReadinessCheck{
		{Name: "postgres", Check: pgPool.Ping},
	}
	if redisClient != nil {
		checks = append(checks, v1.ReadinessCheck{
			Name: "redis",
			Check: func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			},
		})
	}

	handler := v1.New(
		logger.With().Str("component", "http").Logger(),
		authService,
		taskService,
		newLimiter(logger, cfg.RateLimit, redisClient),
		checks...,
	)

	MustListenAndServeHTTP(logger, cfg.HTTP, newRouter(cfg.Env, cfg.HTTP, handler))
}

// newLimiter shares the budget across instances when redis is available.
func newLimiter(logger zerolog.Logger, cfg config.RateLimitConfig, redisClient *redis.Client) ratelimit.Limiter {
	if redisClient != nil {
		logger.Info().
			Int("requests_per_minute", cfg.RequestsPerMinute).
			Msg("using redis rate limiter")
		return ratelimit.NewRedisLimiter(redisClient, cfg.RequestsPerMinute)
	}
	logger.Info().
		Int("requests_per_minute", cfg.RequestsPerMinute).
		Int("burst", cfg.Burst).
		Msg("using local rate limiter")
	return ratelimit.NewLocalLimiter(cfg.RequestsPerMinute, cfg.Burst)
}
