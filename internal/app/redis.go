package app

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/adanyl0v/go-task-manager/internal/config"
)

// MustConnectRedis returns nil when no address is configured.
func MustConnectRedis(logger zerolog.Logger, cfg config.RedisConfig) *redis.Client {
	if cfg.Addr == "" {
		logger.Info().Msg("redis is not configured")
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	err := client.Ping(context.Background()).Err()
	if err != nil {
		_ = client.Close()
		logger.Error().
			Err(err).
			Str("addr", cfg.Addr).
			Msg("failed to ping redis")
		panic(err)
	}
	logger.Info().
		Str("addr", cfg.Addr).
		Int("db", cfg.DB).
		Msg("connected to redis")
	return client
}

func DisconnectRedis(logger zerolog.Logger, client *redis.Client) {
	if client == nil {
		return
	}
	err := client.Close()
	if err != nil {
		logger.Error().
			Err(err).
			Msg("failed to close redis client")
		return
	}
	logger.Info().Msg("disconnected from redis")
}
