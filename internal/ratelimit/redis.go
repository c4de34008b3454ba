package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "rate_limit:"

// slidingWindowScript records a request only when it is allowed, so
// denied retries do not extend a client's block.
//
// KEYS[1] window key
// ARGV[1] window start, ARGV[2] now, ARGV[3] limit, ARGV[4] member, ARGV[5] window ms
var slidingWindowScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '0', ARGV[1])
local count = redis.call('ZCARD', KEYS[1])
if count >= tonumber(ARGV[3]) then
  return 0
end
redis.call('ZADD', KEYS[1], ARGV[2], ARGV[4])
redis.call('PEXPIRE', KEYS[1], ARGV[5])
return 1
`)

// RedisLimiter counts allowed requests of the last window in a sorted set
// per key, so every instance behind a load balancer shares the same budget.
type RedisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewRedisLimiter(client *redis.Client, requestsPerMinute int) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		limit:  max(requestsPerMinute, 1),
		window: time.Minute,
		now:    time.Now,
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := l.now().UnixNano()
	windowStart := now - l.window.Nanoseconds()

	allowed, err := slidingWindowScript.Run(
		ctx,
		l.client,
		[]string{redisKeyPrefix + key},
		strconv.FormatInt(windowStart, 10),
		strconv.FormatInt(now, 10),
		l.limit,
		uuid.NewString(),
		l.window.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("failed to run rate limit script: %w", err)
	}
	return allowed == 1, nil
}
