// Package ratelimit decides whether a client identified by a key may make
// another request.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// LocalLimiter keeps one token bucket per key in process memory. Buckets
// idle for longer than a full refill are dropped, since a fresh bucket
// behaves the same.
type LocalLimiter struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	now     func() time.Time

	mu        sync.Mutex
	visitors  map[string]*visitor
	lastSweep time.Time
}

func NewLocalLimiter(requestsPerMinute, burst int) *LocalLimiter {
	interval := time.Minute / time.Duration(max(requestsPerMinute, 1))
	burst = max(burst, 1)
	return &LocalLimiter{
		limit:    rate.Every(interval),
		burst:    burst,
		idleTTL:  max(time.Minute, interval*time.Duration(burst)),
		now:      time.Now,
		visitors: make(map[string]*visitor),
	}
}

func (l *LocalLimiter) Allow(_ context.Context, key string) (bool, error) {
	now := l.now()
	return l.visitor(key, now).AllowN(now, 1), nil
}

func (l *LocalLimiter) visitor(key string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) >= l.idleTTL {
		l.sweep(now)
	}

	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter
}

// sweep must be called with mu held.
func (l *LocalLimiter) sweep(now time.Time) {
	for key, v := range l.visitors {
		if now.Sub(v.lastSeen) >= l.idleTTL {
			delete(l.visitors, key)
		}
	}
	l.lastSweep = now
}
