package authapi

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrLimiterUnavailable is returned when the limiter backend cannot be reached.
var ErrLimiterUnavailable = errors.New("rate limiter unavailable")

// Limiter counts login attempts per key.
//
// Allow records one attempt at now. When the key is over its limit it reports
// false and how long until the next attempt would be accepted.
type Limiter interface {
	Allow(ctx context.Context, key string, now time.Time) (bool, time.Duration, error)
}

// MemoryLimiter is a sliding-window limiter for a single process.
type MemoryLimiter struct {
	max    int
	window time.Duration

	mu     sync.Mutex
	events map[string][]time.Time
}

func NewMemoryLimiter(max int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{max: max, window: window, events: make(map[string][]time.Time)}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string, now time.Time) (bool, time.Duration, error) {
	if l.max <= 0 {
		return true, 0, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	cut := now.Add(-l.window)
	kept := l.events[key][:0]
	for _, t := range l.events[key] {
		if t.After(cut) {
			kept = append(kept, t)
		}
	}

	if blocked, retry := evaluateWindowThrottle(now, kept, l.max, l.window); blocked {
		l.events[key] = kept
		return false, retry, nil
	}
	if len(kept) == 0 && len(l.events) > 4096 {
		l.compact(cut)
	}
	l.events[key] = append(kept, now)
	return true, 0, nil
}

// compact drops keys whose newest event is outside the window.
func (l *MemoryLimiter) compact(cut time.Time) {
	for k, ev := range l.events {
		if len(ev) == 0 || !ev[len(ev)-1].After(cut) {
			delete(l.events, k)
		}
	}
}

// evaluateWindowThrottle reports whether events (any order) already hold max
// entries inside the window ending at now, and when the oldest counted entry
// leaves the window.
func evaluateWindowThrottle(now time.Time, events []time.Time, max int, window time.Duration) (bool, time.Duration) {
	if max <= 0 {
		return false, 0
	}
	cut := now.Add(-window)

	inWindow := 0
	var oldest time.Time
	for _, t := range events {
		if !t.After(cut) {
			continue
		}
		inWindow++
		if oldest.IsZero() || t.Before(oldest) {
			oldest = t
		}
	}
	if inWindow < max {
		return false, 0
	}
	return true, oldest.Add(window).Sub(now)
}

// RedisLimiter is a fixed-window counter shared across processes.
type RedisLimiter struct {
	rdb    redis.Cmdable
	prefix string
	max    int
	window time.Duration
}

func NewRedisLimiter(rdb redis.Cmdable, max int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, prefix: "feedback:rl:", max: max, window: window}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, _ time.Time) (bool, time.Duration, error) {
	if l.max <= 0 {
		return true, 0, nil
	}
	k := l.prefix + key

	count, err := l.rdb.Incr(ctx, k).Result()
	if err != nil {
		return false, 0, fmt.Errorf("%w: %v", ErrLimiterUnavailable, err)
	}
	if count == 1 {
		if err := l.rdb.Expire(ctx, k, l.window).Err(); err != nil {
			return false, 0, fmt.Errorf("%w: %v", ErrLimiterUnavailable, err)
		}
	}
	if count <= int64(l.max) {
		return true, 0, nil
	}

	ttl, err := l.rdb.PTTL(ctx, k).Result()
	if err != nil {
		return false, 0, fmt.Errorf("%w: %v", ErrLimiterUnavailable, err)
	}
	if ttl <= 0 {
		// Key lost its expiry; restore it so the window ends.
		_ = l.rdb.Expire(ctx, k, l.window).Err()
		ttl = l.window
	}
	return false, ttl, nil
}
