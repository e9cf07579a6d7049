package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"gestoria.cloud/internal/obs"
)

// Throttle limits attempts per key within a window.
type Throttle interface {
	// Allow consumes one attempt. When the attempt is refused it reports how
	// long the caller should wait.
	Allow(ctx context.Context, key string) (bool, time.Duration, error)
}

// LoginKey builds the throttle key for a login attempt.
func LoginKey(ip, email string) string {
	return "login:" + ip + ":" + strings.ToLower(strings.TrimSpace(email))
}

// RedisThrottle is a fixed-window counter shared by every API process.
type RedisThrottle struct {
	client *redis.Client
	limit  int64
	window time.Duration
	prefix string
}

// NewRedisThrottle allows limit attempts per window.
func NewRedisThrottle(client *redis.Client, limit int, window time.Duration) *RedisThrottle {
	return &RedisThrottle{client: client, limit: int64(limit), window: window, prefix: "gestoria:throttle:"}
}

func (t *RedisThrottle) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	k := t.prefix + key
	n, err := t.client.Incr(ctx, k).Result()
	if err != nil {
		return false, 0, fmt.Errorf("throttle incr: %w", err)
	}
	if n == 1 {
		if err := t.client.Expire(ctx, k, t.window).Err(); err != nil {
			return false, 0, fmt.Errorf("throttle expire: %w", err)
		}
	}
	if n <= t.limit {
		return true, 0, nil
	}
	wait, err := t.client.PTTL(ctx, k).Result()
	if err != nil {
		return false, 0, fmt.Errorf("throttle ttl: %w", err)
	}
	if wait <= 0 {
		wait = t.window
	}
	return false, wait, nil
}

// LocalThrottle is a per-process token bucket per key.
type LocalThrottle struct {
	limit    rate.Limit
	burst    int
	limiters *lru.LRU[string, *rate.Limiter]
}

// NewLocalThrottle allows limit attempts per window, refilled evenly.
func NewLocalThrottle(limit int, window time.Duration) *LocalThrottle {
	if limit <= 0 {
		limit = 1
	}
	return &LocalThrottle{
		limit:    rate.Every(window / time.Duration(limit)),
		burst:    limit,
		limiters: lru.NewLRU[string, *rate.Limiter](10000, nil, 2*window),
	}
}

func (t *LocalThrottle) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	lim, ok := t.limiters.Get(key)
	if !ok {
		lim = rate.NewLimiter(t.limit, t.burst)
		t.limiters.Add(key, lim)
	}
	res := lim.Reserve()
	if !res.OK() {
		return false, time.Second, nil
	}
	if d := res.Delay(); d > 0 {
		res.Cancel()
		return false, d, nil
	}
	return true, 0, nil
}

// FallbackThrottle uses primary and switches to fallback while primary
// errors.
type FallbackThrottle struct {
	primary  Throttle
	fallback Throttle
}

func NewFallbackThrottle(primary, fallback Throttle) *FallbackThrottle {
	return &FallbackThrottle{primary: primary, fallback: fallback}
}

func (t *FallbackThrottle) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	ok, wait, err := t.primary.Allow(ctx, key)
	if err == nil {
		return ok, wait, nil
	}
	obs.Logger().WithError(err).WithFields(logrus.Fields{"component": "throttle"}).Warn("throttle backend unavailable, using local limiter")
	return t.fallback.Allow(ctx, key)
}
