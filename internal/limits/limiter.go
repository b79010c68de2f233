package limits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrLimitExceeded = errors.New("rate limit exceeded")

const parallelTTL = 5 * time.Minute

// LimitConfig bounds one caller. Zero values disable the corresponding check.
type LimitConfig struct {
	RequestsPerMinute int
	ParallelRequests  int
}

// RateLimiter keeps fixed-window request counters and in-flight semaphores in Redis.
type RateLimiter struct {
	client *redis.Client
	now    func() time.Time
}

func NewRateLimiter(client *redis.Client) *RateLimiter {
	return &RateLimiter{client: client, now: time.Now}
}

// Acquire admits one request for key. A successful Acquire with
// ParallelRequests > 0 must be paired with Release.
func (l *RateLimiter) Acquire(ctx context.Context, key string, cfg LimitConfig) error {
	if l == nil || l.client == nil {
		return nil
	}
	if cfg.RequestsPerMinute > 0 {
		if err := l.countCheck(ctx, "rpm:"+key, time.Minute, cfg.RequestsPerMinute); err != nil {
			return err
		}
	}
	if cfg.ParallelRequests > 0 {
		if err := l.semaphoreAcquire(ctx, "sem:"+key, cfg.ParallelRequests); err != nil {
			return err
		}
	}
	return nil
}

func (l *RateLimiter) Release(ctx context.Context, key string, cfg LimitConfig) {
	if l == nil || l.client == nil || cfg.ParallelRequests <= 0 {
		return
	}
	l.client.Decr(ctx, "sem:"+key)
}

func (l *RateLimiter) countCheck(ctx context.Context, key string, window time.Duration, limit int) error {
	bucket := l.now().UTC().Unix() / int64(window.Seconds())
	redisKey := fmt.Sprintf("%s:%d", key, bucket)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("rate limit counter: %w", err)
	}
	if int(incr.Val()) > limit {
		return ErrLimitExceeded
	}
	return nil
}

func (l *RateLimiter) semaphoreAcquire(ctx context.Context, key string, max int) error {
	cnt, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("rate limit semaphore: %w", err)
	}
	if cnt == 1 {
		l.client.Expire(ctx, key, parallelTTL)
	}
	if int(cnt) > max {
		l.client.Decr(ctx, key)
		return ErrLimitExceeded
	}
	return nil
}
