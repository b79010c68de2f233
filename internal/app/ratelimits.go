package app

import (
	"context"

	"github.com/ncecere/seat_billing/internal/config"
	"github.com/ncecere/seat_billing/internal/limits"
)

// AdminLimitFromConfig converts configured limits for admin callers.
func AdminLimitFromConfig(cfg config.RateLimitConfig) limits.LimitConfig {
	return limits.LimitConfig{
		RequestsPerMinute: cfg.RequestsPerMinute,
		ParallelRequests:  cfg.ParallelRequests,
	}
}

// AcquireAdminLimit admits one request for the admin identified by subject.
// The returned release func is always safe to call.
func (c *Container) AcquireAdminLimit(ctx context.Context, subject string) (func(), error) {
	noop := func() {}
	if c == nil || c.RateLimiter == nil {
		return noop, nil
	}
	key := "admin:" + subject
	cfg := c.AdminLimit
	if err := c.RateLimiter.Acquire(ctx, key, cfg); err != nil {
		return noop, err
	}
	return func() { c.RateLimiter.Release(context.WithoutCancel(ctx), key, cfg) }, nil
}
