package redisclient

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ncecere/seat_billing/internal/config"
)

// New constructs a Redis client. Plain host:port and unix socket paths are
// accepted alongside redis:// URLs.
func New(cfg config.RedisConfig) (*redis.Client, error) {
	raw := strings.TrimSpace(cfg.URL)
	if raw == "" {
		return nil, fmt.Errorf("redis url is required")
	}

	var opts *redis.Options
	if strings.Contains(raw, "://") {
		parsed, err := redis.ParseURL(raw)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: raw}
		if strings.HasPrefix(raw, "/") {
			opts.Network = "unix"
		}
	}

	if cfg.DB != 0 {
		opts.DB = cfg.DB
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}

	client := redis.NewClient(opts)
	client.AddHook(skipMaintNotifications{})
	return client, nil
}

// Ping verifies connectivity to Redis with a short timeout.
func Ping(ctx context.Context, client *redis.Client) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := client.Ping(timeoutCtx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

// skipMaintNotifications drops the CLIENT MAINT_NOTIFICATIONS handshake that
// older Redis servers reject.
type skipMaintNotifications struct{}

func isMaintNotifications(cmd redis.Cmder) bool {
	if !strings.EqualFold(cmd.FullName(), "client") || len(cmd.Args()) < 2 {
		return false
	}
	name, ok := cmd.Args()[1].(string)
	return ok && strings.EqualFold(name, "maint_notifications")
}

func (skipMaintNotifications) DialHook(next redis.DialHook) redis.DialHook { return next }

func (skipMaintNotifications) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if isMaintNotifications(cmd) {
			return nil
		}
		return next(ctx, cmd)
	}
}

func (skipMaintNotifications) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		kept := make([]redis.Cmder, 0, len(cmds))
		for _, cmd := range cmds {
			if !isMaintNotifications(cmd) {
				kept = append(kept, cmd)
			}
		}
		return next(ctx, kept)
	}
}
