package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/ncecere/seat_billing/internal/auth"
	"github.com/ncecere/seat_billing/internal/billing"
	"github.com/ncecere/seat_billing/internal/cache"
	"github.com/ncecere/seat_billing/internal/config"
	"github.com/ncecere/seat_billing/internal/limits"
	"github.com/ncecere/seat_billing/internal/observability"
	"github.com/ncecere/seat_billing/internal/orgstore"
	"github.com/ncecere/seat_billing/internal/services/subscription"
	"github.com/ncecere/seat_billing/internal/storage/blob"
)

// Container aggregates runtime dependencies for handlers and services.
type Container struct {
	Config        *config.Config
	DBPool        *pgxpool.Pool
	Redis         *redis.Client
	Subscriptions *subscription.Service
	Tokens        *auth.TokenManager
	RateLimiter   *limits.RateLimiter
	AdminLimit    limits.LimitConfig
	Observability *observability.Provider
}

// NewContainer builds a dependency container from the provided primitives.
func NewContainer(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, redisClient *redis.Client) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if pool == nil {
		return nil, fmt.Errorf("db pool is required")
	}
	if redisClient == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	calc, err := NewCalculator(cfg.Billing)
	if err != nil {
		return nil, err
	}

	tokens, err := auth.NewTokenManager(cfg.Admin.JWTSecret, cfg.Admin.AccessTokenTTL, cfg.Admin.Issuer)
	if err != nil {
		return nil, fmt.Errorf("init admin tokens: %w", err)
	}

	obs, err := observability.Setup(ctx, cfg.Observability)
	if err != nil {
		return nil, fmt.Errorf("init observability: %w", err)
	}

	opts := subscription.Options{Logger: slog.Default()}
	if cfg.Archive.Enabled {
		store, err := blob.New(ctx, cfg.Archive)
		if err != nil {
			return nil, fmt.Errorf("init report archive: %w", err)
		}
		opts.Archive = blob.NewReportArchive(store)
	}
	if obs != nil {
		opts.Metrics = obs
	}
	reports := cache.NewReportCache(redisClient, cfg.Billing.ReportCacheTTL)
	if reports != nil {
		opts.Cache = reports
	}

	return &Container{
		Config:        cfg,
		DBPool:        pool,
		Redis:         redisClient,
		Subscriptions: subscription.NewService(orgstore.New(pool), calc, opts),
		Tokens:        tokens,
		RateLimiter:   limits.NewRateLimiter(redisClient),
		AdminLimit:    AdminLimitFromConfig(cfg.RateLimits),
		Observability: obs,
	}, nil
}

// NewCalculator builds the billing calculator from configuration.
func NewCalculator(cfg config.BillingConfig) (*billing.Calculator, error) {
	tiers, err := cfg.PricingTiers()
	if err != nil {
		return nil, fmt.Errorf("load pricing tiers: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("load billing timezone: %w", err)
	}
	basis, err := billing.ParseProrationBasis(cfg.ProrationBasis)
	if err != nil {
		return nil, err
	}
	return billing.NewCalculator(tiers, billing.CalculatorOptions{Location: loc, Basis: basis})
}
