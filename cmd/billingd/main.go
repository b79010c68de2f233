package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ncecere/seat_billing/internal/app"
	"github.com/ncecere/seat_billing/internal/config"
	"github.com/ncecere/seat_billing/internal/database"
	"github.com/ncecere/seat_billing/internal/httpserver"
	"github.com/ncecere/seat_billing/internal/redisclient"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg, err := config.Load(config.Options{})
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	if cfg.Database.RunMigrations {
		if err := database.RunMigrations(ctx, cfg.Database); err != nil {
			log.Fatalf("run migrations: %v", err)
		}
	}

	dbPool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	defer dbPool.Close()

	redisClient, err := redisclient.New(cfg.Redis)
	if err != nil {
		log.Fatalf("configure redis: %v", err)
	}
	if err := redisclient.Ping(ctx, redisClient); err != nil {
		log.Fatalf("connect redis: %v", err)
	}
	defer redisClient.Close()

	container, err := app.NewContainer(ctx, cfg, dbPool, redisClient)
	if err != nil {
		log.Fatalf("build container: %v", err)
	}
	if container.Observability != nil {
		defer container.Observability.Shutdown(context.WithoutCancel(ctx))
	}

	server, err := httpserver.New(container)
	if err != nil {
		log.Fatalf("construct server: %v", err)
	}

	slog.Info("billing service listening",
		slog.String("addr", cfg.Server.ListenAddr),
		slog.String("timezone", cfg.Billing.Timezone),
		slog.String("proration_basis", cfg.Billing.ProrationBasis),
	)
	if err := server.Listen(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("server stopped: %v", err)
	}
}
