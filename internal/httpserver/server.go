package httpserver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/ncecere/seat_billing/internal/app"
	"github.com/ncecere/seat_billing/internal/config"
	adminroutes "github.com/ncecere/seat_billing/internal/httpserver/admin"
	"github.com/ncecere/seat_billing/internal/httpserver/httputil"
)

// Server wraps the Fiber app and configuration.
type Server struct {
	app       *fiber.App
	cfg       *config.Config
	container *app.Container
}

// New constructs a server with baseline middleware ready.
func New(container *app.Container) (*Server, error) {
	if container == nil {
		return nil, fmt.Errorf("dependency container is required")
	}

	cfg := container.Config
	if cfg == nil {
		return nil, fmt.Errorf("container missing config")
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ServerHeader:          "seat-billing",
		BodyLimit:             cfg.Server.BodyLimitMB * 1024 * 1024,
		ReadTimeout:           cfg.Server.ReadTimeout,
		IdleTimeout:           cfg.Server.IdleTimeout,
		ReadBufferSize:        4 * 1024,
		WriteBufferSize:       4 * 1024,
		ErrorHandler:          errorHandler,
	})

	app.Use(requestid.New())
	app.Use(logger.New())
	app.Use(recover.New())

	if container.Observability != nil {
		app.Use(func(c *fiber.Ctx) error {
			start := time.Now()
			err := c.Next()
			container.Observability.RecordHTTPRequest(c.UserContext(), c.Method(), routePath(c), c.Response().StatusCode(), time.Since(start))
			return err
		})
	}

	if container.Observability != nil && container.Observability.TracerProvider() != nil {
		tracer := otel.Tracer("seat_billing/http")
		app.Use(func(c *fiber.Ctx) error {
			spanCtx, span := tracer.Start(c.UserContext(), c.Method()+" "+c.Path())
			c.SetUserContext(spanCtx)
			err := c.Next()
			span.SetAttributes(
				attribute.String("http.method", c.Method()),
				attribute.String("http.route", routePath(c)),
				attribute.Int("http.status_code", c.Response().StatusCode()),
			)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			} else if status := c.Response().StatusCode(); status >= 500 {
				span.SetStatus(codes.Error, fmt.Sprintf("status %d", status))
			} else {
				span.SetStatus(codes.Ok, "OK")
			}
			span.End()
			return err
		})
	}

	if container.Observability != nil {
		if handler := container.Observability.PrometheusHandler(); handler != nil {
			app.Get("/metrics", adaptor.HTTPHandler(handler))
		}
	}

	registerHealthRoutes(app, container)
	adminroutes.Register(app, container)

	return &Server{
		app:       app,
		cfg:       cfg,
		container: container,
	}, nil
}

// Listen blocks until context cancellation or a fatal listen error occurs.
func (s *Server) Listen(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.app.Listen(s.cfg.Server.ListenAddr)
	}()

	select {
	case <-ctx.Done():
		timeout := s.cfg.Server.GracefulShutdownDelay
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		err := s.app.ShutdownWithContext(shutdownCtx)
		if err == nil {
			err = <-errCh
		}
		return err
	case err := <-errCh:
		return err
	}
}

// App exposes the underlying fiber app for in-process requests.
func (s *Server) App() *fiber.App { return s.app }

// routePath prefers the registered pattern so metrics do not fan out per client id.
func routePath(c *fiber.Ctx) string {
	if r := c.Route(); r != nil && r.Path != "" {
		return r.Path
	}
	return c.Path()
}

// errorHandler keeps unhandled errors in the {"error": ...} shape.
func errorHandler(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	msg := "Internal server error"
	var fe *fiber.Error
	if errors.As(err, &fe) {
		status = fe.Code
		if status < fiber.StatusInternalServerError {
			msg = fe.Message
		}
	}
	return httputil.WriteError(c, status, msg)
}

type healthCheck struct {
	name  string
	probe func(context.Context) error
}

func registerHealthRoutes(app *fiber.App, container *app.Container) {
	var probes []healthCheck
	if container.DBPool != nil {
		probes = append(probes, healthCheck{name: "postgres", probe: container.DBPool.Ping})
	}
	if container.Redis != nil {
		probes = append(probes, healthCheck{name: "redis", probe: func(ctx context.Context) error {
			return container.Redis.Ping(ctx).Err()
		}})
	}

	app.Get("/healthz", func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()

		overall := "ok"
		checks := make(map[string]fiber.Map, len(probes))
		for _, hc := range probes {
			start := time.Now()
			err := hc.probe(ctx)
			check := fiber.Map{"status": "ok", "latency_ms": time.Since(start).Milliseconds()}
			if err != nil {
				check["status"] = "error"
				check["error"] = err.Error()
				overall = "degraded"
			}
			checks[hc.name] = check
		}
		return c.JSON(fiber.Map{"status": overall, "checks": checks})
	})
}
