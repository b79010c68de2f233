package admin

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ncecere/seat_billing/internal/app"
	"github.com/ncecere/seat_billing/internal/auth"
	"github.com/ncecere/seat_billing/internal/httpserver/httputil"
	"github.com/ncecere/seat_billing/internal/limits"
	"github.com/ncecere/seat_billing/internal/requestctx"
)

const (
	adminAuthHeaderPrefix = "bearer "

	msgUnauthorized   = "Invalid or expired token"
	msgForbidden      = "Admin access required"
	msgRateLimited    = "Rate limit exceeded"
	msgInternalServer = "Internal server error"
)

func adminAuthMiddleware(container *app.Container) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
		token := ""
		if strings.HasPrefix(strings.ToLower(raw), adminAuthHeaderPrefix) {
			token = strings.TrimSpace(raw[len(adminAuthHeaderPrefix):])
		}
		if token == "" || container.Tokens == nil {
			return httputil.WriteError(c, fiber.StatusUnauthorized, msgUnauthorized)
		}

		claims, err := container.Tokens.Authorize(token, container.Config.Admin.AdminRole)
		switch {
		case errors.Is(err, auth.ErrForbidden):
			return httputil.WriteError(c, fiber.StatusForbidden, msgForbidden)
		case err != nil:
			return httputil.WriteError(c, fiber.StatusUnauthorized, msgUnauthorized)
		}
		requestID, _ := c.Locals("requestid").(string)
		c.SetUserContext(requestctx.WithContext(c.UserContext(), &requestctx.Context{
			Subject:   claims.Subject,
			Email:     claims.Email,
			Roles:     claims.Roles,
			RequestID: requestID,
		}))
		return c.Next()
	}
}

func adminRateLimitMiddleware(container *app.Container) fiber.Handler {
	return func(c *fiber.Ctx) error {
		subject := requestctx.Subject(c.UserContext())
		if subject == "" {
			return httputil.WriteError(c, fiber.StatusUnauthorized, msgUnauthorized)
		}
		release, err := container.AcquireAdminLimit(c.UserContext(), subject)
		if err != nil {
			if errors.Is(err, limits.ErrLimitExceeded) {
				return httputil.WriteError(c, fiber.StatusTooManyRequests, msgRateLimited)
			}
			slog.Error("admin rate limit check failed", slog.String("subject", subject), slog.String("error", err.Error()))
			return httputil.WriteError(c, fiber.StatusInternalServerError, msgInternalServer)
		}
		defer release()
		return c.Next()
	}
}
