package admin

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ncecere/seat_billing/internal/app"
)

// Register wires up the protected /admin routes.
func Register(app *fiber.App, container *app.Container) {
	protected := app.Group("/admin", adminAuthMiddleware(container), adminRateLimitMiddleware(container))
	registerSubscriptionBillingRoutes(protected, container)
}
