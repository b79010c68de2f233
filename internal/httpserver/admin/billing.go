package admin

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/ncecere/seat_billing/internal/app"
	"github.com/ncecere/seat_billing/internal/httpserver/httputil"
	"github.com/ncecere/seat_billing/internal/services/subscription"
	"github.com/ncecere/seat_billing/internal/timeutil"
)

func registerSubscriptionBillingRoutes(router fiber.Router, container *app.Container) {
	router.Get("/organizations/:client_id/subscription-billing", func(c *fiber.Ctx) error {
		svc := container.Subscriptions
		if svc == nil {
			return httputil.WriteError(c, fiber.StatusInternalServerError, msgInternalServer)
		}
		clientID := c.Params("client_id")

		period, err := svc.ParsePeriod(c.Query("year"), c.Query("month"))
		if err != nil {
			return httputil.WriteError(c, fiber.StatusUnprocessableEntity, err.Error())
		}

		report, err := svc.GetSubscriptionBilling(c.UserContext(), clientID, period)
		if err != nil {
			return writeSubscriptionError(c, clientID, err)
		}
		return c.JSON(report)
	})

	router.Get("/pricing-tiers", func(c *fiber.Ctx) error {
		if container.Subscriptions == nil {
			return httputil.WriteError(c, fiber.StatusInternalServerError, msgInternalServer)
		}
		return c.JSON(fiber.Map{"pricing_tiers": container.Subscriptions.PricingTiers()})
	})
}

func writeSubscriptionError(c *fiber.Ctx, clientID string, err error) error {
	switch {
	case errors.Is(err, subscription.ErrInvalidClientID):
		return httputil.WriteError(c, fiber.StatusUnprocessableEntity, "Invalid client_id format")
	case errors.Is(err, subscription.ErrOrganizationNotFound):
		return httputil.WriteError(c, fiber.StatusNotFound, "Organization not found")
	case errors.Is(err, timeutil.ErrInvalidPeriod):
		return httputil.WriteError(c, fiber.StatusUnprocessableEntity, err.Error())
	default:
		slog.Error("subscription billing failed", slog.String("client_id", clientID), slog.String("error", err.Error()))
		return httputil.WriteError(c, fiber.StatusInternalServerError, msgInternalServer)
	}
}
