package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

type WebhookRouter struct {
	h Handlers
}

func (w WebhookRouter) InstallRouter(app *fiber.App) {
	if w.h.Webhook == nil {
		return
	}
	hooks := app.Group("/webhooks", limiter.New(limiter.Config{
		Max:        120,
		Expiration: time.Minute,
		Storage:    w.h.LimiterStorage,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests",
			})
		},
	}))
	hooks.Post("/stripe", w.h.Webhook.HandleStripeWebhook)
}

func NewWebhookRouter(h Handlers) *WebhookRouter {
	return &WebhookRouter{h: h}
}
