package router

import (
	"github.com/ManuelReschke/MemoWindow/app/controllers"
	"github.com/gofiber/fiber/v2"
)

// Router registers a group of routes on the app.
type Router interface {
	InstallRouter(app *fiber.App)
}

// Handlers carries the wired controllers. LimiterStorage nil means the
// limiter keeps its counters in memory.
type Handlers struct {
	Webhook        *controllers.WebhookController
	AdminOrders    *controllers.AdminOrderController
	Catalog        *controllers.CatalogController
	Health         *controllers.HealthController
	LimiterStorage fiber.Storage
}

func InstallRouter(app *fiber.App, h Handlers) {
	// Webhooks first: they must see the raw body before any other middleware.
	setup(app, NewWebhookRouter(h), NewHttpRouter(h), NewApiRouter(h))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
