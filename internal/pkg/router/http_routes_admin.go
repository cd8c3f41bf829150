package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

func (h HttpRouter) registerAdminRoutes(app *fiber.App) {
	if h.h.AdminOrders == nil {
		return
	}
	// admin identity is resolved per request from the user_id / admin_user_id values
	adminGroup := app.Group("/admin")
	adminGroup.Get("/orders", h.h.AdminOrders.HandleAdminOrders)
	adminGroup.Post("/orders/cancel", limiter.New(limiter.Config{
		Max:        30,
		Expiration: time.Minute,
		Storage:    h.h.LimiterStorage,
	}), h.h.AdminOrders.HandleCancelOrder)
}
