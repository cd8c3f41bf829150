package router

import (
	"github.com/gofiber/fiber/v2"
)

type HttpRouter struct {
	h Handlers
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	if h.h.Health != nil {
		app.Get("/healthz", h.h.Health.HandleHealth)
	}
	h.registerAdminRoutes(app)
}

func NewHttpRouter(h Handlers) *HttpRouter {
	return &HttpRouter{h: h}
}
