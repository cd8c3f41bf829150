package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

type ApiRouter struct {
	h Handlers
}

func (a ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", cors.New(cors.Config{AllowMethods: "GET"}), limiter.New(limiter.Config{
		Max:     60,
		Storage: a.h.LimiterStorage,
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group("/v1")
	if a.h.Catalog != nil {
		v1.Get("/products", a.h.Catalog.HandleListProducts)
	}
}

func NewApiRouter(h Handlers) *ApiRouter {
	return &ApiRouter{h: h}
}
