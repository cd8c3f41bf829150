package apidocs

import (
	"context"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

// Load parses and validates the OpenAPI document at path.
func Load(ctx context.Context, path string) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("invalid OpenAPI document %s: %w", path, err)
	}
	return doc, nil
}

// Mount serves the swagger UI under /docs/api/v1. An invalid or missing
// document is logged and the UI is skipped.
func Mount(app *fiber.App, path string) {
	doc, err := Load(context.Background(), path)
	if err != nil {
		log.Warnf("[APIDocs] Swagger UI disabled: %v", err)
		return
	}

	app.Use(swagger.New(swagger.Config{
		BasePath: "/docs/api/",
		FilePath: path,
		Path:     "v1",
		Title:    doc.Info.Title,
	}))
}
