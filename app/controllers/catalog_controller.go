package controllers

import (
	"context"

	"github.com/ManuelReschke/MemoWindow/internal/pkg/catalog"
	"github.com/gofiber/fiber/v2"
)

// ProductLister returns the storefront products.
type ProductLister interface {
	List(ctx context.Context) []catalog.Item
}

type CatalogController struct {
	products ProductLister
}

func NewCatalogController(products ProductLister) *CatalogController {
	return &CatalogController{products: products}
}

// HandleListProducts always answers with a JSON array, the catalog falls back
// to the static list when the store is unavailable.
func (cc *CatalogController) HandleListProducts(c *fiber.Ctx) error {
	items := cc.products.List(c.UserContext())
	if items == nil {
		items = []catalog.Item{}
	}
	c.Set(fiber.HeaderCacheControl, "public, max-age=60")
	return c.JSON(items)
}
