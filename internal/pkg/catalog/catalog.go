package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/ManuelReschke/MemoWindow/app/models"
	"github.com/ManuelReschke/MemoWindow/app/repository"
	"github.com/ManuelReschke/MemoWindow/internal/pkg/cache"
	"github.com/ManuelReschke/MemoWindow/internal/pkg/config"
	"github.com/gofiber/fiber/v2/log"
)

// CacheKey holds the JSON encoded product list.
const CacheKey = "catalog:products"

// Item is a product as served to the storefront. Price is in cents.
type Item struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Description       string `json:"description"`
	Price             int64  `json:"price"`
	PriceFormatted    string `json:"price_formatted"`
	Size              string `json:"size"`
	Material          string `json:"material"`
	ProviderVariantID string `json:"provider_variant_id"`
}

// Service reads the catalog from the products table, caches it and falls
// back to the configured static list when the table is empty or unreachable.
type Service struct {
	repo     repository.ProductRepository
	cache    *cache.Cache
	ttl      time.Duration
	fallback []config.CatalogProduct
}

// NewService creates a catalog service. cache may be nil.
func NewService(repo repository.ProductRepository, c *cache.Cache, cfg config.CatalogConfig) *Service {
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	fallback := cfg.Fallback
	if len(fallback) == 0 {
		fallback = config.DefaultProducts
	}
	return &Service{repo: repo, cache: c, ttl: ttl, fallback: fallback}
}

// List returns the active products. It never fails: storage problems are
// logged and answered with the static list.
func (s *Service) List(ctx context.Context) []Item {
	if s.cache != nil {
		var cached []Item
		err := s.cache.GetJSON(ctx, CacheKey, &cached)
		if err == nil && len(cached) > 0 {
			return cached
		}
		if err != nil && !errors.Is(err, cache.ErrMiss) {
			log.Warnf("[Catalog] Cache read failed: %v", err)
		}
	}

	items, fromStore := s.load()
	if fromStore && s.cache != nil {
		if err := s.cache.SetJSON(ctx, CacheKey, items, s.ttl); err != nil {
			log.Warnf("[Catalog] Cache write failed: %v", err)
		}
	}
	return items
}

// UnitPrice returns the catalog price of productID in cents.
func (s *Service) UnitPrice(ctx context.Context, productID string) (int64, bool) {
	for _, item := range s.List(ctx) {
		if item.ID == productID {
			return item.Price, true
		}
	}
	return 0, false
}

// Invalidate drops the cached list.
func (s *Service) Invalidate(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Delete(ctx, CacheKey)
}

// Seed fills an empty products table with the given entries and drops the
// cached list. A table that already holds products is left untouched.
func (s *Service) Seed(ctx context.Context, products []config.CatalogProduct) (int, error) {
	if s.repo == nil {
		return 0, errors.New("catalog has no product store")
	}
	n, err := s.repo.Count()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Infof("[Catalog] Products table already holds %d products, not seeding", n)
		return 0, nil
	}

	for i, p := range products {
		if err := s.repo.Create(&models.Product{
			ID:                p.ID,
			Name:              p.Name,
			Description:       p.Description,
			PriceCents:        p.PriceCents,
			Size:              p.Size,
			Material:          p.Material,
			PrintfulVariantID: p.PrintfulVariantID,
			IsActive:          true,
			SortOrder:         i,
		}); err != nil {
			return i, err
		}
	}

	if err := s.Invalidate(ctx); err != nil {
		log.Warnf("[Catalog] Seeded %d products but the cached list was not dropped: %v", len(products), err)
	}
	return len(products), nil
}

func (s *Service) load() ([]Item, bool) {
	if s.repo != nil {
		products, err := s.repo.ListActive()
		if err != nil {
			log.Errorf("[Catalog] Failed to load products, serving static catalog: %v", err)
		} else if len(products) > 0 {
			items := make([]Item, 0, len(products))
			for _, p := range products {
				items = append(items, fromModel(p))
			}
			return items, true
		}
	}

	items := make([]Item, 0, len(s.fallback))
	for _, p := range s.fallback {
		items = append(items, Item{
			ID:                p.ID,
			Name:              p.Name,
			Description:       p.Description,
			Price:             p.PriceCents,
			PriceFormatted:    models.FormatPrice(p.PriceCents),
			Size:              p.Size,
			Material:          p.Material,
			ProviderVariantID: p.PrintfulVariantID,
		})
	}
	return items, false
}

func fromModel(p models.Product) Item {
	return Item{
		ID:                p.ID,
		Name:              p.Name,
		Description:       p.Description,
		Price:             p.PriceCents,
		PriceFormatted:    models.FormatPrice(p.PriceCents),
		Size:              p.Size,
		Material:          p.Material,
		ProviderVariantID: p.PrintfulVariantID,
	}
}
