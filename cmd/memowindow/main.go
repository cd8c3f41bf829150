package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/gorm"

	"github.com/ManuelReschke/MemoWindow/app/controllers"
	"github.com/ManuelReschke/MemoWindow/app/repository"
	"github.com/ManuelReschke/MemoWindow/internal/pkg/apidocs"
	"github.com/ManuelReschke/MemoWindow/internal/pkg/archive"
	"github.com/ManuelReschke/MemoWindow/internal/pkg/cache"
	"github.com/ManuelReschke/MemoWindow/internal/pkg/catalog"
	"github.com/ManuelReschke/MemoWindow/internal/pkg/checkout"
	"github.com/ManuelReschke/MemoWindow/internal/pkg/config"
	"github.com/ManuelReschke/MemoWindow/internal/pkg/database"
	"github.com/ManuelReschke/MemoWindow/internal/pkg/env"
	"github.com/ManuelReschke/MemoWindow/internal/pkg/jobqueue"
	"github.com/ManuelReschke/MemoWindow/internal/pkg/metrics/counter"
	"github.com/ManuelReschke/MemoWindow/internal/pkg/orders"
	"github.com/ManuelReschke/MemoWindow/internal/pkg/payment"
	"github.com/ManuelReschke/MemoWindow/internal/pkg/printful"
	"github.com/ManuelReschke/MemoWindow/internal/pkg/router"
	"github.com/ManuelReschke/MemoWindow/views"
)

// Application bundles the HTTP app with the resources it must release.
type Application struct {
	App      *fiber.App
	Config   *config.Config
	DB       *gorm.DB
	Cache    *cache.Cache
	Manager  *jobqueue.Manager
	Pipeline *checkout.Pipeline
}

func main() {
	env.SetupEnvFile()
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[Main] %v", err)
	}
	if cfg.App.IsDev() {
		log.SetLevel(log.LevelDebug)
	}

	application, err := NewApplication(cfg)
	if err != nil {
		log.Fatalf("[Main] Startup failed: %v", err)
	}
	application.Manager.Start()

	go func() {
		if err := application.App.Listen(cfg.App.Addr()); err != nil {
			log.Errorf("[Main] Server stopped: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("[Main] Shutting down...")
	application.Shutdown(30 * time.Second)
}

func NewApplication(cfg *config.Config) (*Application, error) {
	db, err := database.SetupDatabase(cfg.Database, cfg.App.IsDev())
	if err != nil {
		return nil, err
	}
	cacheClient := cache.New(cfg.Cache)

	repos := repository.NewFactory(db).GetRepositories()
	ledger := orders.NewServiceFromDB(db)
	provider := printful.NewClient(cfg.Printful)
	products := catalog.NewService(repos.Product, cacheClient, cfg.Catalog)

	queue := jobqueue.NewQueue(cacheClient.Client(), cfg.JobQueue.Workers)
	queue.RegisterProcessor(jobqueue.JobTypeReconcileOrder, jobqueue.NewReconcileProcessor(ledger, provider))
	manager := jobqueue.NewManager(queue, ledger)

	var archiver checkout.Archiver
	if cfg.Archive.Enabled {
		a, err := archive.New(context.Background(), cfg.Archive)
		if err != nil {
			return nil, err
		}
		archiver = a
	}

	pipeline := checkout.NewPipeline(checkout.Options{
		Verifier:   payment.NewVerifier(cfg.Stripe.WebhookSecret, cfg.Stripe.Tolerance),
		Provider:   provider,
		Ledger:     ledger,
		Reconciler: queue,
		Archiver:   archiver,
		Prices:     products,
		Timeout:    cfg.Printful.Timeout,
		Lease:      cfg.Printful.LeaseDuration(),
	})

	outcomes := counter.New(cacheClient.Client())

	app := fiber.New(fiber.Config{
		Views:     views.NewEngine(),
		BodyLimit: 1 << 20,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// SWAGGER / OPENAPI
	apidocs.Mount(app, findDocsFile())

	webhooks := controllers.NewWebhookController(pipeline, cfg.Printful.LeaseDuration()+15*time.Second).
		WithOutcomeRecorder(outcomes)
	adminOrders := controllers.NewAdminOrderController(ledger, repos.Admin, provider, cfg.Admin.ListLimit).
		WithOutcomeStats(outcomes)
	health := controllers.NewHealthController(map[string]controllers.HealthCheck{
		"database": func(context.Context) error { return database.Ping(db) },
		"cache":    cacheClient.Ping,
	})

	// ROUTER
	router.InstallRouter(app, router.Handlers{
		Webhook:        webhooks,
		AdminOrders:    adminOrders,
		Catalog:        controllers.NewCatalogController(products),
		Health:         health,
		LimiterStorage: router.NewLimiterStorage(cfg.Cache, cacheClient),
	})

	return &Application{
		App:      app,
		Config:   cfg,
		DB:       db,
		Cache:    cacheClient,
		Manager:  manager,
		Pipeline: pipeline,
	}, nil
}

// Shutdown stops accepting requests, lets in-flight webhooks and archive
// uploads finish, then stops the workers and closes connections.
func (a *Application) Shutdown(timeout time.Duration) {
	if err := a.App.ShutdownWithTimeout(timeout); err != nil {
		log.Errorf("[Main] HTTP shutdown: %v", err)
	}
	a.Pipeline.Wait()
	a.Manager.Stop()
	if err := a.Cache.Close(); err != nil {
		log.Warnf("[Main] Cache close: %v", err)
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			log.Warnf("[Main] Database close: %v", err)
		}
	}
	log.Info("[Main] Bye")
}

func findDocsFile() string {
	// Define possible base paths
	basePaths := []string{
		"./",        // Current directory
		"../../",    // From cmd/memowindow to project root
		"../../../", // Fallback
	}
	for _, base := range basePaths {
		candidate := filepath.Join(base, "public", "docs", "v1", "openapi.yml")
		if _, err := os.Stat(candidate); !errors.Is(err, os.ErrNotExist) {
			return candidate
		}
	}
	return filepath.Join("public", "docs", "v1", "openapi.yml")
}
