package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/ManuelReschke/MemoWindow/app/repository"
	"github.com/ManuelReschke/MemoWindow/internal/pkg/cache"
	"github.com/ManuelReschke/MemoWindow/internal/pkg/catalog"
	"github.com/ManuelReschke/MemoWindow/internal/pkg/config"
	"github.com/ManuelReschke/MemoWindow/internal/pkg/database"
	"github.com/ManuelReschke/MemoWindow/internal/pkg/env"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

func main() {
	env.SetupEnvFile()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	cfg := config.Load()
	if command == "seed-admin" || command == "seed-products" {
		seed(cfg, command, os.Args[2:])
		return
	}
	db := cfg.Database

	log.Printf("Connecting to database: %s@%s:%s/%s", db.User, db.Host, db.Port, db.Name)

	source := env.GetEnv("MIGRATIONS_PATH", "file://migrations")
	m, err := migrate.New(source, db.MigrationURL())
	if err != nil {
		log.Fatalf("Failed to initialise migrations: %v", err)
	}

	defer func() {
		if sourceErr, dbErr := m.Close(); sourceErr != nil || dbErr != nil {
			log.Printf("Failed to close migration resources: %v, %v", sourceErr, dbErr)
		}
	}()

	switch command {
	case "up":
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatalf("Failed to apply migrations: %v", err)
		} else if errors.Is(err, migrate.ErrNoChange) {
			log.Println("No change: database is up to date")
		} else {
			log.Println("Migrations applied")
		}

	case "down":
		if err := m.Steps(-1); err != nil {
			log.Fatalf("Failed to roll back the last migration: %v", err)
		}
		log.Println("Rolled back the last migration")

	case "goto":
		if len(os.Args) < 3 {
			log.Fatalf("Please pass a version number")
		}
		version, err := strconv.ParseUint(os.Args[2], 10, 64)
		if err != nil {
			log.Fatalf("Invalid version number: %v", err)
		}

		if err := m.Migrate(uint(version)); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatalf("Failed to migrate to version %d: %v", version, err)
		} else if errors.Is(err, migrate.ErrNoChange) {
			log.Printf("No change: database is already at version %d", version)
		} else {
			log.Printf("Migrated to version %d", version)
		}

	case "status":
		version, dirty, err := m.Version()
		if err != nil {
			if errors.Is(err, migrate.ErrNilVersion) {
				log.Println("No migrations have been applied yet")
			} else {
				log.Fatalf("Failed to read migration version: %v", err)
			}
		} else {
			dirtyStatus := ""
			if dirty {
				dirtyStatus = " (dirty)"
			}
			log.Printf("Current migration version: %d%s", version, dirtyStatus)
		}

	default:
		printUsage()
		os.Exit(1)
	}
}

// seed writes bootstrap rows through the application models.
func seed(cfg *config.Config, command string, args []string) {
	db, err := database.SetupDatabase(cfg.Database, false)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}()
	factory := repository.NewFactory(db)

	switch command {
	case "seed-admin":
		if len(args) < 1 {
			log.Fatalf("Please pass a firebase uid and optionally an email")
		}
		email := ""
		if len(args) > 1 {
			email = args[1]
		}
		admin, created, err := repository.EnsureAdmin(factory.GetAdminRepository(), args[0], email)
		if err != nil {
			log.Fatalf("Failed to seed admin: %v", err)
		}
		if created {
			log.Printf("Created admin %s (id %d)", admin.FirebaseUID, admin.ID)
		} else {
			log.Printf("Admin row for %s already exists (is_admin=%t)", admin.FirebaseUID, admin.IsAdmin)
		}

	case "seed-products":
		c := cache.New(cfg.Cache)
		defer func() { _ = c.Close() }()
		n, err := catalog.NewService(factory.GetProductRepository(), c, cfg.Catalog).
			Seed(context.Background(), cfg.Catalog.Fallback)
		if err != nil {
			log.Fatalf("Failed to seed products: %v", err)
		}
		log.Printf("Seeded %d products", n)
	}
}

func printUsage() {
	fmt.Println("Usage: go run cmd/migrate/main.go [command]")
	fmt.Println("Commands:")
	fmt.Println("  up     - apply all pending migrations")
	fmt.Println("  down   - roll back the last migration")
	fmt.Println("  goto N - migrate to version N")
	fmt.Println("  status - print the current migration version")
	fmt.Println("  seed-admin UID [EMAIL] - grant admin rights to an identity")
	fmt.Println("  seed-products          - fill an empty products table with the default catalog")
}
