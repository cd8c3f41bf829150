package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ManuelReschke/MemoWindow/internal/pkg/env"
)

// Config is built once at startup and handed to components in slices.
type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Cache    CacheConfig
	Stripe   StripeConfig
	Printful PrintfulConfig
	Archive  ArchiveConfig
	Catalog  CatalogConfig
	Admin    AdminConfig
	JobQueue JobQueueConfig
}

type AppConfig struct {
	Host string
	Port string
	Env  string
}

func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

func (a AppConfig) IsDev() bool {
	return a.Env == "dev"
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

// DSN returns the go-sql-driver style data source name.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// MigrationURL is the golang-migrate flavour of DSN.
func (d DatabaseConfig) MigrationURL() string {
	return fmt.Sprintf("mysql://%s:%s@tcp(%s:%s)/%s?multiStatements=true",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type CacheConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

func (c CacheConfig) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

type StripeConfig struct {
	WebhookSecret string
	Tolerance     time.Duration
}

type PrintfulConfig struct {
	BaseURL string
	APIKey  string
	StoreID string
	Timeout time.Duration
}

// LeaseDuration is how long a fulfillment attempt may hold an order.
func (p PrintfulConfig) LeaseDuration() time.Duration {
	return p.Timeout + 15*time.Second
}

type ArchiveConfig struct {
	Enabled         bool
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	BucketName      string
	EndpointURL     string // Optional for S3-compatible services
}

type CatalogConfig struct {
	CacheTTL time.Duration
	Fallback []CatalogProduct
}

// CatalogProduct is a static product entry served when the products table is empty.
type CatalogProduct struct {
	ID                string
	Name              string
	Description       string
	PriceCents        int64
	Size              string
	Material          string
	PrintfulVariantID string
}

type AdminConfig struct {
	ListLimit int
}

type JobQueueConfig struct {
	Workers int
}

// DefaultProducts mirrors the products offered on the storefront.
var DefaultProducts = []CatalogProduct{
	{
		ID:                "poster_12x18",
		Name:              "Poster 12x18",
		Description:       "Enhanced matte paper poster with your waveform",
		PriceCents:        2499,
		Size:              "12x18",
		Material:          "Enhanced Matte Paper",
		PrintfulVariantID: "1",
	},
	{
		ID:                "canvas_16x20",
		Name:              "Canvas 16x20",
		Description:       "Gallery wrapped canvas print",
		PriceCents:        5999,
		Size:              "16x20",
		Material:          "Canvas",
		PrintfulVariantID: "2",
	},
	{
		ID:                "mug",
		Name:              "Mug",
		Description:       "11oz ceramic mug",
		PriceCents:        1499,
		Size:              "11oz",
		Material:          "Ceramic",
		PrintfulVariantID: "3",
	},
}

// Load reads every setting from the environment. Call env.SetupEnvFile first.
func Load() *Config {
	return &Config{
		App: AppConfig{
			Host: env.GetEnv("APP_HOST", "0.0.0.0"),
			Port: env.GetEnv("APP_PORT", "4000"),
			Env:  env.GetEnv("APP_ENV", "prod"),
		},
		Database: DatabaseConfig{
			Host:     env.GetEnv("DB_HOST", "127.0.0.1"),
			Port:     env.GetEnv("DB_PORT", "3306"),
			User:     env.GetEnv("DB_USER", ""),
			Password: env.GetEnv("DB_PASSWORD", ""),
			Name:     env.GetEnv("DB_NAME", ""),
		},
		Cache: CacheConfig{
			Host:     env.GetEnv("CACHE_HOST", "localhost"),
			Port:     env.GetEnv("CACHE_PORT", "6379"),
			Password: env.GetEnv("CACHE_PASSWORD", ""),
			DB:       env.GetInt("CACHE_DB", 0),
		},
		Stripe: StripeConfig{
			WebhookSecret: env.GetEnv("STRIPE_WEBHOOK_SECRET", ""),
			Tolerance:     env.GetDuration("STRIPE_WEBHOOK_TOLERANCE", 5*time.Minute),
		},
		Printful: PrintfulConfig{
			BaseURL: env.GetEnv("PRINTFUL_API_URL", "https://api.printful.com/"),
			APIKey:  env.GetEnv("PRINTFUL_API_KEY", ""),
			StoreID: env.GetEnv("PRINTFUL_STORE_ID", ""),
			Timeout: env.GetDuration("PRINTFUL_TIMEOUT", 20*time.Second),
		},
		Archive: ArchiveConfig{
			Enabled:         env.GetBool("S3_ARCHIVE_ENABLED", false),
			AccessKeyID:     env.GetEnv("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: env.GetEnv("S3_SECRET_ACCESS_KEY", ""),
			Region:          env.GetEnv("S3_REGION", "us-west-001"),
			BucketName:      env.GetEnv("S3_BUCKET_NAME", ""),
			EndpointURL:     env.GetEnv("S3_ENDPOINT_URL", ""),
		},
		Catalog: CatalogConfig{
			CacheTTL: env.GetDuration("CATALOG_CACHE_TTL", 5*time.Minute),
			Fallback: DefaultProducts,
		},
		Admin: AdminConfig{
			ListLimit: env.GetInt("ADMIN_LIST_LIMIT", 50),
		},
		JobQueue: JobQueueConfig{
			Workers: env.GetInt("JOBQUEUE_WORKERS", 2),
		},
	}
}

// Validate reports every missing required setting at once.
func (c *Config) Validate() error {
	var missing []string
	if c.Stripe.WebhookSecret == "" {
		missing = append(missing, "STRIPE_WEBHOOK_SECRET")
	}
	if c.Printful.APIKey == "" {
		missing = append(missing, "PRINTFUL_API_KEY")
	}
	if c.Printful.StoreID == "" {
		missing = append(missing, "PRINTFUL_STORE_ID")
	}
	if c.Database.Name == "" {
		missing = append(missing, "DB_NAME")
	}
	if c.Archive.Enabled {
		if c.Archive.AccessKeyID == "" {
			missing = append(missing, "S3_ACCESS_KEY_ID")
		}
		if c.Archive.SecretAccessKey == "" {
			missing = append(missing, "S3_SECRET_ACCESS_KEY")
		}
		if c.Archive.BucketName == "" {
			missing = append(missing, "S3_BUCKET_NAME")
		}
	}
	if c.Stripe.Tolerance <= 0 {
		return errors.New("STRIPE_WEBHOOK_TOLERANCE must be positive")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}
