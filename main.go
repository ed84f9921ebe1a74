package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/UlisesFTP/pconstruct-pricing/config"
	"github.com/UlisesFTP/pconstruct-pricing/database"
	"github.com/UlisesFTP/pconstruct-pricing/handlers"
	"github.com/UlisesFTP/pconstruct-pricing/jobs"
	"github.com/UlisesFTP/pconstruct-pricing/services"
)

func main() {
	cfg := config.LoadConfig()

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if cfg.DatabaseURL == "" {
		logrus.Fatal("DATABASE_URL is required")
	}
	if err := database.Connect(cfg.DatabaseURL); err != nil {
		logrus.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	if err := database.Migrate("database/schema.sql"); err != nil {
		logrus.Fatalf("Failed to run migrations: %v", err)
	}
	if err := database.ValidateSchema(); err != nil {
		logrus.Fatalf("Schema validation failed: %v", err)
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logrus.Fatalf("Invalid REDIS_URL: %v", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	queue := services.NewRefreshQueue(redisClient)
	if err := queue.EnsureGroup(ctx); err != nil {
		logrus.Fatalf("Failed to prepare refresh queue: %v", err)
	}

	pool := services.NewBrowserPool(cfg.BrowserPoolSize)
	scrapers := []services.RetailerScraper{
		services.NewAmazonScraper(pool),
		services.NewMercadoLibreScraper(pool),
		services.NewCyberpuertaScraper(),
	}

	coordinator := services.NewScrapeCoordinator(scrapers, cfg.GetScrapeTimeout(), 1)
	selector := services.NewBestPriceSelector(cfg.TrustedRetailers, cfg.GetStaleThreshold())
	cache := services.NewPriceCache(redisClient, cfg.GetCacheTTL())
	store := services.NewPriceStore(database.DB)
	catalog := services.NewCatalogClient(cfg.CatalogServiceURL)
	dispatcher := services.NewRefreshDispatcher(queue)

	assembler := services.NewPriceAssembler(
		cache, store, dispatcher, coordinator, catalog, selector, pool,
		cfg.GetStoreWindow(), cfg.GetSyncWait(),
	)

	if cfg.RunWorker {
		worker := jobs.NewRefreshWorker(
			queue, catalog, coordinator, store, cache, selector,
			cfg.WorkerCount, cfg.RedeliveryLimit,
		)
		worker.Start(ctx)
		defer worker.Stop()
	}

	app := fiber.New(fiber.Config{
		AppName:      "PConstruct Pricing Service",
		ErrorHandler: globalErrorHandler,
	})

	app.Use(fiberlogger.New())
	app.Use(cors.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		if err := database.HealthCheck(); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "unhealthy",
				"error":  err.Error(),
			})
		}
		if err := redisClient.Ping(c.Context()).Err(); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "unhealthy",
				"error":  "redis unreachable",
			})
		}
		return c.JSON(fiber.Map{"status": "healthy"})
	})

	priceHandler := handlers.NewPriceHandler(assembler, dispatcher, store, cfg.DefaultCountry)
	catalogHandler := handlers.NewCatalogHandler(assembler, cfg.DefaultCountry)
	adminHandler := handlers.NewAdminHandler(queue, coordinator, store)

	api := app.Group("/api/v1")
	api.Get("/prices/:component_id/history", priceHandler.GetPriceHistory)
	api.Get("/prices/:component_id", priceHandler.GetBestPrice)
	api.Post("/prices/refresh", priceHandler.RequestRefresh)
	api.Get("/catalog/components", catalogHandler.GetComponents)
	api.Get("/admin/queue/stats", adminHandler.GetQueueStats)
	api.Get("/admin/stats", adminHandler.GetServiceStats)

	go func() {
		<-ctx.Done()
		logrus.Info("Shutting down server")
		_ = app.Shutdown()
	}()

	logrus.WithFields(logrus.Fields{
		"port":   cfg.ServerPort,
		"worker": cfg.RunWorker,
	}).Info("Starting pricing service")

	if err := app.Listen(":" + cfg.ServerPort); err != nil {
		logrus.Fatalf("Server stopped: %v", err)
	}
}

func globalErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}
	logrus.WithFields(logrus.Fields{
		"path":  c.Path(),
		"error": err,
	}).Error("Unhandled request error")
	return c.Status(code).JSON(fiber.Map{
		"success": false,
		"error":   err.Error(),
	})
}
