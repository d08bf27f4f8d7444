package main

import (
	"context"
	"log" // Import standard log package
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/adaptor/v2"                 // Fiber adaptor for net/http handlers
	"github.com/gofiber/fiber/v2"                   // Import Fiber framework
	"github.com/gofiber/fiber/v2/middleware/logger" // Fiber logger middleware
	"github.com/newrelic/go-agent/v3/newrelic"

	"ridehail/backend/config"     // Local config package
	"ridehail/backend/database"   // Local database package
	"ridehail/backend/handlers"   // Local handlers package
	"ridehail/backend/middleware" // Local middleware package
	"ridehail/backend/services"   // Local services package
)

const (
	eventTimeout    = 5 * time.Second
	shutdownTimeout = 10 * time.Second
)

// main is the entry point of the application.
func main() {
	// Load configuration first
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database connection and schema
	db, err := database.ConnectDB(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.CloseDB(db) // Ensure DB connection is closed when main function exits

	if err := database.Migrate(ctx, db); err != nil {
		log.Fatalf("Failed to apply database schema: %v", err)
	}

	// Optional New Relic agent
	var nrApp *newrelic.Application
	if cfg.NewRelicLicenseKey != "" {
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelicAppName),
			newrelic.ConfigLicense(cfg.NewRelicLicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
		)
		if err != nil {
			log.Printf("Warning: New Relic agent disabled: %v", err)
			nrApp = nil
		} else {
			log.Printf("New Relic agent started for app %s", cfg.NewRelicAppName)
			defer nrApp.Shutdown(shutdownTimeout)
		}
	}

	// Realtime fan-out and response replay share Redis when configured.
	var publisher services.Publisher = services.LogPublisher{}
	var responseCache middleware.ResponseCache
	if cfg.RedisURL != "" {
		redisClient, err := database.ConnectRedis(ctx, cfg.RedisURL, nrApp)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
		publisher = services.NewRedisPublisher(redisClient)
		responseCache = middleware.NewRedisResponseCache(redisClient)
	} else {
		log.Println("REDIS_URL not set: realtime events are logged and idempotent replay is disabled")
	}

	var notifier services.Notifier = services.LogNotifier{}
	if cfg.AMQPURL != "" {
		rabbit, err := services.NewRabbitMQNotifier(cfg.AMQPURL, cfg.NotifyExchange)
		if err != nil {
			log.Fatalf("Failed to connect to RabbitMQ: %v", err)
		}
		defer rabbit.Close()
		notifier = rabbit
	} else {
		log.Println("AMQP_URL not set: notifications are logged only")
	}

	events := services.NewEventDispatcher(notifier, publisher, eventTimeout)
	defer events.Wait()

	// --- Setup application services ---
	stripeService := services.NewStripeServiceImpl(cfg.StripeSecretKey, cfg.GatewayTimeout)
	authService := services.NewAuthService(cfg, db)
	rideService := services.NewRideService(db, events)
	walletService := services.NewWalletService(cfg, db, stripeService, events)
	paymentService := services.NewPaymentService(cfg, db, stripeService, walletService, events)

	// Create a new Fiber app instance
	app := fiber.New()

	// Add logger middleware for http requests
	app.Use(logger.New())
	app.Use(middleware.NewRelic(nrApp))

	// Simple health check route at the root
	app.Get("/", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok", "message": "Ride-hailing backend is running"})
	})

	// Setup API v1 group
	apiV1 := app.Group("/api/v1")

	// --- Setup middleware ---
	authMiddleware := middleware.Protected(cfg)
	idempotency := middleware.Idempotency(responseCache, cfg.IdempotencyTTL)

	// --- Setup routes ---
	handlers.SetupAuthRoutes(apiV1, authService)
	rideGroup := handlers.SetupRideRoutes(apiV1, rideService, authMiddleware, idempotency)
	handlers.SetupWalletRoutes(apiV1, rideGroup, walletService, authMiddleware, idempotency)
	handlers.SetupPaymentRoutes(apiV1, paymentService, authMiddleware, idempotency)

	// The path MUST match the one configured in the Stripe dashboard
	webhookHandler := handlers.NewPaymentHandler(paymentService)
	app.Post("/api/v1/stripe-webhook", adaptor.HTTPHandlerFunc(webhookHandler.HandleStripeWebhook))
	log.Println("Stripe webhook route (/api/v1/stripe-webhook) registered using adaptor.")

	go func() {
		<-ctx.Done()
		log.Println("Shutdown signal received, draining requests...")
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			log.Printf("Error during server shutdown: %v", err)
		}
	}()

	port := cfg.ServerPort
	log.Printf("Starting ride-hailing backend on port %s", port)
	if err := app.Listen(":" + port); err != nil {
		log.Printf("Server stopped: %v", err)
	}
	log.Println("Server exited, waiting for pending events")
}
