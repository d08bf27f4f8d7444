package config

import (
	"fmt"
	"log" // Standard log package
	"os"  // Package to interact with the OS, including environment variables
	"strconv"
	"time"

	"github.com/joho/godotenv" // Package to load .env files
)

// Config holds all configuration for the application.
// Values are read from environment variables.
type Config struct {
	DatabaseURL string
	ServerPort  string
	JWTSecret   string // Used to verify (and issue) bearer tokens

	StripeSecretKey     string
	StripeWebhookSecret string
	PaymentCurrency     string        // 3-letter ISO code, lower case as Stripe reports it
	GatewayTimeout      time.Duration // Upper bound for a single verification call
	// PaymentCompletesRide advances a linked IN_PROGRESS ride to COMPLETED once its
	// gateway payment settles. Set to false to keep payment and trip status independent.
	PaymentCompletesRide bool

	RedisURL       string        // Push publisher + idempotency cache; empty disables both
	IdempotencyTTL time.Duration // How long a replayable response is kept
	AMQPURL        string        // Notification dispatch; empty falls back to log-only
	NotifyExchange string

	NewRelicAppName    string
	NewRelicLicenseKey string // Empty disables the agent
}

// LoadConfig reads configuration from environment variables.
// It loads a .env file first if it exists.
func LoadConfig() (*Config, error) {
	// Attempt to load .env file. Ignore error if it doesn't exist.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	cfg := &Config{
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		ServerPort:          getEnv("SERVER_PORT", "8080"),
		JWTSecret:           getEnv("JWT_SECRET", "your-very-secret-key"), // !! CHANGE THIS IN PRODUCTION !!
		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		PaymentCurrency:     getEnv("PAYMENT_CURRENCY", "ngn"),
		RedisURL:            getEnv("REDIS_URL", ""),
		AMQPURL:             getEnv("AMQP_URL", ""),
		NotifyExchange:      getEnv("NOTIFY_EXCHANGE", "ride.notifications"),
		NewRelicAppName:     getEnv("NEW_RELIC_APP_NAME", "ridehail-backend"),
		NewRelicLicenseKey:  getEnv("NEW_RELIC_LICENSE_KEY", ""),
	}

	var err error
	if cfg.GatewayTimeout, err = getDuration("GATEWAY_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.IdempotencyTTL, err = getDuration("IDEMPOTENCY_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.PaymentCompletesRide, err = getBool("PAYMENT_COMPLETES_RIDE", true); err != nil {
		return nil, err
	}

	// Basic validation (ensure critical keys are present)
	if cfg.DatabaseURL == "" || cfg.StripeSecretKey == "" || cfg.StripeWebhookSecret == "" || cfg.JWTSecret == "your-very-secret-key" {
		log.Println("Warning: One or more critical configuration keys (Database URL, Stripe keys, JWT Secret) are missing or using default values.")
	}

	log.Println("Configuration loaded successfully")
	return cfg, nil
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	log.Printf("Environment variable %s not set, using fallback '%s'", key, fallback)
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw, exists := os.LookupEnv(key)
	if !exists || raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid duration for %s: %q", key, raw)
	}
	return d, nil
}

func getBool(key string, fallback bool) (bool, error) {
	raw, exists := os.LookupEnv(key)
	if !exists || raw == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid boolean for %s: %q", key, raw)
	}
	return b, nil
}
