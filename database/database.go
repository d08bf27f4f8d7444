package database

import (
	"context" // For managing request context and cancellation signals
	_ "embed"
	"fmt"  // For string formatting
	"log"  // For logging messages
	"time" // For time-related operations (e.g., connection timeout)

	"ridehail/backend/config" // Import the local config package

	"github.com/jackc/pgx/v5"         // Base pgx package
	"github.com/jackc/pgx/v5/pgconn"  // For pgconn.CommandTag
	"github.com/jackc/pgx/v5/pgxpool" // PostgreSQL driver and connection pool
)

// DBPool defines the interface for database operations we need.
// This allows mocking for tests. It includes methods from pgxpool.Pool.
type DBPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
	Begin(ctx context.Context) (pgx.Tx, error)
}

//go:embed schema.sql
var schemaSQL string

// ConnectDB initializes the database connection pool using configuration.
func ConnectDB(ctx context.Context, cfg *config.Config) (DBPool, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	log.Println("Attempting to connect to database...")

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Printf("Error parsing database connection string: %v\n", err)
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}

	poolConfig.MaxConns = 10                      // Maximum number of connections in the pool
	poolConfig.MinConns = 2                       // Minimum number of connections to keep open
	poolConfig.MaxConnLifetime = time.Hour        // Maximum lifetime of a connection
	poolConfig.MaxConnIdleTime = time.Minute * 30 // Maximum idle time for a connection
	poolConfig.HealthCheckPeriod = time.Minute    // How often to check connection health

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		log.Printf("Error connecting to the database: %v\n", err)
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		log.Printf("Error pinging database: %v\n", err)
		pool.Close() // Close the pool if ping fails
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	log.Println("Database connection pool established successfully!")
	return pool, nil
}

// Migrate applies the embedded schema. Every statement is idempotent
// (IF NOT EXISTS), so it is safe to run on each start.
func Migrate(ctx context.Context, db DBPool) error {
	log.Println("Applying database schema...")
	if _, err := db.Exec(ctx, schemaSQL); err != nil {
		log.Printf("Error applying schema: %v", err)
		return fmt.Errorf("schema migration failed: %w", err)
	}
	log.Println("Database schema is up to date.")
	return nil
}

// CloseDB closes the database connection pool.
// Should be called on application shutdown.
func CloseDB(db DBPool) {
	if db != nil {
		log.Println("Closing database connection pool...")
		db.Close()
		log.Println("Database connection pool closed.")
	}
}
