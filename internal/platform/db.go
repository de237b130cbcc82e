package platform

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const connectAttempts = 30

// InitDB opens the pool and waits for the database to accept connections.
// Every connection gets lock_timeout so a request blocked on a row lock
// fails instead of waiting forever.
func InitDB(ctx context.Context, cfg Config, logger *zap.Logger) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	// Configure connection pool
	config.MaxConns = cfg.DatabaseMaxConns
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute
	config.HealthCheckPeriod = 1 * time.Minute
	if cfg.LockTimeout > 0 {
		config.ConnConfig.RuntimeParams["lock_timeout"] = strconv.FormatInt(cfg.LockTimeout.Milliseconds(), 10)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Wait for database to be ready
	for i := 0; i < connectAttempts; i++ {
		if err := pool.Ping(ctx); err == nil {
			logger.Info("connected to database", zap.String("host", cfg.DatabaseHost), zap.String("database", cfg.DatabaseName))
			return pool, nil
		}
		logger.Info("waiting for database", zap.Int("attempt", i+1), zap.Int("max_attempts", connectAttempts))

		select {
		case <-ctx.Done():
			pool.Close()
			return nil, ctx.Err()
		case <-time.After(time.Second):
		}
	}

	pool.Close()
	return nil, fmt.Errorf("failed to connect to database after %d attempts", connectAttempts)
}
