// Package platform wires process-level dependencies: configuration, logging
// and the database pool.
package platform

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is read from the environment once at startup.
type Config struct {
	Port        string
	ServiceName string
	LogLevel    string

	DatabaseUser     string
	DatabasePassword string
	DatabaseHost     string
	DatabasePort     string
	DatabaseName     string
	DatabaseMaxConns int32
	LockTimeout      time.Duration
	MigrateOnStart   bool

	OTelEnabled  bool
	OTelEndpoint string

	RedisURL         string
	KafkaBrokers     []string
	KafkaTopic       string
	LowStockInterval time.Duration
	LowStockAdminID  int64
}

// Load reads Config from the environment, applying defaults.
func Load() (Config, error) {
	cfg := Config{
		Port:             getEnv("PORT", "8080"),
		ServiceName:      getEnv("SERVICE_NAME", "bookstore-inventory"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		DatabaseUser:     getEnv("DATABASE_USER", "root"),
		DatabasePassword: getEnv("DATABASE_PASSWORD", "pass"),
		DatabaseHost:     getEnv("DATABASE_HOST", "localhost"),
		DatabasePort:     getEnv("DATABASE_PORT", "5432"),
		DatabaseName:     getEnv("DATABASE_NAME", "bookstore_db"),
		OTelEndpoint:     getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
		RedisURL:         getEnv("REDIS_URL", ""),
		KafkaTopic:       getEnv("KAFKA_TOPIC", "bookstore-inventory"),
	}
	if brokers := getEnv("KAFKA_BROKERS", ""); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}

	maxConns, err := strconv.ParseInt(getEnv("DATABASE_MAX_CONNS", "10"), 10, 32)
	if err != nil {
		return Config{}, fmt.Errorf("invalid DATABASE_MAX_CONNS: %w", err)
	}
	cfg.DatabaseMaxConns = int32(maxConns)

	if cfg.LockTimeout, err = time.ParseDuration(getEnv("LOCK_TIMEOUT", "5s")); err != nil {
		return Config{}, fmt.Errorf("invalid LOCK_TIMEOUT: %w", err)
	}
	if cfg.MigrateOnStart, err = strconv.ParseBool(getEnv("MIGRATE_ON_START", "true")); err != nil {
		return Config{}, fmt.Errorf("invalid MIGRATE_ON_START: %w", err)
	}
	if cfg.OTelEnabled, err = strconv.ParseBool(getEnv("OTEL_ENABLED", "false")); err != nil {
		return Config{}, fmt.Errorf("invalid OTEL_ENABLED: %w", err)
	}
	if cfg.LowStockInterval, err = time.ParseDuration(getEnv("LOWSTOCK_INTERVAL", "1h")); err != nil {
		return Config{}, fmt.Errorf("invalid LOWSTOCK_INTERVAL: %w", err)
	}
	if cfg.LowStockInterval <= 0 {
		return Config{}, fmt.Errorf("invalid LOWSTOCK_INTERVAL: %s is not positive", cfg.LowStockInterval)
	}
	if cfg.LowStockAdminID, err = strconv.ParseInt(getEnv("LOWSTOCK_ADMIN_ID", "1"), 10, 64); err != nil {
		return Config{}, fmt.Errorf("invalid LOWSTOCK_ADMIN_ID: %w", err)
	}

	return cfg, nil
}

// DSN is the postgres:// URL for the configured database.
func (c Config) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DatabaseUser,
		c.DatabasePassword,
		c.DatabaseHost,
		c.DatabasePort,
		c.DatabaseName,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
