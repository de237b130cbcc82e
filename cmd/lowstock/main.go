// Command lowstock raises replenishment orders for books below their
// threshold. It runs once with -once, otherwise every -interval.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/matheusmosca/bookstore-inventory/internal/events"
	"github.com/matheusmosca/bookstore-inventory/internal/joblock"
	"github.com/matheusmosca/bookstore-inventory/internal/platform"
	"github.com/matheusmosca/bookstore-inventory/internal/replenishment"
	"github.com/matheusmosca/bookstore-inventory/internal/store/postgres"
	"github.com/matheusmosca/bookstore-inventory/internal/telemetry"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

func main() {
	cfg, err := platform.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	once := flag.Bool("once", false, "run a single scan and exit")
	interval := flag.Duration("interval", cfg.LowStockInterval, "time between scans")
	flag.Parse()
	if !*once && *interval <= 0 {
		log.Fatalf("Invalid -interval %s: must be positive", *interval)
	}

	logger, err := platform.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.OTelEnabled {
		tp, err := telemetry.InitTracer(ctx, cfg.OTelEndpoint, cfg.ServiceName+"-lowstock")
		if err != nil {
			logger.Fatal("failed to initialize tracer", zap.Error(err))
		}
		defer tp.Shutdown(context.Background())

		mp, err := telemetry.InitMetrics(ctx, cfg.OTelEndpoint, cfg.ServiceName+"-lowstock")
		if err != nil {
			logger.Fatal("failed to initialize metrics", zap.Error(err))
		}
		defer mp.Shutdown(context.Background())
	}
	tracer := otel.Tracer(telemetry.InstrumentationName)

	pool, err := platform.InitDB(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	s := postgres.NewPostgresStore(pool)
	defer s.Close()

	var locker replenishment.Locker
	if cfg.RedisURL != "" {
		redisLocker, closeRedis, err := joblock.NewRedisLockerFromURL(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer closeRedis()
		locker = redisLocker
	}

	manager := replenishment.NewManager(s, logger, tracer)
	if len(cfg.KafkaBrokers) > 0 {
		publisher := events.NewKafkaPublisher(cfg.KafkaTopic, cfg.KafkaBrokers...)
		defer publisher.Close()
		manager.SetPublisher(publisher)
	}
	detector := replenishment.NewDetector(s, manager, locker, cfg.LowStockAdminID, logger, tracer)

	if *once {
		report, err := detector.Scan(ctx)
		if err != nil {
			logger.Fatal("low stock scan failed", zap.Error(err))
		}
		logger.Info("low stock scan complete",
			zap.Int("candidates", len(report.Books)),
			zap.Int("created", len(report.Created)),
			zap.Int("failed", len(report.Failures)),
			zap.Bool("skipped", report.Skipped))
		return
	}

	logger.Info("low stock detector started", zap.Duration("interval", *interval))
	if err := detector.Run(ctx, *interval); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("low stock detector stopped", zap.Error(err))
	}
}
