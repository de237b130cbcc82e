package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/matheusmosca/bookstore-inventory/internal/cart"
	"github.com/matheusmosca/bookstore-inventory/internal/checkout"
	"github.com/matheusmosca/bookstore-inventory/internal/domain"
	"github.com/matheusmosca/bookstore-inventory/internal/events"
	"github.com/matheusmosca/bookstore-inventory/internal/httpapi"
	"github.com/matheusmosca/bookstore-inventory/internal/joblock"
	"github.com/matheusmosca/bookstore-inventory/internal/ledger"
	"github.com/matheusmosca/bookstore-inventory/internal/platform"
	"github.com/matheusmosca/bookstore-inventory/internal/replenishment"
	"github.com/matheusmosca/bookstore-inventory/internal/store"
	"github.com/matheusmosca/bookstore-inventory/internal/store/memory"
	"github.com/matheusmosca/bookstore-inventory/internal/store/postgres"
	"github.com/matheusmosca/bookstore-inventory/internal/telemetry"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

func main() {
	useMemory := flag.Bool("memory", false, "serve from an in-process store seeded with sample books")
	confirmTrigger := flag.String("confirm-trigger", "", "install or drop the legacy confirmation trigger before serving")
	flag.Parse()

	cfg, err := platform.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := platform.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize OpenTelemetry
	if cfg.OTelEnabled {
		tp, err := telemetry.InitTracer(ctx, cfg.OTelEndpoint, cfg.ServiceName)
		if err != nil {
			logger.Fatal("failed to initialize tracer", zap.Error(err))
		}
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				logger.Error("error shutting down tracer", zap.Error(err))
			}
		}()

		mp, err := telemetry.InitMetrics(ctx, cfg.OTelEndpoint, cfg.ServiceName)
		if err != nil {
			logger.Fatal("failed to initialize metrics", zap.Error(err))
		}
		defer func() {
			if err := mp.Shutdown(context.Background()); err != nil {
				logger.Error("error shutting down meter", zap.Error(err))
			}
		}()
	}
	tracer := otel.Tracer(telemetry.InstrumentationName)

	// Initialize store
	var s store.Store
	if *useMemory {
		mem := memory.NewMemoryStore()
		mem.Seed(sampleBooks()...)
		s = mem
		logger.Info("serving from in-memory store")
	} else {
		pg, err := openPostgres(ctx, cfg, logger, *confirmTrigger)
		if err != nil {
			logger.Fatal("failed to initialize database", zap.Error(err))
		}
		s = pg
	}
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

	// Initialize dependencies
	manager := replenishment.NewManager(s, logger, tracer)
	processor := checkout.NewProcessor(s, logger, tracer)
	if len(cfg.KafkaBrokers) > 0 {
		publisher := events.NewKafkaPublisher(cfg.KafkaTopic, cfg.KafkaBrokers...)
		defer publisher.Close()
		manager.SetPublisher(publisher)
		processor.SetPublisher(publisher)
		logger.Info("publishing inventory events", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}

	handler := httpapi.NewHandler(
		ledger.NewLedger(s, logger, tracer),
		cart.NewService(s, logger),
		processor,
		manager,
		replenishment.NewDetector(s, manager, locker, cfg.LowStockAdminID, logger, tracer),
		logger,
		tracer,
	)

	// Setup Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(cfg.ServiceName))
	handler.Register(r)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	go func() {
		logger.Info("bookstore inventory listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func openPostgres(ctx context.Context, cfg platform.Config, logger *zap.Logger, confirmTrigger string) (*postgres.PostgresStore, error) {
	pool, err := platform.InitDB(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	if cfg.MigrateOnStart {
		if err := postgres.RunMigrations(cfg.DSN()); err != nil {
			pool.Close()
			return nil, err
		}
		logger.Info("migrations applied")
	}

	pg := postgres.NewPostgresStore(pool)
	switch confirmTrigger {
	case "":
	case "install":
		err = pg.InstallConfirmTrigger(ctx)
	case "drop":
		err = pg.DropConfirmTrigger(ctx)
	default:
		err = errors.New("-confirm-trigger must be install or drop")
	}
	if err != nil {
		pg.Close()
		return nil, err
	}
	if confirmTrigger != "" {
		logger.Warn("legacy confirmation trigger changed", zap.String("action", confirmTrigger))
	}
	return pg, nil
}

func sampleBooks() []domain.Book {
	publisher := int64(1)
	return []domain.Book{
		{ISBN: "978-0-13-419044-0", Title: "The Go Programming Language", Price: decimal.RequireFromString("39.99"), StockQty: 12, ThresholdQty: 5, PublisherID: &publisher},
		{ISBN: "978-1-49-195229-4", Title: "Concurrency in Go", Price: decimal.RequireFromString("34.50"), StockQty: 3, ThresholdQty: 5, PublisherID: &publisher},
		{ISBN: "978-1-59-327584-6", Title: "Network Programming with Go", Price: decimal.RequireFromString("44.95"), StockQty: 0, ThresholdQty: 2},
	}
}
