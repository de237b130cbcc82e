package replenishment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/matheusmosca/bookstore-inventory/internal/domain"
	"github.com/matheusmosca/bookstore-inventory/internal/store"
	"github.com/matheusmosca/bookstore-inventory/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	// MinReorderQuantity is the floor of every automatic order.
	MinReorderQuantity = 20
	// ReorderMultiplier scales threshold_qty into the automatic order size.
	ReorderMultiplier = 2

	scanLockKey = "bookstore:lowstock:scan"
)

// ReorderQuantity is max(20, threshold*2).
func ReorderQuantity(threshold int) int {
	return max(MinReorderQuantity, threshold*ReorderMultiplier)
}

// Locker provides mutual exclusion between detector processes.
type Locker interface {
	// TryLock reports ok=false when another holder owns key.
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(context.Context) error, ok bool, err error)
}

// ScanFailure is a book whose order could not be created.
type ScanFailure struct {
	ISBN string `json:"isbn"`
	Err  error  `json:"-"`
}

// ScanReport summarizes one detector pass.
type ScanReport struct {
	Books    []domain.LowStockBook       `json:"books"`
	Created  []domain.ReplenishmentOrder `json:"created"`
	Failures []ScanFailure               `json:"failures,omitempty"`
	// Skipped is set when another process held the scan lock.
	Skipped bool `json:"skipped,omitempty"`
}

// Detector finds books below their threshold and raises Pending orders.
type Detector struct {
	store   store.Store
	manager *Manager
	logger  *zap.Logger
	tracer  trace.Tracer
	locker  Locker
	lockTTL time.Duration
	adminID int64

	created metric.Int64Counter
}

// NewDetector creates a Detector that places orders through manager on
// behalf of adminID. locker may be nil when a single process runs the scan.
func NewDetector(s store.Store, manager *Manager, locker Locker, adminID int64, logger *zap.Logger, tracer trace.Tracer) *Detector {
	return &Detector{
		store:   s,
		manager: manager,
		logger:  logger,
		tracer:  tracer,
		locker:  locker,
		lockTTL: 5 * time.Minute,
		adminID: adminID,
		created: telemetry.Counter("bookstore.lowstock.orders_created",
			"Replenishment orders raised by the low-stock detector"),
	}
}

// Scan runs one detection pass. Each order is created in its own short
// transaction; a failure on one book is logged and the scan moves on. Running
// Scan twice in a row creates no orders the second time.
func (d *Detector) Scan(ctx context.Context) (*ScanReport, error) {
	ctx, span := d.tracer.Start(ctx, "lowstock.scan")
	defer span.End()

	if d.locker != nil {
		unlock, ok, err := d.locker.TryLock(ctx, scanLockKey, d.lockTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire scan lock: %w", err)
		}
		if !ok {
			d.logger.Info("[LOW STOCK] another scan is running, skipping")
			return &ScanReport{Skipped: true}, nil
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				d.logger.Warn("[LOW STOCK] failed to release scan lock", zap.Error(err))
			}
		}()
	}

	books, err := d.candidates(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	report := &ScanReport{Books: books}
	if len(books) == 0 {
		d.logger.Info("[LOW STOCK] no books below threshold need orders")
		return report, nil
	}

	d.logger.Info("[LOW STOCK] books below threshold", zap.Int("count", len(books)))
	for _, book := range books {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		publisherID := book.PublisherID
		order, err := d.manager.Create(ctx, CreateRequest{
			ISBN:        book.ISBN,
			PublisherID: &publisherID,
			AdminID:     d.adminID,
			Quantity:    ReorderQuantity(book.ThresholdQty),
		})
		if err != nil {
			d.logger.Error("[LOW STOCK] failed to create order",
				zap.String("isbn", book.ISBN),
				zap.Error(err))
			report.Failures = append(report.Failures, ScanFailure{ISBN: book.ISBN, Err: err})
			continue
		}
		report.Created = append(report.Created, *order)
		d.created.Add(ctx, 1)
	}

	span.SetAttributes(
		attribute.Int("lowstock.candidates", len(books)),
		attribute.Int("lowstock.created", len(report.Created)),
		attribute.Int("lowstock.failed", len(report.Failures)),
	)
	d.logger.Info("[LOW STOCK] scan finished",
		zap.Int("created", len(report.Created)),
		zap.Int("failed", len(report.Failures)))
	return report, nil
}

func (d *Detector) candidates(ctx context.Context) ([]domain.LowStockBook, error) {
	tx, err := d.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin low stock query: %w", err)
	}
	defer tx.Rollback(ctx)

	return tx.LowStockBooks(ctx)
}

// Run scans immediately and then every interval until ctx is cancelled.
// Scan errors are logged; the loop keeps going.
func (d *Detector) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("invalid scan interval %s: must be positive", interval)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := d.Scan(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error("[LOW STOCK] scan failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
