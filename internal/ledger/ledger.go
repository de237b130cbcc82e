// Package ledger owns the authoritative per-book stock counter.
package ledger

import (
	"context"
	"fmt"

	"github.com/matheusmosca/bookstore-inventory/internal/domain"
	"github.com/matheusmosca/bookstore-inventory/internal/store"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Ledger reads and adjusts stock_qty.
type Ledger struct {
	store  store.Store
	logger *zap.Logger
	tracer trace.Tracer
}

// NewLedger creates a new Ledger
func NewLedger(s store.Store, logger *zap.Logger, tracer trace.Tracer) *Ledger {
	return &Ledger{
		store:  s,
		logger: logger,
		tracer: tracer,
	}
}

// GetStock returns the current stock of a book.
func (l *Ledger) GetStock(ctx context.Context, isbn string) (int, error) {
	tx, err := l.store.BeginTx(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	book, err := tx.GetBook(ctx, isbn)
	if err != nil {
		return 0, err
	}
	return book.StockQty, nil
}

// AdjustStock applies delta in its own transaction and returns the new quantity.
// It is the manual stock-take path; sales and replenishments call Apply inside
// their own transactions.
func (l *Ledger) AdjustStock(ctx context.Context, isbn string, delta int, reference string) (int, error) {
	ctx, span := l.tracer.Start(ctx, "ledger.adjust_stock")
	defer span.End()
	span.SetAttributes(attribute.String("isbn", isbn), attribute.Int("delta", delta))

	// 1. Begin transaction
	tx, err := l.store.BeginTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin adjustment: %w", err)
	}
	defer tx.Rollback(ctx)

	// 2. Lock, validate and write
	newQty, err := Apply(ctx, tx, isbn, delta, domain.MovementAdjustment, reference)
	if err != nil {
		span.RecordError(err)
		l.logger.Info("[ADJUST] rejected", zap.String("isbn", isbn), zap.Int("delta", delta), zap.Error(err))
		return 0, err
	}

	// 3. Commit
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit adjustment: %w", err)
	}

	l.logger.Info("[ADJUST] stock adjusted", zap.String("isbn", isbn), zap.Int("delta", delta), zap.Int("stock_qty", newQty))
	return newQty, nil
}

// Movements returns the audit trail of a book in chronological order.
func (l *Ledger) Movements(ctx context.Context, isbn string) ([]domain.StockMovement, error) {
	tx, err := l.store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.GetBook(ctx, isbn); err != nil {
		return nil, err
	}
	return tx.ListMovements(ctx, isbn)
}

// Apply locks the book row, applies delta and records the movement, all in tx.
// A result below zero fails with *domain.InsufficientStockError and writes
// nothing. A zero delta returns the current stock without writing.
func Apply(ctx context.Context, tx store.Tx, isbn string, delta int, reason domain.MovementReason, reference string) (int, error) {
	book, err := tx.GetBookForUpdate(ctx, isbn)
	if err != nil {
		return 0, err
	}
	if delta == 0 {
		return book.StockQty, nil
	}

	newQty := book.StockQty + delta
	if newQty < 0 {
		return 0, &domain.InsufficientStockError{ISBN: isbn, Available: book.StockQty, Requested: -delta}
	}

	if err := tx.SetStock(ctx, isbn, newQty); err != nil {
		return 0, err
	}
	if err := tx.InsertMovement(ctx, domain.NewStockMovement(isbn, delta, reason, reference)); err != nil {
		return 0, err
	}
	return newQty, nil
}
