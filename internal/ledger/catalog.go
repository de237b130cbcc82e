package ledger

import (
	"context"
	"fmt"

	"github.com/matheusmosca/bookstore-inventory/internal/domain"
	"github.com/matheusmosca/bookstore-inventory/internal/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CreateBook adds a book to the catalog. Its initial stock is recorded as an
// adjustment so the movement trail sums to the current stock.
func (l *Ledger) CreateBook(ctx context.Context, book *domain.Book) error {
	if book.StockQty < 0 || book.ThresholdQty < 0 || !book.Price.IsPositive() {
		return fmt.Errorf("book %s: %w", book.ISBN, domain.ErrInvalidQuantity)
	}

	err := store.RunInTx(ctx, l.store, func(tx store.Tx) error {
		if err := tx.CreateBook(ctx, book); err != nil {
			return err
		}
		if book.StockQty == 0 {
			return nil
		}
		return tx.InsertMovement(ctx, domain.NewStockMovement(book.ISBN, book.StockQty, domain.MovementAdjustment, "initial-stock"))
	})
	if err != nil {
		return err
	}

	l.logger.Info("[CATALOG] book created", zap.String("isbn", book.ISBN), zap.Int("stock_qty", book.StockQty))
	return nil
}

// GetBook returns the catalog row of a book.
func (l *Ledger) GetBook(ctx context.Context, isbn string) (*domain.Book, error) {
	var book *domain.Book
	err := store.RunInTx(ctx, l.store, func(tx store.Tx) error {
		var err error
		book, err = tx.GetBook(ctx, isbn)
		return err
	})
	return book, err
}

// UpdatePrice reprices a book. Existing sales keep their snapshotted prices.
func (l *Ledger) UpdatePrice(ctx context.Context, isbn string, price decimal.Decimal) error {
	if !price.IsPositive() {
		return fmt.Errorf("price %s: %w", price, domain.ErrInvalidQuantity)
	}
	return store.RunInTx(ctx, l.store, func(tx store.Tx) error {
		if _, err := tx.GetBookForUpdate(ctx, isbn); err != nil {
			return err
		}
		return tx.UpdatePrice(ctx, isbn, price)
	})
}
