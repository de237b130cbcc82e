// Package cart keeps the per-user quantities a customer intends to buy.
//
// A cart is advisory: it does not reserve stock. Stock is only checked and
// decremented at checkout, so two users may hold more in their carts than
// exists and the later checkout fails with domain.ErrInsufficientStock.
package cart

import (
	"context"
	"fmt"

	"github.com/matheusmosca/bookstore-inventory/internal/domain"
	"github.com/matheusmosca/bookstore-inventory/internal/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Service exposes cart operations.
type Service struct {
	store  store.Store
	logger *zap.Logger
}

// View is a cart joined with book data, in insertion order.
type View struct {
	UserID int64             `json:"user_id"`
	Items  []domain.CartLine `json:"items"`
	Total  decimal.Decimal   `json:"total"`
}

// NewService creates a new cart Service
func NewService(s store.Store, logger *zap.Logger) *Service {
	return &Service{store: s, logger: logger}
}

// AddItem adds qty of isbn, incrementing the quantity when the book is already in the cart.
// A single add larger than the current stock is refused. Quantities already in
// carts are not counted, so carts may still jointly exceed stock.
func (s *Service) AddItem(ctx context.Context, userID int64, isbn string, qty int) (*View, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("quantity %d: %w", qty, domain.ErrInvalidQuantity)
	}

	var view *View
	err := store.RunInTx(ctx, s.store, func(tx store.Tx) error {
		book, err := tx.GetBook(ctx, isbn)
		if err != nil {
			return err
		}
		if qty > book.StockQty {
			return &domain.InsufficientStockError{ISBN: isbn, Available: book.StockQty, Requested: qty}
		}
		if err := tx.AddCartItem(ctx, userID, isbn, qty); err != nil {
			return err
		}
		view, err = load(ctx, tx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("[CART] item added", zap.Int64("user_id", userID), zap.String("isbn", isbn), zap.Int("quantity", qty))
	return view, nil
}

// UpdateQuantity sets the quantity of isbn. A quantity of zero or less removes the item.
func (s *Service) UpdateQuantity(ctx context.Context, userID int64, isbn string, qty int) (*View, error) {
	if qty <= 0 {
		return s.RemoveItem(ctx, userID, isbn)
	}

	var view *View
	err := store.RunInTx(ctx, s.store, func(tx store.Tx) error {
		if err := tx.SetCartItemQuantity(ctx, userID, isbn, qty); err != nil {
			return err
		}
		var err error
		view, err = load(ctx, tx, userID)
		return err
	})
	return view, err
}

// RemoveItem drops isbn from the cart.
func (s *Service) RemoveItem(ctx context.Context, userID int64, isbn string) (*View, error) {
	var view *View
	err := store.RunInTx(ctx, s.store, func(tx store.Tx) error {
		if err := tx.DeleteCartItem(ctx, userID, isbn); err != nil {
			return err
		}
		var err error
		view, err = load(ctx, tx, userID)
		return err
	})
	return view, err
}

// Clear removes every item.
func (s *Service) Clear(ctx context.Context, userID int64) error {
	return store.RunInTx(ctx, s.store, func(tx store.Tx) error {
		return tx.ClearCart(ctx, userID)
	})
}

// GetItemsWithBookInfo returns the cart lines with current title, price and stock.
func (s *Service) GetItemsWithBookInfo(ctx context.Context, userID int64) (*View, error) {
	var view *View
	err := store.RunInTx(ctx, s.store, func(tx store.Tx) error {
		if _, err := tx.GetOrCreateCart(ctx, userID); err != nil {
			return err
		}
		var err error
		view, err = load(ctx, tx, userID)
		return err
	})
	return view, err
}

func load(ctx context.Context, tx store.Tx, userID int64) (*View, error) {
	items, err := tx.ListCartItems(ctx, userID)
	if err != nil {
		return nil, err
	}

	view := &View{UserID: userID, Items: make([]domain.CartLine, 0, len(items)), Total: decimal.Zero}
	for _, item := range items {
		book, err := tx.GetBook(ctx, item.ISBN)
		if err != nil {
			return nil, err
		}
		subtotal := book.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))
		view.Items = append(view.Items, domain.CartLine{
			ISBN:      item.ISBN,
			Title:     book.Title,
			Quantity:  item.Quantity,
			UnitPrice: book.Price,
			MaxStock:  book.StockQty,
			Subtotal:  subtotal,
		})
		view.Total = view.Total.Add(subtotal)
	}
	return view, nil
}
