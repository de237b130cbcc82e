// Package store defines the persistence contract of the inventory core.
//
// Every multi-step operation runs inside a Tx. Methods named ...ForUpdate take
// a row lock that is held until Commit or Rollback, so read-modify-write
// sequences on the same book or order serialize across concurrent requests.
package store

import (
	"context"

	"github.com/matheusmosca/bookstore-inventory/internal/domain"
	"github.com/shopspring/decimal"
)

// Store opens transactions against the relational store.
type Store interface {
	BeginTx(ctx context.Context) (Tx, error)
	Close()
}

// Tx is a single database transaction. Rollback after Commit is a no-op.
type Tx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	BookRepository
	OrderRepository
	CartRepository
	SaleRepository
}

// BookRepository covers the catalog rows and the stock ledger.
type BookRepository interface {
	CreateBook(ctx context.Context, book *domain.Book) error
	GetBook(ctx context.Context, isbn string) (*domain.Book, error)
	// GetBookForUpdate locks the book row.
	GetBookForUpdate(ctx context.Context, isbn string) (*domain.Book, error)
	// LockBooks locks every listed book in ascending isbn order and fails with
	// domain.ErrNotFound naming the first isbn that does not exist.
	LockBooks(ctx context.Context, isbns []string) (map[string]*domain.Book, error)
	SetStock(ctx context.Context, isbn string, qty int) error
	UpdatePrice(ctx context.Context, isbn string, price decimal.Decimal) error
	InsertMovement(ctx context.Context, m *domain.StockMovement) error
	ListMovements(ctx context.Context, isbn string) ([]domain.StockMovement, error)
	// LowStockBooks returns the books below threshold that have a publisher
	// and no Pending replenishment order, ordered by isbn.
	LowStockBooks(ctx context.Context) ([]domain.LowStockBook, error)
}

// OrderRepository covers replenishment orders.
type OrderRepository interface {
	// InsertOrder assigns order.ID. A second Pending order for the same isbn
	// fails with domain.ErrPendingOrderExists.
	InsertOrder(ctx context.Context, order *domain.ReplenishmentOrder) error
	GetOrder(ctx context.Context, orderID int64) (*domain.ReplenishmentOrder, error)
	GetOrderForUpdate(ctx context.Context, orderID int64) (*domain.ReplenishmentOrder, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status domain.OrderStatus) error
	HasPendingOrder(ctx context.Context, isbn string) (bool, error)
	CountOrders(ctx context.Context, isbn string) (int, error)
	ListOrders(ctx context.Context) ([]domain.ReplenishmentOrder, error)
}

// CartRepository covers per-user carts. Items keep insertion order.
type CartRepository interface {
	GetOrCreateCart(ctx context.Context, userID int64) (int64, error)
	ListCartItems(ctx context.Context, userID int64) ([]domain.CartItem, error)
	// AddCartItem inserts the item or increments the existing quantity.
	AddCartItem(ctx context.Context, userID int64, isbn string, qty int) error
	SetCartItemQuantity(ctx context.Context, userID int64, isbn string, qty int) error
	DeleteCartItem(ctx context.Context, userID int64, isbn string) error
	ClearCart(ctx context.Context, userID int64) error
}

// SaleRepository covers customer orders created at checkout.
type SaleRepository interface {
	// InsertSale assigns sale.OrderNo and sale.OrderDate.
	InsertSale(ctx context.Context, sale *domain.Sale) error
	GetSale(ctx context.Context, orderNo int64) (*domain.Sale, error)
	ListSalesByCustomer(ctx context.Context, customerID int64) ([]domain.Sale, error)
}

// RunInTx runs fn inside a transaction and commits when fn returns nil.
func RunInTx(ctx context.Context, s Store, fn func(tx Tx) error) error {
	tx, err := s.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
