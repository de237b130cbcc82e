package domain

import (
	"errors"
	"fmt"
)

// Error kinds returned by the inventory core. Callers classify with errors.Is.
var (
	ErrNotFound           = errors.New("not found")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrEmptyCart          = errors.New("cart is empty")
	ErrInvalidState       = errors.New("invalid state")
	ErrTransientStore     = errors.New("transient store failure")
	ErrPendingOrderExists = errors.New("a pending replenishment order already exists")
	ErrInvalidQuantity    = errors.New("invalid quantity")
	ErrAlreadyExists      = errors.New("already exists")
)

// NotFoundError names the missing entity.
type NotFoundError struct {
	Entity string
	Key    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.Key)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NewNotFound is a shorthand for &NotFoundError{...}.
func NewNotFound(entity, key string) error {
	return &NotFoundError{Entity: entity, Key: key}
}

// InsufficientStockError reports a shortfall for a single book.
type InsufficientStockError struct {
	ISBN      string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: %d available, %d requested", e.ISBN, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// InvalidStateError reports a forbidden replenishment order transition.
type InvalidStateError struct {
	OrderID int64
	Status  OrderStatus
	Op      string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s order %d in status %s", e.Op, e.OrderID, e.Status)
}

func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }

// IsRetryable reports whether err came from a store failure after which the
// whole transaction was rolled back and may be attempted again.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransientStore)
}
