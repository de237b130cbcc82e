package domain

import (
	"time"

	"github.com/google/uuid"
)

// NewStockMovement creates a movement entry with a fresh id.
func NewStockMovement(isbn string, delta int, reason MovementReason, reference string) *StockMovement {
	return &StockMovement{
		ID:        uuid.New().String(),
		ISBN:      isbn,
		Delta:     delta,
		Reason:    reason,
		Reference: reference,
		CreatedAt: time.Now(),
	}
}
