package replenishment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/matheusmosca/bookstore-inventory/internal/domain"
	"github.com/matheusmosca/bookstore-inventory/internal/store"
	"github.com/matheusmosca/bookstore-inventory/internal/store/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func publisher(id int64) *int64 { return &id }

func newBook(isbn string, stock, threshold int, publisherID *int64) domain.Book {
	return domain.Book{
		ISBN:         isbn,
		Title:        "Book " + isbn,
		Price:        decimal.NewFromInt(10),
		StockQty:     stock,
		ThresholdQty: threshold,
		PublisherID:  publisherID,
	}
}

func newManager(s store.Store) *Manager {
	m := NewManager(s, zap.NewNop(), noop.NewTracerProvider().Tracer("test"))
	m.now = func() time.Time { return time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC) }
	return m
}

func stockOf(t *testing.T, s store.Store, isbn string) int {
	t.Helper()
	var qty int
	require.NoError(t, store.RunInTx(context.Background(), s, func(tx store.Tx) error {
		book, err := tx.GetBook(context.Background(), isbn)
		if err != nil {
			return err
		}
		qty = book.StockQty
		return nil
	}))
	return qty
}

func movementsOf(t *testing.T, s store.Store, isbn string) []domain.StockMovement {
	t.Helper()
	var out []domain.StockMovement
	require.NoError(t, store.RunInTx(context.Background(), s, func(tx store.Tx) error {
		var err error
		out, err = tx.ListMovements(context.Background(), isbn)
		return err
	}))
	return out
}

func TestManager_Create(t *testing.T) {
	// Arrange
	s := memory.NewMemoryStore()
	s.Seed(newBook("A", 3, 10, publisher(7)))
	m := newManager(s)

	// Act
	order, err := m.Create(context.Background(), CreateRequest{ISBN: "A", AdminID: 2, Quantity: 15})

	// Assert
	require.NoError(t, err)
	assert.NotZero(t, order.ID)
	assert.Equal(t, domain.OrderStatusPending, order.Status)
	assert.Equal(t, int64(7), order.PublisherID)
	assert.Equal(t, int64(2), order.AdminID)
	assert.Equal(t, 15, order.QuantityOrdered)
	assert.Equal(t, time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC), order.OrderDate)
	assert.Equal(t, 3, stockOf(t, s, "A"))
}

func TestManager_Create_RejectsSecondPendingOrder(t *testing.T) {
	s := memory.NewMemoryStore()
	s.Seed(newBook("A", 3, 10, publisher(7)))
	m := newManager(s)
	ctx := context.Background()

	first, err := m.Create(ctx, CreateRequest{ISBN: "A", Quantity: 20})
	require.NoError(t, err)

	_, err = m.Create(ctx, CreateRequest{ISBN: "A", Quantity: 5})
	assert.ErrorIs(t, err, domain.ErrPendingOrderExists)

	// once the first one leaves Pending a new order is allowed
	_, err = m.Cancel(ctx, first.ID)
	require.NoError(t, err)
	_, err = m.Create(ctx, CreateRequest{ISBN: "A", Quantity: 5})
	assert.NoError(t, err)
}

func TestManager_Create_Validation(t *testing.T) {
	s := memory.NewMemoryStore()
	s.Seed(newBook("A", 3, 10, nil))
	m := newManager(s)
	ctx := context.Background()

	_, err := m.Create(ctx, CreateRequest{ISBN: "A", Quantity: 0})
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)

	_, err = m.Create(ctx, CreateRequest{ISBN: "A", Quantity: 5})
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	_, err = m.Create(ctx, CreateRequest{ISBN: "missing", Quantity: 5})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestManager_Confirm_AddsQuantityExactlyOnce(t *testing.T) {
	tests := []struct {
		name         string
		triggerTimes int
	}{
		{"no trigger", 0},
		{"trigger applies the quantity", 1},
		{"trigger applies the quantity twice", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			s := memory.NewMemoryStore(memory.WithConfirmTrigger(tt.triggerTimes))
			s.Seed(newBook("A", 4, 10, publisher(7)))
			m := newManager(s)
			ctx := context.Background()
			order, err := m.Create(ctx, CreateRequest{ISBN: "A", Quantity: 20})
			require.NoError(t, err)

			// Act
			confirmed, err := m.Confirm(ctx, order.ID)

			// Assert
			require.NoError(t, err)
			assert.Equal(t, domain.OrderStatusConfirmed, confirmed.Status)
			assert.Equal(t, 24, stockOf(t, s, "A"))

			movements := movementsOf(t, s, "A")
			require.Len(t, movements, 1)
			assert.Equal(t, 20, movements[0].Delta)
			assert.Equal(t, domain.MovementReplenishment, movements[0].Reason)
			assert.Equal(t, fmt.Sprintf("replenishment-order:%d", order.ID), movements[0].Reference)
		})
	}
}

func TestManager_Confirm_IsIdempotent(t *testing.T) {
	// Arrange
	s := memory.NewMemoryStore(memory.WithConfirmTrigger(1))
	s.Seed(newBook("A", 4, 10, publisher(7)))
	m := newManager(s)
	ctx := context.Background()
	order, err := m.Create(ctx, CreateRequest{ISBN: "A", Quantity: 20})
	require.NoError(t, err)
	_, err = m.Confirm(ctx, order.ID)
	require.NoError(t, err)

	// Act
	again, err := m.Confirm(ctx, order.ID)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusConfirmed, again.Status)
	assert.Equal(t, 24, stockOf(t, s, "A"))
	assert.Len(t, movementsOf(t, s, "A"), 1)
}

func TestManager_Confirm_ConcurrentCallsRestockOnce(t *testing.T) {
	s := memory.NewMemoryStore()
	s.Seed(newBook("A", 0, 10, publisher(7)))
	m := newManager(s)
	ctx := context.Background()
	order, err := m.Create(ctx, CreateRequest{ISBN: "A", Quantity: 20})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Confirm(ctx, order.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, stockOf(t, s, "A"))
}

func TestManager_Confirm_NotFound(t *testing.T) {
	m := newManager(memory.NewMemoryStore())

	_, err := m.Confirm(context.Background(), 42)

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestManager_Confirm_CancelledOrderIsInvalid(t *testing.T) {
	s := memory.NewMemoryStore()
	s.Seed(newBook("A", 4, 10, publisher(7)))
	m := newManager(s)
	ctx := context.Background()
	order, err := m.Create(ctx, CreateRequest{ISBN: "A", Quantity: 20})
	require.NoError(t, err)
	_, err = m.Cancel(ctx, order.ID)
	require.NoError(t, err)

	_, err = m.Confirm(ctx, order.ID)

	assert.ErrorIs(t, err, domain.ErrInvalidState)
	assert.Equal(t, 4, stockOf(t, s, "A"))
}

func TestManager_Confirm_RollsBackOnFailure(t *testing.T) {
	// Arrange
	boom := errors.New("disk full")
	s := memory.NewMemoryStore(memory.WithConfirmTrigger(1))
	s.Seed(newBook("A", 4, 10, publisher(7)))
	m := newManager(s)
	ctx := context.Background()
	order, err := m.Create(ctx, CreateRequest{ISBN: "A", Quantity: 20})
	require.NoError(t, err)
	s.SetFault(func(op, key string) error {
		if op == "InsertMovement" {
			return boom
		}
		return nil
	})

	// Act
	_, err = m.Confirm(ctx, order.ID)

	// Assert
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 4, stockOf(t, s, "A"))
	current, err := m.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPending, current.Status)
}

func TestManager_Cancel(t *testing.T) {
	s := memory.NewMemoryStore()
	s.Seed(newBook("A", 4, 10, publisher(7)))
	m := newManager(s)
	ctx := context.Background()
	order, err := m.Create(ctx, CreateRequest{ISBN: "A", Quantity: 20})
	require.NoError(t, err)

	cancelled, err := m.Cancel(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, cancelled.Status)
	assert.Equal(t, 4, stockOf(t, s, "A"))

	_, err = m.Cancel(ctx, order.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestManager_ReplenishmentCount(t *testing.T) {
	s := memory.NewMemoryStore()
	s.Seed(newBook("A", 4, 10, publisher(7)), newBook("B", 4, 10, publisher(7)))
	m := newManager(s)
	ctx := context.Background()

	first, err := m.Create(ctx, CreateRequest{ISBN: "A", Quantity: 20})
	require.NoError(t, err)
	_, err = m.Confirm(ctx, first.ID)
	require.NoError(t, err)
	second, err := m.Create(ctx, CreateRequest{ISBN: "A", Quantity: 20})
	require.NoError(t, err)
	_, err = m.Cancel(ctx, second.ID)
	require.NoError(t, err)
	_, err = m.Create(ctx, CreateRequest{ISBN: "A", Quantity: 20})
	require.NoError(t, err)

	count, err := m.ReplenishmentCount(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	count, err = m.ReplenishmentCount(ctx, "B")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestManager_List(t *testing.T) {
	s := memory.NewMemoryStore()
	s.Seed(newBook("A", 4, 10, publisher(7)), newBook("B", 4, 10, publisher(7)))
	m := newManager(s)
	ctx := context.Background()

	_, err := m.Create(ctx, CreateRequest{ISBN: "A", Quantity: 20})
	require.NoError(t, err)
	_, err = m.Create(ctx, CreateRequest{ISBN: "B", Quantity: 30})
	require.NoError(t, err)

	orders, err := m.List(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "B", orders[0].ISBN)
	assert.Equal(t, "Book B", orders[0].BookTitle)
	assert.Equal(t, "A", orders[1].ISBN)
}
