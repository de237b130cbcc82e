package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/matheusmosca/bookstore-inventory/internal/domain"
	"github.com/matheusmosca/bookstore-inventory/internal/events"
	"github.com/matheusmosca/bookstore-inventory/internal/store"
	"github.com/matheusmosca/bookstore-inventory/internal/store/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fixture struct {
	store     *memory.MemoryStore
	processor *Processor
}

func setup(t *testing.T, books ...domain.Book) *fixture {
	t.Helper()
	s := memory.NewMemoryStore()
	s.Seed(books...)
	return &fixture{
		store:     s,
		processor: NewProcessor(s, zap.NewNop(), noop.NewTracerProvider().Tracer("test")),
	}
}

func book(isbn string, price string, stock int) domain.Book {
	return domain.Book{ISBN: isbn, Title: "Title " + isbn, Price: decimal.RequireFromString(price), StockQty: stock}
}

func (f *fixture) addToCart(t *testing.T, userID int64, isbn string, qty int) {
	t.Helper()
	require.NoError(t, store.RunInTx(context.Background(), f.store, func(tx store.Tx) error {
		return tx.AddCartItem(context.Background(), userID, isbn, qty)
	}))
}

func (f *fixture) stock(t *testing.T, isbn string) int {
	t.Helper()
	var qty int
	require.NoError(t, store.RunInTx(context.Background(), f.store, func(tx store.Tx) error {
		b, err := tx.GetBook(context.Background(), isbn)
		if err != nil {
			return err
		}
		qty = b.StockQty
		return nil
	}))
	return qty
}

func (f *fixture) cart(t *testing.T, userID int64) []domain.CartItem {
	t.Helper()
	var items []domain.CartItem
	require.NoError(t, store.RunInTx(context.Background(), f.store, func(tx store.Tx) error {
		var err error
		items, err = tx.ListCartItems(context.Background(), userID)
		return err
	}))
	return items
}

func TestProcessor_Checkout_RoundTrip(t *testing.T) {
	// Arrange
	f := setup(t, book("A", "10", 5), book("B", "5", 5))
	f.addToCart(t, 1, "A", 2)
	f.addToCart(t, 1, "B", 1)
	ctx := context.Background()

	// Act
	sale, err := f.processor.Checkout(ctx, 1, domain.PaymentInfo{CardNumber: "4111111111111234"})

	// Assert
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(25).Equal(sale.TotalAmount))
	assert.Equal(t, 3, f.stock(t, "A"))
	assert.Equal(t, 4, f.stock(t, "B"))
	assert.Empty(t, f.cart(t, 1))
	assert.Equal(t, domain.PaymentCreditCard, sale.PaymentMethod)
	assert.Equal(t, "**** 1234", sale.PaymentCard)

	// A later price change does not alter the stored sale
	require.NoError(t, store.RunInTx(ctx, f.store, func(tx store.Tx) error {
		return tx.UpdatePrice(ctx, "A", decimal.NewFromInt(99))
	}))

	stored, err := f.processor.GetSale(ctx, sale.OrderNo)
	require.NoError(t, err)
	require.Len(t, stored.Items, 2)
	assert.Equal(t, "A", stored.Items[0].ISBN)
	assert.Equal(t, 2, stored.Items[0].Quantity)
	assert.True(t, decimal.NewFromInt(10).Equal(stored.Items[0].PriceAtSale))
	assert.Equal(t, "B", stored.Items[1].ISBN)
	assert.True(t, decimal.NewFromInt(5).Equal(stored.Items[1].PriceAtSale))
	assert.True(t, decimal.NewFromInt(25).Equal(stored.TotalAmount))
}

func TestProcessor_Checkout_RecordsSaleMovements(t *testing.T) {
	f := setup(t, book("A", "10", 5))
	f.addToCart(t, 1, "A", 2)
	ctx := context.Background()

	sale, err := f.processor.Checkout(ctx, 1, domain.PaymentInfo{Method: domain.PaymentPaypal})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPaypal, sale.PaymentMethod)
	assert.Empty(t, sale.PaymentCard)

	var movements []domain.StockMovement
	require.NoError(t, store.RunInTx(ctx, f.store, func(tx store.Tx) error {
		var err error
		movements, err = tx.ListMovements(ctx, "A")
		return err
	}))
	require.Len(t, movements, 1)
	assert.Equal(t, -2, movements[0].Delta)
	assert.Equal(t, domain.MovementSale, movements[0].Reason)
}

func TestProcessor_Checkout_ExactStockSucceeds(t *testing.T) {
	f := setup(t, book("A", "10", 3))
	f.addToCart(t, 1, "A", 3)

	_, err := f.processor.Checkout(context.Background(), 1, domain.PaymentInfo{})

	require.NoError(t, err)
	assert.Equal(t, 0, f.stock(t, "A"))
}

func TestProcessor_Checkout_OneMoreThanAvailableFails(t *testing.T) {
	// Arrange
	f := setup(t, book("A", "10", 3), book("B", "5", 5))
	f.addToCart(t, 1, "B", 1)
	f.addToCart(t, 1, "A", 4)

	// Act
	_, err := f.processor.Checkout(context.Background(), 1, domain.PaymentInfo{})

	// Assert
	var stockErr *domain.InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, "A", stockErr.ISBN)
	assert.Equal(t, 3, stockErr.Available)
	assert.Equal(t, 4, stockErr.Requested)

	assert.Equal(t, 3, f.stock(t, "A"))
	assert.Equal(t, 5, f.stock(t, "B"))
	assert.Len(t, f.cart(t, 1), 2)

	sales, err := f.processor.ListSales(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, sales)
}

func TestProcessor_Checkout_ReportsFirstShortfallInCartOrder(t *testing.T) {
	f := setup(t, book("A", "10", 0), book("Z", "10", 0))
	f.addToCart(t, 1, "Z", 1)
	f.addToCart(t, 1, "A", 1)

	_, err := f.processor.Checkout(context.Background(), 1, domain.PaymentInfo{})

	var stockErr *domain.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "Z", stockErr.ISBN)
}

func TestProcessor_Checkout_EmptyCart(t *testing.T) {
	f := setup(t, book("A", "10", 3))

	_, err := f.processor.Checkout(context.Background(), 1, domain.PaymentInfo{})

	assert.ErrorIs(t, err, domain.ErrEmptyCart)
}

func TestProcessor_Checkout_VanishedBook(t *testing.T) {
	f := setup(t, book("A", "10", 3), book("B", "10", 3))
	f.addToCart(t, 1, "A", 1)
	f.addToCart(t, 1, "B", 1)
	f.store.Remove("B")

	_, err := f.processor.Checkout(context.Background(), 1, domain.PaymentInfo{})

	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, 3, f.stock(t, "A"))
	assert.Len(t, f.cart(t, 1), 2)
}

func TestProcessor_Checkout_RollsBackWhenCartClearFails(t *testing.T) {
	// Arrange
	f := setup(t, book("A", "10", 3))
	f.addToCart(t, 1, "A", 2)
	boom := errors.New("connection reset")
	f.store.SetFault(func(op, key string) error {
		if op == "ClearCart" {
			return boom
		}
		return nil
	})

	// Act
	_, err := f.processor.Checkout(context.Background(), 1, domain.PaymentInfo{})

	// Assert
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, f.stock(t, "A"))
	assert.Len(t, f.cart(t, 1), 1)
	sales, err := f.processor.ListSales(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, sales)
}

func TestProcessor_Checkout_ConcurrentLastUnit(t *testing.T) {
	// Arrange
	f := setup(t, book("A", "10", 1))
	f.addToCart(t, 1, "A", 1)
	f.addToCart(t, 2, "A", 1)

	var wg sync.WaitGroup
	errs := make([]error, 2)

	// Act
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.processor.Checkout(context.Background(), int64(i+1), domain.PaymentInfo{})
		}(i)
	}
	wg.Wait()

	// Assert
	succeeded, insufficient := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, domain.ErrInsufficientStock):
			insufficient++
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, insufficient)
	assert.Equal(t, 0, f.stock(t, "A"))
}

func TestProcessor_Checkout_StockNeverNegativeUnderLoad(t *testing.T) {
	const users = 25
	f := setup(t, book("A", "10", 10), book("B", "3", 7))
	for u := int64(1); u <= users; u++ {
		f.addToCart(t, u, "A", 1)
		if u%2 == 0 {
			f.addToCart(t, u, "B", 1)
		}
	}

	var wg sync.WaitGroup
	for u := int64(1); u <= users; u++ {
		wg.Add(1)
		go func(u int64) {
			defer wg.Done()
			_, _ = f.processor.Checkout(context.Background(), u, domain.PaymentInfo{})
		}(u)
	}
	wg.Wait()

	assert.GreaterOrEqual(t, f.stock(t, "A"), 0)
	assert.GreaterOrEqual(t, f.stock(t, "B"), 0)

	sold := 0
	for u := int64(1); u <= users; u++ {
		sales, err := f.processor.ListSales(context.Background(), u)
		require.NoError(t, err)
		for _, s := range sales {
			for _, line := range s.Items {
				if line.ISBN == "A" {
					sold += line.Quantity
				}
			}
		}
	}
	assert.Equal(t, 10-f.stock(t, "A"), sold)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, evs ...events.Event) error {
	args := m.Called(ctx, evs)
	return args.Error(0)
}

func TestProcessor_Checkout_PublishesSaleCompleted(t *testing.T) {
	// Arrange
	f := setup(t, book("A", "10", 5))
	f.addToCart(t, 1, "A", 1)
	pub := new(MockPublisher)
	f.processor.SetPublisher(pub)

	var published []events.Event
	pub.On("Publish", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { published = args.Get(1).([]events.Event) }).
		Return(nil)

	// Act
	sale, err := f.processor.Checkout(context.Background(), 1, domain.PaymentInfo{})

	// Assert
	require.NoError(t, err)
	require.Len(t, published, 1)
	assert.Equal(t, events.TypeSaleCompleted, published[0].Type)
	assert.Equal(t, fmt.Sprint(sale.OrderNo), published[0].Key)
}

func TestProcessor_Checkout_NoEventOnFailure(t *testing.T) {
	f := setup(t, book("A", "10", 0))
	f.addToCart(t, 1, "A", 1)
	pub := new(MockPublisher)
	f.processor.SetPublisher(pub)

	_, err := f.processor.Checkout(context.Background(), 1, domain.PaymentInfo{})

	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}
