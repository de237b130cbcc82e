// Package checkout converts a cart into a persisted sale.
package checkout

import (
	"context"
	"fmt"

	"github.com/matheusmosca/bookstore-inventory/internal/domain"
	"github.com/matheusmosca/bookstore-inventory/internal/events"
	"github.com/matheusmosca/bookstore-inventory/internal/ledger"
	"github.com/matheusmosca/bookstore-inventory/internal/store"
	"github.com/matheusmosca/bookstore-inventory/internal/telemetry"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Processor runs checkouts and serves the sale history.
type Processor struct {
	store  store.Store
	logger *zap.Logger
	tracer trace.Tracer
	events events.Publisher

	completed metric.Int64Counter
	failed    metric.Int64Counter
}

// NewProcessor creates a new Processor
func NewProcessor(s store.Store, logger *zap.Logger, tracer trace.Tracer) *Processor {
	return &Processor{
		store:     s,
		logger:    logger,
		tracer:    tracer,
		events:    events.Nop{},
		completed: telemetry.Counter("bookstore.checkout.completed", "Checkouts committed"),
		failed:    telemetry.Counter("bookstore.checkout.failed", "Checkouts rolled back"),
	}
}

// SetPublisher sends a sale.completed event after every committed checkout.
func (p *Processor) SetPublisher(pub events.Publisher) {
	p.events = pub
}

// Checkout turns the user's cart into a sale in a single transaction: stock is
// checked for the whole cart, the sale is written with prices snapshotted from
// the catalog, stock is deducted and the cart is cleared. Any failure rolls
// back everything, including the cart.
func (p *Processor) Checkout(ctx context.Context, userID int64, payment domain.PaymentInfo) (*domain.Sale, error) {
	ctx, span := p.tracer.Start(ctx, "checkout")
	defer span.End()
	span.SetAttributes(attribute.Int64("user_id", userID))

	sale, err := p.checkout(ctx, userID, payment)
	if err != nil {
		span.RecordError(err)
		p.failed.Add(ctx, 1)
		p.logger.Info("[CHECKOUT] failed", zap.Int64("user_id", userID), zap.Error(err))
		return nil, err
	}

	span.SetAttributes(attribute.Int64("order_no", sale.OrderNo))
	p.completed.Add(ctx, 1)
	p.logger.Info("[CHECKOUT] success",
		zap.Int64("user_id", userID),
		zap.Int64("order_no", sale.OrderNo),
		zap.String("total_amount", sale.TotalAmount.StringFixed(2)))

	err = p.events.Publish(ctx, events.Event{
		Type:       events.TypeSaleCompleted,
		Key:        fmt.Sprint(sale.OrderNo),
		Payload:    sale,
		OccurredAt: sale.OrderDate,
	})
	if err != nil {
		p.logger.Warn("[CHECKOUT] failed to publish event", zap.Int64("order_no", sale.OrderNo), zap.Error(err))
	}
	return sale, nil
}

func (p *Processor) checkout(ctx context.Context, userID int64, payment domain.PaymentInfo) (*domain.Sale, error) {
	// 1. Begin transaction
	tx, err := p.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin checkout: %w", err)
	}
	defer tx.Rollback(ctx)

	// 2. Load the cart
	items, err := tx.ListCartItems(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, domain.ErrEmptyCart
	}

	// 3. Lock every book of the cart (pessimistic lock, isbn order)
	isbns := make([]string, len(items))
	for i, item := range items {
		isbns[i] = item.ISBN
	}
	books, err := tx.LockBooks(ctx, isbns)
	if err != nil {
		return nil, err
	}

	// 4. Check the whole cart, in insertion order, and snapshot prices
	sale := &domain.Sale{
		CustomerID:    userID,
		TotalAmount:   decimal.Zero,
		PaymentMethod: paymentMethod(payment),
		PaymentCard:   payment.MaskedCard(),
		Items:         make([]domain.SaleLine, 0, len(items)),
	}
	for _, item := range items {
		book := books[item.ISBN]
		if book.StockQty < item.Quantity {
			return nil, &domain.InsufficientStockError{ISBN: item.ISBN, Available: book.StockQty, Requested: item.Quantity}
		}
		line := domain.SaleLine{ISBN: item.ISBN, Quantity: item.Quantity, PriceAtSale: book.Price}
		sale.Items = append(sale.Items, line)
		sale.TotalAmount = sale.TotalAmount.Add(line.Subtotal())
	}

	// 5. Persist the sale
	if err := tx.InsertSale(ctx, sale); err != nil {
		return nil, err
	}

	// 6. Deduct stock
	reference := fmt.Sprintf("sale:%d", sale.OrderNo)
	for _, line := range sale.Items {
		if _, err := ledger.Apply(ctx, tx, line.ISBN, -line.Quantity, domain.MovementSale, reference); err != nil {
			return nil, err
		}
	}

	// 7. Clear the cart
	if err := tx.ClearCart(ctx, userID); err != nil {
		return nil, err
	}

	// 8. Commit
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit checkout: %w", err)
	}
	return sale, nil
}

func paymentMethod(p domain.PaymentInfo) string {
	if p.Method == "" {
		return domain.PaymentCreditCard
	}
	return p.Method
}

// GetSale returns a sale with its lines.
func (p *Processor) GetSale(ctx context.Context, orderNo int64) (*domain.Sale, error) {
	var sale *domain.Sale
	err := store.RunInTx(ctx, p.store, func(tx store.Tx) error {
		var err error
		sale, err = tx.GetSale(ctx, orderNo)
		return err
	})
	return sale, err
}

// ListSales returns the sales of a customer, newest first.
func (p *Processor) ListSales(ctx context.Context, customerID int64) ([]domain.Sale, error) {
	var sales []domain.Sale
	err := store.RunInTx(ctx, p.store, func(tx store.Tx) error {
		var err error
		sales, err = tx.ListSalesByCustomer(ctx, customerID)
		return err
	})
	return sales, err
}
