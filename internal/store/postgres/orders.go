package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/matheusmosca/bookstore-inventory/internal/domain"
)

const orderSelect = `
	SELECT o.order_id, o.isbn, COALESCE(b.title, ''), o.publisher_id, o.admin_id,
	       o.order_date, o.quantity_ordered, o.status, o.expected_delivery_date
	FROM replenishment_orders o
	LEFT JOIN books b ON b.isbn = o.isbn`

func scanOrder(row pgx.Row) (*domain.ReplenishmentOrder, error) {
	var order domain.ReplenishmentOrder
	var status string
	err := row.Scan(
		&order.ID,
		&order.ISBN,
		&order.BookTitle,
		&order.PublisherID,
		&order.AdminID,
		&order.OrderDate,
		&order.QuantityOrdered,
		&status,
		&order.ExpectedDeliveryDate,
	)
	if err != nil {
		return nil, err
	}
	order.Status = domain.OrderStatus(status)
	return &order, nil
}

// InsertOrder creates a replenishment order and assigns its id
func (t *PostgresTx) InsertOrder(ctx context.Context, order *domain.ReplenishmentOrder) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO replenishment_orders
		    (isbn, publisher_id, admin_id, order_date, quantity_ordered, status, expected_delivery_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING order_id
	`, order.ISBN, order.PublisherID, order.AdminID, order.OrderDate, order.QuantityOrdered,
		string(order.Status), order.ExpectedDeliveryDate,
	).Scan(&order.ID)
	if err != nil {
		return fmt.Errorf("failed to insert replenishment order for %s: %w", order.ISBN, classify(err))
	}
	return nil
}

func (t *PostgresTx) GetOrder(ctx context.Context, orderID int64) (*domain.ReplenishmentOrder, error) {
	order, err := scanOrder(t.tx.QueryRow(ctx, orderSelect+` WHERE o.order_id = $1`, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NewNotFound("replenishment order", fmt.Sprint(orderID))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get replenishment order: %w", classify(err))
	}
	return order, nil
}

// GetOrderForUpdate locks the order row only (FOR UPDATE OF o)
func (t *PostgresTx) GetOrderForUpdate(ctx context.Context, orderID int64) (*domain.ReplenishmentOrder, error) {
	order, err := scanOrder(t.tx.QueryRow(ctx, orderSelect+` WHERE o.order_id = $1 FOR UPDATE OF o`, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NewNotFound("replenishment order", fmt.Sprint(orderID))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get replenishment order with lock: %w", classify(err))
	}
	return order, nil
}

// UpdateOrderStatus writes the status. A trigger on this table may fire.
func (t *PostgresTx) UpdateOrderStatus(ctx context.Context, orderID int64, status domain.OrderStatus) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE replenishment_orders
		SET status = $1
		WHERE order_id = $2
	`, string(status), orderID)
	if err != nil {
		return fmt.Errorf("failed to update replenishment order status: %w", classify(err))
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFound("replenishment order", fmt.Sprint(orderID))
	}
	return nil
}

func (t *PostgresTx) HasPendingOrder(ctx context.Context, isbn string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM replenishment_orders
			WHERE isbn = $1 AND status = 'Pending'
		)
	`, isbn).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check pending orders: %w", classify(err))
	}
	return exists, nil
}

// CountOrders counts every order ever created for the isbn, whatever its status
func (t *PostgresTx) CountOrders(ctx context.Context, isbn string) (int, error) {
	var count int
	err := t.tx.QueryRow(ctx, `SELECT COUNT(*) FROM replenishment_orders WHERE isbn = $1`, isbn).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count replenishment orders: %w", classify(err))
	}
	return count, nil
}

func (t *PostgresTx) ListOrders(ctx context.Context) ([]domain.ReplenishmentOrder, error) {
	rows, err := t.tx.Query(ctx, orderSelect+` ORDER BY o.order_date DESC, o.order_id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list replenishment orders: %w", classify(err))
	}
	defer rows.Close()

	var out []domain.ReplenishmentOrder
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan replenishment order: %w", classify(err))
		}
		out = append(out, *order)
	}
	return out, classify(rows.Err())
}
