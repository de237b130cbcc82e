package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/matheusmosca/bookstore-inventory/internal/domain"
)

// InsertSale persists the sale header and its lines in the current transaction
func (t *PostgresTx) InsertSale(ctx context.Context, sale *domain.Sale) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO sales (customer_id, total_amount, payment_method, payment_card)
		VALUES ($1, $2, $3, NULLIF($4, ''))
		RETURNING order_no, order_date
	`, sale.CustomerID, sale.TotalAmount, sale.PaymentMethod, sale.PaymentCard,
	).Scan(&sale.OrderNo, &sale.OrderDate)
	if err != nil {
		return fmt.Errorf("failed to insert sale: %w", classify(err))
	}

	batch := &pgx.Batch{}
	for _, line := range sale.Items {
		batch.Queue(`
			INSERT INTO sale_lines (order_no, isbn, quantity, price_at_sale)
			VALUES ($1, $2, $3, $4)
		`, sale.OrderNo, line.ISBN, line.Quantity, line.PriceAtSale)
	}
	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert sale lines: %w", classify(err))
	}
	return nil
}

func (t *PostgresTx) GetSale(ctx context.Context, orderNo int64) (*domain.Sale, error) {
	var sale domain.Sale
	err := t.tx.QueryRow(ctx, `
		SELECT order_no, customer_id, order_date, total_amount, payment_method, COALESCE(payment_card, '')
		FROM sales WHERE order_no = $1
	`, orderNo).Scan(&sale.OrderNo, &sale.CustomerID, &sale.OrderDate, &sale.TotalAmount, &sale.PaymentMethod, &sale.PaymentCard)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NewNotFound("sale", fmt.Sprint(orderNo))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sale: %w", classify(err))
	}

	if sale.Items, err = t.saleLines(ctx, sale.OrderNo); err != nil {
		return nil, err
	}
	return &sale, nil
}

func (t *PostgresTx) ListSalesByCustomer(ctx context.Context, customerID int64) ([]domain.Sale, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT order_no, customer_id, order_date, total_amount, payment_method, COALESCE(payment_card, '')
		FROM sales
		WHERE customer_id = $1
		ORDER BY order_date DESC, order_no DESC
	`, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sales: %w", classify(err))
	}

	var sales []domain.Sale
	for rows.Next() {
		var sale domain.Sale
		if err := rows.Scan(&sale.OrderNo, &sale.CustomerID, &sale.OrderDate, &sale.TotalAmount, &sale.PaymentMethod, &sale.PaymentCard); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan sale: %w", classify(err))
		}
		sales = append(sales, sale)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list sales: %w", classify(err))
	}

	// lines are loaded after the cursor is closed; a tx carries one query at a time
	for i := range sales {
		if sales[i].Items, err = t.saleLines(ctx, sales[i].OrderNo); err != nil {
			return nil, err
		}
	}
	return sales, nil
}

func (t *PostgresTx) saleLines(ctx context.Context, orderNo int64) ([]domain.SaleLine, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT isbn, quantity, price_at_sale
		FROM sale_lines
		WHERE order_no = $1
		ORDER BY sale_line_id
	`, orderNo)
	if err != nil {
		return nil, fmt.Errorf("failed to get sale lines: %w", classify(err))
	}
	defer rows.Close()

	var lines []domain.SaleLine
	for rows.Next() {
		var line domain.SaleLine
		if err := rows.Scan(&line.ISBN, &line.Quantity, &line.PriceAtSale); err != nil {
			return nil, fmt.Errorf("failed to scan sale line: %w", classify(err))
		}
		lines = append(lines, line)
	}
	return lines, classify(rows.Err())
}
