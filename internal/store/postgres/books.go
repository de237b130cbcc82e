package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/matheusmosca/bookstore-inventory/internal/domain"
	"github.com/shopspring/decimal"
)

const bookColumns = `isbn, title, price, stock_qty, threshold_qty, publisher_id, created_at, updated_at`

func scanBook(row pgx.Row) (*domain.Book, error) {
	var book domain.Book
	err := row.Scan(
		&book.ISBN,
		&book.Title,
		&book.Price,
		&book.StockQty,
		&book.ThresholdQty,
		&book.PublisherID,
		&book.CreatedAt,
		&book.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &book, nil
}

// CreateBook inserts a catalog row
func (t *PostgresTx) CreateBook(ctx context.Context, book *domain.Book) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO books (isbn, title, price, stock_qty, threshold_qty, publisher_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`, book.ISBN, book.Title, book.Price, book.StockQty, book.ThresholdQty, book.PublisherID,
	).Scan(&book.CreatedAt, &book.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert book %s: %w", book.ISBN, classify(err))
	}
	return nil
}

// GetBook reads a book without locking it
func (t *PostgresTx) GetBook(ctx context.Context, isbn string) (*domain.Book, error) {
	book, err := scanBook(t.tx.QueryRow(ctx, `SELECT `+bookColumns+` FROM books WHERE isbn = $1`, isbn))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NewNotFound("book", isbn)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get book %s: %w", isbn, classify(err))
	}
	return book, nil
}

// GetBookForUpdate reads a book with a pessimistic lock (FOR UPDATE)
func (t *PostgresTx) GetBookForUpdate(ctx context.Context, isbn string) (*domain.Book, error) {
	book, err := scanBook(t.tx.QueryRow(ctx, `SELECT `+bookColumns+` FROM books WHERE isbn = $1 FOR UPDATE`, isbn))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NewNotFound("book", isbn)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get book with lock: %w", classify(err))
	}
	return book, nil
}

// LockBooks locks all rows in isbn order so concurrent checkouts over
// overlapping carts cannot deadlock each other.
func (t *PostgresTx) LockBooks(ctx context.Context, isbns []string) (map[string]*domain.Book, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+bookColumns+`
		FROM books
		WHERE isbn = ANY($1)
		ORDER BY isbn
		FOR UPDATE
	`, isbns)
	if err != nil {
		return nil, fmt.Errorf("failed to lock books: %w", classify(err))
	}
	defer rows.Close()

	books := make(map[string]*domain.Book, len(isbns))
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan book: %w", classify(err))
		}
		books[book.ISBN] = book
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to lock books: %w", classify(err))
	}

	sorted := append([]string(nil), isbns...)
	sort.Strings(sorted)
	for _, isbn := range sorted {
		if _, ok := books[isbn]; !ok {
			return nil, domain.NewNotFound("book", isbn)
		}
	}
	return books, nil
}

// SetStock writes an absolute stock value
func (t *PostgresTx) SetStock(ctx context.Context, isbn string, qty int) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE books
		SET stock_qty = $2,
		    updated_at = NOW()
		WHERE isbn = $1
	`, isbn, qty)
	if err != nil {
		return fmt.Errorf("failed to set stock of %s: %w", isbn, classify(err))
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFound("book", isbn)
	}
	return nil
}

// UpdatePrice changes the catalog price. Past sale lines keep their snapshot.
func (t *PostgresTx) UpdatePrice(ctx context.Context, isbn string, price decimal.Decimal) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE books
		SET price = $2,
		    updated_at = NOW()
		WHERE isbn = $1
	`, isbn, price)
	if err != nil {
		return fmt.Errorf("failed to update price of %s: %w", isbn, classify(err))
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFound("book", isbn)
	}
	return nil
}

// InsertMovement appends to the stock audit trail
func (t *PostgresTx) InsertMovement(ctx context.Context, m *domain.StockMovement) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO stock_movements (id, isbn, delta, reason, reference, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, m.ID, m.ISBN, m.Delta, string(m.Reason), m.Reference, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert movement record: %w", classify(err))
	}
	return nil
}

func (t *PostgresTx) ListMovements(ctx context.Context, isbn string) ([]domain.StockMovement, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, isbn, delta, reason, COALESCE(reference, ''), created_at
		FROM stock_movements
		WHERE isbn = $1
		ORDER BY created_at, id
	`, isbn)
	if err != nil {
		return nil, fmt.Errorf("failed to list movements: %w", classify(err))
	}
	defer rows.Close()

	var out []domain.StockMovement
	for rows.Next() {
		var m domain.StockMovement
		var reason string
		if err := rows.Scan(&m.ID, &m.ISBN, &m.Delta, &reason, &m.Reference, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan movement: %w", classify(err))
		}
		m.Reason = domain.MovementReason(reason)
		out = append(out, m)
	}
	return out, classify(rows.Err())
}

// LowStockBooks selects the books the detector must reorder
func (t *PostgresTx) LowStockBooks(ctx context.Context) ([]domain.LowStockBook, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT b.isbn, b.title, b.stock_qty, b.threshold_qty, b.publisher_id
		FROM books b
		WHERE b.stock_qty < b.threshold_qty
		  AND b.threshold_qty > 0
		  AND b.publisher_id IS NOT NULL
		  AND NOT EXISTS (
		      SELECT 1 FROM replenishment_orders o
		      WHERE o.isbn = b.isbn
		        AND o.status = 'Pending'
		  )
		ORDER BY b.isbn
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query low stock books: %w", classify(err))
	}
	defer rows.Close()

	var out []domain.LowStockBook
	for rows.Next() {
		var b domain.LowStockBook
		if err := rows.Scan(&b.ISBN, &b.Title, &b.StockQty, &b.ThresholdQty, &b.PublisherID); err != nil {
			return nil, fmt.Errorf("failed to scan low stock book: %w", classify(err))
		}
		out = append(out, b)
	}
	return out, classify(rows.Err())
}
