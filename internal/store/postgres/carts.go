package postgres

import (
	"context"
	"fmt"

	"github.com/matheusmosca/bookstore-inventory/internal/domain"
)

// GetOrCreateCart returns the cart id of the user, creating the cart lazily
func (t *PostgresTx) GetOrCreateCart(ctx context.Context, userID int64) (int64, error) {
	var cartID int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO carts (user_id) VALUES ($1)
		ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING cart_id
	`, userID).Scan(&cartID)
	if err != nil {
		return 0, fmt.Errorf("failed to get cart of user %d: %w", userID, classify(err))
	}
	return cartID, nil
}

func (t *PostgresTx) ListCartItems(ctx context.Context, userID int64) ([]domain.CartItem, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT ci.cart_id, ci.isbn, ci.quantity, ci.added_at
		FROM cart_items ci
		JOIN carts c ON c.cart_id = ci.cart_id
		WHERE c.user_id = $1
		ORDER BY ci.cart_item_id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cart items: %w", classify(err))
	}
	defer rows.Close()

	var items []domain.CartItem
	for rows.Next() {
		var item domain.CartItem
		if err := rows.Scan(&item.CartID, &item.ISBN, &item.Quantity, &item.AddedAt); err != nil {
			return nil, fmt.Errorf("failed to scan cart item: %w", classify(err))
		}
		items = append(items, item)
	}
	return items, classify(rows.Err())
}

func (t *PostgresTx) AddCartItem(ctx context.Context, userID int64, isbn string, qty int) error {
	cartID, err := t.GetOrCreateCart(ctx, userID)
	if err != nil {
		return err
	}

	_, err = t.tx.Exec(ctx, `
		INSERT INTO cart_items (cart_id, isbn, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (cart_id, isbn) DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
	`, cartID, isbn, qty)
	if err != nil {
		return fmt.Errorf("failed to add %s to cart: %w", isbn, classify(err))
	}
	return nil
}

func (t *PostgresTx) SetCartItemQuantity(ctx context.Context, userID int64, isbn string, qty int) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE cart_items ci
		SET quantity = $3
		FROM carts c
		WHERE c.cart_id = ci.cart_id AND c.user_id = $1 AND ci.isbn = $2
	`, userID, isbn, qty)
	if err != nil {
		return fmt.Errorf("failed to update cart item %s: %w", isbn, classify(err))
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFound("cart item", isbn)
	}
	return nil
}

func (t *PostgresTx) DeleteCartItem(ctx context.Context, userID int64, isbn string) error {
	tag, err := t.tx.Exec(ctx, `
		DELETE FROM cart_items ci
		USING carts c
		WHERE c.cart_id = ci.cart_id AND c.user_id = $1 AND ci.isbn = $2
	`, userID, isbn)
	if err != nil {
		return fmt.Errorf("failed to remove cart item %s: %w", isbn, classify(err))
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFound("cart item", isbn)
	}
	return nil
}

func (t *PostgresTx) ClearCart(ctx context.Context, userID int64) error {
	_, err := t.tx.Exec(ctx, `
		DELETE FROM cart_items ci
		USING carts c
		WHERE c.cart_id = ci.cart_id AND c.user_id = $1
	`, userID)
	if err != nil {
		return fmt.Errorf("failed to clear cart of user %d: %w", userID, classify(err))
	}
	return nil
}
