package store

import (
	"context"
	"database/sql"
	"errors"

	"shopbot/internal/models"
)

// AddCartItem upserts a cart line, summing quantities on the unique
// (user, product) pair.
func (s *Store) AddCartItem(ctx context.Context, userID, productID int64, quantity int) error {
	query := `
		INSERT INTO cart_items (user_id, product_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, product_id) DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity`

	_, err := s.db.ExecContext(ctx, query, userID, productID, quantity)
	return err
}

// GetCartQuantity returns the quantity already in the cart for a pair, zero
// when no line exists.
func (s *Store) GetCartQuantity(ctx context.Context, userID, productID int64) (int, error) {
	var quantity int
	err := s.db.GetContext(ctx, &quantity,
		"SELECT quantity FROM cart_items WHERE user_id = $1 AND product_id = $2",
		userID, productID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return quantity, err
}

// RemoveOneCartItem decrements a line by one, deleting it at zero
func (s *Store) RemoveOneCartItem(ctx context.Context, userID, productID int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"UPDATE cart_items SET quantity = quantity - 1 WHERE user_id = $1 AND product_id = $2 AND quantity > 1",
		userID, productID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		_, err = tx.ExecContext(ctx,
			"DELETE FROM cart_items WHERE user_id = $1 AND product_id = $2",
			userID, productID)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// RemoveCartItem deletes a line regardless of quantity
func (s *Store) RemoveCartItem(ctx context.Context, userID, productID int64) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM cart_items WHERE user_id = $1 AND product_id = $2",
		userID, productID)
	return err
}

// ClearCart deletes all lines for a user
func (s *Store) ClearCart(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM cart_items WHERE user_id = $1", userID)
	return err
}

// ListCartLines returns a user's cart joined against the catalog and
// inventory. Lines whose product is inactive or out of stock are deleted in
// the same transaction so stale carts are self-healing; the number of pruned
// lines is returned alongside the survivors.
func (s *Store) ListCartLines(ctx context.Context, userID int64) ([]models.CartLine, int, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, 0, err
	}
	defer tx.Rollback()

	query := `
		SELECT c.product_id, p.name, p.price AS unit_price, c.quantity,
		       COALESCE(i.stock, 0) AS stock, p.is_active
		FROM cart_items c
		JOIN products p ON p.id = c.product_id
		LEFT JOIN product_inventory i ON i.product_id = c.product_id
		WHERE c.user_id = $1
		ORDER BY c.id`

	var all []models.CartLine
	if err := tx.SelectContext(ctx, &all, query, userID); err != nil {
		return nil, 0, err
	}

	lines := make([]models.CartLine, 0, len(all))
	pruned := 0
	for _, line := range all {
		if !line.IsActive || line.Stock <= 0 {
			_, err := tx.ExecContext(ctx,
				"DELETE FROM cart_items WHERE user_id = $1 AND product_id = $2",
				userID, line.ProductID)
			if err != nil {
				return nil, 0, err
			}
			pruned++
			continue
		}
		lines = append(lines, line)
	}

	if err := tx.Commit(); err != nil {
		return nil, 0, err
	}
	return lines, pruned, nil
}
