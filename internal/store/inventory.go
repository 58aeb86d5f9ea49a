package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"shopbot/internal/models"

	"github.com/jmoiron/sqlx"
)

// GetInventory retrieves the inventory row for a product, creating a
// zero-stock row if none exists yet (upsert-read).
func (s *Store) GetInventory(ctx context.Context, productID int64) (*models.Inventory, error) {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO product_inventory (product_id, stock) VALUES ($1, 0) ON CONFLICT (product_id) DO NOTHING",
		productID)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure inventory row: %w", err)
	}

	var inv models.Inventory
	err = s.db.GetContext(ctx, &inv,
		"SELECT * FROM product_inventory WHERE product_id = $1", productID)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// GetInventoryByIDs retrieves inventory rows for several products at once
func (s *Store) GetInventoryByIDs(ctx context.Context, productIDs []int64) (map[int64]int, error) {
	stocks := make(map[int64]int, len(productIDs))
	if len(productIDs) == 0 {
		return stocks, nil
	}

	query, args, err := sqlx.In(
		"SELECT product_id, stock FROM product_inventory WHERE product_id IN (?)", productIDs)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var stock int
		if err := rows.Scan(&id, &stock); err != nil {
			return nil, err
		}
		stocks[id] = stock
	}
	return stocks, rows.Err()
}

// SetStock overwrites the stock level for a product
func (s *Store) SetStock(ctx context.Context, productID int64, stock int) error {
	query := `
		INSERT INTO product_inventory (product_id, stock)
		VALUES ($1, $2)
		ON CONFLICT (product_id) DO UPDATE SET stock = EXCLUDED.stock, updated_at = NOW()`

	_, err := s.db.ExecContext(ctx, query, productID, stock)
	return err
}

// DecreaseStock atomically subtracts quantity from a product's stock inside
// its own transaction (FOR UPDATE lock). If the result would be negative the
// stock is left unchanged and ErrInsufficientStock is returned. A missing
// inventory row also fails.
func (s *Store) DecreaseStock(ctx context.Context, productID int64, quantity int) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var stock int
	err = tx.GetContext(ctx, &stock,
		"SELECT stock FROM product_inventory WHERE product_id = $1 FOR UPDATE", productID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("inventory for product %d: %w", productID, models.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to lock inventory: %w", err)
	}

	if stock < quantity {
		return fmt.Errorf("product %d has %d of %d requested: %w",
			productID, stock, quantity, models.ErrInsufficientStock)
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE product_inventory SET stock = stock - $1, updated_at = NOW() WHERE product_id = $2",
		quantity, productID)
	if err != nil {
		return fmt.Errorf("failed to decrease stock: %w", err)
	}

	return tx.Commit()
}

// decreaseStockLocked takes the inventory row lock inside an enclosing
// transaction and subtracts quantity, clamping at zero. It returns the
// shortfall (0 when the full quantity fit). Used by the payment-success
// commit, which must never fail for stock reasons after money has moved.
func decreaseStockLocked(ctx context.Context, tx *sqlx.Tx, productID int64, quantity int) (int, error) {
	var stock int
	err := tx.GetContext(ctx, &stock,
		"SELECT stock FROM product_inventory WHERE product_id = $1 FOR UPDATE", productID)
	if errors.Is(err, sql.ErrNoRows) {
		// Row vanished between pay and success; whole quantity is short.
		return quantity, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to lock inventory: %w", err)
	}

	take := quantity
	shortfall := 0
	if stock < quantity {
		take = stock
		shortfall = quantity - stock
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE product_inventory SET stock = stock - $1, updated_at = NOW() WHERE product_id = $2",
		take, productID)
	if err != nil {
		return 0, fmt.Errorf("failed to decrease stock: %w", err)
	}

	return shortfall, nil
}
