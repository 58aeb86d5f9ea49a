package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"shopbot/internal/models"
)

// CommitPaidOrder runs the payment-success transaction: insert the order,
// insert its lines with frozen names and prices, decrement inventory under a
// row lock per line, and clear the buyer's cart. Stock shortfalls do not
// fail the transaction; the order commits with the manual-fulfillment flag
// set and stock clamped at zero, because the charge has already settled.
func (s *Store) CommitPaidOrder(ctx context.Context, order *models.Order, items []models.OrderItem) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO orders (user_id, total_amount, payment_id, charge_id, shipping_address, status, needs_manual_fulfillment)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE)
		RETURNING id, created_at, updated_at`

	err = tx.GetContext(ctx, order, query,
		order.UserID, order.TotalAmount, order.PaymentID, order.ChargeID,
		order.ShippingAddress, order.Status)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	shortfall := 0
	for i := range items {
		items[i].OrderID = order.ID

		err = tx.GetContext(ctx, &items[i].ID, `
			INSERT INTO order_items (order_id, product_id, name, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`,
			items[i].OrderID, items[i].ProductID, items[i].Name,
			items[i].Quantity, items[i].UnitPrice)
		if err != nil {
			return fmt.Errorf("failed to insert order item: %w", err)
		}

		short, err := decreaseStockLocked(ctx, tx, items[i].ProductID, items[i].Quantity)
		if err != nil {
			return err
		}
		shortfall += short
	}

	if shortfall > 0 {
		order.NeedsManual = true
		_, err = tx.ExecContext(ctx,
			"UPDATE orders SET needs_manual_fulfillment = TRUE WHERE id = $1", order.ID)
		if err != nil {
			return fmt.Errorf("failed to flag manual fulfillment: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, "DELETE FROM cart_items WHERE user_id = $1", order.UserID)
	if err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}

	return tx.Commit()
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderByChargeID retrieves an order by the provider's charge id, nil
// when none exists. Used to detect re-delivered success events.
func (s *Store) GetOrderByChargeID(ctx context.Context, chargeID string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order,
		"SELECT * FROM orders WHERE charge_id = $1", chargeID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrdersByUserID retrieves a user's orders newest first
func (s *Store) GetOrdersByUserID(ctx context.Context, userID int64) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE user_id = $1 ORDER BY created_at DESC", userID)
	return orders, err
}

// GetOrderItemsByOrderID retrieves all lines for an order. Lines are loaded
// with a separate query rather than a join to keep order fetches cheap.
func (s *Store) GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY id", orderID)
	return items, err
}

// GetOrderStats aggregates a user's purchase history
func (s *Store) GetOrderStats(ctx context.Context, userID int64) (*models.OrderStats, error) {
	var stats models.OrderStats
	err := s.db.GetContext(ctx, &stats, `
		SELECT COUNT(*) AS count,
		       COALESCE(SUM(total_amount), 0) AS total_spent,
		       MIN(created_at) AS first_order,
		       MAX(created_at) AS last_order
		FROM orders WHERE user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// UpdateOrderStatus moves an order along the status graph, rejecting
// transitions outside the table.
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID int64, status string) error {
	if !models.ValidOrderStatus(status) {
		return fmt.Errorf("status %q: %w", status, models.ErrValidation)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var current string
	err = tx.GetContext(ctx, &current,
		"SELECT status FROM orders WHERE id = $1 FOR UPDATE", orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("order %d: %w", orderID, models.ErrNotFound)
	}
	if err != nil {
		return err
	}

	if !models.CanTransition(current, status) {
		return fmt.Errorf("%s -> %s: %w", current, status, models.ErrIllegalTransition)
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2",
		status, orderID)
	if err != nil {
		return err
	}

	return tx.Commit()
}
