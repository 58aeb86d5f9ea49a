package models

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation is returned on malformed input (bad price, empty name).
	ErrValidation = errors.New("validation failed")

	// ErrEmptyCart is returned when checkout is attempted on an empty cart.
	ErrEmptyCart = errors.New("cart is empty")

	// ErrStockExceeded is returned when adding to the cart would exceed
	// available stock.
	ErrStockExceeded = errors.New("stock exceeded")

	// ErrInsufficientStock is returned when a decrement would drive stock
	// negative; stock is left unchanged.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrPayloadMismatch is returned when a payment event carries a payload
	// that does not match the stored pending-order context.
	ErrPayloadMismatch = errors.New("invoice payload mismatch")

	// ErrNoPendingOrder is returned when a payment event arrives for a user
	// with no pending-order context.
	ErrNoPendingOrder = errors.New("no pending order")

	// ErrIllegalTransition is returned on an order status move outside the
	// transition table.
	ErrIllegalTransition = errors.New("illegal status transition")
)

// OutOfStockError reports the snapshot lines that no longer fit in live
// inventory at pay time.
type OutOfStockError struct {
	Lines []SnapshotLine
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("out of stock: %d line(s) exceed available inventory", len(e.Lines))
}

// ReconciliationError reports a success-transaction failure after the charge
// settled. The charge id is surfaced so the operator can reconcile manually.
type ReconciliationError struct {
	ChargeID string
	Err      error
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("order commit failed after payment %s settled: %v", e.ChargeID, e.Err)
}

func (e *ReconciliationError) Unwrap() error { return e.Err }
