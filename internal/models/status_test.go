package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidOrderStatus(t *testing.T) {
	assert.True(t, ValidOrderStatus(OrderStatusPaid))
	assert.True(t, ValidOrderStatus(OrderStatusCancelled))
	assert.False(t, ValidOrderStatus("refunded"))
	assert.False(t, ValidOrderStatus(""))
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(OrderStatusPaid, OrderStatusProcessing))
	assert.True(t, CanTransition(OrderStatusProcessing, OrderStatusShipped))
	assert.True(t, CanTransition(OrderStatusShipped, OrderStatusDelivered))
	assert.True(t, CanTransition(OrderStatusPaid, OrderStatusCancelled))

	// No skipping ahead, no going back, no leaving terminal states.
	assert.False(t, CanTransition(OrderStatusPaid, OrderStatusDelivered))
	assert.False(t, CanTransition(OrderStatusShipped, OrderStatusPaid))
	assert.False(t, CanTransition(OrderStatusDelivered, OrderStatusCancelled))
	assert.False(t, CanTransition(OrderStatusCancelled, OrderStatusPaid))
}
