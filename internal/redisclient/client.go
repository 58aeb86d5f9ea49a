package redisclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"shopbot/internal/models"

	"github.com/go-redis/redis/v8"
)

type Client struct {
	rdb        *redis.Client
	pendingTTL time.Duration
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int, pendingTTL time.Duration) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb, pendingTTL: pendingTTL}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Ping checks Redis liveness for readiness probes
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func pendingKey(userID int64) string {
	return fmt.Sprintf("pending:%d", userID)
}

// SetPendingOrder stores (or overwrites) the per-user pending-order context
// under the configured TTL. Each new checkout replaces the previous one.
func (c *Client) SetPendingOrder(ctx context.Context, pending *models.PendingOrder) error {
	payload, err := json.Marshal(pending)
	if err != nil {
		return fmt.Errorf("failed to marshal pending order: %w", err)
	}

	return c.rdb.Set(ctx, pendingKey(pending.UserID), payload, c.pendingTTL).Err()
}

// GetPendingOrder retrieves the pending-order context for a user, or
// models.ErrNoPendingOrder when none is stored.
func (c *Client) GetPendingOrder(ctx context.Context, userID int64) (*models.PendingOrder, error) {
	payload, err := c.rdb.Get(ctx, pendingKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, models.ErrNoPendingOrder
	}
	if err != nil {
		return nil, err
	}

	var pending models.PendingOrder
	if err := json.Unmarshal(payload, &pending); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pending order: %w", err)
	}
	return &pending, nil
}

// DeletePendingOrder drops the pending-order context after commit
func (c *Client) DeletePendingOrder(ctx context.Context, userID int64) error {
	return c.rdb.Del(ctx, pendingKey(userID)).Err()
}

// MarkChargeSeen records a provider charge id, returning false if it was
// already recorded. Fast path for success-event re-delivery; the unique
// constraint on orders.charge_id is the backstop.
func (c *Client) MarkChargeSeen(ctx context.Context, chargeID string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("charge:%s", chargeID), "1", ttl).Result()
}

// ClearChargeSeen drops a charge id so a failed commit can be retried.
func (c *Client) ClearChargeSeen(ctx context.Context, chargeID string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("charge:%s", chargeID)).Err()
}
