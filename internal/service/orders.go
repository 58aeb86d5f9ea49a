package service

import (
	"context"

	"go.uber.org/zap"

	"shopbot/internal/models"
	"shopbot/internal/util"
)

// OrderStore is the slice of the store the order service needs.
type OrderStore interface {
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrdersByUserID(ctx context.Context, userID int64) ([]models.Order, error)
	GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error)
	GetOrderStats(ctx context.Context, userID int64) (*models.OrderStats, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status string) error
}

// OrderService reads order history and walks orders along the status graph.
type OrderService struct {
	store  OrderStore
	logger *zap.Logger
}

func NewOrderService(store OrderStore) *OrderService {
	return &OrderService{
		store:  store,
		logger: util.GetLogger(),
	}
}

func (s *OrderService) Get(ctx context.Context, id int64) (*models.Order, error) {
	return s.store.GetOrderByID(ctx, id)
}

// GetWithItems returns an order together with its frozen lines.
func (s *OrderService) GetWithItems(ctx context.Context, id int64) (*models.Order, []models.OrderItem, error) {
	order, err := s.store.GetOrderByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	items, err := s.store.GetOrderItemsByOrderID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return order, items, nil
}

func (s *OrderService) ListForUser(ctx context.Context, userID int64) ([]models.Order, error) {
	return s.store.GetOrdersByUserID(ctx, userID)
}

func (s *OrderService) Stats(ctx context.Context, userID int64) (*models.OrderStats, error) {
	return s.store.GetOrderStats(ctx, userID)
}

// SetStatus moves an order to a new status, enforcing the transition table.
func (s *OrderService) SetStatus(ctx context.Context, orderID int64, status string) error {
	if err := s.store.UpdateOrderStatus(ctx, orderID, status); err != nil {
		return err
	}
	s.logger.Info("order status updated",
		zap.Int64("order_id", orderID),
		zap.String("status", status))
	return nil
}
