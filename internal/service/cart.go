package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"shopbot/internal/models"
	"shopbot/internal/util"
)

// MaxQuantityButtons caps how many quantity choices the product view
// offers at once.
const MaxQuantityButtons = 5

// CartStore is the slice of the store the cart service needs.
type CartStore interface {
	AddCartItem(ctx context.Context, userID, productID int64, quantity int) error
	GetCartQuantity(ctx context.Context, userID, productID int64) (int, error)
	RemoveOneCartItem(ctx context.Context, userID, productID int64) error
	RemoveCartItem(ctx context.Context, userID, productID int64) error
	ClearCart(ctx context.Context, userID int64) error
	ListCartLines(ctx context.Context, userID int64) ([]models.CartLine, int, error)
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
	GetInventory(ctx context.Context, productID int64) (*models.Inventory, error)
}

// CartService manages per-user carts. Carts never hold more of a product
// than inventory can cover at the moment of adding.
type CartService struct {
	store  CartStore
	logger *zap.Logger
}

func NewCartService(store CartStore) *CartService {
	return &CartService{
		store:  store,
		logger: util.GetLogger(),
	}
}

// Add puts quantity more units of a product into the user's cart. The
// resulting line quantity may not exceed current stock.
func (s *CartService) Add(ctx context.Context, userID, productID int64, quantity int) error {
	if quantity < 1 {
		return fmt.Errorf("quantity must be at least 1, got %d: %w", quantity, models.ErrValidation)
	}

	product, err := s.store.GetProductByID(ctx, productID)
	if err != nil {
		return err
	}
	if !product.IsActive {
		return fmt.Errorf("product %d is disabled: %w", productID, models.ErrNotFound)
	}

	inv, err := s.store.GetInventory(ctx, productID)
	if err != nil {
		return err
	}
	current, err := s.store.GetCartQuantity(ctx, userID, productID)
	if err != nil {
		return err
	}
	if current+quantity > inv.Stock {
		return fmt.Errorf("%d in cart + %d requested > %d in stock: %w",
			current, quantity, inv.Stock, models.ErrStockExceeded)
	}

	if err := s.store.AddCartItem(ctx, userID, productID, quantity); err != nil {
		return err
	}
	util.CartAddsTotal.Inc()
	s.logger.Debug("cart add",
		zap.Int64("user_id", userID),
		zap.Int64("product_id", productID),
		zap.Int("quantity", quantity))
	return nil
}

// QuantityOptions returns the quantities the product view may offer the
// user, given what is in stock and already in their cart. Empty when
// nothing more can be added.
func (s *CartService) QuantityOptions(ctx context.Context, userID, productID int64) ([]int, error) {
	inv, err := s.store.GetInventory(ctx, productID)
	if err != nil {
		return nil, err
	}
	current, err := s.store.GetCartQuantity(ctx, userID, productID)
	if err != nil {
		return nil, err
	}

	room := inv.Stock - current
	if room > MaxQuantityButtons {
		room = MaxQuantityButtons
	}
	if room <= 0 {
		return nil, nil
	}
	options := make([]int, room)
	for i := range options {
		options[i] = i + 1
	}
	return options, nil
}

// RemoveOne decrements a cart line by one unit, dropping the line when
// it reaches zero.
func (s *CartService) RemoveOne(ctx context.Context, userID, productID int64) error {
	return s.store.RemoveOneCartItem(ctx, userID, productID)
}

// Remove drops a whole cart line.
func (s *CartService) Remove(ctx context.Context, userID, productID int64) error {
	return s.store.RemoveCartItem(ctx, userID, productID)
}

func (s *CartService) Clear(ctx context.Context, userID int64) error {
	return s.store.ClearCart(ctx, userID)
}

// List returns the cart's live lines and their total. Lines whose
// product has gone inactive or out of stock are pruned on read; the
// pruned count is returned so the caller can tell the user.
func (s *CartService) List(ctx context.Context, userID int64) ([]models.CartLine, int64, int, error) {
	lines, pruned, err := s.store.ListCartLines(ctx, userID)
	if err != nil {
		return nil, 0, 0, err
	}
	if pruned > 0 {
		util.CartPrunedLinesTotal.Add(float64(pruned))
		s.logger.Info("pruned stale cart lines",
			zap.Int64("user_id", userID),
			zap.Int("pruned", pruned))
	}

	var total int64
	for _, line := range lines {
		total += line.UnitPrice * int64(line.Quantity)
	}
	return lines, total, pruned, nil
}
