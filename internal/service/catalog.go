package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"shopbot/internal/models"
	"shopbot/internal/util"
)

// CatalogStore is the slice of the store the catalog service needs.
type CatalogStore interface {
	CreateProduct(ctx context.Context, p *models.Product) error
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
	ListProducts(ctx context.Context, activeOnly bool, category string) ([]models.Product, error)
	ListCategories(ctx context.Context) ([]string, error)
	UpdateProduct(ctx context.Context, id int64, upd models.ProductUpdate) error
	SoftDeleteProduct(ctx context.Context, id int64) error
	HardDeleteProduct(ctx context.Context, id int64) error
	GetInventory(ctx context.Context, productID int64) (*models.Inventory, error)
	SetStock(ctx context.Context, productID int64, stock int) error
}

// CatalogService manages the product catalog and its stock levels.
type CatalogService struct {
	store  CatalogStore
	logger *zap.Logger
}

func NewCatalogService(store CatalogStore) *CatalogService {
	return &CatalogService{
		store:  store,
		logger: util.GetLogger(),
	}
}

// Create validates and inserts a product with its initial stock.
func (s *CatalogService) Create(ctx context.Context, p *models.Product, stock int) error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return fmt.Errorf("product name is required: %w", models.ErrValidation)
	}
	if p.Price <= 0 {
		return fmt.Errorf("price must be positive, got %d: %w", p.Price, models.ErrValidation)
	}
	if stock < 0 {
		return fmt.Errorf("stock must be non-negative, got %d: %w", stock, models.ErrValidation)
	}

	p.IsActive = true
	if err := s.store.CreateProduct(ctx, p); err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}
	if stock > 0 {
		if err := s.store.SetStock(ctx, p.ID, stock); err != nil {
			return fmt.Errorf("product %d created but stock not set: %w", p.ID, err)
		}
	}

	s.logger.Info("product created",
		zap.Int64("product_id", p.ID),
		zap.String("name", p.Name),
		zap.Int64("price", p.Price),
		zap.Int("stock", stock))
	return nil
}

func (s *CatalogService) Get(ctx context.Context, id int64) (*models.Product, error) {
	return s.store.GetProductByID(ctx, id)
}

// ListActive returns the products shown to buyers, optionally filtered
// by category.
func (s *CatalogService) ListActive(ctx context.Context, category string) ([]models.Product, error) {
	return s.store.ListProducts(ctx, true, category)
}

// ListAll returns every product including disabled ones, for admins.
func (s *CatalogService) ListAll(ctx context.Context) ([]models.Product, error) {
	return s.store.ListProducts(ctx, false, "")
}

func (s *CatalogService) Categories(ctx context.Context) ([]string, error) {
	return s.store.ListCategories(ctx)
}

// Update applies a partial edit, validating whichever fields are set.
func (s *CatalogService) Update(ctx context.Context, id int64, upd models.ProductUpdate) error {
	if upd.Name != nil {
		trimmed := strings.TrimSpace(*upd.Name)
		if trimmed == "" {
			return fmt.Errorf("product name is required: %w", models.ErrValidation)
		}
		upd.Name = &trimmed
	}
	if upd.Price != nil && *upd.Price <= 0 {
		return fmt.Errorf("price must be positive, got %d: %w", *upd.Price, models.ErrValidation)
	}

	if err := s.store.UpdateProduct(ctx, id, upd); err != nil {
		return err
	}
	s.logger.Info("product updated", zap.Int64("product_id", id))
	return nil
}

// Disable hides a product from buyers without touching order history.
func (s *CatalogService) Disable(ctx context.Context, id int64) error {
	return s.store.SoftDeleteProduct(ctx, id)
}

// Delete removes a product entirely, including any cart lines holding it.
// Order history keeps its frozen copies of the name and price.
func (s *CatalogService) Delete(ctx context.Context, id int64) error {
	if err := s.store.HardDeleteProduct(ctx, id); err != nil {
		return err
	}
	s.logger.Info("product deleted", zap.Int64("product_id", id))
	return nil
}

func (s *CatalogService) GetStock(ctx context.Context, productID int64) (int, error) {
	inv, err := s.store.GetInventory(ctx, productID)
	if err != nil {
		return 0, err
	}
	return inv.Stock, nil
}

// SetStock replaces a product's stock level with an absolute value.
func (s *CatalogService) SetStock(ctx context.Context, productID int64, stock int) error {
	if stock < 0 {
		return fmt.Errorf("stock must be non-negative, got %d: %w", stock, models.ErrValidation)
	}
	if _, err := s.store.GetProductByID(ctx, productID); err != nil {
		return err
	}
	if err := s.store.SetStock(ctx, productID, stock); err != nil {
		return err
	}
	s.logger.Info("stock set",
		zap.Int64("product_id", productID),
		zap.Int("stock", stock))
	return nil
}
