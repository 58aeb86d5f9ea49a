package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopbot/internal/models"
)

type fakeCatalogStore struct {
	products map[int64]*models.Product
	stock    map[int64]int
	nextID   int64
	updates  map[int64]models.ProductUpdate
}

func newFakeCatalogStore() *fakeCatalogStore {
	return &fakeCatalogStore{
		products: make(map[int64]*models.Product),
		stock:    make(map[int64]int),
		updates:  make(map[int64]models.ProductUpdate),
	}
}

func (f *fakeCatalogStore) CreateProduct(ctx context.Context, p *models.Product) error {
	f.nextID++
	p.ID = f.nextID
	f.products[p.ID] = p
	return nil
}

func (f *fakeCatalogStore) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return nil, fmt.Errorf("product %d: %w", id, models.ErrNotFound)
	}
	return p, nil
}

func (f *fakeCatalogStore) ListProducts(ctx context.Context, activeOnly bool, category string) ([]models.Product, error) {
	var out []models.Product
	for _, p := range f.products {
		if activeOnly && !p.IsActive {
			continue
		}
		if category != "" && p.Category != category {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

func (f *fakeCatalogStore) ListCategories(ctx context.Context) ([]string, error) {
	return nil, nil
}

func (f *fakeCatalogStore) UpdateProduct(ctx context.Context, id int64, upd models.ProductUpdate) error {
	f.updates[id] = upd
	return nil
}

func (f *fakeCatalogStore) SoftDeleteProduct(ctx context.Context, id int64) error {
	p, ok := f.products[id]
	if !ok {
		return fmt.Errorf("product %d: %w", id, models.ErrNotFound)
	}
	p.IsActive = false
	return nil
}

func (f *fakeCatalogStore) HardDeleteProduct(ctx context.Context, id int64) error {
	delete(f.products, id)
	return nil
}

func (f *fakeCatalogStore) GetInventory(ctx context.Context, productID int64) (*models.Inventory, error) {
	return &models.Inventory{ProductID: productID, Stock: f.stock[productID]}, nil
}

func (f *fakeCatalogStore) SetStock(ctx context.Context, productID int64, stock int) error {
	f.stock[productID] = stock
	return nil
}

func TestCatalogCreate(t *testing.T) {
	store := newFakeCatalogStore()
	svc := NewCatalogService(store)
	ctx := context.Background()

	p := &models.Product{Name: "  Coffee  ", Price: 10}
	require.NoError(t, svc.Create(ctx, p, 5))
	assert.Equal(t, "Coffee", p.Name)
	assert.True(t, p.IsActive)
	assert.Equal(t, 5, store.stock[p.ID])
}

func TestCatalogCreateValidation(t *testing.T) {
	svc := NewCatalogService(newFakeCatalogStore())
	ctx := context.Background()

	assert.ErrorIs(t, svc.Create(ctx, &models.Product{Name: "", Price: 10}, 0), models.ErrValidation)
	assert.ErrorIs(t, svc.Create(ctx, &models.Product{Name: "   ", Price: 10}, 0), models.ErrValidation)
	assert.ErrorIs(t, svc.Create(ctx, &models.Product{Name: "Coffee", Price: 0}, 0), models.ErrValidation)
	assert.ErrorIs(t, svc.Create(ctx, &models.Product{Name: "Coffee", Price: -3}, 0), models.ErrValidation)
	assert.ErrorIs(t, svc.Create(ctx, &models.Product{Name: "Coffee", Price: 10}, -1), models.ErrValidation)
}

func TestCatalogUpdateValidation(t *testing.T) {
	store := newFakeCatalogStore()
	svc := NewCatalogService(store)
	ctx := context.Background()

	badPrice := int64(0)
	err := svc.Update(ctx, 1, models.ProductUpdate{Price: &badPrice})
	assert.ErrorIs(t, err, models.ErrValidation)

	empty := " "
	err = svc.Update(ctx, 1, models.ProductUpdate{Name: &empty})
	assert.ErrorIs(t, err, models.ErrValidation)

	good := int64(15)
	require.NoError(t, svc.Update(ctx, 1, models.ProductUpdate{Price: &good}))
	assert.Equal(t, int64(15), *store.updates[1].Price)
}

func TestCatalogDisableHidesFromBuyers(t *testing.T) {
	store := newFakeCatalogStore()
	svc := NewCatalogService(store)
	ctx := context.Background()

	p := &models.Product{Name: "Coffee", Price: 10}
	require.NoError(t, svc.Create(ctx, p, 1))
	require.NoError(t, svc.Disable(ctx, p.ID))

	active, err := svc.ListActive(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := svc.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCatalogSetStock(t *testing.T) {
	store := newFakeCatalogStore()
	svc := NewCatalogService(store)
	ctx := context.Background()

	p := &models.Product{Name: "Coffee", Price: 10}
	require.NoError(t, svc.Create(ctx, p, 0))

	require.NoError(t, svc.SetStock(ctx, p.ID, 7))
	stock, err := svc.GetStock(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, stock)

	assert.ErrorIs(t, svc.SetStock(ctx, p.ID, -1), models.ErrValidation)
	assert.ErrorIs(t, svc.SetStock(ctx, 999, 5), models.ErrNotFound)
}
