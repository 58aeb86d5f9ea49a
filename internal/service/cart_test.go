package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopbot/internal/models"
)

type fakeCartStore struct {
	products  map[int64]*models.Product
	stock     map[int64]int
	cart      map[int64]int // productID -> quantity, single test user
	listLines []models.CartLine
	pruned    int
}

func newFakeCartStore() *fakeCartStore {
	return &fakeCartStore{
		products: make(map[int64]*models.Product),
		stock:    make(map[int64]int),
		cart:     make(map[int64]int),
	}
}

func (f *fakeCartStore) AddCartItem(ctx context.Context, userID, productID int64, quantity int) error {
	f.cart[productID] += quantity
	return nil
}

func (f *fakeCartStore) GetCartQuantity(ctx context.Context, userID, productID int64) (int, error) {
	return f.cart[productID], nil
}

func (f *fakeCartStore) RemoveOneCartItem(ctx context.Context, userID, productID int64) error {
	if f.cart[productID] > 1 {
		f.cart[productID]--
	} else {
		delete(f.cart, productID)
	}
	return nil
}

func (f *fakeCartStore) RemoveCartItem(ctx context.Context, userID, productID int64) error {
	delete(f.cart, productID)
	return nil
}

func (f *fakeCartStore) ClearCart(ctx context.Context, userID int64) error {
	f.cart = make(map[int64]int)
	return nil
}

func (f *fakeCartStore) ListCartLines(ctx context.Context, userID int64) ([]models.CartLine, int, error) {
	return f.listLines, f.pruned, nil
}

func (f *fakeCartStore) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return nil, fmt.Errorf("product %d: %w", id, models.ErrNotFound)
	}
	return p, nil
}

func (f *fakeCartStore) GetInventory(ctx context.Context, productID int64) (*models.Inventory, error) {
	return &models.Inventory{ProductID: productID, Stock: f.stock[productID]}, nil
}

func newCartFixture() (*CartService, *fakeCartStore) {
	store := newFakeCartStore()
	return NewCartService(store), store
}

func TestCartAdd(t *testing.T) {
	svc, store := newCartFixture()
	store.products[1] = &models.Product{ID: 1, Name: "Coffee", Price: 10, IsActive: true}
	store.stock[1] = 3

	require.NoError(t, svc.Add(context.Background(), 7, 1, 2))
	assert.Equal(t, 2, store.cart[1])

	// One more fits, then stock is exhausted.
	require.NoError(t, svc.Add(context.Background(), 7, 1, 1))
	err := svc.Add(context.Background(), 7, 1, 1)
	assert.ErrorIs(t, err, models.ErrStockExceeded)
	assert.Equal(t, 3, store.cart[1])
}

func TestCartAddValidation(t *testing.T) {
	svc, store := newCartFixture()
	store.products[1] = &models.Product{ID: 1, Name: "Coffee", Price: 10, IsActive: true}
	store.stock[1] = 3

	assert.ErrorIs(t, svc.Add(context.Background(), 7, 1, 0), models.ErrValidation)
	assert.ErrorIs(t, svc.Add(context.Background(), 7, 99, 1), models.ErrNotFound)

	store.products[2] = &models.Product{ID: 2, Name: "Hidden", Price: 5, IsActive: false}
	assert.ErrorIs(t, svc.Add(context.Background(), 7, 2, 1), models.ErrNotFound)
}

func TestQuantityOptions(t *testing.T) {
	svc, store := newCartFixture()
	store.products[1] = &models.Product{ID: 1, IsActive: true}

	store.stock[1] = 10
	options, err := svc.QuantityOptions(context.Background(), 7, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, options)

	store.stock[1] = 3
	options, err = svc.QuantityOptions(context.Background(), 7, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, options)

	// What is already in the cart shrinks the room.
	store.cart[1] = 2
	options, err = svc.QuantityOptions(context.Background(), 7, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, options)

	store.cart[1] = 3
	options, err = svc.QuantityOptions(context.Background(), 7, 1)
	require.NoError(t, err)
	assert.Empty(t, options)
}

func TestCartListTotals(t *testing.T) {
	svc, store := newCartFixture()
	store.listLines = []models.CartLine{
		{ProductID: 1, Name: "Coffee", UnitPrice: 10, Quantity: 2},
		{ProductID: 2, Name: "Mug", UnitPrice: 15, Quantity: 1},
	}
	store.pruned = 1

	lines, total, pruned, err := svc.List(context.Background(), 7)
	require.NoError(t, err)
	assert.Len(t, lines, 2)
	assert.Equal(t, int64(35), total)
	assert.Equal(t, 1, pruned)
}

func TestCartRemoveOne(t *testing.T) {
	svc, store := newCartFixture()
	store.cart[1] = 2

	require.NoError(t, svc.RemoveOne(context.Background(), 7, 1))
	assert.Equal(t, 1, store.cart[1])
	require.NoError(t, svc.RemoveOne(context.Background(), 7, 1))
	_, ok := store.cart[1]
	assert.False(t, ok)
}
