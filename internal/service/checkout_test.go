package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopbot/internal/models"
)

type fakeCheckoutStore struct {
	lines    []models.CartLine
	pruned   int
	stock    map[int64]int
	existing *models.Order

	committed      *models.Order
	committedItems []models.OrderItem
	commitErr      error
}

func (f *fakeCheckoutStore) ListCartLines(ctx context.Context, userID int64) ([]models.CartLine, int, error) {
	return f.lines, f.pruned, nil
}

func (f *fakeCheckoutStore) GetInventoryByIDs(ctx context.Context, ids []int64) (map[int64]int, error) {
	return f.stock, nil
}

func (f *fakeCheckoutStore) CommitPaidOrder(ctx context.Context, order *models.Order, items []models.OrderItem) error {
	if f.commitErr != nil {
		return f.commitErr
	}
	order.ID = 101
	f.committed = order
	f.committedItems = items
	return nil
}

func (f *fakeCheckoutStore) GetOrderByChargeID(ctx context.Context, chargeID string) (*models.Order, error) {
	return f.existing, nil
}

type fakePendings struct {
	pending map[int64]*models.PendingOrder
	seen    map[string]bool
	seenErr error
}

func newFakePendings() *fakePendings {
	return &fakePendings{
		pending: make(map[int64]*models.PendingOrder),
		seen:    make(map[string]bool),
	}
}

func (f *fakePendings) SetPendingOrder(ctx context.Context, p *models.PendingOrder) error {
	f.pending[p.UserID] = p
	return nil
}

func (f *fakePendings) GetPendingOrder(ctx context.Context, userID int64) (*models.PendingOrder, error) {
	p, ok := f.pending[userID]
	if !ok {
		return nil, models.ErrNoPendingOrder
	}
	return p, nil
}

func (f *fakePendings) DeletePendingOrder(ctx context.Context, userID int64) error {
	delete(f.pending, userID)
	return nil
}

func (f *fakePendings) MarkChargeSeen(ctx context.Context, chargeID string, ttl time.Duration) (bool, error) {
	if f.seenErr != nil {
		return false, f.seenErr
	}
	if f.seen[chargeID] {
		return false, nil
	}
	f.seen[chargeID] = true
	return true, nil
}

func (f *fakePendings) ClearChargeSeen(ctx context.Context, chargeID string) error {
	delete(f.seen, chargeID)
	return nil
}

type fakeInvoices struct {
	chatID   int64
	payload  string
	currency string
	amount   int
	calls    int
}

func (f *fakeInvoices) SendInvoice(chatID int64, title, description, payload, providerToken, currency string, amount int) error {
	f.chatID = chatID
	f.payload = payload
	f.currency = currency
	f.amount = amount
	f.calls++
	return nil
}

type fakeEvents struct {
	paid       int
	broadcasts int
}

func (f *fakeEvents) PublishOrderPaid(ctx context.Context, order *models.Order, lines []models.SnapshotLine) error {
	f.paid++
	return nil
}

func (f *fakeEvents) PublishBroadcastRequested(ctx context.Context, requestedBy int64, text string) error {
	f.broadcasts++
	return nil
}

func newCheckoutFixture(store *fakeCheckoutStore) (*CheckoutService, *fakePendings, *fakeInvoices, *fakeEvents) {
	pendings := newFakePendings()
	invoices := &fakeInvoices{}
	events := &fakeEvents{}
	svc := NewCheckoutService(store, pendings, invoices, events, "XTR", "")
	return svc, pendings, invoices, events
}

func TestCheckoutSnapshotsCart(t *testing.T) {
	store := &fakeCheckoutStore{
		lines: []models.CartLine{
			{ProductID: 1, Name: "Coffee", UnitPrice: 10, Quantity: 2, Stock: 5, IsActive: true},
		},
	}
	svc, pendings, _, _ := newCheckoutFixture(store)

	pending, pruned, err := svc.Checkout(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 0, pruned)
	assert.Equal(t, int64(20), pending.Total)
	assert.True(t, strings.HasPrefix(pending.PaymentID, "order_7_"))
	assert.Len(t, strings.TrimPrefix(pending.PaymentID, "order_7_"), 8)
	require.Len(t, pending.Lines, 1)
	assert.Equal(t, "Coffee", pending.Lines[0].Name)

	stored, err := pendings.GetPendingOrder(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, pending.PaymentID, stored.PaymentID)
}

func TestCheckoutReplacesPreviousPending(t *testing.T) {
	store := &fakeCheckoutStore{
		lines: []models.CartLine{
			{ProductID: 1, Name: "Coffee", UnitPrice: 10, Quantity: 1},
		},
	}
	svc, pendings, _, _ := newCheckoutFixture(store)

	first, _, err := svc.Checkout(context.Background(), 7)
	require.NoError(t, err)
	second, _, err := svc.Checkout(context.Background(), 7)
	require.NoError(t, err)

	assert.NotEqual(t, first.PaymentID, second.PaymentID)
	stored, err := pendings.GetPendingOrder(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, second.PaymentID, stored.PaymentID)
}

func TestCheckoutEmptyCart(t *testing.T) {
	svc, _, _, _ := newCheckoutFixture(&fakeCheckoutStore{})

	_, _, err := svc.Checkout(context.Background(), 7)
	assert.ErrorIs(t, err, models.ErrEmptyCart)
}

func TestPayIssuesInvoice(t *testing.T) {
	store := &fakeCheckoutStore{stock: map[int64]int{1: 5}}
	svc, pendings, invoices, _ := newCheckoutFixture(store)
	pendings.pending[7] = &models.PendingOrder{
		UserID:    7,
		PaymentID: "order_7_deadbeef",
		Total:     20,
		Lines:     []models.SnapshotLine{{ProductID: 1, Name: "Coffee", UnitPrice: 10, Quantity: 2}},
	}

	_, err := svc.Pay(context.Background(), 7, 700)
	require.NoError(t, err)
	assert.Equal(t, 1, invoices.calls)
	assert.Equal(t, int64(700), invoices.chatID)
	assert.Equal(t, "order_7_deadbeef", invoices.payload)
	assert.Equal(t, "XTR", invoices.currency)
	assert.Equal(t, 20, invoices.amount)
}

func TestPayOutOfStock(t *testing.T) {
	store := &fakeCheckoutStore{stock: map[int64]int{1: 1}}
	svc, pendings, invoices, _ := newCheckoutFixture(store)
	pendings.pending[7] = &models.PendingOrder{
		UserID:    7,
		PaymentID: "order_7_deadbeef",
		Total:     20,
		Lines:     []models.SnapshotLine{{ProductID: 1, Name: "Coffee", UnitPrice: 10, Quantity: 2}},
	}

	_, err := svc.Pay(context.Background(), 7, 700)
	var oos *models.OutOfStockError
	require.ErrorAs(t, err, &oos)
	require.Len(t, oos.Lines, 1)
	assert.Equal(t, int64(1), oos.Lines[0].ProductID)
	assert.Equal(t, 0, invoices.calls)
}

func TestPayWithoutPending(t *testing.T) {
	svc, _, _, _ := newCheckoutFixture(&fakeCheckoutStore{})

	_, err := svc.Pay(context.Background(), 7, 700)
	assert.ErrorIs(t, err, models.ErrNoPendingOrder)
}

func TestHandlePreCheckout(t *testing.T) {
	svc, pendings, _, _ := newCheckoutFixture(&fakeCheckoutStore{})
	pendings.pending[7] = &models.PendingOrder{UserID: 7, PaymentID: "order_7_deadbeef", Total: 20}

	assert.NoError(t, svc.HandlePreCheckout(context.Background(), 7, "order_7_deadbeef", 20))
	assert.ErrorIs(t,
		svc.HandlePreCheckout(context.Background(), 7, "order_7_other000", 20),
		models.ErrPayloadMismatch)
	assert.ErrorIs(t,
		svc.HandlePreCheckout(context.Background(), 8, "order_8_deadbeef", 20),
		models.ErrNoPendingOrder)
}

func TestHandleSuccessCommitsOrder(t *testing.T) {
	store := &fakeCheckoutStore{}
	svc, pendings, _, events := newCheckoutFixture(store)
	pendings.pending[7] = &models.PendingOrder{
		UserID:    7,
		PaymentID: "order_7_deadbeef",
		Total:     20,
		Lines:     []models.SnapshotLine{{ProductID: 1, Name: "Coffee", UnitPrice: 10, Quantity: 2}},
		CreatedAt: time.Now(),
	}

	order, lines, duplicate, err := svc.HandleSuccess(context.Background(), 7, "order_7_deadbeef", "chg_1", 20)
	require.NoError(t, err)
	assert.False(t, duplicate)
	require.NotNil(t, order)
	assert.Equal(t, int64(101), order.ID)
	assert.Equal(t, int64(20), order.TotalAmount)
	assert.Equal(t, "chg_1", order.ChargeID)
	assert.Equal(t, models.OrderStatusNew, order.Status)
	require.Len(t, lines, 1)
	require.Len(t, store.committedItems, 1)
	assert.Equal(t, "Coffee", store.committedItems[0].Name)
	assert.Equal(t, 1, events.paid)

	// The pending context is gone afterwards.
	_, err = pendings.GetPendingOrder(context.Background(), 7)
	assert.ErrorIs(t, err, models.ErrNoPendingOrder)
}

func TestHandleSuccessStoresSnapshotTotal(t *testing.T) {
	// The snapshot total wins even when the provider reports another
	// figure; the discrepancy is only logged.
	store := &fakeCheckoutStore{}
	svc, pendings, _, _ := newCheckoutFixture(store)
	pendings.pending[7] = &models.PendingOrder{
		UserID:    7,
		PaymentID: "order_7_deadbeef",
		Total:     20,
		Lines:     []models.SnapshotLine{{ProductID: 1, Name: "Coffee", UnitPrice: 10, Quantity: 2}},
	}

	order, _, _, err := svc.HandleSuccess(context.Background(), 7, "order_7_deadbeef", "chg_1", 2000)
	require.NoError(t, err)
	assert.Equal(t, int64(20), order.TotalAmount)
}

func TestHandleSuccessDuplicateCharge(t *testing.T) {
	store := &fakeCheckoutStore{
		existing: &models.Order{ID: 101, ChargeID: "chg_1"},
	}
	svc, _, _, events := newCheckoutFixture(store)

	order, _, duplicate, err := svc.HandleSuccess(context.Background(), 7, "order_7_deadbeef", "chg_1", 20)
	require.NoError(t, err)
	assert.True(t, duplicate)
	assert.Equal(t, int64(101), order.ID)
	assert.Nil(t, store.committed)
	assert.Equal(t, 0, events.paid)
}

func TestHandleSuccessRedeliveryDedup(t *testing.T) {
	store := &fakeCheckoutStore{}
	svc, pendings, _, _ := newCheckoutFixture(store)
	pendings.seen["chg_1"] = true

	_, _, duplicate, err := svc.HandleSuccess(context.Background(), 7, "order_7_deadbeef", "chg_1", 20)
	require.NoError(t, err)
	assert.True(t, duplicate)
	assert.Nil(t, store.committed)
}

func TestHandleSuccessWithoutPendingIsReconciliation(t *testing.T) {
	svc, _, _, _ := newCheckoutFixture(&fakeCheckoutStore{})

	_, _, _, err := svc.HandleSuccess(context.Background(), 7, "order_7_deadbeef", "chg_1", 20)
	var rerr *models.ReconciliationError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "chg_1", rerr.ChargeID)
	assert.ErrorIs(t, err, models.ErrNoPendingOrder)
}

func TestHandleSuccessCommitFailureIsReconciliation(t *testing.T) {
	store := &fakeCheckoutStore{commitErr: errors.New("deadlock")}
	svc, pendings, _, _ := newCheckoutFixture(store)
	pendings.pending[7] = &models.PendingOrder{
		UserID:    7,
		PaymentID: "order_7_deadbeef",
		Total:     20,
		Lines:     []models.SnapshotLine{{ProductID: 1, Name: "Coffee", UnitPrice: 10, Quantity: 2}},
	}

	_, _, _, err := svc.HandleSuccess(context.Background(), 7, "order_7_deadbeef", "chg_1", 20)
	var rerr *models.ReconciliationError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "chg_1", rerr.ChargeID)
}

func TestHandleSuccessRetryAfterFailedCommit(t *testing.T) {
	store := &fakeCheckoutStore{commitErr: errors.New("deadlock")}
	svc, pendings, _, events := newCheckoutFixture(store)
	pendings.pending[7] = &models.PendingOrder{
		UserID:    7,
		PaymentID: "order_7_deadbeef",
		Total:     20,
		Lines:     []models.SnapshotLine{{ProductID: 1, Name: "Coffee", UnitPrice: 10, Quantity: 2}},
	}

	_, _, _, err := svc.HandleSuccess(context.Background(), 7, "order_7_deadbeef", "chg_1", 20)
	var rerr *models.ReconciliationError
	require.ErrorAs(t, err, &rerr)
	assert.False(t, pendings.seen["chg_1"], "dedup key must be released after a failed commit")

	store.commitErr = nil
	order, _, duplicate, err := svc.HandleSuccess(context.Background(), 7, "order_7_deadbeef", "chg_1", 20)
	require.NoError(t, err)
	assert.False(t, duplicate)
	require.NotNil(t, order)
	assert.Equal(t, int64(101), order.ID)
	require.NotNil(t, store.committed)
	assert.Equal(t, 1, events.paid)
}

func TestInvoiceTitle(t *testing.T) {
	single := []models.SnapshotLine{{Name: "Coffee", Quantity: 1}}
	assert.Equal(t, "Coffee", invoiceTitle(single))

	multi := []models.SnapshotLine{{Name: "Coffee", Quantity: 2}, {Name: "Mug", Quantity: 1}}
	assert.Equal(t, "Order (3 items)", invoiceTitle(multi))
}

func TestInvoiceDescriptionTruncates(t *testing.T) {
	lines := []models.SnapshotLine{
		{Name: strings.Repeat("a", 300), Quantity: 1},
	}
	desc := invoiceDescription(lines)
	assert.LessOrEqual(t, len(desc), 255)
	assert.True(t, strings.HasSuffix(desc, "..."))
}
