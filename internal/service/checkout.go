package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"shopbot/internal/broker"
	"shopbot/internal/models"
	"shopbot/internal/util"
)

// chargeSeenTTL covers how long a charge id is remembered in Redis for
// fast duplicate rejection. The database unique constraint backs it up
// forever.
const chargeSeenTTL = 24 * time.Hour

// CheckoutStore is the slice of the store the checkout pipeline needs.
type CheckoutStore interface {
	ListCartLines(ctx context.Context, userID int64) ([]models.CartLine, int, error)
	GetInventoryByIDs(ctx context.Context, productIDs []int64) (map[int64]int, error)
	CommitPaidOrder(ctx context.Context, order *models.Order, items []models.OrderItem) error
	GetOrderByChargeID(ctx context.Context, chargeID string) (*models.Order, error)
}

// PendingStore holds the volatile pending-order contexts between
// checkout and payment success.
type PendingStore interface {
	SetPendingOrder(ctx context.Context, pending *models.PendingOrder) error
	GetPendingOrder(ctx context.Context, userID int64) (*models.PendingOrder, error)
	DeletePendingOrder(ctx context.Context, userID int64) error
	MarkChargeSeen(ctx context.Context, chargeID string, ttl time.Duration) (bool, error)
	ClearChargeSeen(ctx context.Context, chargeID string) error
}

// InvoiceSender issues payment invoices to a chat.
type InvoiceSender interface {
	SendInvoice(chatID int64, title, description, payload, providerToken, currency string, amount int) error
}

// CheckoutService runs the payment pipeline: snapshot the cart, issue
// the invoice, approve the pre-checkout query, and commit the order on
// payment success.
type CheckoutService struct {
	store         CheckoutStore
	pendings      PendingStore
	invoices      InvoiceSender
	events        broker.EventPublisher
	currency      string
	providerToken string
	logger        *zap.Logger
}

func NewCheckoutService(store CheckoutStore, pendings PendingStore, invoices InvoiceSender,
	events broker.EventPublisher, currency, providerToken string) *CheckoutService {
	return &CheckoutService{
		store:         store,
		pendings:      pendings,
		invoices:      invoices,
		events:        events,
		currency:      currency,
		providerToken: providerToken,
		logger:        util.GetLogger(),
	}
}

// newPaymentID mints the invoice payload that correlates Telegram's
// payment events back to the pending order.
func newPaymentID(userID int64) string {
	return fmt.Sprintf("order_%d_%s", userID, uuid.New().String()[:8])
}

// Checkout snapshots the current cart into a pending order. A repeat
// checkout replaces the previous snapshot. The returned prune count says
// how many stale lines were dropped while reading the cart.
func (s *CheckoutService) Checkout(ctx context.Context, userID int64) (*models.PendingOrder, int, error) {
	ctx, span := util.StartSpan(ctx, "checkout.snapshot")
	defer span.End()

	lines, pruned, err := s.store.ListCartLines(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	if pruned > 0 {
		util.CartPrunedLinesTotal.Add(float64(pruned))
	}
	if len(lines) == 0 {
		return nil, pruned, models.ErrEmptyCart
	}

	snapshot := make([]models.SnapshotLine, len(lines))
	var total int64
	for i, line := range lines {
		snapshot[i] = models.SnapshotLine{
			ProductID: line.ProductID,
			Name:      line.Name,
			UnitPrice: line.UnitPrice,
			Quantity:  line.Quantity,
		}
		total += line.UnitPrice * int64(line.Quantity)
	}

	pending := &models.PendingOrder{
		UserID:    userID,
		PaymentID: newPaymentID(userID),
		Total:     total,
		Lines:     snapshot,
		CreatedAt: time.Now(),
	}
	if err := s.pendings.SetPendingOrder(ctx, pending); err != nil {
		return nil, pruned, fmt.Errorf("failed to store pending order: %w", err)
	}

	util.CheckoutsStartedTotal.Inc()
	s.logger.Info("checkout started",
		zap.Int64("user_id", userID),
		zap.String("payment_id", pending.PaymentID),
		zap.Int64("total", total),
		zap.Int("lines", len(snapshot)))
	return pending, pruned, nil
}

// Pay revalidates the pending snapshot against live inventory and, if
// every line still fits, issues the invoice. Stock is not reserved; the
// final check happens again when the payment settles.
func (s *CheckoutService) Pay(ctx context.Context, userID, chatID int64) (*models.PendingOrder, error) {
	ctx, span := util.StartSpan(ctx, "checkout.invoice")
	defer span.End()

	pending, err := s.pendings.GetPendingOrder(ctx, userID)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, len(pending.Lines))
	for i, line := range pending.Lines {
		ids[i] = line.ProductID
	}
	stock, err := s.store.GetInventoryByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	var short []models.SnapshotLine
	for _, line := range pending.Lines {
		if stock[line.ProductID] < line.Quantity {
			short = append(short, line)
		}
	}
	if len(short) > 0 {
		util.OrdersFailedTotal.WithLabelValues("out_of_stock").Inc()
		return nil, &models.OutOfStockError{Lines: short}
	}

	err = s.invoices.SendInvoice(chatID, invoiceTitle(pending.Lines), invoiceDescription(pending.Lines),
		pending.PaymentID, s.providerToken, s.currency, int(pending.Total))
	if err != nil {
		return nil, fmt.Errorf("failed to send invoice: %w", err)
	}

	util.InvoicesIssuedTotal.Inc()
	s.logger.Info("invoice issued",
		zap.Int64("user_id", userID),
		zap.String("payment_id", pending.PaymentID),
		zap.Int64("total", pending.Total))
	return pending, nil
}

// HandlePreCheckout decides whether a pre-checkout query may proceed.
// The query is approved only when its payload matches the user's pending
// order. Nothing is mutated here; Telegram may still abandon the payment.
func (s *CheckoutService) HandlePreCheckout(ctx context.Context, userID int64, payload string, providerTotal int) error {
	pending, err := s.pendings.GetPendingOrder(ctx, userID)
	if err != nil {
		util.PreCheckoutAnsweredTotal.WithLabelValues("denied").Inc()
		return err
	}
	if pending.PaymentID != payload {
		util.PreCheckoutAnsweredTotal.WithLabelValues("denied").Inc()
		return fmt.Errorf("payload %q does not match pending %q: %w",
			payload, pending.PaymentID, models.ErrPayloadMismatch)
	}
	if int64(providerTotal) != pending.Total {
		s.logger.Warn("provider total differs from snapshot",
			zap.Int64("user_id", userID),
			zap.Int("provider_total", providerTotal),
			zap.Int64("snapshot_total", pending.Total))
	}

	util.PreCheckoutAnsweredTotal.WithLabelValues("ok").Inc()
	return nil
}

// HandleSuccess commits the order for a settled payment. The money has
// already moved, so failures here never bounce the payment: stock
// shortfalls commit with the manual-fulfillment flag, and commit errors
// surface as reconciliation errors for the operator.
//
// Re-delivered success events are detected via the charge id and return
// the already committed order with duplicate set.
func (s *CheckoutService) HandleSuccess(ctx context.Context, userID int64, payload, chargeID string, providerTotal int) (order *models.Order, lines []models.SnapshotLine, duplicate bool, err error) {
	ctx, span := util.StartSpan(ctx, "checkout.commit")
	defer span.End()

	existing, err := s.store.GetOrderByChargeID(ctx, chargeID)
	if err != nil {
		return nil, nil, false, err
	}
	if existing != nil {
		s.logger.Info("duplicate success event, order already committed",
			zap.String("charge_id", chargeID),
			zap.Int64("order_id", existing.ID))
		return existing, nil, true, nil
	}

	// A Redis outage must not lose a settled payment, so a failed
	// dedup write only logs and the commit proceeds. The unique
	// charge_id constraint still catches true duplicates.
	fresh, err := s.pendings.MarkChargeSeen(ctx, chargeID, chargeSeenTTL)
	if err != nil {
		s.logger.Warn("charge dedup write failed, relying on database constraint",
			zap.String("charge_id", chargeID),
			zap.Error(err))
	} else if !fresh {
		s.logger.Info("charge already being processed", zap.String("charge_id", chargeID))
		return nil, nil, true, nil
	}

	pending, err := s.pendings.GetPendingOrder(ctx, userID)
	if err != nil {
		return nil, nil, false, s.reconciliation(ctx, chargeID, err)
	}
	if pending.PaymentID != payload {
		return nil, nil, false, s.reconciliation(ctx, chargeID,
			fmt.Errorf("payload %q does not match pending %q: %w",
				payload, pending.PaymentID, models.ErrPayloadMismatch))
	}
	if int64(providerTotal) != pending.Total {
		s.logger.Warn("settled total differs from snapshot, storing snapshot total",
			zap.Int64("user_id", userID),
			zap.Int("provider_total", providerTotal),
			zap.Int64("snapshot_total", pending.Total))
	}

	order = &models.Order{
		UserID:          userID,
		TotalAmount:     pending.Total,
		PaymentID:       pending.PaymentID,
		ChargeID:        chargeID,
		ShippingAddress: fmt.Sprintf("Telegram delivery (user %d)", userID),
		Status:          models.OrderStatusNew,
	}
	items := make([]models.OrderItem, len(pending.Lines))
	for i, line := range pending.Lines {
		items[i] = models.OrderItem{
			ProductID: line.ProductID,
			Name:      line.Name,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
		}
	}

	start := time.Now()
	if err := s.store.CommitPaidOrder(ctx, order, items); err != nil {
		util.OrdersFailedTotal.WithLabelValues("commit").Inc()
		return nil, nil, false, s.reconciliation(ctx, chargeID, err)
	}
	util.CheckoutLatency.Observe(time.Since(start).Seconds())

	if err := s.pendings.DeletePendingOrder(ctx, userID); err != nil {
		s.logger.Warn("failed to delete pending order after commit",
			zap.Int64("user_id", userID),
			zap.Error(err))
	}

	util.OrdersPaidTotal.Inc()
	if order.NeedsManual {
		util.OrdersManualTotal.Inc()
		s.logger.Warn("order committed with stock shortfall",
			zap.Int64("order_id", order.ID),
			zap.Int64("user_id", userID))
	}
	s.logger.Info("order committed",
		zap.Int64("order_id", order.ID),
		zap.Int64("user_id", userID),
		zap.Int64("total", order.TotalAmount),
		zap.String("charge_id", chargeID))

	if err := s.events.PublishOrderPaid(ctx, order, pending.Lines); err != nil {
		s.logger.Error("failed to publish order event",
			zap.Int64("order_id", order.ID),
			zap.Error(err))
	}

	return order, pending.Lines, false, nil
}

// reconciliation wraps a post-settlement failure and counts it. These
// are the only errors that reach the operator with a charge id attached.
// The dedup key is released so a re-delivered success event can retry
// the commit instead of being swallowed as a duplicate.
func (s *CheckoutService) reconciliation(ctx context.Context, chargeID string, err error) error {
	util.ReconciliationsTotal.Inc()
	rerr := &models.ReconciliationError{ChargeID: chargeID, Err: err}
	s.logger.Error("payment settled but order not committed",
		zap.String("charge_id", chargeID),
		zap.Error(err))
	if clearErr := s.pendings.ClearChargeSeen(ctx, chargeID); clearErr != nil {
		s.logger.Warn("failed to release charge dedup key, retries blocked until it expires",
			zap.String("charge_id", chargeID),
			zap.Error(clearErr))
	}
	return rerr
}

// IsNoPending reports whether err means the user has no pending order.
func IsNoPending(err error) bool {
	return errors.Is(err, models.ErrNoPendingOrder)
}

func invoiceTitle(lines []models.SnapshotLine) string {
	if len(lines) == 1 && lines[0].Quantity == 1 {
		return lines[0].Name
	}
	var count int
	for _, line := range lines {
		count += line.Quantity
	}
	return fmt.Sprintf("Order (%d items)", count)
}

func invoiceDescription(lines []models.SnapshotLine) string {
	desc := ""
	for i, line := range lines {
		if i > 0 {
			desc += ", "
		}
		desc += fmt.Sprintf("%s x%d", line.Name, line.Quantity)
	}
	if len(desc) > 255 {
		desc = desc[:252] + "..."
	}
	return desc
}
