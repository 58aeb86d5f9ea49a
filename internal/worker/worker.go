// Package worker consumes shop events from the broker: it delivers
// broadcast jobs and keeps an audit log of order events.
package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"shopbot/internal/broker"
	"shopbot/internal/models"
	"shopbot/internal/service"
	"shopbot/internal/util"
)

type Worker struct {
	consumer  *broker.Consumer
	broadcast *service.BroadcastService
	logger    *zap.Logger
}

func New(consumer *broker.Consumer, broadcast *service.BroadcastService) *Worker {
	return &Worker{
		consumer:  consumer,
		broadcast: broadcast,
		logger:    util.GetLogger(),
	}
}

// Run consumes events until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	return w.consumer.StartConsuming(ctx, w.handleMessage)
}

func (w *Worker) handleMessage(ctx context.Context, msg kafka.Message) error {
	var base models.BaseEvent
	if err := json.Unmarshal(msg.Value, &base); err != nil {
		// Unparseable messages are logged and committed; retrying
		// cannot fix them.
		w.logger.Error("discarding malformed event",
			zap.String("key", string(msg.Key)),
			zap.Error(err))
		return nil
	}

	switch base.EventType {
	case models.EventTypeBroadcastRequested:
		return w.handleBroadcast(ctx, msg.Value)
	case models.EventTypeOrderPaid, models.EventTypeOrderManual:
		return w.handleOrderEvent(msg.Value)
	default:
		w.logger.Warn("unknown event type", zap.String("event_type", base.EventType))
		return nil
	}
}

func (w *Worker) handleBroadcast(ctx context.Context, payload []byte) error {
	var event models.BroadcastRequestedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("failed to unmarshal broadcast event: %w", err)
	}

	w.logger.Info("delivering broadcast",
		zap.String("event_id", event.EventID),
		zap.Int64("requested_by", event.RequestedBy))
	sent, failed := w.broadcast.Deliver(ctx, event.Text)
	w.logger.Info("broadcast job finished",
		zap.String("event_id", event.EventID),
		zap.Int("sent", sent),
		zap.Int("failed", failed))
	return nil
}

// handleOrderEvent writes the audit trail entry for a committed order.
func (w *Worker) handleOrderEvent(payload []byte) error {
	var event models.OrderPaidEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("failed to unmarshal order event: %w", err)
	}

	w.logger.Info("order event",
		zap.String("event_type", event.EventType),
		zap.Int64("order_id", event.OrderID),
		zap.Int64("user_id", event.UserID),
		zap.Int64("total", event.TotalAmount),
		zap.String("charge_id", event.ChargeID),
		zap.Bool("needs_manual", event.NeedsManual),
		zap.Int("lines", len(event.Lines)))
	return nil
}
