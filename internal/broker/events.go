package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"shopbot/internal/models"
	"shopbot/internal/util"
)

// EventPublisher is the typed facade the services publish through.
// A nil *Publisher is valid and drops events, so callers never have
// to branch on whether Kafka is configured.
type EventPublisher interface {
	PublishOrderPaid(ctx context.Context, order *models.Order, lines []models.SnapshotLine) error
	PublishBroadcastRequested(ctx context.Context, requestedBy int64, text string) error
}

type Publisher struct {
	producer *Producer
}

// NewPublisher wraps a producer. Pass nil to get a publisher that
// logs and drops every event (Kafka disabled).
func NewPublisher(producer *Producer) *Publisher {
	return &Publisher{producer: producer}
}

func (p *Publisher) publish(ctx context.Context, key string, event interface{}) error {
	if p == nil || p.producer == nil {
		util.GetLogger().Debug("kafka disabled, dropping event", zap.String("key", key))
		return nil
	}
	return p.producer.PublishEvent(ctx, key, event)
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}

func (p *Publisher) PublishOrderPaid(ctx context.Context, order *models.Order, lines []models.SnapshotLine) error {
	eventType := models.EventTypeOrderPaid
	if order.NeedsManual {
		eventType = models.EventTypeOrderManual
	}
	event := models.OrderPaidEvent{
		BaseEvent:   newBaseEvent(eventType),
		OrderID:     order.ID,
		UserID:      order.UserID,
		TotalAmount: order.TotalAmount,
		ChargeID:    order.ChargeID,
		NeedsManual: order.NeedsManual,
		Lines:       lines,
	}
	return p.publish(ctx, fmt.Sprintf("order-%d", order.ID), event)
}

func (p *Publisher) PublishBroadcastRequested(ctx context.Context, requestedBy int64, text string) error {
	event := models.BroadcastRequestedEvent{
		BaseEvent:   newBaseEvent(models.EventTypeBroadcastRequested),
		RequestedBy: requestedBy,
		Text:        text,
	}
	return p.publish(ctx, fmt.Sprintf("broadcast-%d", requestedBy), event)
}
