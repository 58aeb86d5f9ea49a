package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"shopbot/internal/broker"
	"shopbot/internal/models"
	"shopbot/internal/util"
)

// BroadcastStore lists the users eligible for broadcasts.
type BroadcastStore interface {
	ListBroadcastTargets(ctx context.Context) ([]int64, error)
}

// MessageSender delivers one broadcast message to a chat.
type MessageSender interface {
	SendMessage(chatID int64, text string) error
}

// BroadcastService fans an admin message out to every non-blocked user.
// Requests go through the broker when it is enabled so a restart cannot
// drop a half-finished broadcast's queue position; delivery is rate
// limited to stay inside Telegram's send quota.
type BroadcastService struct {
	store   BroadcastStore
	sender  MessageSender
	events  broker.EventPublisher
	limiter *rate.Limiter
	direct  bool
	logger  *zap.Logger
}

func NewBroadcastService(store BroadcastStore, sender MessageSender, events broker.EventPublisher,
	ratePerSecond float64, burst int, direct bool) *BroadcastService {
	return &BroadcastService{
		store:   store,
		sender:  sender,
		events:  events,
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst),
		direct:  direct,
		logger:  util.GetLogger(),
	}
}

// Request accepts a broadcast. With the broker enabled it only enqueues
// the job; the worker delivers it. In direct mode delivery runs in the
// background immediately.
func (s *BroadcastService) Request(ctx context.Context, requestedBy int64, text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("empty broadcast text: %w", models.ErrValidation)
	}

	if s.direct {
		go func() {
			sent, failed := s.Deliver(context.Background(), text)
			s.logger.Info("direct broadcast finished",
				zap.Int64("requested_by", requestedBy),
				zap.Int("sent", sent),
				zap.Int("failed", failed))
		}()
		return nil
	}

	return s.events.PublishBroadcastRequested(ctx, requestedBy, text)
}

// Deliver sends the text to every non-blocked user under the rate limit
// and returns how many sends succeeded and failed. Individual failures
// (users who blocked the bot, deleted accounts) are logged and skipped.
func (s *BroadcastService) Deliver(ctx context.Context, text string) (sent, failed int) {
	targets, err := s.store.ListBroadcastTargets(ctx)
	if err != nil {
		s.logger.Error("failed to list broadcast targets", zap.Error(err))
		return 0, 0
	}

	for _, chatID := range targets {
		if err := s.limiter.Wait(ctx); err != nil {
			s.logger.Warn("broadcast cancelled mid-delivery",
				zap.Int("sent", sent),
				zap.Int("remaining", len(targets)-sent-failed))
			return sent, failed
		}
		if err := s.sender.SendMessage(chatID, text); err != nil {
			failed++
			util.BroadcastFailedTotal.Inc()
			s.logger.Debug("broadcast delivery failed",
				zap.Int64("chat_id", chatID),
				zap.Error(err))
			continue
		}
		sent++
		util.BroadcastSentTotal.Inc()
	}

	s.logger.Info("broadcast delivered",
		zap.Int("sent", sent),
		zap.Int("failed", failed))
	return sent, failed
}
