// Package bot routes Telegram updates through the access gate into the
// shop's services and renders the replies.
package bot

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"shopbot/internal/gate"
	"shopbot/internal/service"
	"shopbot/internal/telegram"
	"shopbot/internal/util"
)

// Commands that must work even for blocked or unsubscribed users.
var escapeCommands = map[string]bool{
	"help": true,
}

// Bot wires the update stream to the services.
type Bot struct {
	tg        *telegram.Client
	gate      *gate.Gate
	catalog   *service.CatalogService
	cart      *service.CartService
	checkout  *service.CheckoutService
	orders    *service.OrderService
	users     *service.UserService
	broadcast *service.BroadcastService
	adminIDs  []int64
	admin     *adminStates
	logger    *zap.Logger
}

func New(tg *telegram.Client, g *gate.Gate, catalog *service.CatalogService, cart *service.CartService,
	checkout *service.CheckoutService, orders *service.OrderService, users *service.UserService,
	broadcast *service.BroadcastService, adminIDs []int64) *Bot {
	return &Bot{
		tg:        tg,
		gate:      g,
		catalog:   catalog,
		cart:      cart,
		checkout:  checkout,
		orders:    orders,
		users:     users,
		broadcast: broadcast,
		adminIDs:  adminIDs,
		admin:     newAdminStates(),
		logger:    util.GetLogger(),
	}
}

// Run consumes the long-poll stream until ctx is cancelled. Updates are
// handled one at a time; ordering within a chat matters for the payment
// flow and per-update work is short.
func (b *Bot) Run(ctx context.Context, pollTimeoutSeconds int) {
	updates := b.tg.UpdatesChan(pollTimeoutSeconds)
	b.logger.Info("bot started", zap.String("username", b.tg.Username()))

	for {
		select {
		case <-ctx.Done():
			b.tg.StopPolling()
			b.logger.Info("bot stopped")
			return
		case update, ok := <-updates:
			if !ok {
				b.logger.Info("update stream closed")
				return
			}
			b.handleUpdate(ctx, update)
		}
	}
}

// handleUpdate dispatches one update, recovering from panics so a bad
// update cannot take the whole loop down.
func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("panic while handling update",
				zap.Int("update_id", update.UpdateID),
				zap.Any("panic", r))
		}
	}()

	switch {
	case update.PreCheckoutQuery != nil:
		util.UpdatesTotal.WithLabelValues("pre_checkout").Inc()
		b.handlePreCheckout(ctx, update.PreCheckoutQuery)
	case update.Message != nil && update.Message.SuccessfulPayment != nil:
		util.UpdatesTotal.WithLabelValues("payment").Inc()
		b.handleSuccessfulPayment(ctx, update.Message)
	case update.Message != nil:
		util.UpdatesTotal.WithLabelValues("message").Inc()
		b.handleMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		util.UpdatesTotal.WithLabelValues("callback").Inc()
		b.handleCallback(ctx, update.CallbackQuery)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || msg.Chat == nil {
		return
	}
	escape := msg.IsCommand() && escapeCommands[msg.Command()]

	decision, err := b.gate.Check(ctx, msg.From.ID, msg.From.UserName, fullName(msg.From), escape)
	if err != nil {
		b.logger.Error("gate check failed", zap.Int64("user_id", msg.From.ID), zap.Error(err))
		return
	}
	if !decision.Allowed {
		b.renderHalt(msg.Chat.ID, decision)
		return
	}

	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}
	// Plain text only matters inside an admin conversation.
	if b.gate.IsAdmin(msg.From.ID) && b.admin.active(msg.From.ID) {
		b.handleAdminInput(ctx, msg)
		return
	}
	b.send(msg.Chat.ID, textUnknown)
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.From == nil || cb.Message == nil {
		return
	}
	decision, err := b.gate.Check(ctx, cb.From.ID, cb.From.UserName, fullName(cb.From), false)
	if err != nil {
		b.logger.Error("gate check failed", zap.Int64("user_id", cb.From.ID), zap.Error(err))
		return
	}
	if !decision.Allowed {
		// Let the re-check button through so users can clear the
		// subscription halt without typing a command.
		if cb.Data == cbRecheck && decision.Reason == gate.HaltSubscription {
			b.answerCallback(cb.ID, textStillUnsubscribed)
			b.renderHalt(cb.Message.Chat.ID, decision)
			return
		}
		b.answerCallback(cb.ID, "")
		b.renderHalt(cb.Message.Chat.ID, decision)
		return
	}
	b.routeCallback(ctx, cb)
}

// handlePreCheckout answers the payment hold within Telegram's window.
// The gate is skipped: the money flow was already gated when the invoice
// was issued, and an unanswered query just strands the buyer.
func (b *Bot) handlePreCheckout(ctx context.Context, q *tgbotapi.PreCheckoutQuery) {
	err := b.checkout.HandlePreCheckout(ctx, q.From.ID, q.InvoicePayload, q.TotalAmount)
	if err != nil {
		b.logger.Warn("pre-checkout denied",
			zap.Int64("user_id", q.From.ID),
			zap.Error(err))
		if err := b.tg.AnswerPreCheckout(q.ID, false, textPreCheckoutDenied); err != nil {
			b.logger.Error("failed to answer pre-checkout", zap.Error(err))
		}
		return
	}
	if err := b.tg.AnswerPreCheckout(q.ID, true, ""); err != nil {
		b.logger.Error("failed to answer pre-checkout", zap.Error(err))
	}
}

func fullName(u *tgbotapi.User) string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func (b *Bot) send(chatID int64, text string) {
	if err := b.tg.SendMessage(chatID, text); err != nil {
		b.logger.Warn("failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (b *Bot) sendMarkup(chatID int64, text string, markup tgbotapi.InlineKeyboardMarkup) {
	if err := b.tg.SendMessageWithMarkup(chatID, text, markup); err != nil {
		b.logger.Warn("failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (b *Bot) answerCallback(id, text string) {
	if err := b.tg.AnswerCallback(id, text); err != nil {
		b.logger.Debug("failed to answer callback", zap.Error(err))
	}
}

// renderHalt tells the user why the gate stopped them. Subscription
// halts get join buttons and a re-check button.
func (b *Bot) renderHalt(chatID int64, decision gate.Decision) {
	switch decision.Reason {
	case gate.HaltBlocked:
		b.send(chatID, textBlocked)
	case gate.HaltSubscription:
		rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(decision.Missing)+1)
		for _, ch := range decision.Missing {
			title := ch.Title
			if title == "" {
				title = ch.TelegramID
			}
			if strings.HasPrefix(ch.TelegramID, "@") {
				url := "https://t.me/" + strings.TrimPrefix(ch.TelegramID, "@")
				rows = append(rows, tgbotapi.NewInlineKeyboardRow(
					tgbotapi.NewInlineKeyboardButtonURL(title, url)))
			} else {
				rows = append(rows, tgbotapi.NewInlineKeyboardRow(
					tgbotapi.NewInlineKeyboardButtonData(title, cbNoop)))
			}
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(btnRecheck, cbRecheck)))
		b.sendMarkup(chatID, textSubscribeRequired, tgbotapi.NewInlineKeyboardMarkup(rows...))
	}
}
