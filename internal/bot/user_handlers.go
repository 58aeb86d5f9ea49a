package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"shopbot/internal/models"
	"shopbot/internal/service"
)

// Callback data. Telegram caps callback data at 64 bytes, so routes are
// short colon-separated segments rather than anything structured.
const (
	cbCatalog   = "catalog"
	cbCart      = "cart"
	cbCartClear = "cart:clear"
	cbCheckout  = "checkout"
	cbPay       = "pay"
	cbRecheck   = "recheck"
	cbNoop      = "noop"

	cbPrefixCategory  = "cat:"
	cbPrefixProduct   = "prod:"
	cbPrefixQuantity  = "qty:"
	cbPrefixRemoveOne = "cart:rm:"
	cbPrefixRemove    = "cart:rmall:"
	cbPrefixAdmin     = "adm:"
)

const (
	btnRecheck  = "I have subscribed"
	btnCart     = "🛒 Cart"
	btnCatalog  = "🛍 Catalog"
	btnCheckout = "✅ Checkout"
	btnClear    = "🗑 Clear cart"
	btnPayRetry = "Try payment again"

	textWelcome = "Welcome to the shop! Browse the catalog, fill your cart and pay with Telegram Stars."
	textHelp    = "Commands:\n" +
		"/catalog — browse products\n" +
		"/cart — view your cart\n" +
		"/orders — your past orders\n" +
		"/profile — your profile and referral link\n" +
		"/help — this message"
	textUnknown           = "I did not understand that. Try /catalog or /help."
	textBlocked           = "Your access to this shop has been suspended. Use /help if you think this is a mistake."
	textSubscribeRequired = "To use the shop, please subscribe to the channels below, then press the button."
	textStillUnsubscribed = "Not all subscriptions found yet"
	textCatalogEmpty      = "The catalog is empty right now. Check back later!"
	textEmptyCart         = "Your cart is empty."
	textCartCleared       = "Cart cleared."
	textStockExceeded     = "Not enough stock for that quantity."
	textPreCheckoutDenied = "This invoice has expired. Please run the checkout again."
	textNoPending         = "No pending checkout found. Open your /cart and check out again."
	textPaymentTrouble    = "Your payment went through but something went wrong recording the order. " +
		"Our team has been notified and will sort it out shortly."
)

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	chatID := msg.Chat.ID

	switch msg.Command() {
	case "start":
		if arg := msg.CommandArguments(); arg != "" {
			b.users.RecordReferral(ctx, userID, arg)
		}
		b.sendMarkup(chatID, textWelcome, mainKeyboard())
	case "help":
		b.send(chatID, textHelp)
	case "catalog", "shop":
		b.showCatalog(ctx, chatID)
	case "cart":
		b.showCart(ctx, chatID, userID)
	case "orders":
		b.showOrders(ctx, chatID, userID)
	case "profile":
		b.showProfile(ctx, chatID, userID)
	default:
		if b.gate.IsAdmin(userID) {
			b.handleAdminCommand(ctx, msg)
			return
		}
		b.send(chatID, textUnknown)
	}
}

func (b *Bot) routeCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	userID := cb.From.ID
	chatID := cb.Message.Chat.ID
	data := cb.Data

	switch {
	case data == cbNoop:
		b.answerCallback(cb.ID, "")
	case data == cbRecheck:
		// The gate already passed, so the subscriptions are in place.
		b.answerCallback(cb.ID, "Welcome!")
		b.sendMarkup(chatID, textWelcome, mainKeyboard())
	case data == cbCatalog:
		b.answerCallback(cb.ID, "")
		b.showCatalog(ctx, chatID)
	case data == cbCart:
		b.answerCallback(cb.ID, "")
		b.showCart(ctx, chatID, userID)
	case data == cbCartClear:
		if err := b.cart.Clear(ctx, userID); err != nil {
			b.logger.Warn("failed to clear cart", zap.Int64("user_id", userID), zap.Error(err))
		}
		b.answerCallback(cb.ID, textCartCleared)
		b.showCart(ctx, chatID, userID)
	case data == cbCheckout:
		b.answerCallback(cb.ID, "")
		b.doCheckout(ctx, chatID, userID)
	case data == cbPay:
		b.answerCallback(cb.ID, "")
		b.doPay(ctx, chatID, userID)
	case strings.HasPrefix(data, cbPrefixCategory):
		b.answerCallback(cb.ID, "")
		b.showProducts(ctx, chatID, strings.TrimPrefix(data, cbPrefixCategory))
	case strings.HasPrefix(data, cbPrefixProduct):
		b.answerCallback(cb.ID, "")
		if id, err := strconv.ParseInt(strings.TrimPrefix(data, cbPrefixProduct), 10, 64); err == nil {
			b.showProduct(ctx, chatID, userID, id)
		}
	case strings.HasPrefix(data, cbPrefixQuantity):
		b.addToCart(ctx, cb, strings.TrimPrefix(data, cbPrefixQuantity))
	case strings.HasPrefix(data, cbPrefixRemoveOne):
		if id, err := strconv.ParseInt(strings.TrimPrefix(data, cbPrefixRemoveOne), 10, 64); err == nil {
			if err := b.cart.RemoveOne(ctx, userID, id); err != nil {
				b.logger.Warn("failed to remove cart item", zap.Error(err))
			}
		}
		b.answerCallback(cb.ID, "")
		b.showCart(ctx, chatID, userID)
	case strings.HasPrefix(data, cbPrefixRemove):
		if id, err := strconv.ParseInt(strings.TrimPrefix(data, cbPrefixRemove), 10, 64); err == nil {
			if err := b.cart.Remove(ctx, userID, id); err != nil {
				b.logger.Warn("failed to remove cart item", zap.Error(err))
			}
		}
		b.answerCallback(cb.ID, "")
		b.showCart(ctx, chatID, userID)
	case strings.HasPrefix(data, cbPrefixAdmin):
		if b.gate.IsAdmin(userID) {
			b.handleAdminCallback(ctx, cb, strings.TrimPrefix(data, cbPrefixAdmin))
			return
		}
		b.answerCallback(cb.ID, "")
	default:
		b.answerCallback(cb.ID, "")
	}
}

func mainKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(btnCatalog, cbCatalog),
			tgbotapi.NewInlineKeyboardButtonData(btnCart, cbCart),
		),
	)
}

func catalogMarkup() tgbotapi.InlineKeyboardMarkup {
	return retryMarkup(btnCatalog, cbCatalog)
}

func retryMarkup(label, data string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData(label, data)))
}

// showCatalog offers category buttons when the catalog uses categories,
// otherwise goes straight to the product list.
func (b *Bot) showCatalog(ctx context.Context, chatID int64) {
	categories, err := b.catalog.Categories(ctx)
	if err != nil {
		b.logger.Error("failed to list categories", zap.Error(err))
		return
	}
	if len(categories) < 2 {
		b.showProducts(ctx, chatID, "")
		return
	}

	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(categories)+1)
	for _, cat := range categories {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(cat, cbPrefixCategory+cat)))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("All products", cbPrefixCategory)))
	b.sendMarkup(chatID, "Pick a category:", tgbotapi.NewInlineKeyboardMarkup(rows...))
}

func (b *Bot) showProducts(ctx context.Context, chatID int64, category string) {
	products, err := b.catalog.ListActive(ctx, category)
	if err != nil {
		b.logger.Error("failed to list products", zap.Error(err))
		return
	}
	if len(products) == 0 {
		b.send(chatID, textCatalogEmpty)
		return
	}

	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(products)+1)
	for _, p := range products {
		label := fmt.Sprintf("%s · %d ⭐", p.Name, p.Price)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, cbPrefixProduct+strconv.FormatInt(p.ID, 10))))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData(btnCart, cbCart)))
	b.sendMarkup(chatID, "Our products:", tgbotapi.NewInlineKeyboardMarkup(rows...))
}

// showProduct renders the product card with as many quantity buttons as
// stock and the user's cart allow.
func (b *Bot) showProduct(ctx context.Context, chatID, userID, productID int64) {
	product, err := b.catalog.Get(ctx, productID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			b.sendMarkup(chatID, "This product is no longer available.", catalogMarkup())
			return
		}
		b.logger.Error("failed to get product", zap.Int64("product_id", productID), zap.Error(err))
		return
	}

	options, err := b.cart.QuantityOptions(ctx, userID, productID)
	if err != nil {
		b.logger.Error("failed to get quantity options", zap.Error(err))
		return
	}

	var text strings.Builder
	fmt.Fprintf(&text, "<b>%s</b>\n", product.Name)
	if product.Description != "" {
		fmt.Fprintf(&text, "%s\n", product.Description)
	}
	fmt.Fprintf(&text, "\nPrice: %d ⭐", product.Price)
	if len(options) == 0 {
		text.WriteString("\n\nOut of stock (or already maxed out in your cart).")
	}

	var qtyRow []tgbotapi.InlineKeyboardButton
	for _, n := range options {
		qtyRow = append(qtyRow, tgbotapi.NewInlineKeyboardButtonData(
			fmt.Sprintf("+%d", n),
			fmt.Sprintf("%s%d:%d", cbPrefixQuantity, productID, n)))
	}
	rows := [][]tgbotapi.InlineKeyboardButton{}
	if len(qtyRow) > 0 {
		rows = append(rows, qtyRow)
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData(btnCatalog, cbCatalog),
		tgbotapi.NewInlineKeyboardButtonData(btnCart, cbCart),
	))
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)

	if product.ImageFileID != "" {
		if err := b.tg.SendPhotoByFileID(chatID, product.ImageFileID, text.String(), markup); err == nil {
			return
		}
		// Stale file id, fall through to plain text.
	}
	b.sendMarkup(chatID, text.String(), markup)
}

// addToCart handles a quantity button press. The data tail is "<id>:<n>".
func (b *Bot) addToCart(ctx context.Context, cb *tgbotapi.CallbackQuery, tail string) {
	parts := strings.SplitN(tail, ":", 2)
	if len(parts) != 2 {
		b.answerCallback(cb.ID, "")
		return
	}
	productID, err1 := strconv.ParseInt(parts[0], 10, 64)
	quantity, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		b.answerCallback(cb.ID, "")
		return
	}

	err := b.cart.Add(ctx, cb.From.ID, productID, quantity)
	switch {
	case errors.Is(err, models.ErrStockExceeded):
		b.answerCallback(cb.ID, textStockExceeded)
	case errors.Is(err, models.ErrNotFound):
		b.answerCallback(cb.ID, "This product is no longer available.")
	case err != nil:
		b.logger.Error("failed to add to cart", zap.Error(err))
		b.answerCallback(cb.ID, "Something went wrong, try again.")
	default:
		b.answerCallback(cb.ID, fmt.Sprintf("Added %d to your cart", quantity))
	}
}

func (b *Bot) showCart(ctx context.Context, chatID, userID int64) {
	lines, total, pruned, err := b.cart.List(ctx, userID)
	if err != nil {
		b.logger.Error("failed to list cart", zap.Int64("user_id", userID), zap.Error(err))
		return
	}
	if len(lines) == 0 {
		markup := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(btnCatalog, cbCatalog)))
		b.sendMarkup(chatID, textEmptyCart, markup)
		return
	}

	var text strings.Builder
	text.WriteString("<b>Your cart</b>\n\n")
	for _, line := range lines {
		fmt.Fprintf(&text, "%s × %d = %d ⭐\n", line.Name, line.Quantity, line.UnitPrice*int64(line.Quantity))
	}
	fmt.Fprintf(&text, "\nTotal: <b>%d ⭐</b>", total)
	if pruned > 0 {
		fmt.Fprintf(&text, "\n\n%d item(s) were removed because they are no longer available.", pruned)
	}

	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(lines)+2)
	for _, line := range lines {
		id := strconv.FormatInt(line.ProductID, 10)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("− "+line.Name, cbPrefixRemoveOne+id),
			tgbotapi.NewInlineKeyboardButtonData("✖", cbPrefixRemove+id),
		))
	}
	rows = append(rows,
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(btnCheckout, cbCheckout),
			tgbotapi.NewInlineKeyboardButtonData(btnClear, cbCartClear),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(btnCatalog, cbCatalog),
		),
	)
	b.sendMarkup(chatID, text.String(), tgbotapi.NewInlineKeyboardMarkup(rows...))
}

func (b *Bot) doCheckout(ctx context.Context, chatID, userID int64) {
	pending, pruned, err := b.checkout.Checkout(ctx, userID)
	if errors.Is(err, models.ErrEmptyCart) {
		if pruned > 0 {
			b.sendMarkup(chatID, "Everything in your cart has sold out.", catalogMarkup())
			return
		}
		b.sendMarkup(chatID, textEmptyCart, catalogMarkup())
		return
	}
	if err != nil {
		b.logger.Error("checkout failed", zap.Int64("user_id", userID), zap.Error(err))
		b.sendMarkup(chatID, "Checkout failed, please try again.", retryMarkup(btnCheckout, cbCheckout))
		return
	}

	var text strings.Builder
	text.WriteString("<b>Order summary</b>\n\n")
	for _, line := range pending.Lines {
		fmt.Fprintf(&text, "%s × %d = %d ⭐\n", line.Name, line.Quantity, line.UnitPrice*int64(line.Quantity))
	}
	fmt.Fprintf(&text, "\nTotal: <b>%d ⭐</b>", pending.Total)
	if pruned > 0 {
		fmt.Fprintf(&text, "\n\n%d item(s) were dropped because they are no longer available.", pruned)
	}

	markup := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("Pay %d ⭐", pending.Total), cbPay)),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(btnCart, cbCart)),
	)
	b.sendMarkup(chatID, text.String(), markup)
}

func (b *Bot) doPay(ctx context.Context, chatID, userID int64) {
	_, err := b.checkout.Pay(ctx, userID, chatID)
	if err == nil {
		return
	}

	var oos *models.OutOfStockError
	switch {
	case errors.As(err, &oos):
		var text strings.Builder
		text.WriteString("Sorry, these just sold out:\n\n")
		for _, line := range oos.Lines {
			fmt.Fprintf(&text, "• %s × %d\n", line.Name, line.Quantity)
		}
		text.WriteString("\nAdjust your cart and check out again.")
		markup := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(btnCart, cbCart)))
		b.sendMarkup(chatID, text.String(), markup)
	case service.IsNoPending(err):
		b.sendMarkup(chatID, textNoPending, retryMarkup(btnCart, cbCart))
	default:
		b.logger.Error("failed to issue invoice", zap.Int64("user_id", userID), zap.Error(err))
		b.sendMarkup(chatID, "Could not issue the invoice, please try again.", retryMarkup(btnPayRetry, cbPay))
	}
}

// handleSuccessfulPayment commits the order and sends the receipt. The
// gate is skipped: the payment has settled and the buyer must get an
// answer either way.
func (b *Bot) handleSuccessfulPayment(ctx context.Context, msg *tgbotapi.Message) {
	sp := msg.SuccessfulPayment
	userID := msg.From.ID
	chatID := msg.Chat.ID

	order, lines, duplicate, err := b.checkout.HandleSuccess(ctx, userID,
		sp.InvoicePayload, sp.TelegramPaymentChargeID, sp.TotalAmount)
	if duplicate {
		return
	}
	if err != nil {
		b.send(chatID, textPaymentTrouble)
		b.tg.NotifyAdmins(b.adminIDs, fmt.Sprintf(
			"⚠️ Payment settled but order commit failed.\nUser: %d\nCharge: %s\nError: %v",
			userID, sp.TelegramPaymentChargeID, err))
		return
	}

	var receipt strings.Builder
	fmt.Fprintf(&receipt, "✅ <b>Order #%d confirmed</b>\n\n", order.ID)
	for _, line := range lines {
		fmt.Fprintf(&receipt, "%s × %d = %d ⭐\n", line.Name, line.Quantity, line.UnitPrice*int64(line.Quantity))
	}
	fmt.Fprintf(&receipt, "\nTotal: <b>%d ⭐</b>\nReference: <code>%s</code>", order.TotalAmount, order.ChargeID)
	if order.NeedsManual {
		receipt.WriteString("\n\nSome items are being restocked; we will fulfill them manually and keep you posted.")
	}

	if err := b.tg.SendReceiptQR(chatID, receipt.String(), order.ChargeID); err != nil {
		b.logger.Warn("failed to send receipt qr, sending plain receipt", zap.Error(err))
		b.send(chatID, receipt.String())
	}

	alert := fmt.Sprintf("💰 New order #%d\nUser: %d\nTotal: %d ⭐", order.ID, userID, order.TotalAmount)
	if order.NeedsManual {
		alert += "\n⚠️ Needs manual fulfillment (stock shortfall)"
	}
	b.tg.NotifyAdmins(b.adminIDs, alert)
}

func (b *Bot) showOrders(ctx context.Context, chatID, userID int64) {
	orders, err := b.orders.ListForUser(ctx, userID)
	if err != nil {
		b.logger.Error("failed to list orders", zap.Int64("user_id", userID), zap.Error(err))
		return
	}
	if len(orders) == 0 {
		b.send(chatID, "You have no orders yet. Try /catalog!")
		return
	}

	var text strings.Builder
	text.WriteString("<b>Your orders</b>\n\n")
	for _, o := range orders {
		fmt.Fprintf(&text, "#%d · %d ⭐ · %s · %s\n",
			o.ID, o.TotalAmount, o.Status, o.CreatedAt.Format("2006-01-02"))
	}
	b.send(chatID, text.String())
}

func (b *Bot) showProfile(ctx context.Context, chatID, userID int64) {
	user, stats, referrals, err := b.users.Profile(ctx, userID)
	if err != nil {
		b.logger.Error("failed to load profile", zap.Int64("user_id", userID), zap.Error(err))
		return
	}

	var text strings.Builder
	fmt.Fprintf(&text, "<b>%s</b>\n", user.FullName)
	fmt.Fprintf(&text, "Member since: %s\n", user.CreatedAt.Format("2006-01-02"))
	fmt.Fprintf(&text, "Orders: %d · Spent: %d ⭐\n", stats.Count, stats.TotalSpent)
	fmt.Fprintf(&text, "Friends invited: %d\n\n", referrals)
	fmt.Fprintf(&text, "Your invite link:\n%s", b.tg.DeepLink(service.ReferralArg(userID)))
	b.send(chatID, text.String())
}
