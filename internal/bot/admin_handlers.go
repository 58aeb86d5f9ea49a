package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"shopbot/internal/models"
)

const textAdminHelp = "Admin commands:\n" +
	"/addproduct — add a product (guided)\n" +
	"/products — list all products\n" +
	"/stock &lt;id&gt; &lt;n&gt; — set stock\n" +
	"/disable &lt;id&gt; — hide a product\n" +
	"/delproduct &lt;id&gt; — delete a product\n" +
	"/order &lt;id&gt; — view an order\n" +
	"/setstatus &lt;id&gt; &lt;status&gt; — move an order\n" +
	"/block &lt;id|@user&gt; · /unblock &lt;id|@user&gt;\n" +
	"/except &lt;id|@user&gt; on|off — subscription exemption\n" +
	"/addchannel &lt;@name|id&gt; [title] · /channels\n" +
	"/broadcast &lt;text&gt; — message all users\n" +
	"/stats — shop stats\n" +
	"/cancel — abort the current dialog"

// Guided dialog kinds and product entry steps.
const (
	dialogProduct   = "product"
	dialogBroadcast = "broadcast"

	stepName = iota
	stepPrice
	stepDescription
	stepCategory
	stepStock
	stepPhoto
)

type productDraft struct {
	name        string
	description string
	category    string
	imageFileID string
	price       int64
	stock       int
}

type adminSession struct {
	kind  string
	step  int
	draft productDraft
}

// adminStates tracks per-admin guided dialogs. The dispatcher is
// single-goroutine but the mutex keeps this safe if that ever changes.
type adminStates struct {
	mu       sync.Mutex
	sessions map[int64]*adminSession
}

func newAdminStates() *adminStates {
	return &adminStates{sessions: make(map[int64]*adminSession)}
}

func (a *adminStates) active(userID int64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.sessions[userID]
	return ok
}

func (a *adminStates) start(userID int64, kind string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sessions[userID] = &adminSession{kind: kind}
}

func (a *adminStates) get(userID int64) *adminSession {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sessions[userID]
}

func (a *adminStates) clear(userID int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.sessions, userID)
}

func (b *Bot) handleAdminCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	userID := msg.From.ID
	args := strings.TrimSpace(msg.CommandArguments())

	switch msg.Command() {
	case "admin":
		b.send(chatID, textAdminHelp)
	case "cancel":
		b.admin.clear(userID)
		b.send(chatID, "Dialog cancelled.")
	case "addproduct":
		b.admin.start(userID, dialogProduct)
		b.send(chatID, "Product name?")
	case "products":
		b.adminListProducts(ctx, chatID)
	case "stock":
		b.adminSetStock(ctx, chatID, args)
	case "disable":
		b.adminProductOp(ctx, chatID, args, "disabled", b.catalog.Disable)
	case "delproduct":
		b.adminProductOp(ctx, chatID, args, "deleted", b.catalog.Delete)
	case "order":
		b.adminShowOrder(ctx, chatID, args)
	case "setstatus":
		b.adminSetStatus(ctx, chatID, args)
	case "block":
		b.adminSetBlocked(ctx, chatID, args, true)
	case "unblock":
		b.adminSetBlocked(ctx, chatID, args, false)
	case "except":
		b.adminSetException(ctx, chatID, args)
	case "addchannel":
		b.adminAddChannel(ctx, chatID, args)
	case "channels":
		b.adminListChannels(ctx, chatID)
	case "broadcast":
		if args == "" {
			b.admin.start(userID, dialogBroadcast)
			b.send(chatID, "Send the broadcast text, or /cancel.")
			return
		}
		b.adminBroadcast(ctx, chatID, userID, args)
	case "stats":
		b.adminStats(ctx, chatID)
	default:
		b.send(chatID, textUnknown)
	}
}

// handleAdminInput advances the admin's guided dialog with a plain message.
func (b *Bot) handleAdminInput(ctx context.Context, msg *tgbotapi.Message) {
	session := b.admin.get(msg.From.ID)
	if session == nil {
		return
	}
	switch session.kind {
	case dialogBroadcast:
		b.admin.clear(msg.From.ID)
		b.adminBroadcast(ctx, msg.Chat.ID, msg.From.ID, msg.Text)
	case dialogProduct:
		b.advanceProductDialog(ctx, msg, session)
	}
}

func (b *Bot) advanceProductDialog(ctx context.Context, msg *tgbotapi.Message, session *adminSession) {
	chatID := msg.Chat.ID
	text := strings.TrimSpace(msg.Text)

	switch session.step {
	case stepName:
		if text == "" {
			b.send(chatID, "Name cannot be empty. Product name?")
			return
		}
		session.draft.name = text
		session.step = stepPrice
		b.send(chatID, "Price in Stars?")
	case stepPrice:
		price, err := strconv.ParseInt(text, 10, 64)
		if err != nil || price <= 0 {
			b.send(chatID, "Price must be a positive whole number of Stars. Price?")
			return
		}
		session.draft.price = price
		session.step = stepDescription
		b.send(chatID, "Description? (send - for none)")
	case stepDescription:
		if text != "-" {
			session.draft.description = text
		}
		session.step = stepCategory
		b.send(chatID, "Category? (send - for none)")
	case stepCategory:
		if text != "-" {
			session.draft.category = text
		}
		session.step = stepStock
		b.send(chatID, "Initial stock?")
	case stepStock:
		stock, err := strconv.Atoi(text)
		if err != nil || stock < 0 {
			b.send(chatID, "Stock must be a non-negative whole number. Stock?")
			return
		}
		session.draft.stock = stock
		session.step = stepPhoto
		b.send(chatID, "Send a product photo, or - to skip.")
	case stepPhoto:
		if len(msg.Photo) > 0 {
			session.draft.imageFileID = msg.Photo[len(msg.Photo)-1].FileID
		} else if text != "-" {
			b.send(chatID, "Send a photo or - to skip.")
			return
		}
		b.admin.clear(msg.From.ID)
		b.saveProductDraft(ctx, chatID, session.draft)
	}
}

func (b *Bot) saveProductDraft(ctx context.Context, chatID int64, draft productDraft) {
	product := &models.Product{
		Name:        draft.name,
		Description: draft.description,
		Price:       draft.price,
		ImageFileID: draft.imageFileID,
		Category:    draft.category,
	}
	if err := b.catalog.Create(ctx, product, draft.stock); err != nil {
		b.logger.Error("failed to create product", zap.Error(err))
		b.send(chatID, fmt.Sprintf("Could not save the product: %v", err))
		return
	}
	b.send(chatID, fmt.Sprintf("Saved product #%d: %s, %d ⭐, stock %d.",
		product.ID, product.Name, product.Price, draft.stock))
}

func (b *Bot) adminListProducts(ctx context.Context, chatID int64) {
	products, err := b.catalog.ListAll(ctx)
	if err != nil {
		b.logger.Error("failed to list products", zap.Error(err))
		return
	}
	if len(products) == 0 {
		b.send(chatID, "No products yet. Use /addproduct.")
		return
	}

	var text strings.Builder
	text.WriteString("<b>All products</b>\n\n")
	for _, p := range products {
		stock, err := b.catalog.GetStock(ctx, p.ID)
		if err != nil {
			b.logger.Warn("failed to get stock", zap.Int64("product_id", p.ID), zap.Error(err))
		}
		state := ""
		if !p.IsActive {
			state = " · hidden"
		}
		fmt.Fprintf(&text, "#%d %s · %d ⭐ · stock %d%s\n", p.ID, p.Name, p.Price, stock, state)
	}
	b.send(chatID, text.String())
}

func (b *Bot) adminSetStock(ctx context.Context, chatID int64, args string) {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		b.send(chatID, "Usage: /stock <id> <n>")
		return
	}
	id, err1 := strconv.ParseInt(fields[0], 10, 64)
	stock, err2 := strconv.Atoi(fields[1])
	if err1 != nil || err2 != nil {
		b.send(chatID, "Usage: /stock <id> <n>")
		return
	}
	if err := b.catalog.SetStock(ctx, id, stock); err != nil {
		b.send(chatID, fmt.Sprintf("Could not set stock: %v", err))
		return
	}
	b.send(chatID, fmt.Sprintf("Stock for product #%d set to %d.", id, stock))
}

func (b *Bot) adminProductOp(ctx context.Context, chatID int64, args, verb string, op func(context.Context, int64) error) {
	id, err := strconv.ParseInt(args, 10, 64)
	if err != nil {
		b.send(chatID, "Give me a product id.")
		return
	}
	if err := op(ctx, id); err != nil {
		b.send(chatID, fmt.Sprintf("Could not do that: %v", err))
		return
	}
	b.send(chatID, fmt.Sprintf("Product #%d %s.", id, verb))
}

func (b *Bot) adminShowOrder(ctx context.Context, chatID int64, args string) {
	id, err := strconv.ParseInt(args, 10, 64)
	if err != nil {
		b.send(chatID, "Usage: /order <id>")
		return
	}
	order, items, err := b.orders.GetWithItems(ctx, id)
	if err != nil {
		b.send(chatID, fmt.Sprintf("Could not load order: %v", err))
		return
	}

	var text strings.Builder
	fmt.Fprintf(&text, "<b>Order #%d</b> · %s\n", order.ID, order.Status)
	fmt.Fprintf(&text, "User: %d\nCharge: <code>%s</code>\n\n", order.UserID, order.ChargeID)
	for _, item := range items {
		fmt.Fprintf(&text, "%s × %d = %d ⭐\n", item.Name, item.Quantity, item.UnitPrice*int64(item.Quantity))
	}
	fmt.Fprintf(&text, "\nTotal: %d ⭐", order.TotalAmount)
	if order.NeedsManual {
		text.WriteString("\n⚠️ Needs manual fulfillment")
	}
	b.send(chatID, text.String())
}

func (b *Bot) adminSetStatus(ctx context.Context, chatID int64, args string) {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		b.send(chatID, "Usage: /setstatus <id> <paid|processing|shipped|delivered|cancelled>")
		return
	}
	id, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		b.send(chatID, "Give me an order id.")
		return
	}
	err = b.orders.SetStatus(ctx, id, fields[1])
	switch {
	case errors.Is(err, models.ErrIllegalTransition):
		b.send(chatID, fmt.Sprintf("That move is not allowed: %v", err))
	case err != nil:
		b.send(chatID, fmt.Sprintf("Could not update the order: %v", err))
	default:
		b.send(chatID, fmt.Sprintf("Order #%d is now %s.", id, fields[1]))
	}
}

func (b *Bot) adminSetBlocked(ctx context.Context, chatID int64, args string, blocked bool) {
	if args == "" {
		b.send(chatID, "Give me a user id or @username.")
		return
	}
	target, err := b.users.Resolve(ctx, args)
	if err != nil {
		b.send(chatID, fmt.Sprintf("Could not find that user: %v", err))
		return
	}
	if blocked && b.gate.IsAdmin(target.ID) {
		b.send(chatID, "Admins cannot be blocked.")
		return
	}

	if blocked {
		_, err = b.users.Block(ctx, strconv.FormatInt(target.ID, 10))
	} else {
		_, err = b.users.Unblock(ctx, strconv.FormatInt(target.ID, 10))
	}
	if err != nil {
		b.send(chatID, fmt.Sprintf("Could not update the user: %v", err))
		return
	}
	verb := "unblocked"
	if blocked {
		verb = "blocked"
	}
	b.send(chatID, fmt.Sprintf("User %d %s.", target.ID, verb))
}

func (b *Bot) adminSetException(ctx context.Context, chatID int64, args string) {
	fields := strings.Fields(args)
	if len(fields) != 2 || (fields[1] != "on" && fields[1] != "off") {
		b.send(chatID, "Usage: /except <id|@user> on|off")
		return
	}
	user, err := b.users.SetException(ctx, fields[0], fields[1] == "on")
	if err != nil {
		b.send(chatID, fmt.Sprintf("Could not update the user: %v", err))
		return
	}
	b.send(chatID, fmt.Sprintf("Subscription exemption for user %d: %s.", user.ID, fields[1]))
}

func (b *Bot) adminAddChannel(ctx context.Context, chatID int64, args string) {
	fields := strings.SplitN(args, " ", 2)
	if fields[0] == "" {
		b.send(chatID, "Usage: /addchannel <@name|id> [title]")
		return
	}
	title := ""
	if len(fields) == 2 {
		title = strings.TrimSpace(fields[1])
	}
	ch, err := b.users.AddChannel(ctx, fields[0], title)
	if err != nil {
		b.send(chatID, fmt.Sprintf("Could not add the channel: %v", err))
		return
	}
	b.send(chatID, fmt.Sprintf("Channel %s added and required (#%d).", ch.TelegramID, ch.ID))
}

func (b *Bot) adminListChannels(ctx context.Context, chatID int64) {
	channels, err := b.users.ListChannels(ctx)
	if err != nil {
		b.logger.Error("failed to list channels", zap.Error(err))
		return
	}
	if len(channels) == 0 {
		b.send(chatID, "No required channels. Use /addchannel.")
		return
	}

	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(channels))
	for _, ch := range channels {
		label := ch.TelegramID
		if ch.Title != "" {
			label = ch.Title
		}
		toggle := "enable"
		toggleData := fmt.Sprintf("ch:e:%d", ch.ID)
		if ch.IsEnabled {
			toggle = "disable"
			toggleData = fmt.Sprintf("ch:x:%d", ch.ID)
			label = "✅ " + label
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label+" · "+toggle, cbPrefixAdmin+toggleData),
			tgbotapi.NewInlineKeyboardButtonData("🗑", fmt.Sprintf("%sch:d:%d", cbPrefixAdmin, ch.ID)),
		))
	}
	b.sendMarkup(chatID, "<b>Required channels</b>", tgbotapi.NewInlineKeyboardMarkup(rows...))
}

// handleAdminCallback routes admin button presses; tail has the adm:
// prefix stripped.
func (b *Bot) handleAdminCallback(ctx context.Context, cb *tgbotapi.CallbackQuery, tail string) {
	chatID := cb.Message.Chat.ID
	parts := strings.Split(tail, ":")
	if len(parts) != 3 || parts[0] != "ch" {
		b.answerCallback(cb.ID, "")
		return
	}
	id, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		b.answerCallback(cb.ID, "")
		return
	}

	switch parts[1] {
	case "e":
		err = b.users.SetChannelEnabled(ctx, id, true)
	case "x":
		err = b.users.SetChannelEnabled(ctx, id, false)
	case "d":
		err = b.users.RemoveChannel(ctx, id)
	default:
		b.answerCallback(cb.ID, "")
		return
	}
	if err != nil {
		b.answerCallback(cb.ID, "That did not work.")
		b.logger.Warn("channel admin action failed", zap.Int64("channel_id", id), zap.Error(err))
		return
	}
	b.answerCallback(cb.ID, "Done")
	b.adminListChannels(ctx, chatID)
}

func (b *Bot) adminBroadcast(ctx context.Context, chatID, userID int64, text string) {
	if err := b.broadcast.Request(ctx, userID, text); err != nil {
		b.send(chatID, fmt.Sprintf("Could not start the broadcast: %v", err))
		return
	}
	b.send(chatID, "Broadcast accepted. Delivery runs in the background.")
}

func (b *Bot) adminStats(ctx context.Context, chatID int64) {
	count, err := b.users.CountUsers(ctx)
	if err != nil {
		b.logger.Error("failed to count users", zap.Error(err))
		return
	}
	b.send(chatID, fmt.Sprintf("<b>Shop stats</b>\n\nRegistered users: %d", count))
}
