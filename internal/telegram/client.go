package telegram

import (
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"shopbot/internal/util"
)

// Chat member statuses that count as being subscribed to a channel.
var memberStatuses = map[string]bool{
	"member":        true,
	"administrator": true,
	"creator":       true,
}

// Client wraps the Bot API with the handful of calls the services need.
type Client struct {
	api *tgbotapi.BotAPI
}

func NewClient(token string) (*Client, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to bot api: %w", err)
	}
	return &Client{api: api}, nil
}

// Username returns the bot's own username without the leading @.
func (c *Client) Username() string {
	return c.api.Self.UserName
}

// UpdatesChan starts long polling and returns the update stream.
func (c *Client) UpdatesChan(timeoutSeconds int) tgbotapi.UpdatesChannel {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = timeoutSeconds
	return c.api.GetUpdatesChan(u)
}

func (c *Client) StopPolling() {
	c.api.StopReceivingUpdates()
}

func (c *Client) SendMessage(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err := c.api.Send(msg)
	return err
}

func (c *Client) SendMessageWithMarkup(chatID int64, text string, markup tgbotapi.InlineKeyboardMarkup) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = markup
	_, err := c.api.Send(msg)
	return err
}

// SendInvoice issues a payment invoice with a single price line.
// For Telegram Stars the currency is XTR and providerToken is empty.
func (c *Client) SendInvoice(chatID int64, title, description, payload, providerToken, currency string, amount int) error {
	invoice := tgbotapi.InvoiceConfig{
		BaseChat:      tgbotapi.BaseChat{ChatID: chatID},
		Title:         title,
		Description:   description,
		Payload:       payload,
		ProviderToken: providerToken,
		Currency:      currency,
		Prices:        []tgbotapi.LabeledPrice{{Label: title, Amount: amount}},
	}
	_, err := c.api.Request(invoice)
	return err
}

// AnswerPreCheckout must be called within 10 seconds of receiving a
// pre-checkout query or Telegram cancels the payment on its own.
func (c *Client) AnswerPreCheckout(queryID string, ok bool, errorMessage string) error {
	answer := tgbotapi.PreCheckoutConfig{
		PreCheckoutQueryID: queryID,
		OK:                 ok,
		ErrorMessage:       errorMessage,
	}
	_, err := c.api.Request(answer)
	return err
}

func (c *Client) AnswerCallback(callbackID, text string) error {
	_, err := c.api.Request(tgbotapi.NewCallback(callbackID, text))
	return err
}

// IsChannelMember reports whether the user is subscribed to the channel.
// The channel may be referenced by @username or by numeric id.
func (c *Client) IsChannelMember(channel string, userID int64) (bool, error) {
	cfg := tgbotapi.ChatConfigWithUser{UserID: userID}
	if id, err := strconv.ParseInt(channel, 10, 64); err == nil {
		cfg.ChatID = id
	} else {
		cfg.SuperGroupUsername = channel
	}

	member, err := c.api.GetChatMember(tgbotapi.GetChatMemberConfig{ChatConfigWithUser: cfg})
	if err != nil {
		return false, fmt.Errorf("failed to get chat member: %w", err)
	}
	return memberStatuses[member.Status], nil
}

// SendPhotoByFileID re-sends a photo the bot has already seen, used for
// product images stored as Telegram file ids.
func (c *Client) SendPhotoByFileID(chatID int64, fileID, caption string, markup tgbotapi.InlineKeyboardMarkup) error {
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileID(fileID))
	photo.Caption = caption
	photo.ParseMode = tgbotapi.ModeHTML
	photo.ReplyMarkup = markup
	_, err := c.api.Send(photo)
	return err
}

// SendReceiptQR renders the charge reference as a QR code image and
// sends it as a photo with the receipt text as caption.
func (c *Client) SendReceiptQR(chatID int64, caption, reference string) error {
	png, err := qrcode.Encode(reference, qrcode.Medium, 256)
	if err != nil {
		return fmt.Errorf("failed to encode qr: %w", err)
	}
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{
		Name:  "receipt.png",
		Bytes: png,
	})
	photo.Caption = caption
	photo.ParseMode = tgbotapi.ModeHTML
	_, err = c.api.Send(photo)
	return err
}

// NotifyAdmins sends the text to every admin, logging failures instead
// of returning them so one unreachable admin does not block the rest.
func (c *Client) NotifyAdmins(adminIDs []int64, text string) {
	logger := util.GetLogger()
	for _, id := range adminIDs {
		if err := c.SendMessage(id, text); err != nil {
			logger.Warn("failed to notify admin",
				zap.Int64("admin_id", id),
				zap.Error(err))
		}
	}
}

// DeepLink builds a t.me start link for the bot, used in subscribe
// prompts and referral links.
func (c *Client) DeepLink(param string) string {
	username := strings.TrimPrefix(c.Username(), "@")
	if param == "" {
		return "https://t.me/" + username
	}
	return "https://t.me/" + username + "?start=" + param
}
