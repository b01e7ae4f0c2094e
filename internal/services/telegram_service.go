package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const telegramAPIBase = "https://api.telegram.org"

// TelegramService handles sending notifications to Telegram.
type TelegramService struct {
	botToken    string
	adminChatID string
	apiBase     string
	httpClient  *http.Client
}

// NewTelegramService creates a new TelegramService.
func NewTelegramService(botToken, adminChatID string) *TelegramService {
	return &TelegramService{
		botToken:    botToken,
		adminChatID: adminChatID,
		apiBase:     telegramAPIBase,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
	}
}

// WithAPIBase points the service at another Bot API host.
func (s *TelegramService) WithAPIBase(base string) *TelegramService {
	s.apiBase = strings.TrimRight(base, "/")
	return s
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// SendMessage sends a message to specified chat.
func (s *TelegramService) SendMessage(ctx context.Context, chatID, text string) error {
	if s.botToken == "" {
		log.Debug().Str("component", "telegram").Msg("bot token not configured")
		return nil
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", s.apiBase, s.botToken)

	body, err := json.Marshal(telegramMessage{
		ChatID:    chatID,
		Text:      text,
		ParseMode: "HTML",
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		log.Error().Err(err).Str("component", "telegram").Msg("failed to send message")
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Error().Int("status", resp.StatusCode).Str("component", "telegram").Msg("unexpected status")
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}

	return nil
}

// SendToAdmin sends a message to the admin chat.
func (s *TelegramService) SendToAdmin(ctx context.Context, text string) error {
	if s.adminChatID == "" {
		log.Debug().Str("component", "telegram").Msg("admin chat id not configured")
		return nil
	}
	return s.SendMessage(ctx, s.adminChatID, text)
}

// OrderNotification contains order data for the admin alert.
type OrderNotification struct {
	OrderID       string
	OrderNumber   string
	Items         []OrderItemNotification
	TotalAmount   float64
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	PaymentMethod string
	Guest         bool
}

// OrderItemNotification contains order item data.
type OrderItemNotification struct {
	Name     string
	Quantity int
	Price    float64
}

// FormatPrice formats an amount in rupees with thousand separators.
func FormatPrice(amount float64) string {
	negative := amount < 0
	if negative {
		amount = -amount
	}
	intAmount := int64(amount)
	paise := int64((amount-float64(intAmount))*100 + 0.5)
	if paise == 100 {
		intAmount++
		paise = 0
	}
	str := fmt.Sprintf("%d", intAmount)

	var result strings.Builder
	if negative {
		result.WriteString("-")
	}
	result.WriteString("Rs. ")
	length := len(str)
	for i, digit := range str {
		if i > 0 && (length-i)%3 == 0 {
			result.WriteString(",")
		}
		result.WriteRune(digit)
	}
	if paise > 0 {
		result.WriteString(fmt.Sprintf(".%02d", paise))
	}

	return result.String()
}

var paymentMethodLabels = map[string]string{
	"cod":   "Cash on delivery",
	"esewa": "eSewa",
	"card":  "Card",
}

// NotifyOrderPlaced alerts the admin chat about a new order.
func (s *TelegramService) NotifyOrderPlaced(ctx context.Context, order OrderNotification) error {
	if s.adminChatID == "" {
		return nil
	}

	var itemsList strings.Builder
	for i, item := range order.Items {
		itemTotal := item.Price * float64(item.Quantity)
		itemsList.WriteString(fmt.Sprintf("%d. <b>%s</b>\n   %d x %s = %s\n",
			i+1,
			html.EscapeString(item.Name),
			item.Quantity,
			FormatPrice(item.Price),
			FormatPrice(itemTotal),
		))
	}

	method := paymentMethodLabels[order.PaymentMethod]
	if method == "" {
		method = order.PaymentMethod
	}

	customer := "Registered customer"
	if order.Guest {
		customer = "Guest"
	}

	message := fmt.Sprintf(`<b>New order %s</b>
<b>Customer:</b> %s (%s)
<b>Email:</b> %s
<b>Phone:</b> %s
<b>Items:</b>
%s
<b>Total:</b> %s
<b>Payment:</b> %s`,
		html.EscapeString(order.OrderNumber),
		html.EscapeString(order.CustomerName),
		customer,
		html.EscapeString(order.CustomerEmail),
		html.EscapeString(order.CustomerPhone),
		itemsList.String(),
		FormatPrice(order.TotalAmount),
		method,
	)

	return s.SendToAdmin(ctx, strings.TrimSpace(message))
}
