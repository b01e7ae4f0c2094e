package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatPrice(t *testing.T) {
	assert.Equal(t, "Rs. 0", FormatPrice(0))
	assert.Equal(t, "Rs. 999", FormatPrice(999))
	assert.Equal(t, "Rs. 1,000", FormatPrice(1000))
	assert.Equal(t, "Rs. 5,235.50", FormatPrice(5235.5))
	assert.Equal(t, "Rs. 1,234,567", FormatPrice(1234567))
}

func TestNotifyOrderPlaced(t *testing.T) {
	var got telegramMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botbot-token/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tg := NewTelegramService("bot-token", "admin-chat").WithAPIBase(srv.URL)
	err := tg.NotifyOrderPlaced(context.Background(), OrderNotification{
		OrderNumber:   "AUR-1001",
		CustomerName:  "Ana <Reyes>",
		PaymentMethod: "cod",
		TotalAmount:   3000,
		Guest:         true,
		Items:         []OrderItemNotification{{Name: "Linen Sofa", Quantity: 3, Price: 1000}},
	})
	require.NoError(t, err)

	assert.Equal(t, "admin-chat", got.ChatID)
	assert.Equal(t, "HTML", got.ParseMode)
	assert.Contains(t, got.Text, "AUR-1001")
	assert.Contains(t, got.Text, "Ana &lt;Reyes&gt;")
	assert.Contains(t, got.Text, "Cash on delivery")
	assert.Contains(t, got.Text, "3 x Rs. 1,000 = Rs. 3,000")
}

func TestTelegramSkipsWhenNotConfigured(t *testing.T) {
	tg := NewTelegramService("", "")
	assert.NoError(t, tg.NotifyOrderPlaced(context.Background(), OrderNotification{OrderNumber: "X"}))
	assert.NoError(t, tg.SendMessage(context.Background(), "chat", "hello"))
}

func TestTelegramUnexpectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	tg := NewTelegramService("bot-token", "admin-chat").WithAPIBase(srv.URL)
	assert.Error(t, tg.SendToAdmin(context.Background(), "hello"))
}
