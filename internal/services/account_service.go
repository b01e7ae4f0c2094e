package services

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/example/aura-storefront/internal/models"
)

// Profile is the signed-in customer as returned by /auth/me.
type Profile struct {
	ID        string `json:"_id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Phone     string `json:"phone"`
	Role      string `json:"role"`
}

// DiscountResult is a validated promo code.
type DiscountResult struct {
	Code       string  `json:"code"`
	Type       string  `json:"type"`
	Percentage float64 `json:"percentage,omitempty"`
	Amount     float64 `json:"amount,omitempty"`
}

// Notification is one entry of the notification inbox.
type Notification struct {
	ID        string         `json:"_id"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Type      string         `json:"type"`
	Read      bool           `json:"read"`
	ActionURL string         `json:"actionUrl,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// NotificationPage is one page of the inbox plus the unread badge.
type NotificationPage struct {
	Notifications []Notification `json:"notifications"`
	UnreadCount   int            `json:"unreadCount"`
	Total         int64          `json:"total"`
}

// AccountService wraps the customer-scoped endpoints used during checkout:
// profile, saved addresses, discounts and notifications.
type AccountService struct {
	api *APIClient
}

func NewAccountService(api *APIClient) *AccountService {
	return &AccountService{api: api}
}

func (s *AccountService) Profile(ctx context.Context, token string) (*Profile, error) {
	var out Profile
	if err := s.api.call(ctx, RequestOpts{Method: http.MethodGet, Path: "/auth/me", Token: token}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *AccountService) Addresses(ctx context.Context, token string) ([]models.SavedAddress, error) {
	var out []models.SavedAddress
	if err := s.api.call(ctx, RequestOpts{Method: http.MethodGet, Path: "/addresses", Token: token}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ValidateDiscount asks the API whether code applies to subtotal. Guests
// pass an empty token.
func (s *AccountService) ValidateDiscount(ctx context.Context, token, code string, subtotal float64) (*DiscountResult, error) {
	var out DiscountResult
	opts := RequestOpts{
		Method: http.MethodPost,
		Path:   "/discounts/validate",
		Token:  token,
		Body: map[string]any{
			"code":     code,
			"subtotal": subtotal,
		},
	}
	if err := s.api.call(ctx, opts, &out); err != nil {
		return nil, err
	}
	if out.Code == "" {
		out.Code = code
	}
	return &out, nil
}

func (s *AccountService) Notifications(ctx context.Context, token string, page, limit int) (*NotificationPage, error) {
	var out NotificationPage
	opts := RequestOpts{
		Method: http.MethodGet,
		Path:   "/notifications",
		Token:  token,
		Query:  map[string]string{"page": strconv.Itoa(page), "limit": strconv.Itoa(limit)},
	}
	if err := s.api.call(ctx, opts, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *AccountService) MarkNotificationRead(ctx context.Context, token, id string) error {
	opts := RequestOpts{Method: http.MethodPatch, Path: "/notifications/" + url.PathEscape(id) + "/read", Token: token}
	return s.api.call(ctx, opts, nil)
}
