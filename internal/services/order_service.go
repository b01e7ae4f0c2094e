package services

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/example/aura-storefront/internal/checkout"
	"github.com/example/aura-storefront/internal/models"
	"github.com/example/aura-storefront/internal/payment"
)

// Order is the order summary returned by the order endpoints.
type Order struct {
	ID              string           `json:"_id"`
	OrderNumber     string           `json:"orderNumber"`
	Email           string           `json:"email,omitempty"`
	Status          string           `json:"status"`
	PaymentMethod   string           `json:"paymentMethod"`
	PaymentStatus   string           `json:"paymentStatus,omitempty"`
	Items           []OrderLine      `json:"items"`
	ShippingAddress *models.Address  `json:"shippingAddress,omitempty"`
	Subtotal        float64          `json:"subtotal"`
	Discount        float64          `json:"discount"`
	ShippingCost    float64          `json:"shippingCost"`
	Tax             float64          `json:"tax"`
	Total           float64          `json:"total"`
	CreatedAt       time.Time        `json:"createdAt"`
	Timeline        []OrderTimeEntry `json:"timeline,omitempty"`
}

// OrderLine is a purchased line.
type OrderLine struct {
	ProductID string         `json:"productId"`
	Name      string         `json:"name"`
	Quantity  int            `json:"quantity"`
	Price     float64        `json:"price"`
	Variant   models.Variant `json:"variant,omitempty"`
}

// OrderTimeEntry is one status transition of an order.
type OrderTimeEntry struct {
	Status    string    `json:"status"`
	Note      string    `json:"note,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderResult is the response of both checkout endpoints. Payment is set
// when the order has to be paid on the gateway.
type OrderResult struct {
	Order     Order                       `json:"order"`
	Payment   *payment.RedirectDescriptor `json:"esewaPayment,omitempty"`
	EmailSent *bool                       `json:"emailSent,omitempty"`
}

// ConfirmationEmailSent reports the emailSent flag, assuming true when the
// API left it out.
func (r *OrderResult) ConfirmationEmailSent() bool {
	return r.EmailSent == nil || *r.EmailSent
}

// OrderPage is one page of the customer's orders.
type OrderPage struct {
	Orders     []Order `json:"orders"`
	Total      int64   `json:"total"`
	Page       int     `json:"page"`
	TotalPages int     `json:"totalPages"`
}

// OrderService wraps the /orders endpoints.
type OrderService struct {
	api *APIClient
}

func NewOrderService(api *APIClient) *OrderService {
	return &OrderService{api: api}
}

// Checkout places an order from the authenticated customer's server cart.
func (s *OrderService) Checkout(ctx context.Context, token string, payload checkout.AuthenticatedCheckoutPayload) (*OrderResult, error) {
	var out OrderResult
	opts := RequestOpts{
		Method:         http.MethodPost,
		Path:           "/orders/checkout",
		Token:          token,
		Body:           payload,
		IdempotencyKey: payload.IdempotencyKey,
	}
	if err := s.api.call(ctx, opts, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GuestCheckout places an order for a visitor without an account.
func (s *OrderService) GuestCheckout(ctx context.Context, payload checkout.GuestCheckoutPayload) (*OrderResult, error) {
	var out OrderResult
	opts := RequestOpts{
		Method:         http.MethodPost,
		Path:           "/orders/guest-checkout",
		Body:           payload,
		IdempotencyKey: payload.IdempotencyKey,
	}
	if err := s.api.call(ctx, opts, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Track looks an order up by number and the email it was placed with.
func (s *OrderService) Track(ctx context.Context, orderNumber, email string) (*Order, error) {
	var out Order
	opts := RequestOpts{
		Method: http.MethodGet,
		Path:   "/orders/track",
		Query:  map[string]string{"orderNumber": orderNumber, "email": email},
	}
	if err := s.api.call(ctx, opts, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *OrderService) MyOrders(ctx context.Context, token string, page, limit int) (*OrderPage, error) {
	var out OrderPage
	opts := RequestOpts{
		Method: http.MethodGet,
		Path:   "/orders/my-orders",
		Token:  token,
		Query:  map[string]string{"page": strconv.Itoa(page), "limit": strconv.Itoa(limit)},
	}
	if err := s.api.call(ctx, opts, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *OrderService) Cancel(ctx context.Context, token, orderID, reason string) (*Order, error) {
	return s.transition(ctx, token, orderID, "cancel", reason)
}

func (s *OrderService) Return(ctx context.Context, token, orderID, reason string) (*Order, error) {
	return s.transition(ctx, token, orderID, "return", reason)
}

func (s *OrderService) transition(ctx context.Context, token, orderID, action, reason string) (*Order, error) {
	var out Order
	opts := RequestOpts{
		Method: http.MethodPost,
		Path:   "/orders/" + url.PathEscape(orderID) + "/" + action,
		Token:  token,
		Body:   map[string]string{"reason": reason},
	}
	if err := s.api.call(ctx, opts, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
