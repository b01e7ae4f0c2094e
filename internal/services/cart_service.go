package services

import (
	"context"
	"net/http"
	"net/url"

	"github.com/example/aura-storefront/internal/models"
)

// ServerCartItem is one line of a customer's server-side cart.
type ServerCartItem struct {
	ID       string                 `json:"_id"`
	Product  models.ProductSnapshot `json:"product"`
	Quantity int                    `json:"quantity"`
	Variant  models.Variant         `json:"variant,omitempty"`
	Price    float64                `json:"price"`
}

// ServerCart is the authoritative cart of an authenticated customer.
type ServerCart struct {
	Items      []ServerCartItem `json:"items"`
	Subtotal   float64          `json:"subtotal"`
	TotalItems int              `json:"totalItems"`
}

// AddCartItemRequest is the body of POST /cart/items.
type AddCartItemRequest struct {
	ProductID string         `json:"productId"`
	Quantity  int            `json:"quantity"`
	Variant   models.Variant `json:"variant,omitempty"`
}

// CartService wraps the /cart endpoints.
type CartService struct {
	api *APIClient
}

func NewCartService(api *APIClient) *CartService {
	return &CartService{api: api}
}

func (s *CartService) Get(ctx context.Context, token string) (*ServerCart, error) {
	var cart ServerCart
	if err := s.api.call(ctx, RequestOpts{Method: http.MethodGet, Path: "/cart", Token: token}, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

func (s *CartService) AddItem(ctx context.Context, token string, req AddCartItemRequest) (*ServerCart, error) {
	var cart ServerCart
	opts := RequestOpts{Method: http.MethodPost, Path: "/cart/items", Token: token, Body: req}
	if err := s.api.call(ctx, opts, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

func (s *CartService) UpdateItem(ctx context.Context, token, itemID string, quantity int) (*ServerCart, error) {
	var cart ServerCart
	opts := RequestOpts{
		Method: http.MethodPut,
		Path:   "/cart/items/" + url.PathEscape(itemID),
		Token:  token,
		Body:   map[string]int{"quantity": quantity},
	}
	if err := s.api.call(ctx, opts, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

func (s *CartService) RemoveItem(ctx context.Context, token, itemID string) (*ServerCart, error) {
	var cart ServerCart
	opts := RequestOpts{Method: http.MethodDelete, Path: "/cart/items/" + url.PathEscape(itemID), Token: token}
	if err := s.api.call(ctx, opts, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

func (s *CartService) Clear(ctx context.Context, token string) error {
	return s.api.call(ctx, RequestOpts{Method: http.MethodDelete, Path: "/cart", Token: token}, nil)
}
