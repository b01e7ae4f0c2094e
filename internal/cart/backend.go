// Package cart puts the guest cart and the server cart behind one interface
// so callers pick a backend once per request instead of branching on
// authentication at every call site.
package cart

import (
	"context"

	"github.com/example/aura-storefront/internal/guestcart"
	"github.com/example/aura-storefront/internal/models"
)

// Kind names a backend implementation.
type Kind string

const (
	KindGuest  Kind = "guest"
	KindServer Kind = "server"
)

// Backend is the set of cart operations the storefront needs.
type Backend interface {
	Kind() Kind
	Lines(ctx context.Context) ([]models.CartItem, error)
	AddItem(ctx context.Context, product models.ProductSnapshot, quantity int, variant models.Variant) error
	UpdateQuantity(ctx context.Context, itemID string, quantity int) error
	RemoveItem(ctx context.Context, itemID string) error
	Totals(ctx context.Context) (models.CartTotals, error)
	Clear(ctx context.Context) error
}

// GuestBackend serves the cart of a visitor without an account.
type GuestBackend struct {
	store *guestcart.Store
}

func NewGuestBackend(store *guestcart.Store) *GuestBackend {
	return &GuestBackend{store: store}
}

func (b *GuestBackend) Kind() Kind { return KindGuest }

func (b *GuestBackend) Lines(context.Context) ([]models.CartItem, error) {
	return b.store.Items(), nil
}

func (b *GuestBackend) AddItem(ctx context.Context, product models.ProductSnapshot, quantity int, variant models.Variant) error {
	b.store.AddItem(ctx, product, quantity, variant)
	return nil
}

func (b *GuestBackend) UpdateQuantity(ctx context.Context, itemID string, quantity int) error {
	b.store.UpdateItemQuantity(ctx, itemID, quantity)
	return nil
}

func (b *GuestBackend) RemoveItem(ctx context.Context, itemID string) error {
	b.store.RemoveItem(ctx, itemID)
	return nil
}

func (b *GuestBackend) Totals(context.Context) (models.CartTotals, error) {
	return b.store.Totals(), nil
}

func (b *GuestBackend) Clear(ctx context.Context) error {
	b.store.Clear(ctx)
	return nil
}
