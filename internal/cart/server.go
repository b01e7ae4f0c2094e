package cart

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/example/aura-storefront/internal/models"
	"github.com/example/aura-storefront/internal/services"
)

// CartAPI is the slice of the cart endpoints the server backend uses.
type CartAPI interface {
	Get(ctx context.Context, token string) (*services.ServerCart, error)
	AddItem(ctx context.Context, token string, req services.AddCartItemRequest) (*services.ServerCart, error)
	UpdateItem(ctx context.Context, token, itemID string, quantity int) (*services.ServerCart, error)
	RemoveItem(ctx context.Context, token, itemID string) (*services.ServerCart, error)
	Clear(ctx context.Context, token string) error
}

// ServerBackend serves the cart of a signed-in customer from the API. It
// keeps the last fetched cart as a cache, applies quantity changes
// optimistically and rolls them back when the API rejects them.
type ServerBackend struct {
	api CartAPI

	mu       sync.Mutex
	token    string
	snapshot *services.ServerCart
	gen      uint64

	sfg singleflight.Group
}

func NewServerBackend(api CartAPI, token string) *ServerBackend {
	return &ServerBackend{api: api, token: token}
}

func (b *ServerBackend) Kind() Kind { return KindServer }

// SetToken swaps the bearer token, e.g. after the client refreshed it.
func (b *ServerBackend) SetToken(token string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.token != token {
		b.token = token
		b.invalidateLocked()
	}
}

func (b *ServerBackend) Lines(ctx context.Context) ([]models.CartItem, error) {
	cart, err := b.cart(ctx)
	if err != nil {
		return nil, err
	}
	return toItems(cart), nil
}

// Totals returns the server-computed totals.
func (b *ServerBackend) Totals(ctx context.Context) (models.CartTotals, error) {
	cart, err := b.cart(ctx)
	if err != nil {
		return models.CartTotals{}, err
	}
	return models.CartTotals{ItemCount: cart.TotalItems, Subtotal: cart.Subtotal}, nil
}

func (b *ServerBackend) AddItem(ctx context.Context, product models.ProductSnapshot, quantity int, variant models.Variant) error {
	if quantity < 1 {
		quantity = 1
	}
	_, err := b.api.AddItem(ctx, b.currentToken(), services.AddCartItemRequest{
		ProductID: product.ID,
		Quantity:  quantity,
		Variant:   variant,
	})
	if err != nil {
		return err
	}
	b.invalidate()
	return nil
}

// UpdateQuantity sets the quantity of a line. Zero or less removes it.
func (b *ServerBackend) UpdateQuantity(ctx context.Context, itemID string, quantity int) error {
	if quantity <= 0 {
		return b.RemoveItem(ctx, itemID)
	}

	prev, gen := b.applyOptimistic(func(c *services.ServerCart) {
		for i := range c.Items {
			if c.Items[i].ID == itemID {
				c.Items[i].Quantity = quantity
			}
		}
	})

	if _, err := b.api.UpdateItem(ctx, b.currentToken(), itemID, quantity); err != nil {
		b.rollback(prev, gen)
		return err
	}
	b.invalidate()
	return nil
}

func (b *ServerBackend) RemoveItem(ctx context.Context, itemID string) error {
	prev, gen := b.applyOptimistic(func(c *services.ServerCart) {
		kept := c.Items[:0]
		for _, item := range c.Items {
			if item.ID != itemID {
				kept = append(kept, item)
			}
		}
		c.Items = kept
	})

	if _, err := b.api.RemoveItem(ctx, b.currentToken(), itemID); err != nil {
		b.rollback(prev, gen)
		return err
	}
	b.invalidate()
	return nil
}

func (b *ServerBackend) Clear(ctx context.Context) error {
	if err := b.api.Clear(ctx, b.currentToken()); err != nil {
		return err
	}
	b.invalidate()
	return nil
}

// Invalidate drops the cached cart so the next read refetches it.
func (b *ServerBackend) Invalidate() {
	b.invalidate()
}

func (b *ServerBackend) cart(ctx context.Context) (*services.ServerCart, error) {
	b.mu.Lock()
	if b.snapshot != nil {
		c := cloneCart(b.snapshot)
		b.mu.Unlock()
		return c, nil
	}
	token, gen := b.token, b.gen
	b.mu.Unlock()

	// The shared fetch outlives the request that started it.
	shared := context.WithoutCancel(ctx)
	v, err, _ := b.sfg.Do(token, func() (interface{}, error) {
		return b.api.Get(shared, token)
	})
	if err != nil {
		return nil, err
	}
	fetched := v.(*services.ServerCart)

	b.mu.Lock()
	if b.gen == gen {
		b.snapshot = cloneCart(fetched)
	}
	b.mu.Unlock()
	return cloneCart(fetched), nil
}

// applyOptimistic edits the cached cart in place and returns the previous
// value for rollback. Without a cached cart there is nothing to edit.
func (b *ServerBackend) applyOptimistic(edit func(*services.ServerCart)) (*services.ServerCart, uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.snapshot == nil {
		return nil, b.gen
	}
	prev := cloneCart(b.snapshot)
	edit(b.snapshot)
	recomputeTotals(b.snapshot)
	b.gen++
	return prev, b.gen
}

// rollback restores prev unless something newer replaced the optimistic value.
func (b *ServerBackend) rollback(prev *services.ServerCart, gen uint64) {
	if prev == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.gen != gen {
		log.Debug().Str("component", "cart").Msg("skipping rollback of superseded cart update")
		return
	}
	b.snapshot = prev
	b.gen++
}

func (b *ServerBackend) invalidate() {
	b.mu.Lock()
	b.invalidateLocked()
	b.mu.Unlock()
}

func (b *ServerBackend) invalidateLocked() {
	b.snapshot = nil
	b.gen++
}

func (b *ServerBackend) currentToken() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.token
}

func recomputeTotals(c *services.ServerCart) {
	count := 0
	subtotal := decimal.Zero
	for _, item := range c.Items {
		count += item.Quantity
		subtotal = subtotal.Add(decimal.NewFromFloat(linePrice(item)).Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	c.TotalItems = count
	c.Subtotal = subtotal.InexactFloat64()
}

func linePrice(item services.ServerCartItem) float64 {
	if item.Price > 0 {
		return item.Price
	}
	return item.Product.Price
}

func toItems(c *services.ServerCart) []models.CartItem {
	items := make([]models.CartItem, 0, len(c.Items))
	for _, line := range c.Items {
		product := line.Product
		product.Price = linePrice(line)
		items = append(items, models.CartItem{
			ID:       line.ID,
			Product:  product,
			Quantity: line.Quantity,
			Variant:  line.Variant.Clone(),
		})
	}
	return items
}

func cloneCart(c *services.ServerCart) *services.ServerCart {
	if c == nil {
		return nil
	}
	out := *c
	out.Items = make([]services.ServerCartItem, len(c.Items))
	for i, item := range c.Items {
		item.Variant = item.Variant.Clone()
		out.Items[i] = item
	}
	return &out
}
