// Package session keeps the per-visitor objects of the storefront: the guest
// cart, the checkout session, the server cart cache of a signed-in customer
// and payment redirects waiting to be rendered.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/example/aura-storefront/internal/cart"
	"github.com/example/aura-storefront/internal/checkout"
	"github.com/example/aura-storefront/internal/checkoutflow"
	"github.com/example/aura-storefront/internal/guestcart"
	"github.com/example/aura-storefront/internal/payment"
	"github.com/example/aura-storefront/internal/storage"
	"github.com/example/aura-storefront/internal/utils"
)

const pendingPaymentTTL = 10 * time.Minute

// Deps are the collaborators shared by all visitors.
type Deps struct {
	Storage   storage.Storage
	CartAPI   cart.CartAPI
	Orders    checkoutflow.Orders
	Discounts checkoutflow.Discounts
	Checkout  checkoutflow.Options
	IdleAfter time.Duration
	Now       func() time.Time
}

// Registry hands out one Visitor per guest session id.
type Registry struct {
	deps Deps

	mu       sync.Mutex
	visitors map[string]*Visitor
}

func NewRegistry(deps Deps) *Registry {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Registry{
		deps:     deps,
		visitors: make(map[string]*Visitor),
	}
}

// Get returns the visitor for sid, loading its guest cart on first use.
func (r *Registry) Get(ctx context.Context, sid string) *Visitor {
	r.mu.Lock()
	v, ok := r.visitors[sid]
	if ok {
		v.touch(r.deps.Now())
		r.mu.Unlock()
		return v
	}
	r.mu.Unlock()

	// Loading touches storage, so it runs outside the registry lock.
	guest := guestcart.Open(ctx, r.deps.Storage, sid)
	fresh := &Visitor{
		ID:        sid,
		GuestCart: guest,
		Checkout:  checkoutflow.NewSession(checkout.NewStore(), r.deps.Orders, r.deps.Discounts, r.deps.Checkout),
		cartAPI:   r.deps.CartAPI,
		servers:   make(map[string]*cart.ServerBackend),
		payments:  make(map[string]pendingPayment),
		now:       r.deps.Now,
	}
	fresh.touch(r.deps.Now())

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.visitors[sid]; ok {
		existing.touch(r.deps.Now())
		return existing
	}
	r.visitors[sid] = fresh
	return fresh
}

// Len reports how many visitors are held in memory.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.visitors)
}

// Sweep drops visitors idle for longer than IdleAfter. Their guest carts
// stay in storage and are reloaded on the next request.
func (r *Registry) Sweep() int {
	if r.deps.IdleAfter <= 0 {
		return 0
	}
	cutoff := r.deps.Now().Add(-r.deps.IdleAfter)

	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for sid, v := range r.visitors {
		if v.lastSeenAt().Before(cutoff) {
			delete(r.visitors, sid)
			removed++
		}
	}
	return removed
}

// Run sweeps on every tick until ctx is done.
func (r *Registry) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				log.Debug().Str("component", "session").Int("evicted", n).Msg("evicted idle visitors")
			}
		}
	}
}

type pendingPayment struct {
	descriptor *payment.RedirectDescriptor
	expiresAt  time.Time
}

// Visitor is everything the storefront keeps for one browser.
type Visitor struct {
	ID        string
	GuestCart *guestcart.Store
	Checkout  *checkoutflow.Session

	cartAPI cart.CartAPI
	now     func() time.Time

	mergeMu sync.Mutex

	mu       sync.Mutex
	lastSeen time.Time
	servers  map[string]*cart.ServerBackend
	payments map[string]pendingPayment
}

func (v *Visitor) touch(at time.Time) {
	v.mu.Lock()
	v.lastSeen = at
	v.mu.Unlock()
}

func (v *Visitor) lastSeenAt() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastSeen
}

// Backend picks the cart backend for the request: the server cart for a
// signed-in customer, the guest cart otherwise. Guest lines left over from
// browsing signed out are merged into the server cart first.
func (v *Visitor) Backend(ctx context.Context, id *utils.Identity) cart.Backend {
	if id == nil {
		return cart.NewGuestBackend(v.GuestCart)
	}

	b := v.serverBackend(id)
	v.mergeGuestCart(ctx, b)
	return b
}

func (v *Visitor) serverBackend(id *utils.Identity) *cart.ServerBackend {
	v.mu.Lock()
	defer v.mu.Unlock()
	b, ok := v.servers[id.UserID]
	if !ok {
		b = cart.NewServerBackend(v.cartAPI, id.Token)
		v.servers[id.UserID] = b
		return b
	}
	b.SetToken(id.Token)
	return b
}

// mergeGuestCart is serialized per visitor so concurrent requests never push
// the same guest line twice. Lines that fail stay in the guest cart and are
// retried on the next signed-in request.
func (v *Visitor) mergeGuestCart(ctx context.Context, server *cart.ServerBackend) {
	if len(v.GuestCart.Items()) == 0 {
		return
	}

	v.mergeMu.Lock()
	defer v.mergeMu.Unlock()

	merged, err := cart.Reconcile(ctx, v.GuestCart, server)
	if err != nil {
		log.Warn().Err(err).Str("component", "session").Str("visitor", v.ID).Msg("guest cart only partly merged")
		return
	}
	if merged > 0 {
		log.Info().Str("component", "session").Str("visitor", v.ID).Int("lines", merged).Msg("merged guest cart into server cart")
	}
}

// StashPayment keeps d until the browser fetches the redirect page and
// returns the one-time token that page is addressed by.
func (v *Visitor) StashPayment(d *payment.RedirectDescriptor) string {
	token := uuid.NewString()
	now := v.now()

	v.mu.Lock()
	defer v.mu.Unlock()
	for k, p := range v.payments {
		if now.After(p.expiresAt) {
			delete(v.payments, k)
		}
	}
	v.payments[token] = pendingPayment{descriptor: d, expiresAt: now.Add(pendingPaymentTTL)}
	return token
}

// TakePayment returns and forgets the descriptor stashed under token.
func (v *Visitor) TakePayment(token string) (*payment.RedirectDescriptor, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	p, ok := v.payments[token]
	if !ok {
		return nil, false
	}
	delete(v.payments, token)
	if v.now().After(p.expiresAt) {
		return nil, false
	}
	return p.descriptor, true
}
